package handlers

import (
	"context"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/services"
)

// mockRecomputeService records the last call and returns a canned result.
type mockRecomputeService struct {
	record *models.MetricRecord
	err    error

	jobCardID string
	logDate   time.Time
	shift     string
}

var _ services.RecomputeService = (*mockRecomputeService)(nil)

func (m *mockRecomputeService) Recompute(ctx context.Context, jobCardID string, logDate time.Time, shift string) (*models.MetricRecord, error) {
	m.jobCardID, m.logDate, m.shift = jobCardID, logDate, shift
	return m.record, m.err
}

func (m *mockRecomputeService) RecomputeWorkOrder(ctx context.Context, workOrderID string, logDate time.Time) (*models.MetricRecord, error) {
	return nil, m.err
}

func (m *mockRecomputeService) RecomputeWorkstation(ctx context.Context, workstationID string, logDate time.Time) (*models.MetricRecord, error) {
	return nil, m.err
}

// mockReportingService returns canned reports and captures the filters it saw.
type mockReportingService struct {
	rows     []models.MachineMetric
	summary  *models.OEESummary
	trends   []models.TrendPoint
	reasons  []models.DowntimeReason
	analyses []models.MachineAnalysis
	records  []*models.MetricRecord
	drill    *models.DrillDown
	history  *models.MachineHistory
	err      error

	filters models.ReportFilters
	level   models.MetricLevel
	ref     string
	limit   int
}

var _ services.ReportingService = (*mockReportingService)(nil)

func (m *mockReportingService) GetMetrics(ctx context.Context, filters models.ReportFilters) ([]models.MachineMetric, error) {
	m.filters = filters
	return m.rows, m.err
}

func (m *mockReportingService) GetSummary(ctx context.Context, filters models.ReportFilters) (*models.OEESummary, error) {
	m.filters = filters
	return m.summary, m.err
}

func (m *mockReportingService) GetTrends(ctx context.Context, filters models.ReportFilters) ([]models.TrendPoint, error) {
	m.filters = filters
	return m.trends, m.err
}

func (m *mockReportingService) GetDowntimeReasons(ctx context.Context, filters models.ReportFilters) ([]models.DowntimeReason, error) {
	m.filters = filters
	return m.reasons, m.err
}

func (m *mockReportingService) GetComprehensiveAnalysis(ctx context.Context, filters models.ReportFilters) ([]models.MachineAnalysis, error) {
	m.filters = filters
	return m.analyses, m.err
}

func (m *mockReportingService) GetAnalysis(ctx context.Context, level models.MetricLevel, referenceID string, filters models.ReportFilters) ([]*models.MetricRecord, error) {
	m.level, m.ref, m.filters = level, referenceID, filters
	return m.records, m.err
}

func (m *mockReportingService) GetDrillDown(ctx context.Context, level models.MetricLevel, referenceID string, filters models.ReportFilters) (*models.DrillDown, error) {
	m.level, m.ref, m.filters = level, referenceID, filters
	return m.drill, m.err
}

func (m *mockReportingService) GetMachineHistory(ctx context.Context, machineID string, filters models.ReportFilters) (*models.MachineHistory, error) {
	m.ref, m.filters = machineID, filters
	return m.history, m.err
}

func (m *mockReportingService) GetRecentJobCards(ctx context.Context, limit int, filters models.ReportFilters) ([]*models.MetricRecord, error) {
	m.limit, m.filters = limit, filters
	return m.records, m.err
}

type mockDashboardService struct {
	dashboard *models.Dashboard
}

func (m *mockDashboardService) GetDashboard(ctx context.Context, filters models.ReportFilters) *models.Dashboard {
	return m.dashboard
}
