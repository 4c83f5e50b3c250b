package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// DashboardService bundles every report section into one response.
type DashboardService interface {
	// GetDashboard never fails: a section that cannot be loaded is returned empty.
	GetDashboard(ctx context.Context, filters models.ReportFilters) *models.Dashboard
}

type dashboardService struct {
	reports ReportingService
	logger  *zap.Logger
}

// NewDashboardService creates the dashboard aggregator.
func NewDashboardService(reports ReportingService, logger *zap.Logger) DashboardService {
	return &dashboardService{
		reports: reports,
		logger:  logger.Named("oee-dashboard"),
	}
}

var _ DashboardService = (*dashboardService)(nil)

func (s *dashboardService) GetDashboard(ctx context.Context, filters models.ReportFilters) *models.Dashboard {
	dash := &models.Dashboard{
		Trends:          []models.TrendPoint{},
		DowntimeReasons: []models.DowntimeReason{},
		MachineOEE:      []models.MachineMetric{},
		RecentJobCards:  []*models.MetricRecord{},
	}

	// Sections share dash; each writes a distinct field under mu.
	var mu sync.Mutex
	section := func(name string, load func(context.Context) error) func() error {
		return func() error {
			if err := load(ctx); err != nil {
				s.logger.Warn("Dashboard section unavailable",
					zap.String("section", name),
					zap.Error(err))
			}
			return nil
		}
	}

	var g errgroup.Group
	g.Go(section("machine_oee", func(ctx context.Context) error {
		rows, err := s.reports.GetMetrics(ctx, filters)
		if err != nil {
			return err
		}
		summary := Summarize(rows)
		trends := Trend(rows)
		mu.Lock()
		defer mu.Unlock()
		dash.MachineOEE = rows
		dash.Summary = *summary
		dash.Trends = trends
		return nil
	}))
	g.Go(section("downtime_reasons", func(ctx context.Context) error {
		reasons, err := s.reports.GetDowntimeReasons(ctx, filters)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if reasons != nil {
			dash.DowntimeReasons = reasons
		}
		return nil
	}))
	g.Go(section("recent_job_cards", func(ctx context.Context) error {
		recent, err := s.reports.GetRecentJobCards(ctx, 0, filters)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		dash.RecentJobCards = recent
		return nil
	}))
	_ = g.Wait()

	return dash
}
