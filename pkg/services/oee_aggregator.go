package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/repositories"
)

// RollupWorkOrder combines the job_card records of a work order on one date.
// Ratios are weighted by each child's actual run time; absolute fields are summed.
// Returns nil when there are no children.
func RollupWorkOrder(workOrderID string, logDate time.Time, children []*models.MetricRecord) *models.MetricRecord {
	if len(children) == 0 {
		return nil
	}

	rec := &models.MetricRecord{
		Level:       models.LevelWorkOrder,
		ReferenceID: workOrderID,
		LogDate:     logDate,
		Shift:       models.AllDayShift,
	}

	var weight, wa, wp, wq float64
	for _, c := range children {
		w := c.ActualRunTime
		weight += w
		wa += c.Availability * w
		wp += c.Performance * w
		wq += c.Quality * w

		rec.PlannedProductionTime += c.PlannedProductionTime
		rec.Downtime += c.Downtime
		rec.ActualRunTime += c.ActualRunTime
		rec.TotalProducedQty += c.TotalProducedQty
		rec.AcceptedQty += c.AcceptedQty
		rec.AvailabilityLoss += c.AvailabilityLoss
		rec.PerformanceLoss += c.PerformanceLoss
		rec.QualityLossQty += c.QualityLossQty
	}

	if weight > 0 {
		rec.Availability = wa / weight
		rec.Performance = wp / weight
		rec.Quality = wq / weight
	}

	rec.Finalize()
	return rec
}

type shiftTotals struct {
	planned, downtime          float64
	produced, accepted         float64
	availabilityLoss, perfLoss float64
	qualityLoss, valuableTime  float64
}

// RollupWorkstation combines the job_card records of a workstation on one date.
// Job cards sharing a shift share its planned window, so planned time is the
// maximum within a shift and the sum across shifts.
// Returns nil when there are no children.
func RollupWorkstation(workstationID string, logDate time.Time, children []*models.MetricRecord) *models.MetricRecord {
	if len(children) == 0 {
		return nil
	}

	shifts := make(map[string]*shiftTotals)
	for _, c := range children {
		st, ok := shifts[c.Shift]
		if !ok {
			st = &shiftTotals{}
			shifts[c.Shift] = st
		}
		st.planned = math.Max(st.planned, c.PlannedProductionTime)
		st.downtime += c.Downtime
		st.produced += c.TotalProducedQty
		st.accepted += c.AcceptedQty
		st.availabilityLoss += c.AvailabilityLoss
		st.perfLoss += c.PerformanceLoss
		st.qualityLoss += c.QualityLossQty
		st.valuableTime += c.IdealCycleTime * c.TotalProducedQty
	}

	names := make([]string, 0, len(shifts))
	for name := range shifts {
		names = append(names, name)
	}
	sort.Strings(names)

	rec := &models.MetricRecord{
		Level:       models.LevelWorkstation,
		ReferenceID: workstationID,
		LogDate:     logDate,
		Shift:       models.AllDayShift,
	}

	var valuableTime float64
	for _, name := range names {
		st := shifts[name]
		downtime := math.Min(st.downtime, st.planned)
		availabilityLoss, perfLoss := st.availabilityLoss, st.perfLoss
		if st.downtime > downtime {
			scale := downtime / st.downtime
			availabilityLoss *= scale
			perfLoss *= scale
		}
		rec.PlannedProductionTime += st.planned
		rec.Downtime += downtime
		rec.ActualRunTime += st.planned - downtime
		rec.TotalProducedQty += st.produced
		rec.AcceptedQty += st.accepted
		rec.AvailabilityLoss += availabilityLoss
		rec.PerformanceLoss += perfLoss
		rec.QualityLossQty += st.qualityLoss
		valuableTime += st.valuableTime
	}

	if rec.PlannedProductionTime > 0 {
		rec.Availability = (rec.PlannedProductionTime - rec.Downtime) / rec.PlannedProductionTime * 100
	}
	if rec.ActualRunTime > 0 {
		rec.Performance = valuableTime / rec.ActualRunTime * 100
	}
	if rec.TotalProducedQty > 0 {
		rec.Quality = rec.AcceptedQty / rec.TotalProducedQty * 100
	}

	rec.Finalize()
	return rec
}

// OEEAggregator rebuilds parent records from the stored job_card records.
// It does not lock; callers serialize per parent key.
type OEEAggregator interface {
	// RollupWorkOrder upserts or deletes the work_order record. Nil means deleted.
	RollupWorkOrder(ctx context.Context, workOrderID string, logDate time.Time) (*models.MetricRecord, error)
	// RollupWorkstation upserts or deletes the workstation record. Nil means deleted.
	RollupWorkstation(ctx context.Context, workstationID string, logDate time.Time) (*models.MetricRecord, error)
}

type oeeAggregator struct {
	jobCards eventsource.JobCardRegistry
	metrics  repositories.MetricRepository
	logger   *zap.Logger
}

// NewOEEAggregator creates a store-backed aggregator.
func NewOEEAggregator(jobCards eventsource.JobCardRegistry, metrics repositories.MetricRepository, logger *zap.Logger) OEEAggregator {
	return &oeeAggregator{
		jobCards: jobCards,
		metrics:  metrics,
		logger:   logger.Named("oee-aggregator"),
	}
}

var _ OEEAggregator = (*oeeAggregator)(nil)

func (a *oeeAggregator) RollupWorkOrder(ctx context.Context, workOrderID string, logDate time.Time) (*models.MetricRecord, error) {
	logDate = models.TruncateDate(logDate)
	cards, err := a.jobCards.ListJobCardsByWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job cards of work order %s: %w", workOrderID, err)
	}
	children, err := a.metrics.ListByReferences(ctx, models.LevelJobCard, jobCardIDs(cards), logDate)
	if err != nil {
		return nil, err
	}

	key := models.MetricKey{Level: models.LevelWorkOrder, ReferenceID: workOrderID, LogDate: logDate, Shift: models.AllDayShift}
	return a.store(ctx, key, RollupWorkOrder(workOrderID, logDate, children))
}

func (a *oeeAggregator) RollupWorkstation(ctx context.Context, workstationID string, logDate time.Time) (*models.MetricRecord, error) {
	logDate = models.TruncateDate(logDate)
	cards, err := a.jobCards.ListJobCardsByWorkstations(ctx, []string{workstationID})
	if err != nil {
		return nil, fmt.Errorf("failed to list job cards of workstation %s: %w", workstationID, err)
	}
	children, err := a.metrics.ListByReferences(ctx, models.LevelJobCard, jobCardIDs(cards), logDate)
	if err != nil {
		return nil, err
	}

	key := models.MetricKey{Level: models.LevelWorkstation, ReferenceID: workstationID, LogDate: logDate, Shift: models.AllDayShift}
	return a.store(ctx, key, RollupWorkstation(workstationID, logDate, children))
}

func (a *oeeAggregator) store(ctx context.Context, key models.MetricKey, rec *models.MetricRecord) (*models.MetricRecord, error) {
	if rec == nil {
		deleted, err := a.metrics.Delete(ctx, key)
		if err != nil {
			return nil, err
		}
		if deleted {
			a.logger.Debug("Deleted rollup with no children", zap.String("key", key.String()))
		}
		return nil, nil
	}
	if err := a.metrics.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func jobCardIDs(cards []*models.JobCard) []string {
	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return ids
}
