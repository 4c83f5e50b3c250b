package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// ShiftInputs are the raw events of one (job card, date, shift) tuple.
type ShiftInputs struct {
	JobCard     *models.JobCard
	LogDate     time.Time
	Shift       string
	Runs        []models.RunEvent
	Downtime    []models.DowntimeEvent
	Inspections []models.InspectionEvent
}

// ComputeShiftMetrics derives the job_card-level metric record for one shift.
// Returns nil when the tuple has no production and no downtime.
func ComputeShiftMetrics(in ShiftInputs, planned float64, classifier *LossClassifier) *models.MetricRecord {
	if in.JobCard == nil {
		return nil
	}
	if planned <= 0 {
		planned = models.DefaultPlannedProductionMinutes
	}

	idealCycleTime := in.JobCard.IdealCycleTime()

	var produced, accepted float64
	for _, r := range in.Runs {
		produced += r.CompletedQty
		accepted += r.AcceptedQty
	}

	var inspected, passed float64
	for _, insp := range in.Inspections {
		inspected += insp.QuantityInspected
		passed += insp.QuantityPassed
	}
	if inspected > 0 {
		accepted = passed
		produced = math.Max(produced, inspected)
	}

	downtime := classifier.Split(in.Downtime)

	if produced == 0 && accepted == 0 && downtime.Total == 0 {
		return nil
	}

	effectiveDowntime := math.Min(downtime.Total, planned)
	availabilityLoss, performanceLoss := downtime.Availability, downtime.Performance
	if downtime.Total > effectiveDowntime {
		// Loss buckets shrink proportionally so they still sum to the stored downtime.
		scale := effectiveDowntime / downtime.Total
		availabilityLoss *= scale
		performanceLoss *= scale
	}
	actualRunTime := math.Max(0, planned-effectiveDowntime)
	effectiveAccepted := math.Min(accepted, produced)

	availability := (planned - effectiveDowntime) / planned * 100

	var performance float64
	if actualRunTime > 0 && produced > 0 {
		performance = idealCycleTime * produced / actualRunTime * 100
	}

	var quality float64
	if produced > 0 {
		quality = effectiveAccepted / produced * 100
	}

	rec := &models.MetricRecord{
		Level:                 models.LevelJobCard,
		ReferenceID:           in.JobCard.ID,
		LogDate:               in.LogDate,
		Shift:                 in.Shift,
		Availability:          availability,
		Performance:           performance,
		Quality:               quality,
		PlannedProductionTime: planned,
		Downtime:              effectiveDowntime,
		ActualRunTime:         actualRunTime,
		IdealCycleTime:        idealCycleTime,
		TotalProducedQty:      produced,
		AcceptedQty:           effectiveAccepted,
		AvailabilityLoss:      availabilityLoss,
		PerformanceLoss:       performanceLoss,
	}
	rec.Finalize()
	return rec
}

// OEECalculator computes job_card-level metrics from ERP events. It never writes.
type OEECalculator interface {
	// Calculate resolves the job card and computes its shift record.
	// Returns nil when the job card is missing or the tuple has no data.
	Calculate(ctx context.Context, jobCardID string, logDate time.Time, shift string) (*models.MetricRecord, error)
	// CalculateForJobCard computes the shift record of an already resolved job card.
	CalculateForJobCard(ctx context.Context, card *models.JobCard, logDate time.Time, shift string) (*models.MetricRecord, error)
}

type oeeCalculator struct {
	events     eventsource.EventSource
	classifier *LossClassifier
	planned    float64
	logger     *zap.Logger
}

// NewOEECalculator creates a calculator reading from the given event source.
func NewOEECalculator(events eventsource.EventSource, classifier *LossClassifier, plannedMinutes float64, logger *zap.Logger) OEECalculator {
	return &oeeCalculator{
		events:     events,
		classifier: classifier,
		planned:    plannedMinutes,
		logger:     logger.Named("oee-calculator"),
	}
}

var _ OEECalculator = (*oeeCalculator)(nil)

func (c *oeeCalculator) Calculate(ctx context.Context, jobCardID string, logDate time.Time, shift string) (*models.MetricRecord, error) {
	card, err := c.events.GetJobCard(ctx, jobCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve job card %s: %w", jobCardID, err)
	}
	if card == nil {
		c.logger.Debug("Job card not found, no metrics",
			zap.String("job_card_id", jobCardID))
		return nil, nil
	}
	return c.CalculateForJobCard(ctx, card, logDate, shift)
}

func (c *oeeCalculator) CalculateForJobCard(ctx context.Context, card *models.JobCard, logDate time.Time, shift string) (*models.MetricRecord, error) {
	logDate = models.TruncateDate(logDate)
	in := ShiftInputs{JobCard: card, LogDate: logDate, Shift: shift}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runs, err := c.events.ListRunEvents(gctx, card.ID, logDate, shift)
		if err != nil {
			return fmt.Errorf("failed to read run events: %w", err)
		}
		in.Runs = runs
		return nil
	})
	g.Go(func() error {
		downtime, err := c.events.ListDowntimeEvents(gctx, card.ID, logDate, shift)
		if err != nil {
			return fmt.Errorf("failed to read downtime events: %w", err)
		}
		in.Downtime = downtime
		return nil
	})
	g.Go(func() error {
		inspections, err := c.events.ListInspections(gctx, models.InspectionReferenceJobCard, card.ID, logDate)
		if err != nil {
			return fmt.Errorf("failed to read inspections: %w", err)
		}
		in.Inspections = inspections
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("Failed to read shift events",
			zap.String("job_card_id", card.ID),
			zap.String("log_date", models.FormatDate(logDate)),
			zap.String("shift", shift),
			zap.Error(err))
		return nil, err
	}

	return ComputeShiftMetrics(in, c.planned, c.classifier), nil
}
