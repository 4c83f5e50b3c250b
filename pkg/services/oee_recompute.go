package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/observability"
	"github.com/codigix/nobal-casting-sub004/pkg/repositories"
	"github.com/codigix/nobal-casting-sub004/pkg/retry"
)

// RecomputeService keeps the metric hierarchy consistent with ERP events.
// Each step holds the (level, reference_id, date) lock of the record it writes.
type RecomputeService interface {
	// Recompute rebuilds the job_card record of the tuple and cascades to its
	// work order and workstation. A nil record means the tuple has no data and
	// its record was deleted.
	Recompute(ctx context.Context, jobCardID string, logDate time.Time, shift string) (*models.MetricRecord, error)
	// RecomputeWorkOrder rebuilds the work_order record from stored job_card records.
	RecomputeWorkOrder(ctx context.Context, workOrderID string, logDate time.Time) (*models.MetricRecord, error)
	// RecomputeWorkstation rebuilds the workstation record from stored job_card records.
	RecomputeWorkstation(ctx context.Context, workstationID string, logDate time.Time) (*models.MetricRecord, error)
}

type recomputeService struct {
	jobCards   eventsource.JobCardRegistry
	calculator OEECalculator
	aggregator OEEAggregator
	metrics    repositories.MetricRepository
	locker     KeyedLocker
	retryCfg   *retry.Config
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewRecomputeService creates the recompute orchestrator.
func NewRecomputeService(
	jobCards eventsource.JobCardRegistry,
	calculator OEECalculator,
	aggregator OEEAggregator,
	metrics repositories.MetricRepository,
	locker KeyedLocker,
	retryCfg *retry.Config,
	logger *zap.Logger,
) RecomputeService {
	return &recomputeService{
		jobCards:   jobCards,
		calculator: calculator,
		aggregator: aggregator,
		metrics:    metrics,
		locker:     locker,
		retryCfg:   retryCfg,
		tracer:     observability.Tracer(),
		logger:     logger.Named("oee-recompute"),
	}
}

var _ RecomputeService = (*recomputeService)(nil)

func (s *recomputeService) Recompute(ctx context.Context, jobCardID string, logDate time.Time, shift string) (*models.MetricRecord, error) {
	jobCardID = strings.TrimSpace(jobCardID)
	shift = strings.TrimSpace(shift)
	if jobCardID == "" {
		return nil, fmt.Errorf("%w: job_card_id is required", apperrors.ErrInvalidArgument)
	}
	if shift == "" {
		return nil, fmt.Errorf("%w: shift is required", apperrors.ErrInvalidArgument)
	}
	logDate = models.TruncateDate(logDate)

	ctx, span := s.tracer.Start(ctx, "oee.recompute", trace.WithAttributes(
		attribute.String("job_card_id", jobCardID),
		attribute.String("log_date", models.FormatDate(logDate)),
		attribute.String("shift", shift),
	))
	defer span.End()

	card, err := retry.DoWithResult(ctx, s.retryCfg, func() (*models.JobCard, error) {
		return s.jobCards.GetJobCard(ctx, jobCardID)
	})
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("failed to resolve job card %s: %w", jobCardID, err))
	}

	key := models.MetricKey{Level: models.LevelJobCard, ReferenceID: jobCardID, LogDate: logDate, Shift: shift}
	rec, err := s.writeLeaf(ctx, key, card)
	if err != nil {
		return nil, s.fail(span, err)
	}

	if card == nil {
		// Parents are unknown once the job card is gone.
		s.logger.Info("Job card not found, removed its shift record",
			zap.String("job_card_id", jobCardID),
			zap.String("log_date", models.FormatDate(logDate)),
			zap.String("shift", shift))
		return nil, nil
	}

	if card.WorkOrderID != "" {
		if _, err := s.RecomputeWorkOrder(ctx, card.WorkOrderID, logDate); err != nil {
			return nil, s.fail(span, err)
		}
	}
	if card.WorkstationID != "" {
		if _, err := s.RecomputeWorkstation(ctx, card.WorkstationID, logDate); err != nil {
			return nil, s.fail(span, err)
		}
	}

	span.SetAttributes(attribute.Bool("deleted", rec == nil))
	return rec, nil
}

func (s *recomputeService) writeLeaf(ctx context.Context, key models.MetricKey, card *models.JobCard) (*models.MetricRecord, error) {
	ctx, span := s.tracer.Start(ctx, "oee.compute_job_card")
	defer span.End()

	unlock, err := s.locker.Lock(ctx, key.LockKey())
	if err != nil {
		return nil, s.fail(span, err)
	}
	defer unlock()

	rec, err := retry.DoWithResult(ctx, s.retryCfg, func() (*models.MetricRecord, error) {
		var rec *models.MetricRecord
		if card != nil {
			var err error
			rec, err = s.calculator.CalculateForJobCard(ctx, card, key.LogDate, key.Shift)
			if err != nil {
				return nil, err
			}
		}
		if rec == nil {
			_, err := s.metrics.Delete(ctx, key)
			return nil, err
		}
		return rec, s.metrics.Upsert(ctx, rec)
	})
	if err != nil {
		s.logger.Error("Failed to recompute job card shift",
			zap.String("key", key.String()),
			zap.Error(err))
		return nil, s.fail(span, fmt.Errorf("failed to recompute %s: %w", key, err))
	}
	return rec, nil
}

func (s *recomputeService) RecomputeWorkOrder(ctx context.Context, workOrderID string, logDate time.Time) (*models.MetricRecord, error) {
	return s.rollup(ctx, "oee.rollup_work_order", models.LevelWorkOrder, workOrderID, logDate, s.aggregator.RollupWorkOrder)
}

func (s *recomputeService) RecomputeWorkstation(ctx context.Context, workstationID string, logDate time.Time) (*models.MetricRecord, error) {
	return s.rollup(ctx, "oee.rollup_workstation", models.LevelWorkstation, workstationID, logDate, s.aggregator.RollupWorkstation)
}

func (s *recomputeService) rollup(
	ctx context.Context,
	spanName string,
	level models.MetricLevel,
	referenceID string,
	logDate time.Time,
	fn func(context.Context, string, time.Time) (*models.MetricRecord, error),
) (*models.MetricRecord, error) {
	logDate = models.TruncateDate(logDate)
	key := models.MetricKey{Level: level, ReferenceID: referenceID, LogDate: logDate, Shift: models.AllDayShift}

	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("reference_id", referenceID),
		attribute.String("log_date", models.FormatDate(logDate)),
	))
	defer span.End()

	unlock, err := s.locker.Lock(ctx, key.LockKey())
	if err != nil {
		return nil, s.fail(span, err)
	}
	defer unlock()

	rec, err := retry.DoWithResult(ctx, s.retryCfg, func() (*models.MetricRecord, error) {
		return fn(ctx, referenceID, logDate)
	})
	if err != nil {
		s.logger.Error("Failed to roll up metrics",
			zap.String("key", key.String()),
			zap.Error(err))
		return nil, s.fail(span, fmt.Errorf("failed to roll up %s: %w", key, err))
	}
	return rec, nil
}

func (s *recomputeService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
