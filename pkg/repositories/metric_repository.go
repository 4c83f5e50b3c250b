package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codigix/nobal-casting-sub004/pkg/database"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// MetricRepository provides data access for the oee_analysis metric store.
type MetricRepository interface {
	// Upsert inserts or updates the record by its unique key and fills in
	// ID, CreatedAt and UpdatedAt. An unchanged record keeps its UpdatedAt.
	Upsert(ctx context.Context, rec *models.MetricRecord) error
	// Delete removes the record with the given key. Returns false if none existed.
	Delete(ctx context.Context, key models.MetricKey) (bool, error)
	// Get returns nil, nil when the record does not exist.
	Get(ctx context.Context, key models.MetricKey) (*models.MetricRecord, error)
	// ListByReferences returns every record of the given level and date for any of the references.
	ListByReferences(ctx context.Context, level models.MetricLevel, referenceIDs []string, logDate time.Time) ([]*models.MetricRecord, error)
	// List returns records matching the query ordered by date, reference and shift.
	List(ctx context.Context, query models.MetricQuery) ([]*models.MetricRecord, error)
	// ListRecent returns records matching the query, newest date first.
	ListRecent(ctx context.Context, query models.MetricQuery) ([]*models.MetricRecord, error)
}

type metricRepository struct {
	db database.Querier
}

// NewMetricRepository creates a MetricRepository over the given pool or transaction.
func NewMetricRepository(db database.Querier) MetricRepository {
	return &metricRepository{db: db}
}

var _ MetricRepository = (*metricRepository)(nil)

const metricColumns = `id, level, reference_id, log_date, shift,
	availability, performance, quality, oee,
	planned_production_time, downtime, actual_run_time, ideal_cycle_time,
	total_produced_qty, accepted_qty, availability_loss, performance_loss, quality_loss_qty,
	created_at, updated_at`

func (r *metricRepository) Upsert(ctx context.Context, rec *models.MetricRecord) error {
	rec.Finalize()

	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	// The WHERE clause skips no-op updates so recomputing unchanged input leaves the row untouched.
	query := `
		INSERT INTO oee_analysis (
			id, level, reference_id, log_date, shift,
			availability, performance, quality, oee,
			planned_production_time, downtime, actual_run_time, ideal_cycle_time,
			total_produced_qty, accepted_qty, availability_loss, performance_loss, quality_loss_qty,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())
		ON CONFLICT (level, reference_id, log_date, shift) DO UPDATE SET
			availability = EXCLUDED.availability,
			performance = EXCLUDED.performance,
			quality = EXCLUDED.quality,
			oee = EXCLUDED.oee,
			planned_production_time = EXCLUDED.planned_production_time,
			downtime = EXCLUDED.downtime,
			actual_run_time = EXCLUDED.actual_run_time,
			ideal_cycle_time = EXCLUDED.ideal_cycle_time,
			total_produced_qty = EXCLUDED.total_produced_qty,
			accepted_qty = EXCLUDED.accepted_qty,
			availability_loss = EXCLUDED.availability_loss,
			performance_loss = EXCLUDED.performance_loss,
			quality_loss_qty = EXCLUDED.quality_loss_qty,
			updated_at = now()
		WHERE (
			oee_analysis.availability, oee_analysis.performance, oee_analysis.quality, oee_analysis.oee,
			oee_analysis.planned_production_time, oee_analysis.downtime, oee_analysis.actual_run_time,
			oee_analysis.ideal_cycle_time, oee_analysis.total_produced_qty, oee_analysis.accepted_qty,
			oee_analysis.availability_loss, oee_analysis.performance_loss, oee_analysis.quality_loss_qty
		) IS DISTINCT FROM (
			EXCLUDED.availability, EXCLUDED.performance, EXCLUDED.quality, EXCLUDED.oee,
			EXCLUDED.planned_production_time, EXCLUDED.downtime, EXCLUDED.actual_run_time,
			EXCLUDED.ideal_cycle_time, EXCLUDED.total_produced_qty, EXCLUDED.accepted_qty,
			EXCLUDED.availability_loss, EXCLUDED.performance_loss, EXCLUDED.quality_loss_qty
		)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		id, rec.Level, rec.ReferenceID, rec.LogDate, rec.Shift,
		rec.Availability, rec.Performance, rec.Quality, rec.OEE,
		rec.PlannedProductionTime, rec.Downtime, rec.ActualRunTime, rec.IdealCycleTime,
		rec.TotalProducedQty, rec.AcceptedQty, rec.AvailabilityLoss, rec.PerformanceLoss, rec.QualityLossQty,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row exists with identical values; report its identity unchanged.
		existing, getErr := r.Get(ctx, rec.Key())
		if getErr != nil {
			return getErr
		}
		if existing == nil {
			return fmt.Errorf("failed to upsert metric record %s: row vanished", rec.Key())
		}
		rec.ID, rec.CreatedAt, rec.UpdatedAt = existing.ID, existing.CreatedAt, existing.UpdatedAt
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to upsert metric record: %w", err)
	}
	return nil
}

func (r *metricRepository) Delete(ctx context.Context, key models.MetricKey) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM oee_analysis
		WHERE level = $1 AND reference_id = $2 AND log_date = $3 AND shift = $4`,
		key.Level, key.ReferenceID, models.TruncateDate(key.LogDate), key.Shift)
	if err != nil {
		return false, fmt.Errorf("failed to delete metric record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *metricRepository) Get(ctx context.Context, key models.MetricKey) (*models.MetricRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+metricColumns+`
		FROM oee_analysis
		WHERE level = $1 AND reference_id = $2 AND log_date = $3 AND shift = $4`,
		key.Level, key.ReferenceID, models.TruncateDate(key.LogDate), key.Shift)

	rec, err := scanMetricRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get metric record: %w", err)
	}
	return rec, nil
}

func (r *metricRepository) ListByReferences(ctx context.Context, level models.MetricLevel, referenceIDs []string, logDate time.Time) ([]*models.MetricRecord, error) {
	if len(referenceIDs) == 0 {
		return nil, nil
	}
	date := models.TruncateDate(logDate)
	return r.List(ctx, models.MetricQuery{
		Level:        level,
		ReferenceIDs: referenceIDs,
		StartDate:    &date,
		EndDate:      &date,
	})
}

func (r *metricRepository) List(ctx context.Context, query models.MetricQuery) ([]*models.MetricRecord, error) {
	return r.list(ctx, query, "log_date, reference_id, shift")
}

func (r *metricRepository) ListRecent(ctx context.Context, query models.MetricQuery) ([]*models.MetricRecord, error) {
	return r.list(ctx, query, "log_date DESC, updated_at DESC, reference_id")
}

func (r *metricRepository) list(ctx context.Context, query models.MetricQuery, orderBy string) ([]*models.MetricRecord, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if query.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argIdx))
		args = append(args, query.Level)
		argIdx++
	}
	if len(query.ReferenceIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("reference_id = ANY($%d)", argIdx))
		args = append(args, query.ReferenceIDs)
		argIdx++
	}
	if query.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("log_date >= $%d", argIdx))
		args = append(args, models.TruncateDate(*query.StartDate))
		argIdx++
	}
	if query.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("log_date <= $%d", argIdx))
		args = append(args, models.TruncateDate(*query.EndDate))
		argIdx++
	}
	if query.Shift != "" {
		conditions = append(conditions, fmt.Sprintf("shift = $%d", argIdx))
		args = append(args, query.Shift)
		argIdx++
	}

	sql := `SELECT ` + metricColumns + ` FROM oee_analysis`
	if len(conditions) > 0 {
		sql += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	sql += ` ORDER BY ` + orderBy
	if query.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, query.Limit)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric records: %w", err)
	}
	defer rows.Close()

	var records []*models.MetricRecord
	for rows.Next() {
		rec, err := scanMetricRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric records: %w", err)
	}
	return records, nil
}

func scanMetricRecord(row pgx.Row) (*models.MetricRecord, error) {
	var rec models.MetricRecord
	var level string
	err := row.Scan(
		&rec.ID, &level, &rec.ReferenceID, &rec.LogDate, &rec.Shift,
		&rec.Availability, &rec.Performance, &rec.Quality, &rec.OEE,
		&rec.PlannedProductionTime, &rec.Downtime, &rec.ActualRunTime, &rec.IdealCycleTime,
		&rec.TotalProducedQty, &rec.AcceptedQty, &rec.AvailabilityLoss, &rec.PerformanceLoss, &rec.QualityLossQty,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Level = models.MetricLevel(level)
	rec.LogDate = models.TruncateDate(rec.LogDate)
	return &rec, nil
}
