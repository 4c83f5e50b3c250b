// Package sqlsource implements eventsource.EventSource over database/sql.
// It backs the drivers that do not have a native pool in this repository
// (SQL Server and MySQL).
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// Source reads ERP events through a *sql.DB.
type Source struct {
	db      *sql.DB
	dialect eventsource.Dialect
}

var _ eventsource.EventSource = (*Source)(nil)

// New wraps an open database handle. The Source owns db and closes it on Close.
func New(db *sql.DB, dialect eventsource.Dialect) *Source {
	return &Source{db: db, dialect: dialect}
}

// Open opens a database/sql handle, applies pool limits and verifies connectivity.
func Open(ctx context.Context, driverName, dsn string, cfg *eventsource.Config, dialect eventsource.Dialect) (*Source, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s event source: %w", dialect.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s event source: %w", dialect.Name, err)
	}

	return New(db, dialect), nil
}

func (s *Source) GetJobCard(ctx context.Context, jobCardID string) (*models.JobCard, error) {
	q := eventsource.GetJobCardQuery(s.dialect, jobCardID)
	card, err := eventsource.ScanJobCard(s.db.QueryRowContext(ctx, q.SQL, q.Args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job card: %w", err)
	}
	return card, nil
}

func (s *Source) ListJobCardsByWorkOrder(ctx context.Context, workOrderID string) ([]*models.JobCard, error) {
	return s.listJobCards(ctx, eventsource.ListJobCardsByWorkOrderQuery(s.dialect, workOrderID))
}

func (s *Source) ListJobCardsByWorkstations(ctx context.Context, workstationIDs []string) ([]*models.JobCard, error) {
	if len(workstationIDs) == 0 {
		return nil, nil
	}
	return s.listJobCards(ctx, eventsource.ListJobCardsByWorkstationsQuery(s.dialect, workstationIDs))
}

func (s *Source) listJobCards(ctx context.Context, q eventsource.Query) ([]*models.JobCard, error) {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job cards: %w", err)
	}
	defer rows.Close()

	var cards []*models.JobCard
	for rows.Next() {
		card, err := eventsource.ScanJobCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job cards: %w", err)
	}
	return cards, nil
}

func (s *Source) ListWorkstations(ctx context.Context, filter models.WorkstationFilter) ([]*models.Workstation, error) {
	q := eventsource.ListWorkstationsQuery(s.dialect, filter)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workstations: %w", err)
	}
	defer rows.Close()

	var stations []*models.Workstation
	for rows.Next() {
		ws, err := eventsource.ScanWorkstation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workstation: %w", err)
		}
		stations = append(stations, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workstations: %w", err)
	}
	return stations, nil
}

func (s *Source) ListRunEvents(ctx context.Context, jobCardID string, logDate time.Time, shift string) ([]models.RunEvent, error) {
	q := eventsource.ListRunEventsQuery(s.dialect, jobCardID, logDate, shift)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list run events: %w", err)
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		ev, err := eventsource.ScanRunEvent(rows, logDate, shift)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run events: %w", err)
	}
	return events, nil
}

func (s *Source) ListDowntimeEvents(ctx context.Context, jobCardID string, logDate time.Time, shift string) ([]models.DowntimeEvent, error) {
	q := eventsource.ListDowntimeEventsQuery(s.dialect, jobCardID, logDate, shift)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downtime events: %w", err)
	}
	defer rows.Close()

	var events []models.DowntimeEvent
	for rows.Next() {
		ev, err := eventsource.ScanDowntimeEvent(rows, logDate, shift)
		if err != nil {
			return nil, fmt.Errorf("failed to scan downtime event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating downtime events: %w", err)
	}
	return events, nil
}

func (s *Source) ListInspections(ctx context.Context, referenceType, referenceID string, inspectionDate time.Time) ([]models.InspectionEvent, error) {
	q := eventsource.ListInspectionsQuery(s.dialect, referenceType, referenceID, inspectionDate)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var events []models.InspectionEvent
	for rows.Next() {
		ev, err := eventsource.ScanInspection(rows, inspectionDate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inspections: %w", err)
	}
	return events, nil
}

func (s *Source) SummarizeDowntimeReasons(ctx context.Context, filters models.ReportFilters) ([]models.DowntimeReason, error) {
	q := eventsource.DowntimeReasonsQuery(s.dialect, filters)
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize downtime reasons: %w", err)
	}
	defer rows.Close()

	reasons := make([]models.DowntimeReason, 0)
	for rows.Next() {
		r, err := eventsource.ScanDowntimeReason(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan downtime reason: %w", err)
		}
		reasons = append(reasons, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating downtime reasons: %w", err)
	}
	return reasons, nil
}

func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Source) Close() error {
	return s.db.Close()
}
