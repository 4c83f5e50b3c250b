// Package postgres is the native pgx event source for ERPs running on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/config"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// Source reads ERP events through a pgx pool.
type Source struct {
	pool      *pgxpool.Pool
	ownedPool bool
	dialect   eventsource.Dialect
}

var _ eventsource.EventSource = (*Source)(nil)

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// When running in Docker, localhost is resolved to host.docker.internal.
func buildConnectionString(cfg *eventsource.Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// NewSource opens a dedicated pool to the ERP database.
func NewSource(ctx context.Context, cfg *eventsource.Config) (*Source, error) {
	poolConfig, err := pgxpool.ParseConfig(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse event source URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres event source: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres event source: %w", err)
	}

	return &Source{pool: pool, ownedPool: true, dialect: eventsource.PostgresDialect}, nil
}

// NewSourceFromPool reuses an existing pool, e.g. when the ERP tables live in
// the engine's own database. Close does not close a borrowed pool.
func NewSourceFromPool(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool, dialect: eventsource.PostgresDialect}
}

func (s *Source) GetJobCard(ctx context.Context, jobCardID string) (*models.JobCard, error) {
	q := eventsource.GetJobCardQuery(s.dialect, jobCardID)
	card, err := eventsource.ScanJobCard(s.pool.QueryRow(ctx, q.SQL, q.Args...))
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
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
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
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
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
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
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
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
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
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
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
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
	return s.pool.Ping(ctx)
}

func (s *Source) Close() error {
	if s.ownedPool {
		s.pool.Close()
	}
	return nil
}
