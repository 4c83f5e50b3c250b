// Package eventsource provides read-only access to the ERP tables that feed
// the OEE engine: job cards, workstations, run logs, downtime logs and
// inspection results.
package eventsource

import (
	"context"
	"time"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// JobCardRegistry resolves job cards and their parents.
type JobCardRegistry interface {
	// GetJobCard returns nil, nil when the job card does not exist.
	GetJobCard(ctx context.Context, jobCardID string) (*models.JobCard, error)
	ListJobCardsByWorkOrder(ctx context.Context, workOrderID string) ([]*models.JobCard, error)
	ListJobCardsByWorkstations(ctx context.Context, workstationIDs []string) ([]*models.JobCard, error)
}

// WorkstationRegistry lists machines.
type WorkstationRegistry interface {
	ListWorkstations(ctx context.Context, filter models.WorkstationFilter) ([]*models.Workstation, error)
}

// EventReader reads raw production events for a (job card, date, shift) tuple.
type EventReader interface {
	ListRunEvents(ctx context.Context, jobCardID string, logDate time.Time, shift string) ([]models.RunEvent, error)
	ListDowntimeEvents(ctx context.Context, jobCardID string, logDate time.Time, shift string) ([]models.DowntimeEvent, error)
	ListInspections(ctx context.Context, referenceType, referenceID string, inspectionDate time.Time) ([]models.InspectionEvent, error)
	SummarizeDowntimeReasons(ctx context.Context, filters models.ReportFilters) ([]models.DowntimeReason, error)
}

// EventSource is the full collaborator contract of the ERP database.
type EventSource interface {
	JobCardRegistry
	WorkstationRegistry
	EventReader

	Ping(ctx context.Context) error
	Close() error
}

// Config holds the ERP database connection settings.
type Config struct {
	Type     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewDowntimeEvent maps a raw downtime row onto the tagged category enum,
// keeping the raw text for legacy keyword classification.
func NewDowntimeEvent(jobCardID string, logDate time.Time, shift, rawCategory, reason string, minutes float64) models.DowntimeEvent {
	return models.DowntimeEvent{
		JobCardID:       jobCardID,
		LogDate:         models.TruncateDate(logDate),
		Shift:           shift,
		Category:        models.ParseDowntimeCategory(rawCategory),
		RawCategory:     rawCategory,
		Reason:          reason,
		DurationMinutes: minutes,
	}
}
