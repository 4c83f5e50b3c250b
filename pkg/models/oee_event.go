package models

import (
	"strings"
	"time"
)

// RunEvent is one production log line for a job card shift.
type RunEvent struct {
	JobCardID    string
	LogDate      time.Time
	Shift        string
	Minutes      float64
	CompletedQty float64
	AcceptedQty  float64
}

// DowntimeCategory is the producer-supplied classification of a downtime event.
type DowntimeCategory string

const (
	DowntimeBreakdown    DowntimeCategory = "breakdown"
	DowntimeSetup        DowntimeCategory = "setup"
	DowntimeWaiting      DowntimeCategory = "waiting"
	DowntimeMinorStop    DowntimeCategory = "minor_stop"
	DowntimeReducedSpeed DowntimeCategory = "reduced_speed"
	DowntimeOther        DowntimeCategory = "other"

	// DowntimeUnknown marks legacy events whose category is free text.
	DowntimeUnknown DowntimeCategory = "unknown"
)

var knownDowntimeCategories = map[DowntimeCategory]struct{}{
	DowntimeBreakdown:    {},
	DowntimeSetup:        {},
	DowntimeWaiting:      {},
	DowntimeMinorStop:    {},
	DowntimeReducedSpeed: {},
	DowntimeOther:        {},
}

// ParseDowntimeCategory maps a raw category string to the enum.
// Anything that is not an exact (case-insensitive) match is DowntimeUnknown.
func ParseDowntimeCategory(raw string) DowntimeCategory {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	c := DowntimeCategory(normalized)
	if _, ok := knownDowntimeCategories[c]; ok {
		return c
	}
	return DowntimeUnknown
}

// LossType is the OEE factor a downtime event is charged against.
type LossType string

const (
	LossAvailability LossType = "availability"
	LossPerformance  LossType = "performance"
)

// DowntimeEvent is one downtime log line for a job card shift.
type DowntimeEvent struct {
	JobCardID       string
	LogDate         time.Time
	Shift           string
	Category        DowntimeCategory
	RawCategory     string
	Reason          string
	DurationMinutes float64
}

// InspectionEvent is one quality inspection result.
type InspectionEvent struct {
	ReferenceType     string
	ReferenceID       string
	InspectionDate    time.Time
	QuantityInspected float64
	QuantityPassed    float64
}

// InspectionReferenceJobCard is the reference_type of inspections recorded against job cards.
const InspectionReferenceJobCard = "job_card"

// JobCard is the registry view of a job card.
type JobCard struct {
	ID               string
	WorkOrderID      string
	WorkstationID    string
	Operation        string
	OperationTime    *float64
	BOMOperationTime *float64
}

// IdealCycleTime returns the card's own operation time when positive,
// else the BOM operation line time when positive, else 1.
func (j *JobCard) IdealCycleTime() float64 {
	if j.OperationTime != nil && *j.OperationTime > 0 {
		return *j.OperationTime
	}
	if j.BOMOperationTime != nil && *j.BOMOperationTime > 0 {
		return *j.BOMOperationTime
	}
	return 1
}

// Workstation statuses that affect reported health.
const (
	WorkstationStatusActive      = "active"
	WorkstationStatusDown        = "down"
	WorkstationStatusMaintenance = "maintenance"
)

// Workstation is the registry view of a machine.
type Workstation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Status   string `json:"status"`
	Type     string `json:"type"`
}

// DisplayName returns the human name, falling back to the id.
func (w *Workstation) DisplayName() string {
	if w.Name != "" {
		return w.Name
	}
	return w.ID
}

// NormalizedStatus returns the lower-cased status.
func (w *Workstation) NormalizedStatus() string {
	return strings.ToLower(strings.TrimSpace(w.Status))
}

// WorkstationFilter narrows registry listings.
type WorkstationFilter struct {
	MachineID string
	LineID    string
}

// DowntimeReason is one group of the downtime breakdown report.
type DowntimeReason struct {
	Reason        string  `json:"reason"`
	LineID        string  `json:"line_id"`
	MachineID     string  `json:"machine_id"`
	MachineName   string  `json:"machine_name"`
	TotalDuration float64 `json:"total_duration"`
	Occurrences   int     `json:"occurrences"`
}
