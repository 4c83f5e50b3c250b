// Package models contains domain types for the OEE engine.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
)

// MetricLevel discriminates the aggregation tier of a metric record.
type MetricLevel string

const (
	LevelJobCard     MetricLevel = "job_card"
	LevelWorkOrder   MetricLevel = "work_order"
	LevelWorkstation MetricLevel = "workstation"
)

// AllDayShift is the shift label of work_order and workstation records,
// which are daily aggregates spanning every shift.
const AllDayShift = "All Day"

// DefaultPlannedProductionMinutes is one standard 8-hour shift.
const DefaultPlannedProductionMinutes = 480.0

// IsValid returns true if the level is one of the known tiers.
func (l MetricLevel) IsValid() bool {
	switch l {
	case LevelJobCard, LevelWorkOrder, LevelWorkstation:
		return true
	}
	return false
}

// ParseMetricLevel converts a string into a MetricLevel.
func ParseMetricLevel(s string) (MetricLevel, error) {
	level := MetricLevel(strings.ToLower(strings.TrimSpace(s)))
	if !level.IsValid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidLevel, s)
	}
	return level, nil
}

// MetricKey is the unique identity of a metric record.
type MetricKey struct {
	Level       MetricLevel
	ReferenceID string
	LogDate     time.Time
	Shift       string
}

// LockKey returns the mutual-exclusion scope of the key: (level, reference_id, date).
// The shift is deliberately excluded so that a rollup and its own rewrite never interleave.
func (k MetricKey) LockKey() string {
	return fmt.Sprintf("%s:%s:%s", k.Level, k.ReferenceID, FormatDate(k.LogDate))
}

func (k MetricKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Level, k.ReferenceID, FormatDate(k.LogDate), k.Shift)
}

// MetricRecord is one row of the oee_analysis table.
// Ratios are percentages in [0, 100]; times are minutes.
type MetricRecord struct {
	ID          uuid.UUID
	Level       MetricLevel
	ReferenceID string
	LogDate     time.Time
	Shift       string

	Availability float64
	Performance  float64
	Quality      float64
	OEE          float64

	PlannedProductionTime float64
	Downtime              float64
	ActualRunTime         float64
	IdealCycleTime        float64
	TotalProducedQty      float64
	AcceptedQty           float64
	AvailabilityLoss      float64
	PerformanceLoss       float64
	QualityLossQty        float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the unique identity of the record.
func (r *MetricRecord) Key() MetricKey {
	return MetricKey{
		Level:       r.Level,
		ReferenceID: r.ReferenceID,
		LogDate:     r.LogDate,
		Shift:       r.Shift,
	}
}

// Finalize enforces the record invariants in place:
// downtime is clamped to the planned window and the run time derived from it,
// accepted quantity is clamped to produced quantity, ratios are clamped to
// [0, 100] and rounded, and OEE is recomputed from the rounded ratios.
func (r *MetricRecord) Finalize() {
	r.LogDate = TruncateDate(r.LogDate)

	r.PlannedProductionTime = RoundMinutes(math.Max(r.PlannedProductionTime, 0))
	r.Downtime = RoundMinutes(Clamp(r.Downtime, 0, r.PlannedProductionTime))
	r.ActualRunTime = RoundMinutes(r.PlannedProductionTime - r.Downtime)
	r.IdealCycleTime = roundTo(math.Max(r.IdealCycleTime, 0), 4)

	r.TotalProducedQty = RoundQty(math.Max(r.TotalProducedQty, 0))
	r.AcceptedQty = RoundQty(Clamp(r.AcceptedQty, 0, r.TotalProducedQty))
	r.QualityLossQty = RoundQty(r.TotalProducedQty - r.AcceptedQty)

	r.AvailabilityLoss = RoundMinutes(math.Max(r.AvailabilityLoss, 0))
	r.PerformanceLoss = RoundMinutes(math.Max(r.PerformanceLoss, 0))

	r.Availability = RoundRatio(Clamp(r.Availability, 0, 100))
	r.Performance = RoundRatio(Clamp(r.Performance, 0, 100))
	r.Quality = RoundRatio(Clamp(r.Quality, 0, 100))
	r.OEE = ComputeOEE(r.Availability, r.Performance, r.Quality)
}

// ComputeOEE returns availability × performance × quality / 10000, rounded like a stored ratio.
func ComputeOEE(availability, performance, quality float64) float64 {
	return RoundRatio(Clamp(availability*performance*quality/10000, 0, 100))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundRatio rounds a percentage to the precision of the ratio columns (2 places).
func RoundRatio(v float64) float64 { return roundTo(v, 2) }

// RoundMinutes rounds a time value to 2 places.
func RoundMinutes(v float64) float64 { return roundTo(v, 2) }

// RoundQty rounds a quantity to the precision of the quantity columns (6 places).
func RoundQty(v float64) float64 { return roundTo(v, 6) }

func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

type metricRecordJSON struct {
	ID                    uuid.UUID   `json:"id"`
	Level                 MetricLevel `json:"level"`
	ReferenceID           string      `json:"reference_id"`
	LogDate               string      `json:"log_date"`
	Shift                 string      `json:"shift"`
	Availability          float64     `json:"availability"`
	Performance           float64     `json:"performance"`
	Quality               float64     `json:"quality"`
	OEE                   float64     `json:"oee"`
	PlannedProductionTime float64     `json:"planned_production_time"`
	Downtime              float64     `json:"downtime"`
	ActualRunTime         float64     `json:"actual_run_time"`
	IdealCycleTime        float64     `json:"ideal_cycle_time"`
	TotalProducedQty      float64     `json:"total_produced_qty"`
	AcceptedQty           float64     `json:"accepted_qty"`
	AvailabilityLoss      float64     `json:"availability_loss"`
	PerformanceLoss       float64     `json:"performance_loss"`
	QualityLossQty        float64     `json:"quality_loss_qty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// MarshalJSON renders log_date as a calendar date.
func (r MetricRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricRecordJSON{
		ID:                    r.ID,
		Level:                 r.Level,
		ReferenceID:           r.ReferenceID,
		LogDate:               FormatDate(r.LogDate),
		Shift:                 r.Shift,
		Availability:          r.Availability,
		Performance:           r.Performance,
		Quality:               r.Quality,
		OEE:                   r.OEE,
		PlannedProductionTime: r.PlannedProductionTime,
		Downtime:              r.Downtime,
		ActualRunTime:         r.ActualRunTime,
		IdealCycleTime:        r.IdealCycleTime,
		TotalProducedQty:      r.TotalProducedQty,
		AcceptedQty:           r.AcceptedQty,
		AvailabilityLoss:      r.AvailabilityLoss,
		PerformanceLoss:       r.PerformanceLoss,
		QualityLossQty:        r.QualityLossQty,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	})
}

// MetricQuery selects metric records from the store.
// Zero values mean "no constraint".
type MetricQuery struct {
	Level        MetricLevel
	ReferenceIDs []string
	StartDate    *time.Time
	EndDate      *time.Time
	Shift        string
	Limit        int
}
