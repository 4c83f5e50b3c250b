package models

import (
	"encoding/json"
	"time"
)

// ReportFilters is the optional filter set accepted by every report.
// Nil dates and empty strings mean "no constraint".
type ReportFilters struct {
	StartDate *time.Time
	EndDate   *time.Time
	MachineID string
	LineID    string
	Shift     string
}

// HasShift reports whether a concrete shift filter is set.
func (f ReportFilters) HasShift() bool {
	return f.Shift != "" && f.Shift != AllDayShift
}

// MachineMetric is one point-metric row: a workstation on a date, or an idle
// workstation with no date.
type MachineMetric struct {
	MachineID     string     `json:"machine_id"`
	MachineName   string     `json:"machine_name"`
	LineID        string     `json:"line_id"`
	MachineStatus string     `json:"machine_status"`
	MachineType   string     `json:"machine_type"`
	EntryDate     *time.Time `json:"-"`
	Shift         string     `json:"shift,omitempty"`

	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`

	TotalUnits        float64 `json:"total_units"`
	GoodUnits         float64 `json:"good_units"`
	RejectedUnits     float64 `json:"rejected_units"`
	DowntimeMins      float64 `json:"downtime_mins"`
	OperatingTimeMins float64 `json:"operating_time_mins"`
	PlannedTimeMins   float64 `json:"planned_time_mins"`

	ActiveJobs      int     `json:"active_jobs"`
	RejectionRate   float64 `json:"rejection_rate"`
	Load            float64 `json:"load"`
	Temperature     float64 `json:"temperature"`
	Health          float64 `json:"health"`
	BottleneckScore float64 `json:"bottleneck_score"`
}

// IsIdle reports whether the row represents a machine without a metric record.
func (m *MachineMetric) IsIdle() bool {
	return m.EntryDate == nil
}

// MarshalJSON renders entry_date as a calendar date or null.
func (m MachineMetric) MarshalJSON() ([]byte, error) {
	type alias MachineMetric
	var entryDate *string
	if m.EntryDate != nil {
		s := FormatDate(*m.EntryDate)
		entryDate = &s
	}
	return json.Marshal(struct {
		alias
		EntryDate *string `json:"entry_date"`
	}{alias: alias(m), EntryDate: entryDate})
}

// OEESummary is the single aggregate row across machines.
type OEESummary struct {
	Availability      float64 `json:"availability"`
	Performance       float64 `json:"performance"`
	Quality           float64 `json:"quality"`
	OEE               float64 `json:"oee"`
	TotalUnits        float64 `json:"total_units"`
	GoodUnits         float64 `json:"good_units"`
	RejectedUnits     float64 `json:"rejected_units"`
	DowntimeMins      float64 `json:"downtime_mins"`
	OperatingTimeMins float64 `json:"operating_time_mins"`
	MachineCount      int     `json:"machine_count"`
}

// TrendPoint is one calendar date of the trend report.
type TrendPoint struct {
	Date              string  `json:"date"`
	Availability      float64 `json:"availability"`
	Performance       float64 `json:"performance"`
	Quality           float64 `json:"quality"`
	OEE               float64 `json:"oee"`
	TotalUnits        float64 `json:"total_units"`
	GoodUnits         float64 `json:"good_units"`
	RejectedUnits     float64 `json:"rejected_units"`
	DowntimeMins      float64 `json:"downtime_mins"`
	OperatingTimeMins float64 `json:"operating_time_mins"`
}

// AnalysisPeriod is one day or month of a machine's comprehensive analysis.
type AnalysisPeriod struct {
	Period       string  `json:"period"`
	Produced     float64 `json:"produced"`
	Rejected     float64 `json:"rejected"`
	WorkingTime  float64 `json:"working_time"`
	Downtime     float64 `json:"downtime"`
	AvgOEE       float64 `json:"avg_oee"`
	DowntimeRate float64 `json:"downtime_rate"`
}

// MachineAnalysis is the comprehensive rollup of one machine over a window.
type MachineAnalysis struct {
	MachineID    string           `json:"machine_id"`
	MachineName  string           `json:"machine_name"`
	LineID       string           `json:"line_id"`
	Status       string           `json:"status"`
	Type         string           `json:"type"`
	Produced     float64          `json:"produced"`
	Rejected     float64          `json:"rejected"`
	WorkingTime  float64          `json:"working_time"`
	Downtime     float64          `json:"downtime"`
	AvgOEE       float64          `json:"avg_oee"`
	DowntimeRate float64          `json:"downtime_rate"`
	Daily        []AnalysisPeriod `json:"daily"`
	Monthly      []AnalysisPeriod `json:"monthly"`
}

// HistoryPeriod is one week or month of a machine's history.
type HistoryPeriod struct {
	Period         string  `json:"period"`
	AvgPerformance float64 `json:"avg_performance"`
	AvgOEE         float64 `json:"avg_oee"`
	WorkingTime    float64 `json:"working_time"`
	Downtime       float64 `json:"downtime"`
	Days           int     `json:"days"`
}

// MachineHistory is the daily, weekly and monthly history of one machine.
type MachineHistory struct {
	MachineID string          `json:"machine_id"`
	Daily     []TrendPoint    `json:"daily"`
	Weekly    []HistoryPeriod `json:"weekly"`
	Monthly   []HistoryPeriod `json:"monthly"`
}

// DrillDownMetrics are the averaged ratios of a drill-down target.
type DrillDownMetrics struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`
	TotalUnits   float64 `json:"total_units"`
}

// DrillDownLosses are the summed losses of a drill-down target.
type DrillDownLosses struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
}

// DrillDownEntity is one child of a drill-down target.
type DrillDownEntity struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Level        string  `json:"level"`
	LogDate      string  `json:"log_date,omitempty"`
	Shift        string  `json:"shift,omitempty"`
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`
	Status       string  `json:"status"`
}

// DrillDown is a metric target with its averaged metrics and child entities.
type DrillDown struct {
	Level       MetricLevel       `json:"level"`
	ReferenceID string            `json:"reference_id"`
	Metrics     DrillDownMetrics  `json:"metrics"`
	Losses      DrillDownLosses   `json:"losses"`
	SubEntities []DrillDownEntity `json:"sub_entities"`
}

// Dashboard bundles every dashboard section.
type Dashboard struct {
	Summary         OEESummary       `json:"summary"`
	Trends          []TrendPoint     `json:"trends"`
	DowntimeReasons []DowntimeReason `json:"downtime_reasons"`
	MachineOEE      []MachineMetric  `json:"machine_oee"`
	RecentJobCards  []*MetricRecord  `json:"recent_job_cards"`
}
