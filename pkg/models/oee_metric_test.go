package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
)

func TestParseMetricLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected MetricLevel
		wantErr  bool
	}{
		{"job_card", LevelJobCard, false},
		{"work_order", LevelWorkOrder, false},
		{" Workstation ", LevelWorkstation, false},
		{"machine", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMetricLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMetricKey_LockKeyIgnoresShift(t *testing.T) {
	date := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	a := MetricKey{Level: LevelJobCard, ReferenceID: "JC-1", LogDate: date, Shift: "1"}
	b := MetricKey{Level: LevelJobCard, ReferenceID: "JC-1", LogDate: date, Shift: "2"}

	assert.Equal(t, a.LockKey(), b.LockKey())
	assert.Equal(t, "job_card:JC-1:2025-03-14", a.LockKey())
	assert.NotEqual(t, a.String(), b.String())
}

func TestMetricRecord_FinalizeClampsDowntimeAndAccepted(t *testing.T) {
	r := &MetricRecord{
		Level:                 LevelJobCard,
		ReferenceID:           "JC-1",
		LogDate:               time.Date(2025, 3, 14, 17, 30, 0, 0, time.UTC),
		Shift:                 "1",
		PlannedProductionTime: 480,
		Downtime:              600,
		TotalProducedQty:      10,
		AcceptedQty:           12,
		Availability:          -5,
		Performance:           140,
		Quality:               120,
	}

	r.Finalize()

	assert.Equal(t, 480.0, r.Downtime)
	assert.Equal(t, 0.0, r.ActualRunTime)
	assert.Equal(t, 10.0, r.AcceptedQty)
	assert.Equal(t, 0.0, r.QualityLossQty)
	assert.Equal(t, 0.0, r.Availability)
	assert.Equal(t, 100.0, r.Performance)
	assert.Equal(t, 100.0, r.Quality)
	assert.Equal(t, 0.0, r.OEE)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), r.LogDate)
}

func TestMetricRecord_FinalizeRecomputesOEEFromRoundedRatios(t *testing.T) {
	r := &MetricRecord{
		PlannedProductionTime: 480,
		Downtime:              60,
		Availability:          87.5,
		Performance:           95.238095238,
		Quality:               95,
		OEE:                   12, // stale value must be replaced
	}

	r.Finalize()

	assert.Equal(t, 95.24, r.Performance)
	assert.Equal(t, ComputeOEE(87.5, 95.24, 95), r.OEE)
	assert.Equal(t, 79.17, r.OEE)
	assert.Equal(t, 420.0, r.ActualRunTime)
}

func TestRoundRatio_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 0.13, RoundRatio(0.125))
	assert.Equal(t, 12.35, RoundRatio(12.345))
	assert.Equal(t, 0.0, RoundRatio(0))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-1, 0, 100))
	assert.Equal(t, 100.0, Clamp(101, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
}

func TestMetricRecord_MarshalJSONRendersDate(t *testing.T) {
	r := MetricRecord{
		Level:       LevelWorkstation,
		ReferenceID: "WS-01",
		LogDate:     time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Shift:       AllDayShift,
		OEE:         55.5,
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2025-01-02", decoded["log_date"])
	assert.Equal(t, "All Day", decoded["shift"])
	assert.Equal(t, "workstation", decoded["level"])
	assert.Equal(t, 55.5, decoded["oee"])
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-02-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("28/02/2025")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDate)
}

func TestFormatISOWeek(t *testing.T) {
	// 2021-01-03 is a Sunday that belongs to ISO week 53 of 2020.
	assert.Equal(t, "2020-W53", FormatISOWeek(time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-W11", FormatISOWeek(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)))
}
