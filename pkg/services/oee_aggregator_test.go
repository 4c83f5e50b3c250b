package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

func childRecord(ref, shift string, planned, downtime, ideal, produced, accepted float64) *models.MetricRecord {
	rec := &models.MetricRecord{
		Level:                 models.LevelJobCard,
		ReferenceID:           ref,
		LogDate:               day("2025-03-10"),
		Shift:                 shift,
		PlannedProductionTime: planned,
		Downtime:              downtime,
		IdealCycleTime:        ideal,
		TotalProducedQty:      produced,
		AcceptedQty:           accepted,
	}
	run := planned - downtime
	rec.Availability = run / planned * 100
	if run > 0 {
		rec.Performance = ideal * produced / run * 100
	}
	if produced > 0 {
		rec.Quality = accepted / produced * 100
	}
	rec.Finalize()
	return rec
}

func TestRollupWorkOrder_WeightsByRunTime(t *testing.T) {
	c1 := &models.MetricRecord{
		Level: models.LevelJobCard, ReferenceID: "JC-1", Shift: "A",
		PlannedProductionTime: 480, Downtime: 180,
		Availability: 90, Performance: 80, Quality: 100,
		TotalProducedQty: 100, AcceptedQty: 100,
	}
	c2 := &models.MetricRecord{
		Level: models.LevelJobCard, ReferenceID: "JC-2", Shift: "B",
		PlannedProductionTime: 480, Downtime: 380,
		Availability: 50, Performance: 80, Quality: 100,
		TotalProducedQty: 40, AcceptedQty: 40,
	}
	c1.Finalize()
	c2.Finalize()

	rec := RollupWorkOrder("WO-1", day("2025-03-10"), []*models.MetricRecord{c1, c2})
	require.NotNil(t, rec)

	assert.Equal(t, models.LevelWorkOrder, rec.Level)
	assert.Equal(t, models.AllDayShift, rec.Shift)
	assert.Equal(t, 80.0, rec.Availability)
	assert.Equal(t, 80.0, rec.Performance)
	assert.Equal(t, 100.0, rec.Quality)
	assert.Equal(t, 64.0, rec.OEE)
	assert.Equal(t, 960.0, rec.PlannedProductionTime)
	assert.Equal(t, 560.0, rec.Downtime)
	assert.Equal(t, 400.0, rec.ActualRunTime)
	assert.Equal(t, 140.0, rec.TotalProducedQty)
}

func TestRollupWorkOrder_NoChildren(t *testing.T) {
	assert.Nil(t, RollupWorkOrder("WO-1", day("2025-03-10"), nil))
}

func TestRollupWorkOrder_ZeroRunTime(t *testing.T) {
	c := childRecord("JC-1", "A", 480, 480, 1, 0, 0)
	rec := RollupWorkOrder("WO-1", day("2025-03-10"), []*models.MetricRecord{c})
	require.NotNil(t, rec)
	assert.Equal(t, 0.0, rec.Availability)
	assert.Equal(t, 0.0, rec.OEE)
}

func TestRollupWorkstation_SumsPlannedTimeAcrossShifts(t *testing.T) {
	children := []*models.MetricRecord{
		childRecord("JC-1", "A", 480, 60, 2, 200, 190),
		childRecord("JC-2", "B", 480, 0, 1, 100, 100),
	}

	rec := RollupWorkstation("WS-1", day("2025-03-10"), children)
	require.NotNil(t, rec)

	assert.Equal(t, models.LevelWorkstation, rec.Level)
	assert.Equal(t, models.AllDayShift, rec.Shift)
	assert.Equal(t, 960.0, rec.PlannedProductionTime)
	assert.Equal(t, 60.0, rec.Downtime)
	assert.Equal(t, 900.0, rec.ActualRunTime)
	assert.Equal(t, 93.75, rec.Availability)
	assert.Equal(t, 55.56, rec.Performance)
	assert.Equal(t, 96.67, rec.Quality)
	assert.Equal(t, 50.35, rec.OEE)
}

func TestRollupWorkstation_SharesPlannedTimeWithinShift(t *testing.T) {
	children := []*models.MetricRecord{
		childRecord("JC-1", "A", 480, 60, 1, 100, 100),
		childRecord("JC-2", "A", 480, 30, 1, 100, 100),
	}

	rec := RollupWorkstation("WS-1", day("2025-03-10"), children)
	require.NotNil(t, rec)

	assert.Equal(t, 480.0, rec.PlannedProductionTime)
	assert.Equal(t, 90.0, rec.Downtime)
	assert.Equal(t, 390.0, rec.ActualRunTime)
	assert.Equal(t, 81.25, rec.Availability)
	assert.Equal(t, 51.28, rec.Performance)
	assert.Equal(t, 41.67, rec.OEE)
}

func TestRollupWorkstation_ClampsSharedDowntime(t *testing.T) {
	children := []*models.MetricRecord{
		childRecord("JC-1", "A", 480, 400, 1, 10, 10),
		childRecord("JC-2", "A", 480, 300, 1, 10, 10),
	}
	children[0].AvailabilityLoss = 400
	children[1].AvailabilityLoss = 150
	children[1].PerformanceLoss = 150

	rec := RollupWorkstation("WS-1", day("2025-03-10"), children)
	require.NotNil(t, rec)

	assert.Equal(t, 480.0, rec.Downtime)
	assert.Equal(t, 0.0, rec.ActualRunTime)
	assert.Equal(t, 0.0, rec.Availability)
	assert.Equal(t, 0.0, rec.Performance)
	assert.Equal(t, 377.14, rec.AvailabilityLoss, "shift losses scale to the clamped downtime")
	assert.Equal(t, 102.86, rec.PerformanceLoss)
}

func TestOEEAggregator_RollupStoresAndDeletes(t *testing.T) {
	ctx := context.Background()
	events := newFakeEventSource()
	events.addJobCard("JC-1", "WO-1", "WS-1", 2)
	events.addJobCard("JC-2", "WO-1", "WS-2", 1)
	store := newFakeMetricStore()
	store.put(childRecord("JC-1", "A", 480, 60, 2, 200, 190))
	store.put(childRecord("JC-2", "B", 480, 0, 1, 100, 100))

	agg := NewOEEAggregator(events, store, zap.NewNop())

	wo, err := agg.RollupWorkOrder(ctx, "WO-1", day("2025-03-10"))
	require.NoError(t, err)
	require.NotNil(t, wo)
	assert.Equal(t, 300.0, wo.TotalProducedQty)
	require.NotNil(t, store.get(models.LevelWorkOrder, "WO-1", "2025-03-10", models.AllDayShift))

	ws, err := agg.RollupWorkstation(ctx, "WS-1", day("2025-03-10"))
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, 200.0, ws.TotalProducedQty)

	// Remove the children and roll up again: the parents go away.
	_, _ = store.Delete(ctx, models.MetricKey{Level: models.LevelJobCard, ReferenceID: "JC-1", LogDate: day("2025-03-10"), Shift: "A"})
	_, _ = store.Delete(ctx, models.MetricKey{Level: models.LevelJobCard, ReferenceID: "JC-2", LogDate: day("2025-03-10"), Shift: "B"})

	wo, err = agg.RollupWorkOrder(ctx, "WO-1", day("2025-03-10"))
	require.NoError(t, err)
	assert.Nil(t, wo)
	assert.Nil(t, store.get(models.LevelWorkOrder, "WO-1", "2025-03-10", models.AllDayShift))

	ws, err = agg.RollupWorkstation(ctx, "WS-1", day("2025-03-10"))
	require.NoError(t, err)
	assert.Nil(t, ws)
	assert.Equal(t, 0, store.count())
}
