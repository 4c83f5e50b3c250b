package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/observability"
	"github.com/codigix/nobal-casting-sub004/pkg/repositories"
)

// ReportingService serves read-only views over the metric store.
// Nothing here takes locks or writes.
type ReportingService interface {
	GetMetrics(ctx context.Context, filters models.ReportFilters) ([]models.MachineMetric, error)
	GetSummary(ctx context.Context, filters models.ReportFilters) (*models.OEESummary, error)
	GetTrends(ctx context.Context, filters models.ReportFilters) ([]models.TrendPoint, error)
	GetDowntimeReasons(ctx context.Context, filters models.ReportFilters) ([]models.DowntimeReason, error)
	GetComprehensiveAnalysis(ctx context.Context, filters models.ReportFilters) ([]models.MachineAnalysis, error)
	GetAnalysis(ctx context.Context, level models.MetricLevel, referenceID string, filters models.ReportFilters) ([]*models.MetricRecord, error)
	GetDrillDown(ctx context.Context, level models.MetricLevel, referenceID string, filters models.ReportFilters) (*models.DrillDown, error)
	GetMachineHistory(ctx context.Context, machineID string, filters models.ReportFilters) (*models.MachineHistory, error)
	GetRecentJobCards(ctx context.Context, limit int, filters models.ReportFilters) ([]*models.MetricRecord, error)
}

// ReportingConfig holds the default windows of the reporting layer.
type ReportingConfig struct {
	AnalysisWindowDays  int
	HistoryWindowDays   int
	RecentJobCardsLimit int
}

type reportingService struct {
	events  eventsource.EventSource
	metrics repositories.MetricRepository
	cfg     ReportingConfig
	now     func() time.Time
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewReportingService creates the reporting layer.
func NewReportingService(events eventsource.EventSource, metrics repositories.MetricRepository, cfg ReportingConfig, logger *zap.Logger) ReportingService {
	return newReportingService(events, metrics, cfg, time.Now, logger)
}

func newReportingService(events eventsource.EventSource, metrics repositories.MetricRepository, cfg ReportingConfig, now func() time.Time, logger *zap.Logger) *reportingService {
	if cfg.AnalysisWindowDays <= 0 {
		cfg.AnalysisWindowDays = 30
	}
	if cfg.HistoryWindowDays <= 0 {
		cfg.HistoryWindowDays = 90
	}
	if cfg.RecentJobCardsLimit <= 0 {
		cfg.RecentJobCardsLimit = 10
	}
	return &reportingService{
		events:  events,
		metrics: metrics,
		cfg:     cfg,
		now:     now,
		tracer:  observability.Tracer(),
		logger:  logger.Named("oee-reporting"),
	}
}

var _ ReportingService = (*reportingService)(nil)

func (s *reportingService) startSpan(ctx context.Context, name string, filters models.ReportFilters) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("machine_id", filters.MachineID),
		attribute.String("line_id", filters.LineID),
		attribute.String("shift", filters.Shift),
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// withWindow fills a missing start date with a trailing window ending today.
func (s *reportingService) withWindow(filters models.ReportFilters, days int) models.ReportFilters {
	if filters.StartDate == nil {
		start := models.TruncateDate(s.now()).AddDate(0, 0, -days)
		filters.StartDate = &start
	}
	return filters
}

func (s *reportingService) GetMetrics(ctx context.Context, filters models.ReportFilters) ([]models.MachineMetric, error) {
	ctx, span := s.startSpan(ctx, "oee.report.metrics", filters)
	defer span.End()

	rows, err := s.loadMachineRows(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to load machine metrics", zap.Error(err))
		return nil, err
	}
	return rows, nil
}

func (s *reportingService) loadMachineRows(ctx context.Context, filters models.ReportFilters) ([]models.MachineMetric, error) {
	stations, err := s.events.ListWorkstations(ctx, models.WorkstationFilter{MachineID: filters.MachineID, LineID: filters.LineID})
	if err != nil {
		return nil, fmt.Errorf("failed to list workstations: %w", err)
	}
	rows := make([]models.MachineMetric, 0, len(stations))
	if len(stations) == 0 {
		return rows, nil
	}

	stationIDs := make([]string, len(stations))
	for i, ws := range stations {
		stationIDs[i] = ws.ID
	}

	cards, err := s.events.ListJobCardsByWorkstations(ctx, stationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list job cards: %w", err)
	}
	cardStation := make(map[string]string, len(cards))
	for _, c := range cards {
		cardStation[c.ID] = c.WorkstationID
	}

	var jobRecords []*models.MetricRecord
	if len(cards) > 0 {
		q := models.MetricQuery{
			Level:        models.LevelJobCard,
			ReferenceIDs: jobCardIDs(cards),
			StartDate:    filters.StartDate,
			EndDate:      filters.EndDate,
		}
		if filters.HasShift() {
			q.Shift = filters.Shift
		}
		if jobRecords, err = s.metrics.List(ctx, q); err != nil {
			return nil, err
		}
	}

	type stationDay struct {
		station string
		date    string
	}
	activeJobs := make(map[stationDay]map[string]struct{})
	children := make(map[stationDay][]*models.MetricRecord)
	for _, r := range jobRecords {
		k := stationDay{station: cardStation[r.ReferenceID], date: models.FormatDate(r.LogDate)}
		if activeJobs[k] == nil {
			activeJobs[k] = make(map[string]struct{})
		}
		activeJobs[k][r.ReferenceID] = struct{}{}
		children[k] = append(children[k], r)
	}

	byStation := make(map[string][]*models.MetricRecord)
	if filters.HasShift() {
		// Rebuild the station rows from the selected shift only.
		for k, recs := range children {
			rec := RollupWorkstation(k.station, recs[0].LogDate, recs)
			rec.Shift = filters.Shift
			byStation[k.station] = append(byStation[k.station], rec)
		}
	} else {
		stationRecords, err := s.metrics.List(ctx, models.MetricQuery{
			Level:        models.LevelWorkstation,
			ReferenceIDs: stationIDs,
			StartDate:    filters.StartDate,
			EndDate:      filters.EndDate,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range stationRecords {
			byStation[r.ReferenceID] = append(byStation[r.ReferenceID], r)
		}
	}

	for _, ws := range stations {
		recs := byStation[ws.ID]
		if len(recs) == 0 {
			rows = append(rows, machineRow(ws, nil, 0))
			continue
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].LogDate.Before(recs[j].LogDate) })
		for _, r := range recs {
			jobs := len(activeJobs[stationDay{station: ws.ID, date: models.FormatDate(r.LogDate)}])
			rows = append(rows, machineRow(ws, r, jobs))
		}
	}
	return rows, nil
}

// machineRow builds one point-metric row; rec is nil for an idle machine.
func machineRow(ws *models.Workstation, rec *models.MetricRecord, activeJobs int) models.MachineMetric {
	row := models.MachineMetric{
		MachineID:     ws.ID,
		MachineName:   ws.DisplayName(),
		LineID:        ws.Location,
		MachineStatus: ws.Status,
		MachineType:   ws.Type,
		ActiveJobs:    activeJobs,
	}
	if rec != nil {
		date := rec.LogDate
		row.EntryDate = &date
		row.Shift = rec.Shift
		row.Availability = rec.Availability
		row.Performance = rec.Performance
		row.Quality = rec.Quality
		row.OEE = rec.OEE
		row.TotalUnits = rec.TotalProducedQty
		row.GoodUnits = rec.AcceptedQty
		row.RejectedUnits = models.RoundQty(rec.TotalProducedQty - rec.AcceptedQty)
		row.DowntimeMins = rec.Downtime
		row.OperatingTimeMins = rec.ActualRunTime
		row.PlannedTimeMins = rec.PlannedProductionTime
	}

	if row.TotalUnits > 0 {
		row.RejectionRate = models.RoundRatio(row.RejectedUnits / row.TotalUnits * 100)
	}
	row.Load = row.Availability
	row.Temperature = models.RoundRatio(25 + 0.5*row.Load)
	row.Health = machineHealth(ws.NormalizedStatus(), row.RejectionRate)
	row.BottleneckScore = bottleneckScore(row.OEE, activeJobs)
	return row
}

func machineHealth(status string, rejectionRate float64) float64 {
	switch status {
	case models.WorkstationStatusDown:
		return 45
	case models.WorkstationStatusMaintenance:
		return 75
	}
	return models.RoundRatio(models.Clamp(100-0.5*rejectionRate, 0, 100))
}

func bottleneckScore(oee float64, activeJobs int) float64 {
	switch {
	case oee < 60 && activeJobs > 0:
		return 100
	case oee < 75:
		return 50
	}
	return 0
}

type ratioAccumulator struct {
	a, p, q, oee float64
	n            int
}

func (r *ratioAccumulator) add(a, p, q, oee float64) {
	r.a += a
	r.p += p
	r.q += q
	r.oee += oee
	r.n++
}

func (r *ratioAccumulator) mean() (a, p, q, oee float64) {
	if r.n == 0 {
		return 0, 0, 0, 0
	}
	n := float64(r.n)
	return r.a / n, r.p / n, r.q / n, r.oee / n
}

// Summarize averages each machine's ratios over its days, then averages
// across machines. Idle rows carry no ratios and are skipped; quantities are
// summed over every row.
func Summarize(rows []models.MachineMetric) *models.OEESummary {
	summary := &models.OEESummary{}
	perMachine := make(map[string]*ratioAccumulator)
	var order []string

	for i := range rows {
		row := &rows[i]
		summary.TotalUnits += row.TotalUnits
		summary.GoodUnits += row.GoodUnits
		summary.RejectedUnits += row.RejectedUnits
		summary.DowntimeMins += row.DowntimeMins
		summary.OperatingTimeMins += row.OperatingTimeMins
		if row.IsIdle() {
			continue
		}
		acc, ok := perMachine[row.MachineID]
		if !ok {
			acc = &ratioAccumulator{}
			perMachine[row.MachineID] = acc
			order = append(order, row.MachineID)
		}
		acc.add(row.Availability, row.Performance, row.Quality, row.OEE)
	}

	var machines ratioAccumulator
	for _, id := range order {
		machines.add(perMachine[id].mean())
	}
	a, p, q, oee := machines.mean()
	summary.Availability = models.RoundRatio(a)
	summary.Performance = models.RoundRatio(p)
	summary.Quality = models.RoundRatio(q)
	summary.OEE = models.RoundRatio(oee)
	summary.MachineCount = len(order)

	summary.TotalUnits = models.RoundQty(summary.TotalUnits)
	summary.GoodUnits = models.RoundQty(summary.GoodUnits)
	summary.RejectedUnits = models.RoundQty(summary.RejectedUnits)
	summary.DowntimeMins = models.RoundMinutes(summary.DowntimeMins)
	summary.OperatingTimeMins = models.RoundMinutes(summary.OperatingTimeMins)
	return summary
}

// Trend groups dated rows by calendar date, ascending.
func Trend(rows []models.MachineMetric) []models.TrendPoint {
	type day struct {
		point models.TrendPoint
		acc   ratioAccumulator
	}
	days := make(map[string]*day)
	for i := range rows {
		row := &rows[i]
		if row.IsIdle() {
			continue
		}
		key := models.FormatDate(*row.EntryDate)
		d, ok := days[key]
		if !ok {
			d = &day{point: models.TrendPoint{Date: key}}
			days[key] = d
		}
		d.acc.add(row.Availability, row.Performance, row.Quality, row.OEE)
		d.point.TotalUnits += row.TotalUnits
		d.point.GoodUnits += row.GoodUnits
		d.point.RejectedUnits += row.RejectedUnits
		d.point.DowntimeMins += row.DowntimeMins
		d.point.OperatingTimeMins += row.OperatingTimeMins
	}

	points := make([]models.TrendPoint, 0, len(days))
	for _, d := range days {
		a, p, q, oee := d.acc.mean()
		pt := d.point
		pt.Availability = models.RoundRatio(a)
		pt.Performance = models.RoundRatio(p)
		pt.Quality = models.RoundRatio(q)
		pt.OEE = models.RoundRatio(oee)
		pt.TotalUnits = models.RoundQty(pt.TotalUnits)
		pt.GoodUnits = models.RoundQty(pt.GoodUnits)
		pt.RejectedUnits = models.RoundQty(pt.RejectedUnits)
		pt.DowntimeMins = models.RoundMinutes(pt.DowntimeMins)
		pt.OperatingTimeMins = models.RoundMinutes(pt.OperatingTimeMins)
		points = append(points, pt)
	}
	// YYYY-MM-DD sorts lexically.
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

func (s *reportingService) GetSummary(ctx context.Context, filters models.ReportFilters) (*models.OEESummary, error) {
	ctx, span := s.startSpan(ctx, "oee.report.summary", filters)
	defer span.End()

	rows, err := s.loadMachineRows(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to load summary", zap.Error(err))
		return nil, err
	}
	return Summarize(rows), nil
}

func (s *reportingService) GetTrends(ctx context.Context, filters models.ReportFilters) ([]models.TrendPoint, error) {
	ctx, span := s.startSpan(ctx, "oee.report.trends", filters)
	defer span.End()

	rows, err := s.loadMachineRows(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to load trends", zap.Error(err))
		return nil, err
	}
	return Trend(rows), nil
}

func (s *reportingService) GetDowntimeReasons(ctx context.Context, filters models.ReportFilters) ([]models.DowntimeReason, error) {
	ctx, span := s.startSpan(ctx, "oee.report.downtime_reasons", filters)
	defer span.End()

	reasons, err := s.events.SummarizeDowntimeReasons(ctx, filters)
	if err != nil {
		s.logger.Error("Failed to summarize downtime reasons", zap.Error(err))
		return nil, err
	}
	for i := range reasons {
		reasons[i].TotalDuration = models.RoundMinutes(reasons[i].TotalDuration)
	}
	return reasons, nil
}

type periodAccumulator struct {
	period                          models.AnalysisPeriod
	produced, rejected, working, dt float64
	oee                             float64
	n                               int
}

func (p *periodAccumulator) add(row *models.MachineMetric) {
	p.produced += row.TotalUnits
	p.rejected += row.RejectedUnits
	p.working += row.OperatingTimeMins
	p.dt += row.DowntimeMins
	p.oee += row.OEE
	p.n++
}

func (p *periodAccumulator) result() models.AnalysisPeriod {
	out := p.period
	out.Produced = models.RoundQty(p.produced)
	out.Rejected = models.RoundQty(p.rejected)
	out.WorkingTime = models.RoundMinutes(p.working)
	out.Downtime = models.RoundMinutes(p.dt)
	if p.n > 0 {
		out.AvgOEE = models.RoundRatio(p.oee / float64(p.n))
	}
	out.DowntimeRate = downtimeRate(p.dt, p.working)
	return out
}

func downtimeRate(downtime, working float64) float64 {
	if downtime+working <= 0 {
		return 0
	}
	return models.RoundRatio(downtime / (downtime + working) * 100)
}

func groupPeriods(rows []*models.MachineMetric, keyOf func(time.Time) string) []models.AnalysisPeriod {
	groups := make(map[string]*periodAccumulator)
	for _, row := range rows {
		key := keyOf(*row.EntryDate)
		g, ok := groups[key]
		if !ok {
			g = &periodAccumulator{period: models.AnalysisPeriod{Period: key}}
			groups[key] = g
		}
		g.add(row)
	}
	out := make([]models.AnalysisPeriod, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.result())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Analyze builds the per-machine daily and monthly rollup from point-metric rows.
func Analyze(rows []models.MachineMetric) []models.MachineAnalysis {
	var order []string
	machines := make(map[string]*models.MachineAnalysis)
	dated := make(map[string][]*models.MachineMetric)
	totals := make(map[string]*periodAccumulator)

	for i := range rows {
		row := &rows[i]
		m, ok := machines[row.MachineID]
		if !ok {
			m = &models.MachineAnalysis{
				MachineID:   row.MachineID,
				MachineName: row.MachineName,
				LineID:      row.LineID,
				Status:      row.MachineStatus,
				Type:        row.MachineType,
			}
			machines[row.MachineID] = m
			totals[row.MachineID] = &periodAccumulator{}
			order = append(order, row.MachineID)
		}
		if row.IsIdle() {
			continue
		}
		dated[row.MachineID] = append(dated[row.MachineID], row)
		totals[row.MachineID].add(row)
	}

	out := make([]models.MachineAnalysis, 0, len(order))
	for _, id := range order {
		m := machines[id]
		t := totals[id].result()
		m.Produced = t.Produced
		m.Rejected = t.Rejected
		m.WorkingTime = t.WorkingTime
		m.Downtime = t.Downtime
		m.AvgOEE = t.AvgOEE
		m.DowntimeRate = t.DowntimeRate
		m.Daily = groupPeriods(dated[id], models.FormatDate)
		m.Monthly = groupPeriods(dated[id], models.FormatMonth)
		out = append(out, *m)
	}
	return out
}

func (s *reportingService) GetComprehensiveAnalysis(ctx context.Context, filters models.ReportFilters) ([]models.MachineAnalysis, error) {
	ctx, span := s.startSpan(ctx, "oee.report.analysis", filters)
	defer span.End()

	rows, err := s.loadMachineRows(ctx, s.withWindow(filters, s.cfg.AnalysisWindowDays))
	if err != nil {
		s.logger.Error("Failed to load comprehensive analysis", zap.Error(err))
		return nil, err
	}
	return Analyze(rows), nil
}

func (s *reportingService) GetAnalysis(ctx context.Context, level models.MetricLevel, referenceID string, filters models.ReportFilters) ([]*models.MetricRecord, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidLevel, level)
	}
	q := models.MetricQuery{
		Level:        level,
		ReferenceIDs: []string{referenceID},
		StartDate:    filters.StartDate,
		EndDate:      filters.EndDate,
	}
	if level == models.LevelJobCard && filters.HasShift() {
		q.Shift = filters.Shift
	}
	records, err := s.metrics.List(ctx, q)
	if err != nil {
		s.logger.Error("Failed to load analysis records",
			zap.String("level", string(level)),
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return nil, err
	}
	if records == nil {
		records = []*models.MetricRecord{}
	}
	return records, nil
}

func (s *reportingService) GetDrillDown(ctx context.Context, level models.MetricLevel, referenceID string, filters models.ReportFilters) (*models.DrillDown, error) {
	ctx, span := s.startSpan(ctx, "oee.report.drilldown", filters)
	defer span.End()

	records, err := s.GetAnalysis(ctx, level, referenceID, filters)
	if err != nil {
		return nil, err
	}

	dd := &models.DrillDown{Level: level, ReferenceID: referenceID, SubEntities: []models.DrillDownEntity{}}
	var acc ratioAccumulator
	for _, r := range records {
		acc.add(r.Availability, r.Performance, r.Quality, r.OEE)
		dd.Metrics.TotalUnits += r.TotalProducedQty
		dd.Losses.Availability += r.AvailabilityLoss
		dd.Losses.Performance += r.PerformanceLoss
		dd.Losses.Quality += r.QualityLossQty
	}
	a, p, q, oee := acc.mean()
	dd.Metrics.Availability = models.RoundRatio(a)
	dd.Metrics.Performance = models.RoundRatio(p)
	dd.Metrics.Quality = models.RoundRatio(q)
	dd.Metrics.OEE = models.RoundRatio(oee)
	dd.Metrics.TotalUnits = models.RoundQty(dd.Metrics.TotalUnits)
	dd.Losses.Availability = models.RoundMinutes(dd.Losses.Availability)
	dd.Losses.Performance = models.RoundMinutes(dd.Losses.Performance)
	dd.Losses.Quality = models.RoundQty(dd.Losses.Quality)

	switch level {
	case models.LevelWorkstation:
		dd.SubEntities, err = s.workOrderEntities(ctx, referenceID, filters)
	case models.LevelWorkOrder:
		dd.SubEntities, err = s.jobCardEntities(ctx, referenceID, filters)
	case models.LevelJobCard:
		dd.SubEntities = shiftEntities(records)
	}
	if err != nil {
		s.logger.Error("Failed to load drill-down children",
			zap.String("level", string(level)),
			zap.String("reference_id", referenceID),
			zap.Error(err))
		return nil, err
	}
	return dd, nil
}

func entityFromRecord(id, name string, r *models.MetricRecord, status string) models.DrillDownEntity {
	return models.DrillDownEntity{
		ID:           id,
		Name:         name,
		Level:        string(r.Level),
		LogDate:      models.FormatDate(r.LogDate),
		Shift:        r.Shift,
		Availability: r.Availability,
		Performance:  r.Performance,
		Quality:      r.Quality,
		OEE:          r.OEE,
		Status:       status,
	}
}

// workOrderEntities lists the work orders run on a workstation. Work orders
// without records in the window are reported as planned.
func (s *reportingService) workOrderEntities(ctx context.Context, workstationID string, filters models.ReportFilters) ([]models.DrillDownEntity, error) {
	cards, err := s.events.ListJobCardsByWorkstations(ctx, []string{workstationID})
	if err != nil {
		return nil, fmt.Errorf("failed to list job cards: %w", err)
	}
	var workOrders []string
	seen := make(map[string]bool)
	for _, c := range cards {
		if c.WorkOrderID != "" && !seen[c.WorkOrderID] {
			seen[c.WorkOrderID] = true
			workOrders = append(workOrders, c.WorkOrderID)
		}
	}
	sort.Strings(workOrders)

	entities := []models.DrillDownEntity{}
	if len(workOrders) == 0 {
		return entities, nil
	}
	records, err := s.metrics.List(ctx, models.MetricQuery{
		Level:        models.LevelWorkOrder,
		ReferenceIDs: workOrders,
		StartDate:    filters.StartDate,
		EndDate:      filters.EndDate,
	})
	if err != nil {
		return nil, err
	}
	byWO := groupByReference(records)
	for _, wo := range workOrders {
		recs := byWO[wo]
		if len(recs) == 0 {
			entities = append(entities, models.DrillDownEntity{ID: wo, Name: wo, Level: string(models.LevelWorkOrder), Status: "Planned"})
			continue
		}
		for _, r := range recs {
			entities = append(entities, entityFromRecord(wo, wo, r, "Active"))
		}
	}
	return entities, nil
}

// jobCardEntities lists the job cards of a work order with their shift records.
func (s *reportingService) jobCardEntities(ctx context.Context, workOrderID string, filters models.ReportFilters) ([]models.DrillDownEntity, error) {
	cards, err := s.events.ListJobCardsByWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job cards: %w", err)
	}
	entities := []models.DrillDownEntity{}
	if len(cards) == 0 {
		return entities, nil
	}
	q := models.MetricQuery{
		Level:        models.LevelJobCard,
		ReferenceIDs: jobCardIDs(cards),
		StartDate:    filters.StartDate,
		EndDate:      filters.EndDate,
	}
	if filters.HasShift() {
		q.Shift = filters.Shift
	}
	records, err := s.metrics.List(ctx, q)
	if err != nil {
		return nil, err
	}
	byCard := groupByReference(records)
	for _, c := range cards {
		name := fmt.Sprintf("%s @ %s", c.Operation, c.WorkstationID)
		recs := byCard[c.ID]
		if len(recs) == 0 {
			entities = append(entities, models.DrillDownEntity{ID: c.ID, Name: name, Level: string(models.LevelJobCard), Status: "Pending"})
			continue
		}
		for _, r := range recs {
			entities = append(entities, entityFromRecord(c.ID, name, r, "Shift "+r.Shift))
		}
	}
	return entities, nil
}

func shiftEntities(records []*models.MetricRecord) []models.DrillDownEntity {
	entities := make([]models.DrillDownEntity, 0, len(records))
	for _, r := range records {
		name := fmt.Sprintf("Shift %s - %s", r.Shift, models.FormatDate(r.LogDate))
		entities = append(entities, entityFromRecord(r.ReferenceID, name, r, "Shift "+r.Shift))
	}
	return entities
}

func groupByReference(records []*models.MetricRecord) map[string][]*models.MetricRecord {
	out := make(map[string][]*models.MetricRecord)
	for _, r := range records {
		out[r.ReferenceID] = append(out[r.ReferenceID], r)
	}
	return out
}

type historyAccumulator struct {
	period      string
	perf, oee   float64
	working, dt float64
	days        int
}

// History builds the daily, ISO-weekly and monthly series of one machine's rows.
func History(machineID string, rows []models.MachineMetric) *models.MachineHistory {
	h := &models.MachineHistory{MachineID: machineID}
	h.Daily = Trend(rows)

	bucket := func(keyOf func(time.Time) string) []models.HistoryPeriod {
		groups := make(map[string]*historyAccumulator)
		for i := range rows {
			row := &rows[i]
			if row.IsIdle() {
				continue
			}
			key := keyOf(*row.EntryDate)
			g, ok := groups[key]
			if !ok {
				g = &historyAccumulator{period: key}
				groups[key] = g
			}
			g.perf += row.Performance
			g.oee += row.OEE
			g.working += row.OperatingTimeMins
			g.dt += row.DowntimeMins
			g.days++
		}
		out := make([]models.HistoryPeriod, 0, len(groups))
		for _, g := range groups {
			out = append(out, models.HistoryPeriod{
				Period:         g.period,
				AvgPerformance: models.RoundRatio(g.perf / float64(g.days)),
				AvgOEE:         models.RoundRatio(g.oee / float64(g.days)),
				WorkingTime:    models.RoundMinutes(g.working),
				Downtime:       models.RoundMinutes(g.dt),
				Days:           g.days,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
		return out
	}

	h.Weekly = bucket(models.FormatISOWeek)
	h.Monthly = bucket(models.FormatMonth)
	return h
}

func (s *reportingService) GetMachineHistory(ctx context.Context, machineID string, filters models.ReportFilters) (*models.MachineHistory, error) {
	filters.MachineID = machineID
	filters.LineID = ""
	ctx, span := s.startSpan(ctx, "oee.report.machine_history", filters)
	defer span.End()

	rows, err := s.loadMachineRows(ctx, s.withWindow(filters, s.cfg.HistoryWindowDays))
	if err != nil {
		s.logger.Error("Failed to load machine history",
			zap.String("machine_id", machineID),
			zap.Error(err))
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: machine %s", apperrors.ErrNotFound, machineID)
	}
	return History(machineID, rows), nil
}

func (s *reportingService) GetRecentJobCards(ctx context.Context, limit int, filters models.ReportFilters) ([]*models.MetricRecord, error) {
	ctx, span := s.startSpan(ctx, "oee.report.recent_job_cards", filters)
	defer span.End()

	if limit <= 0 {
		limit = s.cfg.RecentJobCardsLimit
	}
	q := models.MetricQuery{
		Level:     models.LevelJobCard,
		StartDate: filters.StartDate,
		EndDate:   filters.EndDate,
		Limit:     limit,
	}
	if filters.HasShift() {
		q.Shift = filters.Shift
	}

	if filters.MachineID != "" || filters.LineID != "" {
		stations, err := s.events.ListWorkstations(ctx, models.WorkstationFilter{MachineID: filters.MachineID, LineID: filters.LineID})
		if err != nil {
			return nil, fmt.Errorf("failed to list workstations: %w", err)
		}
		ids := make([]string, len(stations))
		for i, ws := range stations {
			ids[i] = ws.ID
		}
		cards, err := s.events.ListJobCardsByWorkstations(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to list job cards: %w", err)
		}
		if len(cards) == 0 {
			return []*models.MetricRecord{}, nil
		}
		q.ReferenceIDs = jobCardIDs(cards)
	}

	records, err := s.metrics.ListRecent(ctx, q)
	if err != nil {
		s.logger.Error("Failed to load recent job cards", zap.Error(err))
		return nil, err
	}
	if records == nil {
		records = []*models.MetricRecord{}
	}
	return records, nil
}
