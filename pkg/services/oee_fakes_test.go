package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codigix/nobal-casting-sub004/pkg/adapters/eventsource"
	"github.com/codigix/nobal-casting-sub004/pkg/models"
	"github.com/codigix/nobal-casting-sub004/pkg/repositories"
)

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func floatPtr(v float64) *float64 { return &v }

// inDateRange mirrors the inclusive date window of the metric store queries.
func inDateRange(d time.Time, start, end *time.Time) bool {
	d = models.TruncateDate(d)
	if start != nil && d.Before(models.TruncateDate(*start)) {
		return false
	}
	if end != nil && d.After(models.TruncateDate(*end)) {
		return false
	}
	return true
}

type shiftKey struct {
	jobCard string
	date    string
	shift   string
}

// fakeEventSource is an in-memory ERP.
type fakeEventSource struct {
	mu           sync.Mutex
	jobCards     map[string]*models.JobCard
	workstations []*models.Workstation
	runs         map[shiftKey][]models.RunEvent
	downtime     map[shiftKey][]models.DowntimeEvent
	inspections  map[string][]models.InspectionEvent
	reasons      []models.DowntimeReason

	err        error
	reasonsErr error
}

var _ eventsource.EventSource = (*fakeEventSource)(nil)

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{
		jobCards:    make(map[string]*models.JobCard),
		runs:        make(map[shiftKey][]models.RunEvent),
		downtime:    make(map[shiftKey][]models.DowntimeEvent),
		inspections: make(map[string][]models.InspectionEvent),
	}
}

func (f *fakeEventSource) addJobCard(id, workOrderID, workstationID string, operationTime float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobCards[id] = &models.JobCard{
		ID:            id,
		WorkOrderID:   workOrderID,
		WorkstationID: workstationID,
		Operation:     "Casting",
		OperationTime: floatPtr(operationTime),
	}
}

func (f *fakeEventSource) removeJobCard(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobCards, id)
}

func (f *fakeEventSource) addWorkstation(id, name, line, status string) {
	f.workstations = append(f.workstations, &models.Workstation{ID: id, Name: name, Location: line, Status: status, Type: "Casting"})
}

func (f *fakeEventSource) addRun(jobCardID, date, shift string, completed, accepted float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := shiftKey{jobCardID, date, shift}
	f.runs[k] = append(f.runs[k], models.RunEvent{JobCardID: jobCardID, LogDate: day(date), Shift: shift, CompletedQty: completed, AcceptedQty: accepted})
}

func (f *fakeEventSource) addDowntime(jobCardID, date, shift, category, reason string, minutes float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := shiftKey{jobCardID, date, shift}
	f.downtime[k] = append(f.downtime[k], eventsource.NewDowntimeEvent(jobCardID, day(date), shift, category, reason, minutes))
}

func (f *fakeEventSource) addInspection(jobCardID, date string, inspected, passed float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := jobCardID + "|" + date
	f.inspections[k] = append(f.inspections[k], models.InspectionEvent{
		ReferenceType:     models.InspectionReferenceJobCard,
		ReferenceID:       jobCardID,
		InspectionDate:    day(date),
		QuantityInspected: inspected,
		QuantityPassed:    passed,
	})
}

func (f *fakeEventSource) clearEvents(jobCardID, date, shift string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := shiftKey{jobCardID, date, shift}
	delete(f.runs, k)
	delete(f.downtime, k)
	delete(f.inspections, jobCardID+"|"+date)
}

func (f *fakeEventSource) GetJobCard(_ context.Context, jobCardID string) (*models.JobCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.jobCards[jobCardID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeEventSource) sortedCards(match func(*models.JobCard) bool) []*models.JobCard {
	var out []*models.JobCard
	for _, c := range f.jobCards {
		if match(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeEventSource) ListJobCardsByWorkOrder(_ context.Context, workOrderID string) ([]*models.JobCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.sortedCards(func(c *models.JobCard) bool { return c.WorkOrderID == workOrderID }), nil
}

func (f *fakeEventSource) ListJobCardsByWorkstations(_ context.Context, workstationIDs []string) ([]*models.JobCard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(workstationIDs))
	for _, id := range workstationIDs {
		want[id] = true
	}
	return f.sortedCards(func(c *models.JobCard) bool { return want[c.WorkstationID] }), nil
}

func (f *fakeEventSource) ListWorkstations(_ context.Context, filter models.WorkstationFilter) ([]*models.Workstation, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Workstation
	for _, ws := range f.workstations {
		if filter.MachineID != "" && ws.ID != filter.MachineID {
			continue
		}
		if filter.LineID != "" && ws.Location != filter.LineID {
			continue
		}
		out = append(out, ws)
	}
	return out, nil
}

func (f *fakeEventSource) ListRunEvents(_ context.Context, jobCardID string, logDate time.Time, shift string) ([]models.RunEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[shiftKey{jobCardID, models.FormatDate(logDate), shift}], nil
}

func (f *fakeEventSource) ListDowntimeEvents(_ context.Context, jobCardID string, logDate time.Time, shift string) ([]models.DowntimeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downtime[shiftKey{jobCardID, models.FormatDate(logDate), shift}], nil
}

func (f *fakeEventSource) ListInspections(_ context.Context, _ string, referenceID string, inspectionDate time.Time) ([]models.InspectionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inspections[referenceID+"|"+models.FormatDate(inspectionDate)], nil
}

func (f *fakeEventSource) SummarizeDowntimeReasons(_ context.Context, _ models.ReportFilters) ([]models.DowntimeReason, error) {
	if f.reasonsErr != nil {
		return nil, f.reasonsErr
	}
	out := make([]models.DowntimeReason, len(f.reasons))
	copy(out, f.reasons)
	return out, nil
}

func (f *fakeEventSource) Ping(context.Context) error { return nil }
func (f *fakeEventSource) Close() error               { return nil }

// fakeMetricStore is an in-memory metric store keyed like the real table.
type fakeMetricStore struct {
	mu      sync.Mutex
	records map[string]*models.MetricRecord
	clock   time.Time
	upserts int
	listErr error
}

var _ repositories.MetricRepository = (*fakeMetricStore)(nil)

func newFakeMetricStore() *fakeMetricStore {
	return &fakeMetricStore{
		records: make(map[string]*models.MetricRecord),
		clock:   time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func (s *fakeMetricStore) Upsert(_ context.Context, rec *models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Finalize()
	s.upserts++
	s.clock = s.clock.Add(time.Second)

	k := rec.Key().String()
	if existing, ok := s.records[k]; ok {
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.ID = uuid.New()
		rec.CreatedAt = s.clock
	}
	rec.UpdatedAt = s.clock
	cp := *rec
	s.records[k] = &cp
	return nil
}

func (s *fakeMetricStore) Delete(_ context.Context, key models.MetricKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key.LogDate = models.TruncateDate(key.LogDate)
	k := key.String()
	_, ok := s.records[k]
	delete(s.records, k)
	return ok, nil
}

func (s *fakeMetricStore) Get(_ context.Context, key models.MetricKey) (*models.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key.LogDate = models.TruncateDate(key.LogDate)
	rec, ok := s.records[key.String()]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeMetricStore) ListByReferences(ctx context.Context, level models.MetricLevel, referenceIDs []string, logDate time.Time) ([]*models.MetricRecord, error) {
	if len(referenceIDs) == 0 {
		return nil, nil
	}
	d := models.TruncateDate(logDate)
	return s.List(ctx, models.MetricQuery{Level: level, ReferenceIDs: referenceIDs, StartDate: &d, EndDate: &d})
}

func (s *fakeMetricStore) match(q models.MetricQuery) []*models.MetricRecord {
	refs := make(map[string]bool, len(q.ReferenceIDs))
	for _, id := range q.ReferenceIDs {
		refs[id] = true
	}
	var out []*models.MetricRecord
	for _, r := range s.records {
		if q.Level != "" && r.Level != q.Level {
			continue
		}
		if len(refs) > 0 && !refs[r.ReferenceID] {
			continue
		}
		if !inDateRange(r.LogDate, q.StartDate, q.EndDate) {
			continue
		}
		if q.Shift != "" && r.Shift != q.Shift {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (s *fakeMetricStore) List(_ context.Context, q models.MetricQuery) ([]*models.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := s.match(q)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LogDate.Equal(out[j].LogDate) {
			return out[i].LogDate.Before(out[j].LogDate)
		}
		if out[i].ReferenceID != out[j].ReferenceID {
			return out[i].ReferenceID < out[j].ReferenceID
		}
		return out[i].Shift < out[j].Shift
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeMetricStore) ListRecent(_ context.Context, q models.MetricQuery) ([]*models.MetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := s.match(q)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LogDate.Equal(out[j].LogDate) {
			return out[i].LogDate.After(out[j].LogDate)
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ReferenceID < out[j].ReferenceID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeMetricStore) get(level models.MetricLevel, referenceID, date, shift string) *models.MetricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.MetricKey{Level: level, ReferenceID: referenceID, LogDate: day(date), Shift: shift}
	return s.records[key.String()]
}

func (s *fakeMetricStore) put(rec *models.MetricRecord) {
	_ = s.Upsert(context.Background(), rec)
}

func (s *fakeMetricStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
