package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

type memoryStore struct {
	mu       sync.Mutex
	rows     map[string]domain.LeadStatus
	inserts  int
	failWith error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]domain.LeadStatus{}}
}

func (m *memoryStore) Get(_ context.Context, leadID string) (domain.LeadStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.LeadStatus{}, false, m.failWith
	}
	row, ok := m.rows[leadID]
	return row, ok, nil
}

func (m *memoryStore) GetMany(_ context.Context, leadIDs []string) ([]domain.LeadStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []domain.LeadStatus
	for _, id := range leadIDs {
		if row, ok := m.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryStore) Upsert(_ context.Context, row domain.LeadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.rows[row.LeadID]; !ok {
		m.inserts++
	}
	m.rows[row.LeadID] = row
	return nil
}

func (m *memoryStore) ListUpdatedBetween(_ context.Context, from, to time.Time) ([]domain.LeadStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []domain.LeadStatus
	for _, row := range m.rows {
		if !row.UpdatedAt.Before(from) && row.UpdatedAt.Before(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

func newTestTracker(store Store, now time.Time) *Tracker {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	tr := NewTracker(store, loc, logger.Nop())
	current := now
	tr.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return tr
}

func TestGetStatusDefaultsToNovo(t *testing.T) {
	tr := newTestTracker(newMemoryStore(), time.Now())
	if got := tr.GetStatus(context.Background(), "unknown"); got != domain.StatusNovo {
		t.Fatalf("GetStatus = %q, want novo", got)
	}
}

func TestSetStatusUpsertsSingleRow(t *testing.T) {
	store := newMemoryStore()
	tr := newTestTracker(store, time.Now())
	ctx := context.Background()

	if !tr.SetStatus(ctx, "L1", "contatado", "ana") {
		t.Fatal("first SetStatus failed")
	}
	if !tr.SetStatus(ctx, "L1", "convertido", "ana") {
		t.Fatal("second SetStatus failed")
	}

	if got := tr.GetStatus(ctx, "L1"); got != domain.StatusConvertido {
		t.Fatalf("GetStatus = %q, want convertido", got)
	}
	if len(store.rows) != 1 || store.inserts != 1 {
		t.Fatalf("rows=%d inserts=%d, want exactly one row", len(store.rows), store.inserts)
	}
}

func TestSetStatusSameValueAdvancesTimestamp(t *testing.T) {
	store := newMemoryStore()
	tr := newTestTracker(store, time.Now())
	ctx := context.Background()

	tr.SetStatus(ctx, "L2", "proposta", "")
	first := store.rows["L2"].UpdatedAt
	tr.SetStatus(ctx, "L2", "proposta", "")
	second := store.rows["L2"]

	if len(store.rows) != 1 || second.Status != domain.StatusProposta {
		t.Fatalf("rows = %v", store.rows)
	}
	if !second.UpdatedAt.After(first) {
		t.Fatalf("updatedAt not advanced: %v -> %v", first, second.UpdatedAt)
	}
}

func TestSetStatusCanonicalizesSynonyms(t *testing.T) {
	store := newMemoryStore()
	tr := newTestTracker(store, time.Now())

	if !tr.SetStatus(context.Background(), "L3", "Descartado", "") {
		t.Fatal("SetStatus failed")
	}
	if store.rows["L3"].Status != domain.StatusPerdido {
		t.Fatalf("stored %q, want perdido", store.rows["L3"].Status)
	}
}

func TestSetStatusRejectsUnknownLabel(t *testing.T) {
	store := newMemoryStore()
	tr := newTestTracker(store, time.Now())

	if tr.SetStatus(context.Background(), "L4", "arquivado", "") {
		t.Fatal("expected false for unknown status")
	}
	if len(store.rows) != 0 {
		t.Fatal("nothing must be stored for an unknown status")
	}
}

func TestSetStatusReturnsFalseOnStorageFailure(t *testing.T) {
	store := newMemoryStore()
	store.failWith = errors.New("connection refused")
	tr := newTestTracker(store, time.Now())

	if tr.SetStatus(context.Background(), "L5", "novo", "") {
		t.Fatal("expected false on storage failure")
	}
	if got := tr.GetStatus(context.Background(), "L5"); got != domain.StatusNovo {
		t.Fatalf("GetStatus on read failure = %q, want novo", got)
	}
}

func TestGetStatusCanonicalizesLegacyRows(t *testing.T) {
	store := newMemoryStore()
	store.rows["L6"] = domain.LeadStatus{LeadID: "L6", Status: "contato"}
	tr := newTestTracker(store, time.Now())

	if got := tr.GetStatus(context.Background(), "L6"); got != domain.StatusContatado {
		t.Fatalf("GetStatus = %q, want contatado", got)
	}
}

func TestStatusesFillsDefaults(t *testing.T) {
	store := newMemoryStore()
	store.rows["a"] = domain.LeadStatus{LeadID: "a", Status: "ganho"}
	tr := newTestTracker(store, time.Now())

	got := tr.Statuses(context.Background(), []string{"a", "b"})
	if got["a"] != domain.StatusConvertido || got["b"] != domain.StatusNovo {
		t.Fatalf("Statuses = %v", got)
	}
}

func TestReportBucketsByWindow(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	// Wednesday 2024-05-15 10:00 in São Paulo.
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, loc)

	store := newMemoryStore()
	store.rows["today"] = domain.LeadStatus{LeadID: "today", Status: "contatado", UpdatedAt: time.Date(2024, 5, 15, 1, 0, 0, 0, loc).UTC()}
	store.rows["monday"] = domain.LeadStatus{LeadID: "monday", Status: "em contato", UpdatedAt: time.Date(2024, 5, 13, 9, 0, 0, 0, loc).UTC()}
	store.rows["early-may"] = domain.LeadStatus{LeadID: "early-may", Status: "perda", UpdatedAt: time.Date(2024, 5, 2, 9, 0, 0, 0, loc).UTC()}
	store.rows["april"] = domain.LeadStatus{LeadID: "april", Status: "ganho", UpdatedAt: time.Date(2024, 4, 30, 23, 0, 0, 0, loc).UTC()}

	tr := NewTracker(store, loc, logger.Nop())
	tr.now = func() time.Time { return now }
	ctx := context.Background()

	cases := []struct {
		window Window
		total  int
		check  map[domain.Status]int
	}{
		{Window{Kind: WindowToday}, 1, map[domain.Status]int{domain.StatusContatado: 1}},
		{Window{Kind: WindowWeek}, 2, map[domain.Status]int{domain.StatusContatado: 2}},
		{Window{Kind: WindowMonth}, 3, map[domain.Status]int{domain.StatusContatado: 2, domain.StatusPerdido: 1}},
		{Window{Kind: WindowCustom, From: "2024-04-30", To: "2024-04-30"}, 1, map[domain.Status]int{domain.StatusConvertido: 1}},
	}
	for _, tc := range cases {
		report, err := tr.Report(ctx, tc.window)
		if err != nil {
			t.Fatalf("%s: %v", tc.window.Kind, err)
		}
		if report.Total != tc.total {
			t.Errorf("%s: total = %d, want %d", tc.window.Kind, report.Total, tc.total)
		}
		for status, want := range tc.check {
			if report.Counts[status] != want {
				t.Errorf("%s: %s = %d, want %d", tc.window.Kind, status, report.Counts[status], want)
			}
		}
		if len(report.Counts) != len(domain.AllStatuses) {
			t.Errorf("%s: every canonical status must be present in counts", tc.window.Kind)
		}
	}
}

func TestReportRejectsInvalidWindow(t *testing.T) {
	tr := newTestTracker(newMemoryStore(), time.Now())
	ctx := context.Background()

	bad := []Window{
		{Kind: "year"},
		{Kind: WindowCustom, From: "15/05/2024", To: "2024-05-20"},
		{Kind: WindowCustom, From: "2024-05-20", To: "2024-05-01"},
	}
	for _, w := range bad {
		if _, err := tr.Report(ctx, w); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%+v: err = %v, want validation error", w, err)
		}
	}
}
