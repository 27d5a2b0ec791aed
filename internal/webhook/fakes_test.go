package webhook

import (
	"context"
	"sync"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/repository"
	leadsvc "leadflow_backend/internal/leads/service"

	"github.com/google/uuid"
)

// fakeSamples serves events newer than since, oldest first.
type fakeSamples struct {
	mu     sync.Mutex
	events []repository.Event
	calls  int
	sinces []*time.Time
	err    error
}

func (f *fakeSamples) add(ev repository.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSamples) LatestByTypeSince(_ context.Context, _, _ string, since *time.Time) (repository.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if since != nil {
		t := *since
		f.sinces = append(f.sinces, &t)
	} else {
		f.sinces = append(f.sinces, nil)
	}
	if f.err != nil {
		return repository.Event{}, f.err
	}
	var latest *repository.Event
	for i := range f.events {
		ev := f.events[i]
		if since != nil && !ev.CreatedAt.After(*since) {
			continue
		}
		if latest == nil || ev.CreatedAt.After(latest.CreatedAt) {
			latest = &ev
		}
	}
	if latest == nil {
		return repository.Event{}, repository.ErrEventNotFound
	}
	return *latest, nil
}

func (f *fakeSamples) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSources is an in-memory SourceStore and SourceAuthenticator.
type fakeSources struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]Source
	guards  []time.Time
	failSet error
}

func newFakeSources(srcs ...Source) *fakeSources {
	f := &fakeSources{byID: make(map[uuid.UUID]Source)}
	for _, s := range srcs {
		f.byID[s.ID] = s
	}
	return f
}

func (f *fakeSources) get(id uuid.UUID) Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeSources) Create(_ context.Context, p CreateSourceParams) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.SourceKey == p.SourceKey {
			return Source{}, ErrSourceKeyTaken
		}
	}
	src := Source{
		ID: uuid.New(), SourceKey: p.SourceKey, Name: p.Name, KeyHash: p.KeyHash, KeyPrefix: p.KeyPrefix,
		AllowedDomains: p.AllowedDomains, IsActive: true, CreatedAt: time.Now(),
	}
	f.byID[src.ID] = src
	return src, nil
}

func (f *fakeSources) GetByID(_ context.Context, id uuid.UUID) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.byID[id]
	if !ok {
		return Source{}, ErrSourceNotFound
	}
	return src, nil
}

func (f *fakeSources) GetByHash(_ context.Context, hash string) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.KeyHash == hash && s.IsActive {
			return s, nil
		}
	}
	return Source{}, ErrSourceNotFound
}

func (f *fakeSources) List(context.Context) ([]Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Source, 0, len(f.byID))
	for _, s := range f.byID {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSources) Revoke(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(s *Source) { s.IsActive = false })
}

func (f *fakeSources) SetPendingMapping(_ context.Context, id uuid.UUID, m Mapping, sampleAt time.Time) error {
	if f.failSet != nil {
		return f.failSet
	}
	return f.update(id, func(s *Source) {
		s.PendingMapping = &m
		s.LastAppliedAt = &sampleAt
	})
}

func (f *fakeSources) SetLastAppliedAt(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	f.guards = append(f.guards, at)
	f.mu.Unlock()
	return f.update(id, func(s *Source) { s.LastAppliedAt = &at })
}

func (f *fakeSources) ConfirmMapping(_ context.Context, id uuid.UUID, m Mapping) error {
	return f.update(id, func(s *Source) {
		s.ActiveMapping = &m
		s.PendingMapping = nil
	})
}

func (f *fakeSources) update(id uuid.UUID, fn func(*Source)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.byID[id]
	if !ok {
		return ErrSourceNotFound
	}
	fn(&src)
	f.byID[id] = src
	return nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) snapshot() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.published...)
}

type fakeIngester struct {
	last leadsvc.IngestParams
	err  error
}

func (f *fakeIngester) Ingest(_ context.Context, p leadsvc.IngestParams) (repository.Event, error) {
	f.last = p
	if f.err != nil {
		return repository.Event{}, f.err
	}
	return repository.Event{
		ID:          uuid.New(),
		EventType:   p.EventType,
		EventAction: p.Source,
		LeadData:    p.Body,
		CreatedAt:   time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}, nil
}

func uuidFor(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}
