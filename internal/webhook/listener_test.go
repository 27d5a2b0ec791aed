package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

var sampleT0 = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func fastConfig() ListenerConfig {
	return ListenerConfig{Interval: 2 * time.Millisecond, Timeout: time.Second}
}

func newSource(last *time.Time) Source {
	return Source{ID: uuid.New(), SourceKey: "rd-station", IsActive: true, LastAppliedAt: last}
}

func sampleEvent(at time.Time, body string) repository.Event {
	return repository.Event{ID: uuid.New(), EventType: "webhook_lead", EventAction: "rd-station", LeadData: json.RawMessage(body), CreatedAt: at}
}

func waitDone(t *testing.T, l *Listener) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not finish")
	}
}

func TestListenerStoresPendingMappingForNewSample(t *testing.T) {
	src := newSource(nil)
	store := newFakeSources(src)
	samples := &fakeSamples{}
	bus := &recordingBus{}
	l := NewListener(src, samples, store, bus, fastConfig(), logger.Nop())

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for samples.callCount() < 2 {
		time.Sleep(time.Millisecond)
	}
	ev := sampleEvent(sampleT0, `{"nome":"Ana","telefone":"62999991234"}`)
	samples.add(ev)
	waitDone(t, l)

	if l.Outcome() != OutcomeFound {
		t.Fatalf("outcome = %s, want found", l.Outcome())
	}
	got := store.get(src.ID)
	if got.PendingMapping == nil || len(got.PendingMapping.Entries) != 2 {
		t.Fatalf("pending mapping = %+v", got.PendingMapping)
	}
	if got.PendingMapping.SampleID != ev.ID.String() {
		t.Errorf("sample id = %q", got.PendingMapping.SampleID)
	}
	if got.LastAppliedAt == nil || !got.LastAppliedAt.Equal(sampleT0) {
		t.Errorf("last applied = %v, want %v", got.LastAppliedAt, sampleT0)
	}
	if got.ActiveMapping != nil {
		t.Error("a proposed mapping must never be activated")
	}

	published := bus.snapshot()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	proposed, ok := published[0].(events.WebhookMappingProposed)
	if !ok || proposed.SourceKey != "rd-station" || proposed.Fields != 2 {
		t.Fatalf("event = %+v", published[0])
	}
}

func TestListenerIgnoresSamplesAtOrBeforeLastApplied(t *testing.T) {
	last := sampleT0
	src := newSource(&last)
	samples := &fakeSamples{}
	samples.add(sampleEvent(sampleT0, `{"nome":"old"}`))
	samples.add(sampleEvent(sampleT0.Add(-time.Minute), `{"nome":"older"}`))
	l := NewListener(src, samples, newFakeSources(src), &recordingBus{}, ListenerConfig{Interval: 2 * time.Millisecond, Timeout: 30 * time.Millisecond}, logger.Nop())

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, l)

	if l.Outcome() != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", l.Outcome())
	}
	for _, since := range samples.sinces {
		if since == nil || !since.Equal(sampleT0) {
			t.Fatalf("poll used since = %v, want %v", since, sampleT0)
		}
	}
}

func TestListenerTimesOut(t *testing.T) {
	src := newSource(nil)
	samples := &fakeSamples{}
	l := NewListener(src, samples, newFakeSources(src), &recordingBus{}, ListenerConfig{Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}, logger.Nop())

	start := time.Now()
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, l)

	if l.Outcome() != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", l.Outcome())
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("listener finished before the timeout")
	}
	calls := samples.callCount()
	time.Sleep(20 * time.Millisecond)
	if samples.callCount() != calls {
		t.Fatal("listener kept polling after timing out")
	}
}

func TestListenerStop(t *testing.T) {
	src := newSource(nil)
	samples := &fakeSamples{}
	l := NewListener(src, samples, newFakeSources(src), &recordingBus{}, ListenerConfig{Interval: time.Hour, Timeout: time.Hour}, logger.Nop())

	l.Stop() // before Start is a no-op
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	l.Stop()
	l.Stop()

	select {
	case <-l.Done():
	default:
		t.Fatal("Stop returned before the loop exited")
	}
	if l.Outcome() != OutcomeStopped {
		t.Fatalf("outcome = %s, want stopped", l.Outcome())
	}
}

func TestListenerStopsWithParentContext(t *testing.T) {
	src := newSource(nil)
	l := NewListener(src, &fakeSamples{}, newFakeSources(src), &recordingBus{}, ListenerConfig{Interval: time.Hour, Timeout: time.Hour}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitDone(t, l)

	if l.Outcome() != OutcomeStopped {
		t.Fatalf("outcome = %s, want stopped", l.Outcome())
	}
}

func TestListenerStartTwice(t *testing.T) {
	src := newSource(nil)
	l := NewListener(src, &fakeSamples{}, newFakeSources(src), &recordingBus{}, ListenerConfig{Interval: time.Hour, Timeout: time.Hour}, logger.Nop())
	defer l.Stop()

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(context.Background()); !errors.Is(err, ErrListenerRunning) {
		t.Fatalf("second Start error = %v, want ErrListenerRunning", err)
	}
}

func TestListenerSkipsMalformedSampleOnce(t *testing.T) {
	src := newSource(nil)
	store := newFakeSources(src)
	samples := &fakeSamples{}
	samples.add(sampleEvent(sampleT0, `not json`))
	l := NewListener(src, samples, store, &recordingBus{}, fastConfig(), logger.Nop())

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for samples.callCount() < 3 {
		time.Sleep(time.Millisecond)
	}
	samples.add(sampleEvent(sampleT0.Add(time.Second), `{"email":"a@b.com"}`))
	waitDone(t, l)

	if l.Outcome() != OutcomeFound {
		t.Fatalf("outcome = %s, want found", l.Outcome())
	}
	if len(store.guards) != 1 || !store.guards[0].Equal(sampleT0) {
		t.Fatalf("guards = %v, want exactly one at %v", store.guards, sampleT0)
	}
	got := store.get(src.ID)
	if got.PendingMapping == nil || got.PendingMapping.Entries[0].Key != "email" {
		t.Fatalf("pending = %+v", got.PendingMapping)
	}
}

func TestListenerRetriesWhenPendingWriteFails(t *testing.T) {
	src := newSource(nil)
	store := newFakeSources(src)
	store.failSet = errors.New("db down")
	samples := &fakeSamples{}
	samples.add(sampleEvent(sampleT0, `{"nome":"Ana"}`))
	l := NewListener(src, samples, store, &recordingBus{}, ListenerConfig{Interval: 2 * time.Millisecond, Timeout: 30 * time.Millisecond}, logger.Nop())

	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, l)

	if l.Outcome() != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", l.Outcome())
	}
	for _, since := range samples.sinces {
		if since != nil {
			t.Fatal("guard must not advance when the mapping was not stored")
		}
	}
}

func TestRegistryReplacesListenerOfSameSource(t *testing.T) {
	src := newSource(nil)
	store := newFakeSources(src)
	reg := NewListenerRegistry()
	slow := ListenerConfig{Interval: time.Hour, Timeout: time.Hour}

	first := NewListener(src, &fakeSamples{}, store, &recordingBus{}, slow, logger.Nop())
	second := NewListener(src, &fakeSamples{}, store, &recordingBus{}, slow, logger.Nop())

	if err := reg.Start(context.Background(), first); err != nil {
		t.Fatalf("Start first: %v", err)
	}
	if err := reg.Start(context.Background(), second); err != nil {
		t.Fatalf("Start second: %v", err)
	}

	select {
	case <-first.Done():
	default:
		t.Fatal("first listener still running after replacement")
	}
	if first.Outcome() != OutcomeStopped || second.Outcome() != OutcomeRunning {
		t.Fatalf("outcomes = %s / %s", first.Outcome(), second.Outcome())
	}
	if !reg.Running(src.ID) {
		t.Fatal("registry lost the replacement listener")
	}

	if !reg.Stop(src.ID) {
		t.Fatal("Stop reported no listener")
	}
	if reg.Running(src.ID) || reg.Stop(src.ID) {
		t.Fatal("listener still registered after Stop")
	}
}

func TestRegistryForgetsFinishedListeners(t *testing.T) {
	src := newSource(nil)
	reg := NewListenerRegistry()
	l := NewListener(src, &fakeSamples{}, newFakeSources(src), &recordingBus{}, ListenerConfig{Interval: time.Millisecond, Timeout: 5 * time.Millisecond}, logger.Nop())

	if err := reg.Start(context.Background(), l); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitDone(t, l)

	deadline := time.Now().Add(time.Second)
	for reg.Running(src.ID) {
		if time.Now().After(deadline) {
			t.Fatal("finished listener still registered")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRegistryStopAll(t *testing.T) {
	reg := NewListenerRegistry()
	slow := ListenerConfig{Interval: time.Hour, Timeout: time.Hour}
	var all []*Listener
	for i := 0; i < 3; i++ {
		src := newSource(nil)
		l := NewListener(src, &fakeSamples{}, newFakeSources(src), &recordingBus{}, slow, logger.Nop())
		if err := reg.Start(context.Background(), l); err != nil {
			t.Fatalf("Start: %v", err)
		}
		all = append(all, l)
	}

	reg.StopAll()
	for _, l := range all {
		if l.Outcome() != OutcomeStopped {
			t.Fatalf("outcome = %s, want stopped", l.Outcome())
		}
	}
}
