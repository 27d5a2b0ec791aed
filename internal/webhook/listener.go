package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// ErrListenerRunning is returned when Start is called twice on one listener.
var ErrListenerRunning = errors.New("webhook listener already started")

// SampleReader finds the newest sample of a source after the guard timestamp.
type SampleReader interface {
	LatestByTypeSince(ctx context.Context, eventType, action string, since *time.Time) (repository.Event, error)
}

// MappingWriter persists listener progress on the source row.
type MappingWriter interface {
	SetPendingMapping(ctx context.Context, id uuid.UUID, m Mapping, sampleAt time.Time) error
	SetLastAppliedAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Outcome reports why a listener stopped.
type Outcome string

const (
	OutcomeRunning Outcome = "running"
	OutcomeFound   Outcome = "found"
	OutcomeTimeout Outcome = "timeout"
	OutcomeStopped Outcome = "stopped"
	OutcomeIdle    Outcome = "idle"
)

// ListenerConfig holds the polling cadence.
type ListenerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Listener polls for one new sample of a source and stores the mapping
// inferred from it as pending. It owns one ticker and one timeout timer,
// both released when the loop exits.
type Listener struct {
	sourceID  uuid.UUID
	sourceKey string
	samples   SampleReader
	writer    MappingWriter
	bus       events.Bus
	cfg       ListenerConfig
	log       *logger.Logger

	mu        sync.Mutex
	since     *time.Time
	started   bool
	startedAt time.Time
	outcome   Outcome
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewListener creates a listener for src. Samples at or before
// src.LastAppliedAt are never processed.
func NewListener(src Source, samples SampleReader, writer MappingWriter, bus events.Bus, cfg ListenerConfig, log *logger.Logger) *Listener {
	var since *time.Time
	if src.LastAppliedAt != nil {
		t := *src.LastAppliedAt
		since = &t
	}
	return &Listener{
		sourceID:  src.ID,
		sourceKey: src.SourceKey,
		samples:   samples,
		writer:    writer,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		since:     since,
		outcome:   OutcomeIdle,
		done:      make(chan struct{}),
	}
}

// Start launches the polling loop. The loop ends when a sample is found,
// the timeout elapses, Stop is called or ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return ErrListenerRunning
	}
	l.started = true
	l.startedAt = time.Now()
	l.outcome = OutcomeRunning

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.run(runCtx)
	return nil
}

// Stop cancels the loop and waits for it to exit. Safe to call more than
// once and before Start.
func (l *Listener) Stop() {
	l.mu.Lock()
	started, cancel := l.started, l.cancel
	l.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-l.done
}

// Done is closed once the loop has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Outcome returns the current state of the listener.
func (l *Listener) Outcome() Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outcome
}

// StartedAt returns when Start was called.
func (l *Listener) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

func (l *Listener) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Interval)
	timeout := time.NewTimer(l.cfg.Timeout)
	outcome := OutcomeStopped
	defer func() {
		ticker.Stop()
		timeout.Stop()
		l.cancel()
		l.mu.Lock()
		l.outcome = outcome
		l.mu.Unlock()
		close(l.done)
		l.log.Info("webhook: listener finished", "source", l.sourceKey, "outcome", outcome)
	}()

	for {
		if l.poll(ctx) {
			outcome = OutcomeFound
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timeout.C:
			outcome = OutcomeTimeout
			return
		case <-ticker.C:
		}
	}
}

// poll reports whether a mapping was proposed.
func (l *Listener) poll(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	ev, err := l.samples.LatestByTypeSince(ctx, domain.EventTypeWebhookLead, l.sourceKey, l.since)
	if errors.Is(err, repository.ErrEventNotFound) {
		return false
	}
	if err != nil {
		if ctx.Err() == nil {
			l.log.Warn("webhook: sample lookup failed", "source", l.sourceKey, "error", err)
		}
		return false
	}

	sampleAt := ev.CreatedAt
	mapping, err := InferMapping(ev.LeadData)
	if err != nil {
		l.log.Warn("webhook: sample is not a JSON object", "source", l.sourceKey, "eventId", ev.ID, "error", err)
		if err := l.writer.SetLastAppliedAt(ctx, l.sourceID, sampleAt); err != nil {
			l.log.Error("webhook: failed to persist sample guard", "source", l.sourceKey, "error", err)
		}
		l.since = &sampleAt
		return false
	}

	mapping.SampleID = ev.ID.String()
	mapping.SampleAt = &sampleAt
	if err := l.writer.SetPendingMapping(ctx, l.sourceID, mapping, sampleAt); err != nil {
		l.log.Error("webhook: failed to store pending mapping", "source", l.sourceKey, "error", err)
		return false
	}
	l.since = &sampleAt

	l.bus.Publish(ctx, events.WebhookMappingProposed{
		BaseEvent: events.NewBaseEvent(),
		SourceID:  l.sourceID.String(),
		SourceKey: l.sourceKey,
		SampleID:  ev.ID.String(),
		SampleAt:  sampleAt,
		Fields:    len(mapping.Entries),
	})
	return true
}

// ListenerRegistry keeps at most one listener per source.
type ListenerRegistry struct {
	mu        sync.Mutex
	listeners map[uuid.UUID]*Listener
}

func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{listeners: make(map[uuid.UUID]*Listener)}
}

// Start stops any listener already registered for the source, then starts l.
func (r *ListenerRegistry) Start(ctx context.Context, l *Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.listeners[l.sourceID]; ok {
		old.Stop()
		delete(r.listeners, l.sourceID)
	}
	if err := l.Start(ctx); err != nil {
		return err
	}
	r.listeners[l.sourceID] = l

	go func() {
		<-l.Done()
		r.mu.Lock()
		if r.listeners[l.sourceID] == l {
			delete(r.listeners, l.sourceID)
		}
		r.mu.Unlock()
	}()
	return nil
}

// Stop cancels the listener of a source. It reports whether one was running.
func (r *ListenerRegistry) Stop(sourceID uuid.UUID) bool {
	r.mu.Lock()
	l, ok := r.listeners[sourceID]
	delete(r.listeners, sourceID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	l.Stop()
	return true
}

// Running reports whether a listener is active for the source.
func (r *ListenerRegistry) Running(sourceID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.listeners[sourceID]
	return ok
}

// StopAll cancels every listener and waits for them to exit.
func (r *ListenerRegistry) StopAll() {
	r.mu.Lock()
	all := make([]*Listener, 0, len(r.listeners))
	for id, l := range r.listeners {
		all = append(all, l)
		delete(r.listeners, id)
	}
	r.mu.Unlock()
	for _, l := range all {
		l.Stop()
	}
}
