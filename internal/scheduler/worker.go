package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	leadsvc "leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// EventLoader reads stored lead events.
type EventLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Event, error)
	ListByTypeAndRange(ctx context.Context, params repository.ListParams) ([]repository.Event, error)
}

// LeadPipeline normalizes and deduplicates events.
type LeadPipeline interface {
	Batch(ctx context.Context, events []repository.Event) leadsvc.BatchResult
	Window() time.Duration
}

// LeadNotifier sends the new-lead email for one stored event, unless the
// event is malformed or a duplicate of an earlier submission.
type LeadNotifier struct {
	events   EventLoader
	pipeline LeadPipeline
	sender   email.Sender
	notifyTo string
	log      *logger.Logger
}

func NewLeadNotifier(events EventLoader, pipeline LeadPipeline, sender email.Sender, notifyTo string, log *logger.Logger) *LeadNotifier {
	return &LeadNotifier{events: events, pipeline: pipeline, sender: sender, notifyTo: notifyTo, log: log}
}

// Notify returns nil for events that should never be retried.
func (n *LeadNotifier) Notify(ctx context.Context, eventID uuid.UUID) error {
	if n.notifyTo == "" {
		n.log.Debug("lead notify: no recipient configured", "eventId", eventID)
		return nil
	}

	ev, err := n.events.GetByID(ctx, eventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		n.log.Info("lead notify: event deleted before delivery", "eventId", eventID)
		return nil
	}
	if err != nil {
		return err
	}

	lead, ok := n.keptLead(ctx, ev)
	if !ok {
		n.log.Info("lead notify: duplicate submission, skipping", "eventId", eventID)
		return nil
	}
	if lead.Degraded {
		n.log.Info("lead notify: malformed payload, skipping", "eventId", eventID)
		return nil
	}

	if err := n.sender.SendNewLeadEmail(ctx, n.notifyTo, lead); err != nil {
		return fmt.Errorf("send new lead email: %w", err)
	}
	n.log.Info("lead notify: email sent", "eventId", eventID, "source", lead.Source)
	return nil
}

// keptLead runs ev together with the submissions of the preceding window
// through the pipeline and reports whether ev survives deduplication.
func (n *LeadNotifier) keptLead(ctx context.Context, ev repository.Event) (domain.CanonicalLead, bool) {
	window := n.pipeline.Window()
	batch, err := n.events.ListByTypeAndRange(ctx, repository.ListParams{
		Types: []string{domain.EventTypeFormSubmission, domain.EventTypeWebhookLead},
		From:  ev.CreatedAt.Add(-window),
		To:    ev.CreatedAt.Add(time.Nanosecond),
	})
	if err != nil {
		n.log.Warn("lead notify: failed to load window, notifying without dedup", "eventId", ev.ID, "error", err)
	}
	if !containsEvent(batch, ev.ID) {
		batch = append(batch, ev)
	}

	result := n.pipeline.Batch(ctx, batch)
	for _, lead := range result.Leads {
		if lead.ID == ev.ID.String() {
			return lead, true
		}
	}
	return domain.CanonicalLead{}, false
}

func containsEvent(events []repository.Event, id uuid.UUID) bool {
	for _, ev := range events {
		if ev.ID == id {
			return true
		}
	}
	return false
}

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	notifier *LeadNotifier
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, notifier *LeadNotifier, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		notifier: notifier,
		log:      log,
	}

	mux.HandleFunc(TaskLeadNotify, w.handleLeadNotify)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadNotify(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadNotifyPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	eventID, err := uuid.Parse(payload.EventID)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", payload.EventID, asynq.SkipRetry)
	}

	return w.notifier.Notify(ctx, eventID)
}
