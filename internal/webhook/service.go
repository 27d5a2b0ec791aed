package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/normalizer"
	"leadflow_backend/internal/leads/repository"
	leadsvc "leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadIngester appends inbound submissions to the event store. Satisfied by the leads service.
type LeadIngester interface {
	Ingest(ctx context.Context, params leadsvc.IngestParams) (repository.Event, error)
}

// SourceStore is the source persistence the service needs.
type SourceStore interface {
	MappingWriter
	Create(ctx context.Context, params CreateSourceParams) (Source, error)
	GetByID(ctx context.Context, id uuid.UUID) (Source, error)
	List(ctx context.Context) ([]Source, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	ConfirmMapping(ctx context.Context, id uuid.UUID, m Mapping) error
}

// Inbound is one webhook delivery authenticated by the API key middleware.
type Inbound struct {
	SourceKey  string
	Body       []byte
	GeoCity    string
	GeoRegion  string
	GeoCountry string
}

// Service handles webhook deliveries, source management and mapping inference.
type Service struct {
	sources   SourceStore
	ingester  LeadIngester
	samples   SampleReader
	archive   *Archive
	registry  *ListenerRegistry
	bus       events.Bus
	listenCfg ListenerConfig
	log       *logger.Logger
}

// NewService creates a new webhook service. archive may be nil.
func NewService(sources SourceStore, ingester LeadIngester, samples SampleReader, archive *Archive, bus events.Bus, listenCfg ListenerConfig, log *logger.Logger) *Service {
	return &Service{
		sources:   sources,
		ingester:  ingester,
		samples:   samples,
		archive:   archive,
		registry:  NewListenerRegistry(),
		bus:       bus,
		listenCfg: listenCfg,
		log:       log,
	}
}

// Receive stores a delivery as a webhook_lead event and archives the raw body.
func (s *Service) Receive(ctx context.Context, in Inbound) (repository.Event, error) {
	ev, err := s.ingester.Ingest(ctx, leadsvc.IngestParams{
		EventType:  domain.EventTypeWebhookLead,
		Source:     in.SourceKey,
		Body:       in.Body,
		GeoCity:    in.GeoCity,
		GeoRegion:  in.GeoRegion,
		GeoCountry: in.GeoCountry,
	})
	if err != nil {
		return repository.Event{}, err
	}

	s.archive.Save(ctx, in.SourceKey, ev.CreatedAt, ev.ID, in.Body)
	return ev, nil
}

// CreatedSource carries the plaintext key, which is never stored.
type CreatedSource struct {
	Source Source
	Key    string
}

// CreateSource registers a source and generates its API key.
func (s *Service) CreateSource(ctx context.Context, sourceKey, name string, allowedDomains []string) (CreatedSource, error) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return CreatedSource{}, apperr.Wrap(apperr.KindInternal, "failed to generate API key", err)
	}

	src, err := s.sources.Create(ctx, CreateSourceParams{
		SourceKey:      strings.ToLower(strings.TrimSpace(sourceKey)),
		Name:           strings.TrimSpace(name),
		KeyHash:        hash,
		KeyPrefix:      prefix,
		AllowedDomains: allowedDomains,
	})
	if errors.Is(err, ErrSourceKeyTaken) {
		return CreatedSource{}, apperr.Conflict("source key already in use")
	}
	if err != nil {
		return CreatedSource{}, apperr.Wrap(apperr.KindInternal, "failed to create webhook source", err).WithOp("webhook.CreateSource")
	}
	return CreatedSource{Source: src, Key: plaintext}, nil
}

// ListSources returns every registered source.
func (s *Service) ListSources(ctx context.Context) ([]Source, error) {
	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list webhook sources", err)
	}
	return sources, nil
}

// RevokeSource deactivates a source and cancels its listener.
func (s *Service) RevokeSource(ctx context.Context, id uuid.UUID) error {
	if err := s.sources.Revoke(ctx, id); err != nil {
		return sourceError(err, "webhook.RevokeSource")
	}
	s.registry.Stop(id)
	return nil
}

// ListenStatus describes the listener of one source.
type ListenStatus struct {
	Listening bool
	StartedAt time.Time
	Timeout   time.Duration
}

// StartListening starts (or restarts) mapping inference for a source. The
// listener outlives the request; it ends on its own or through StopListening.
func (s *Service) StartListening(ctx context.Context, id uuid.UUID) (ListenStatus, error) {
	src, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return ListenStatus{}, sourceError(err, "webhook.StartListening")
	}
	if !src.IsActive {
		return ListenStatus{}, apperr.Conflict("webhook source is revoked")
	}

	l := NewListener(src, s.samples, s.sources, s.bus, s.listenCfg, s.log)
	if err := s.registry.Start(context.WithoutCancel(ctx), l); err != nil {
		return ListenStatus{}, apperr.Wrap(apperr.KindInternal, "failed to start listener", err)
	}
	s.log.Info("webhook: listener started", "source", src.SourceKey, "timeout", s.listenCfg.Timeout)
	return ListenStatus{Listening: true, StartedAt: l.StartedAt(), Timeout: s.listenCfg.Timeout}, nil
}

// StopListening cancels the listener of a source.
func (s *Service) StopListening(id uuid.UUID) error {
	if !s.registry.Stop(id) {
		return apperr.NotFound("no active listener for this source")
	}
	return nil
}

// Shutdown cancels every running listener.
func (s *Service) Shutdown() {
	s.registry.StopAll()
}

// MappingState is the pending and active mapping of one source.
type MappingState struct {
	Pending       *Mapping
	Active        *Mapping
	LastAppliedAt *time.Time
	Listening     bool
}

// GetMapping returns the mapping state of a source.
func (s *Service) GetMapping(ctx context.Context, id uuid.UUID) (MappingState, error) {
	src, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return MappingState{}, sourceError(err, "webhook.GetMapping")
	}
	return MappingState{
		Pending:       src.PendingMapping,
		Active:        src.ActiveMapping,
		LastAppliedAt: src.LastAppliedAt,
		Listening:     s.registry.Running(id),
	}, nil
}

// ConfirmMapping activates the pending mapping after operator review.
func (s *Service) ConfirmMapping(ctx context.Context, id uuid.UUID, include []string, fields map[string]string) (Mapping, error) {
	src, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return Mapping{}, sourceError(err, "webhook.ConfirmMapping")
	}
	if src.PendingMapping == nil {
		return Mapping{}, apperr.Conflict("no pending mapping to confirm")
	}

	opts := ConfirmOptions{Include: include, Fields: make(map[string]normalizer.Field, len(fields))}
	for key, label := range fields {
		f, ok := normalizer.ParseField(label)
		if !ok {
			return Mapping{}, apperr.Validation("unknown canonical field").WithDetails(map[string]string{"key": key, "field": label})
		}
		opts.Fields[key] = f
	}

	active := src.PendingMapping.Confirm(opts)
	if len(active.Entries) == 0 {
		return Mapping{}, apperr.Validation("confirmed mapping has no entries")
	}
	if err := s.sources.ConfirmMapping(ctx, id, active); err != nil {
		return Mapping{}, sourceError(err, "webhook.ConfirmMapping")
	}
	s.log.Info("webhook: mapping confirmed", "source", src.SourceKey, "entries", len(active.Entries))
	return active, nil
}

func sourceError(err error, op string) error {
	if errors.Is(err, ErrSourceNotFound) {
		return apperr.NotFound("webhook source not found").WithOp(op)
	}
	return apperr.Wrap(apperr.KindInternal, "webhook source storage failed", err).WithOp(op)
}
