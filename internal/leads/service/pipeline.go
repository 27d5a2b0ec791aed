package service

import (
	"context"
	"time"

	"leadflow_backend/internal/leads/dedup"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/normalizer"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/leads/region"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"
)

// Batches at least this large are deduplicated per key in parallel.
const (
	partitionThreshold = 2000
	partitionWorkers   = 8
)

// BatchResult is the outcome of one normalization batch.
type BatchResult struct {
	Leads    []domain.CanonicalLead
	Events   map[string]repository.Event
	Received int
	Degraded int
}

// Pipeline runs stored events through normalization, phone/region
// enrichment and deduplication.
type Pipeline struct {
	normalizer *normalizer.Normalizer
	extractor  *region.Extractor
	mappings   ports.MappingOverrides
	window     time.Duration
	log        *logger.Logger
}

// NewPipeline wires the batch transforms. A nil mappings disables per-source overrides.
func NewPipeline(n *normalizer.Normalizer, extractor *region.Extractor, mappings ports.MappingOverrides, window time.Duration, log *logger.Logger) *Pipeline {
	if mappings == nil {
		mappings = ports.NoMappingOverrides{}
	}
	if window <= 0 {
		window = dedup.DefaultWindow
	}
	return &Pipeline{normalizer: n, extractor: extractor, mappings: mappings, window: window, log: log}
}

// Batch normalizes events, which must be ordered by creation time, and
// deduplicates the result. Malformed payloads become degraded leads.
func (p *Pipeline) Batch(ctx context.Context, events []repository.Event) BatchResult {
	overrides := p.loadOverrides(ctx)
	extractor := p.extractor.ForBatch()
	normalizers := make(map[string]*normalizer.Normalizer)

	result := BatchResult{
		Leads:    make([]domain.CanonicalLead, 0, len(events)),
		Events:   make(map[string]repository.Event, len(events)),
		Received: len(events),
	}
	for _, ev := range events {
		n := p.normalizerFor(ev, overrides, normalizers)
		lead := p.normalizeEvent(ctx, n, extractor, ev)
		if lead.Degraded {
			result.Degraded++
		}
		result.Leads = append(result.Leads, lead)
		result.Events[lead.ID] = ev
	}

	result.Leads = p.dedupe(ctx, result.Leads)
	p.log.BatchSummary("lead_events", result.Received, result.Degraded, len(result.Leads))
	return result
}

func (p *Pipeline) dedupe(ctx context.Context, leads []domain.CanonicalLead) []domain.CanonicalLead {
	if len(leads) < partitionThreshold {
		return dedup.Dedupe(leads, p.window)
	}
	kept, err := dedup.DedupePartitioned(ctx, leads, p.window, partitionWorkers)
	if err != nil {
		p.log.Warn("pipeline: partitioned dedup aborted, running sequentially", "error", err)
		return dedup.Dedupe(leads, p.window)
	}
	return kept
}

// Window is the deduplication window Batch applies.
func (p *Pipeline) Window() time.Duration { return p.window }

// One normalizes and enriches a single event without deduplication.
func (p *Pipeline) One(ctx context.Context, ev repository.Event) domain.CanonicalLead {
	overrides := p.loadOverrides(ctx)
	n := p.normalizerFor(ev, overrides, nil)
	return p.normalizeEvent(ctx, n, p.extractor, ev)
}

// EditKey resolves which payload key an inline edit of field writes for ev.
func (p *Pipeline) EditKey(ctx context.Context, ev repository.Event, field normalizer.Field) string {
	n := p.normalizerFor(ev, p.loadOverrides(ctx), nil)
	return n.EditKey(ev.LeadData, field)
}

func (p *Pipeline) normalizeEvent(ctx context.Context, n *normalizer.Normalizer, extractor *region.Extractor, ev repository.Event) domain.CanonicalLead {
	lead := n.Normalize(ev.LeadData)
	if lead.Degraded {
		p.log.Warn("pipeline: malformed payload", "eventId", ev.ID, "eventType", ev.EventType)
	} else {
		extractor.Apply(ctx, &lead)
	}
	lead.ID = ev.ID.String()
	lead.SubmittedAt = ev.CreatedAt
	lead.Source = sourceOf(ev)
	lead.SessionID = ev.SessionID
	return lead
}

func (p *Pipeline) loadOverrides(ctx context.Context) map[string]map[normalizer.Field][]string {
	overrides, err := p.mappings.ActiveOverrides(ctx)
	if err != nil {
		p.log.Warn("pipeline: failed to load webhook mappings, using static aliases", "error", err)
		return nil
	}
	return overrides
}

func (p *Pipeline) normalizerFor(ev repository.Event, overrides map[string]map[normalizer.Field][]string, memo map[string]*normalizer.Normalizer) *normalizer.Normalizer {
	if ev.EventType != domain.EventTypeWebhookLead || len(overrides[ev.EventAction]) == 0 {
		return p.normalizer
	}
	if n, ok := memo[ev.EventAction]; ok {
		return n
	}
	n := p.normalizer.WithOverrides(overrides[ev.EventAction])
	if memo != nil {
		memo[ev.EventAction] = n
	}
	return n
}

func sourceOf(ev repository.Event) string {
	if ev.EventAction != "" {
		return ev.EventAction
	}
	return ev.EventType
}
