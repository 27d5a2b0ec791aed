// Package service implements the leads use cases: ingesting submissions,
// serving the normalized batch, inline edits, bulk delete and status changes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/normalizer"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/status"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/sanitize"
)

const dateLayout = "2006-01-02"

// StatusTracker is the part of status.Tracker the service uses.
type StatusTracker interface {
	GetRow(ctx context.Context, leadID string) (domain.LeadStatus, error)
	Statuses(ctx context.Context, leadIDs []string) map[string]domain.Status
	SetStatus(ctx context.Context, leadID, newStatus, updatedBy string) bool
	Report(ctx context.Context, window status.Window) (status.Report, error)
}

// IngestParams describes one inbound submission.
type IngestParams struct {
	EventType  string
	Source     string
	SessionID  string
	Body       json.RawMessage
	GeoCity    string
	GeoRegion  string
	GeoCountry string
}

type Service struct {
	store     repository.EventStore
	pipeline  *Pipeline
	tracker   StatusTracker
	bus       events.Bus
	loc       *time.Location
	listLimit int
	log       *logger.Logger
}

func New(store repository.EventStore, pipeline *Pipeline, tracker StatusTracker, bus events.Bus, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, pipeline: pipeline, tracker: tracker, bus: bus, loc: loc, listLimit: repository.DefaultListLimit, log: log}
}

// Pipeline exposes the normalization pipeline to background workers.
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// Ingest appends a raw submission to the event store. The body is stored
// exactly as received; normalization happens on read.
func (s *Service) Ingest(ctx context.Context, params IngestParams) (repository.Event, error) {
	if len(params.Body) == 0 || !json.Valid(params.Body) {
		return repository.Event{}, apperr.Validation("body must be valid JSON")
	}

	ev, err := s.store.Append(ctx, repository.AppendParams{
		EventType:   params.EventType,
		EventAction: params.Source,
		SessionID:   params.SessionID,
		LeadData:    params.Body,
		GeoCity:     optional(params.GeoCity),
		GeoRegion:   optional(params.GeoRegion),
		GeoCountry:  optional(params.GeoCountry),
	})
	if err != nil {
		s.log.DatabaseError("leads.Ingest", err)
		return repository.Event{}, apperr.Wrap(apperr.KindInternal, "failed to store submission", err).WithOp("leads.Ingest")
	}

	s.bus.Publish(ctx, events.LeadReceived{
		BaseEvent: events.NewBaseEvent(),
		EventID:   ev.ID.String(),
		EventType: ev.EventType,
		Source:    ev.EventAction,
		CreatedAt: ev.CreatedAt,
	})
	return ev, nil
}

// List returns the normalized, deduplicated leads submitted in the requested
// date range. Dates are interpreted in the reporting location; to is inclusive.
// Only the newest listLimit submissions are read; Truncated reports whether
// older ones were left out.
func (s *Service) List(ctx context.Context, req transport.ListLeadsRequest) (transport.ListLeadsResponse, error) {
	params := repository.ListParams{Types: req.Types, Action: req.Source, Limit: s.listLimit + 1}
	if len(params.Types) == 0 {
		params.Types = []string{domain.EventTypeWebhookLead, domain.EventTypeFormSubmission}
	}
	if req.From != "" {
		from, err := time.ParseInLocation(dateLayout, req.From, s.loc)
		if err != nil {
			return transport.ListLeadsResponse{}, apperr.Validation("invalid from date")
		}
		params.From = from
	}
	if req.To != "" {
		to, err := time.ParseInLocation(dateLayout, req.To, s.loc)
		if err != nil {
			return transport.ListLeadsResponse{}, apperr.Validation("invalid to date")
		}
		params.To = to.AddDate(0, 0, 1)
	}
	if !params.From.IsZero() && !params.To.IsZero() && !params.From.Before(params.To) {
		return transport.ListLeadsResponse{}, apperr.Validation("from must not be after to")
	}

	evs, err := s.store.ListByTypeAndRange(ctx, params)
	if err != nil {
		s.log.DatabaseError("leads.List", err)
		return transport.ListLeadsResponse{}, apperr.Wrap(apperr.KindInternal, "failed to load leads", err).WithOp("leads.List")
	}
	truncated := len(evs) > s.listLimit
	if truncated {
		evs = evs[len(evs)-s.listLimit:]
	}

	batch := s.pipeline.Batch(ctx, evs)
	ids := make([]string, len(batch.Leads))
	for i, lead := range batch.Leads {
		ids[i] = lead.ID
	}
	statuses := s.tracker.Statuses(ctx, ids)

	items := make([]transport.LeadResponse, len(batch.Leads))
	for i, lead := range batch.Leads {
		items[i] = transport.LeadResponse{
			CanonicalLead: lead,
			EventType:     batch.Events[lead.ID].EventType,
			Status:        statuses[lead.ID],
		}
	}
	return transport.ListLeadsResponse{
		Items:     items,
		Total:     len(items),
		Received:  batch.Received,
		Degraded:  batch.Degraded,
		Truncated: truncated,
	}, nil
}

// Get returns one normalized lead with its current status.
func (s *Service) Get(ctx context.Context, id string) (transport.LeadResponse, error) {
	ev, err := s.loadEvent(ctx, id, "leads.Get")
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return s.toResponse(ctx, ev), nil
}

// UpdateField edits one canonical or extra field of a stored submission.
func (s *Service) UpdateField(ctx context.Context, id string, req transport.UpdateFieldRequest) (transport.LeadResponse, error) {
	ev, err := s.loadEvent(ctx, id, "leads.UpdateField")
	if err != nil {
		return transport.LeadResponse{}, err
	}

	current := s.pipeline.One(ctx, ev)
	if current.Degraded {
		return transport.LeadResponse{}, apperr.Conflict("lead payload is malformed and cannot be edited")
	}

	var key string
	if field, ok := normalizer.ParseField(req.Field); ok {
		key = s.pipeline.EditKey(ctx, ev, field)
	} else if current.ExtraFields.Has(req.Field) {
		key = req.Field
	} else {
		return transport.LeadResponse{}, apperr.Validation("unknown field").WithDetails(map[string]string{"field": req.Field})
	}

	updated, err := s.store.UpdateLeadData(ctx, ev.ID, key, sanitize.Text(req.Value))
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		s.log.DatabaseError("leads.UpdateField", err)
		return transport.LeadResponse{}, apperr.Wrap(apperr.KindInternal, "failed to update lead", err).WithOp("leads.UpdateField")
	}
	return s.toResponse(ctx, updated), nil
}

// BulkDelete removes the given leads and their status rows atomically.
func (s *Service) BulkDelete(ctx context.Context, ids []string) (int, error) {
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return 0, apperr.Validation("invalid lead id").WithDetails(map[string]string{"id": raw})
		}
		parsed = append(parsed, id)
	}

	deleted, err := s.store.DeleteByIDs(ctx, parsed)
	if err != nil {
		s.log.DatabaseError("leads.BulkDelete", err)
		return 0, apperr.Wrap(apperr.KindInternal, "failed to delete leads", err).WithOp("leads.BulkDelete")
	}

	s.bus.Publish(ctx, events.LeadsDeleted{
		BaseEvent: events.NewBaseEvent(),
		LeadIDs:   ids,
		Deleted:   deleted,
	})
	return deleted, nil
}

// GetStatus returns the status row of a lead, novo when none is stored.
func (s *Service) GetStatus(ctx context.Context, leadID string) (domain.LeadStatus, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return domain.LeadStatus{}, apperr.Validation("lead id is required")
	}
	row, err := s.tracker.GetRow(ctx, leadID)
	if err != nil {
		return domain.LeadStatus{}, apperr.Wrap(apperr.KindInternal, "failed to read lead status", err).WithOp("leads.GetStatus")
	}
	return row, nil
}

// SetStatus moves a lead to another funnel stage. Any stage may follow any other.
func (s *Service) SetStatus(ctx context.Context, leadID string, req transport.UpdateStatusRequest) (domain.LeadStatus, error) {
	canonical, ok := domain.CanonicalizeStatus(req.Status)
	if !ok {
		return domain.LeadStatus{}, apperr.Validation("unknown status")
	}
	if !s.tracker.SetStatus(ctx, leadID, req.Status, req.UpdatedBy) {
		return domain.LeadStatus{}, apperr.Internal("failed to update lead status").WithOp("leads.SetStatus")
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Status:    string(canonical),
		UpdatedBy: req.UpdatedBy,
	})
	return s.GetStatus(ctx, leadID)
}

// StatusReport counts status changes per status inside a reporting window.
func (s *Service) StatusReport(ctx context.Context, req transport.StatusReportRequest) (status.Report, error) {
	return s.tracker.Report(ctx, status.Window{
		Kind: status.WindowKind(req.Window),
		From: req.From,
		To:   req.To,
	})
}

func (s *Service) loadEvent(ctx context.Context, rawID, op string) (repository.Event, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return repository.Event{}, apperr.Validation("invalid lead id")
	}
	ev, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return repository.Event{}, apperr.NotFound("lead not found")
		}
		s.log.DatabaseError(op, err)
		return repository.Event{}, apperr.Wrap(apperr.KindInternal, "failed to load lead", err).WithOp(op)
	}
	return ev, nil
}

func (s *Service) toResponse(ctx context.Context, ev repository.Event) transport.LeadResponse {
	lead := s.pipeline.One(ctx, ev)
	return transport.LeadResponse{
		CanonicalLead: lead,
		EventType:     ev.EventType,
		Status:        s.tracker.Statuses(ctx, []string{lead.ID})[lead.ID],
	}
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
