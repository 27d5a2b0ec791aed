// Package events holds the lead and webhook domain events and re-exports
// the bus types from platform/events so modules import a single package.
package events

import (
	"time"

	"leadflow_backend/platform/events"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Lead Domain Events
// =============================================================================

// LeadReceived is published after an inbound submission is appended to the event store.
type LeadReceived struct {
	BaseEvent
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e LeadReceived) EventName() string { return "leads.lead.received" }

// LeadStatusChanged is published after a successful status upsert.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    string `json:"leadId"`
	Status    string `json:"status"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// LeadsDeleted is published after an administrative bulk delete.
type LeadsDeleted struct {
	BaseEvent
	LeadIDs []string `json:"leadIds"`
	Deleted int      `json:"deleted"`
}

func (e LeadsDeleted) EventName() string { return "leads.lead.deleted" }

// =============================================================================
// Webhook Domain Events
// =============================================================================

// WebhookMappingProposed is published when the listener stores a pending mapping.
type WebhookMappingProposed struct {
	BaseEvent
	SourceID  string    `json:"sourceId"`
	SourceKey string    `json:"sourceKey"`
	SampleID  string    `json:"sampleId"`
	SampleAt  time.Time `json:"sampleAt"`
	Fields    int       `json:"fields"`
}

func (e WebhookMappingProposed) EventName() string { return "webhook.mapping.proposed" }
