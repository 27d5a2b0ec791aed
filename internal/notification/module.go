// Package notification reacts to lead and webhook domain events.
// Domain modules publish events and stay unaware of queues and email delivery.
package notification

import (
	"context"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/logger"
)

// Module subscribes to domain events on the bus.
type Module struct {
	scheduler scheduler.LeadNotificationScheduler
	log       *logger.Logger
}

// New returns the notification module. A nil scheduler disables new-lead
// emails; events are still logged.
func New(sched scheduler.LeadNotificationScheduler, log *logger.Logger) *Module {
	return &Module{scheduler: sched, log: log}
}

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadReceived{}.EventName(), m)
	bus.Subscribe(events.LeadStatusChanged{}.EventName(), m)
	bus.Subscribe(events.LeadsDeleted{}.EventName(), m)
	bus.Subscribe(events.WebhookMappingProposed{}.EventName(), m)

	m.log.Info("notification handlers registered")
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadReceived:
		return m.handleLeadReceived(ctx, e)
	case events.LeadStatusChanged:
		m.log.Info("lead status changed", "leadId", e.LeadID, "status", e.Status, "updatedBy", e.UpdatedBy)
		return nil
	case events.LeadsDeleted:
		m.log.Info("leads deleted", "count", e.Deleted, "requested", len(e.LeadIDs))
		return nil
	case events.WebhookMappingProposed:
		m.log.Info("webhook mapping proposed, awaiting confirmation",
			"sourceKey", e.SourceKey, "sampleId", e.SampleID, "fields", e.Fields)
		return nil
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleLeadReceived(ctx context.Context, e events.LeadReceived) error {
	if m.scheduler == nil {
		m.log.Debug("lead notification scheduler not configured", "eventId", e.EventID)
		return nil
	}
	if err := m.scheduler.EnqueueLeadNotification(ctx, scheduler.LeadNotifyPayload{EventID: e.EventID}); err != nil {
		m.log.Error("failed to enqueue lead notification", "eventId", e.EventID, "source", e.Source, "error", err)
		return err
	}
	return nil
}
