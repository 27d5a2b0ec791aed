package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// EventReader provides read-only access to stored submissions.
type EventReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (Event, error)
	ListByTypeAndRange(ctx context.Context, params ListParams) ([]Event, error)
}

// SampleReader finds the newest sample of one webhook source.
type SampleReader interface {
	LatestByTypeSince(ctx context.Context, eventType, action string, since *time.Time) (Event, error)
}

// EventWriter appends and edits stored submissions.
type EventWriter interface {
	Append(ctx context.Context, params AppendParams) (Event, error)
	UpdateLeadData(ctx context.Context, id uuid.UUID, key, value string) (Event, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error)
}

// EventStore is the full event store contract.
type EventStore interface {
	EventReader
	SampleReader
	EventWriter
}

var _ EventStore = (*Repository)(nil)
