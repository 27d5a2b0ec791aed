// Package repository is the Postgres event store inbound submissions are appended to.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEventNotFound = errors.New("lead event not found")

// DefaultListLimit caps ListByTypeAndRange when ListParams.Limit is unset.
const DefaultListLimit = 5000

// Event is one append-only row of lead_events. LeadData holds the body byte
// for byte as received, either a JSON object or a JSON string wrapping one.
type Event struct {
	ID          uuid.UUID
	EventType   string
	EventAction string
	SessionID   string
	LeadData    json.RawMessage
	GeoCity     *string
	GeoRegion   *string
	GeoCountry  *string
	CreatedAt   time.Time
}

// AppendParams describes a new event row.
type AppendParams struct {
	EventType   string
	EventAction string
	SessionID   string
	LeadData    json.RawMessage
	GeoCity     *string
	GeoRegion   *string
	GeoCountry  *string
}

// ListParams filters ListByTypeAndRange. Zero times leave that side open.
type ListParams struct {
	Types  []string
	Action string
	From   time.Time
	To     time.Time
	Limit  int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, event_type, event_action, session_id, lead_data, geo_city, geo_region, geo_country, created_at`

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	var data []byte
	err := row.Scan(
		&ev.ID, &ev.EventType, &ev.EventAction, &ev.SessionID, &data,
		&ev.GeoCity, &ev.GeoRegion, &ev.GeoCountry, &ev.CreatedAt,
	)
	ev.LeadData = data
	return ev, err
}

// Append stores a new event and returns it with its generated id and timestamp.
func (r *Repository) Append(ctx context.Context, params AppendParams) (Event, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO lead_events (event_type, event_action, session_id, lead_data, geo_city, geo_region, geo_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+eventColumns,
		params.EventType, params.EventAction, params.SessionID, string(params.LeadData),
		params.GeoCity, params.GeoRegion, params.GeoCountry,
	)
	return scanEvent(row)
}

// GetByID returns one event.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM lead_events
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	return ev, err
}

// ListByTypeAndRange returns the newest Limit events of the given types
// inside [From, To), oldest first so the result can be deduplicated in
// submission order.
func (r *Repository) ListByTypeAndRange(ctx context.Context, params ListParams) ([]Event, error) {
	var from, to *time.Time
	if !params.From.IsZero() {
		from = &params.From
	}
	if !params.To.IsZero() {
		to = &params.To
	}
	var action *string
	if params.Action != "" {
		action = &params.Action
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM lead_events
		WHERE event_type = ANY($1)
		  AND ($2::text IS NULL OR event_action = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, params.Types, action, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(events)
	return events, nil
}

// LatestByTypeSince returns the newest event of eventType and action created
// strictly after since. A nil since matches any event.
func (r *Repository) LatestByTypeSince(ctx context.Context, eventType, action string, since *time.Time) (Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM lead_events
		WHERE event_type = $1
		  AND event_action = $2
		  AND ($3::timestamptz IS NULL OR created_at > $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, eventType, action, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	return ev, err
}

// UpdateLeadData sets one top-level key of the stored payload, keeping the
// order of the other keys. String-wrapped payloads are unwrapped into an object first.
func (r *Repository) UpdateLeadData(ctx context.Context, id uuid.UUID, key, value string) (Event, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Event{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var data []byte
	err = tx.QueryRow(ctx, `SELECT lead_data FROM lead_events WHERE id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	if err != nil {
		return Event{}, err
	}

	merged, err := MergeLeadData(data, key, value)
	if err != nil {
		return Event{}, err
	}

	ev, err := scanEvent(tx.QueryRow(ctx, `
		UPDATE lead_events
		SET lead_data = $2
		WHERE id = $1
		RETURNING `+eventColumns,
		id, string(merged),
	))
	if err != nil {
		return Event{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// DeleteByIDs removes the events and their status rows in one transaction.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	textIDs := make([]string, len(ids))
	for i, id := range ids {
		textIDs[i] = id.String()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM lead_statuses WHERE lead_id = ANY($1)`, textIDs); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM lead_events WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
