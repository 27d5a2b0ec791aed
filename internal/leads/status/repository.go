package status

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/leads/domain"
)

// Store persists the single status row of each lead.
type Store interface {
	Get(ctx context.Context, leadID string) (row domain.LeadStatus, found bool, err error)
	GetMany(ctx context.Context, leadIDs []string) ([]domain.LeadStatus, error)
	Upsert(ctx context.Context, row domain.LeadStatus) error
	ListUpdatedBetween(ctx context.Context, from, to time.Time) ([]domain.LeadStatus, error)
}

// Repository is the Postgres Store backed by lead_statuses.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new status repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, leadID string) (domain.LeadStatus, bool, error) {
	row := domain.LeadStatus{LeadID: leadID}
	var status string
	err := r.pool.QueryRow(ctx, `
		SELECT status, updated_at, updated_by
		FROM lead_statuses
		WHERE lead_id = $1
	`, leadID).Scan(&status, &row.UpdatedAt, &row.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeadStatus{}, false, nil
	}
	if err != nil {
		return domain.LeadStatus{}, false, err
	}
	row.Status = domain.Status(status)
	return row, true, nil
}

func (r *Repository) GetMany(ctx context.Context, leadIDs []string) ([]domain.LeadStatus, error) {
	if len(leadIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT lead_id, status, updated_at, updated_by
		FROM lead_statuses
		WHERE lead_id = ANY($1)
	`, leadIDs)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

// Upsert inserts the row or overwrites status, updated_at and updated_by in place.
func (r *Repository) Upsert(ctx context.Context, row domain.LeadStatus) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_statuses (lead_id, status, updated_at, updated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id) DO UPDATE
		SET status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at,
		    updated_by = EXCLUDED.updated_by
	`, row.LeadID, string(row.Status), row.UpdatedAt, row.UpdatedBy)
	return err
}

// ListUpdatedBetween returns rows with from <= updated_at < to.
func (r *Repository) ListUpdatedBetween(ctx context.Context, from, to time.Time) ([]domain.LeadStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lead_id, status, updated_at, updated_by
		FROM lead_statuses
		WHERE updated_at >= $1 AND updated_at < $2
		ORDER BY updated_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanRows(rows)
}

func scanRows(rows pgx.Rows) ([]domain.LeadStatus, error) {
	defer rows.Close()

	var out []domain.LeadStatus
	for rows.Next() {
		var row domain.LeadStatus
		var status string
		if err := rows.Scan(&row.LeadID, &status, &row.UpdatedAt, &row.UpdatedBy); err != nil {
			return nil, err
		}
		row.Status = domain.Status(status)
		out = append(out, row)
	}
	return out, rows.Err()
}
