// Package webhook provides the third-party webhook bounded context.
// It handles source API keys, inbound webhook payloads and field-mapping inference.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/leads/normalizer"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrSourceNotFound = errors.New("webhook source not found")
	ErrSourceKeyTaken = errors.New("webhook source key already exists")
)

// Source is a registered third-party webhook sender.
type Source struct {
	ID             uuid.UUID
	SourceKey      string
	Name           string
	KeyHash        string
	KeyPrefix      string
	AllowedDomains []string
	IsActive       bool
	PendingMapping *Mapping
	ActiveMapping  *Mapping
	LastAppliedAt  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateSourceParams holds the columns of a new source.
type CreateSourceParams struct {
	SourceKey      string
	Name           string
	KeyHash        string
	KeyPrefix      string
	AllowedDomains []string
}

// Repository provides data access for webhook sources.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key and its hash.
// The plaintext key is returned only once; only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(bytes)
	hash = HashKey(plaintext)
	prefix = plaintext[:12] // "whk_" + 8 hex chars
	return plaintext, hash, prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

const sourceColumns = `id, source_key, name, key_hash, key_prefix, allowed_domains, is_active,
	pending_mapping, active_mapping, last_applied_at, created_at, updated_at`

func scanSource(row pgx.Row) (Source, error) {
	var (
		src             Source
		pending, active []byte
	)
	if err := row.Scan(
		&src.ID, &src.SourceKey, &src.Name, &src.KeyHash, &src.KeyPrefix, &src.AllowedDomains, &src.IsActive,
		&pending, &active, &src.LastAppliedAt, &src.CreatedAt, &src.UpdatedAt,
	); err != nil {
		return Source{}, err
	}

	var err error
	if src.PendingMapping, err = decodeMapping(pending); err != nil {
		return Source{}, fmt.Errorf("decode pending mapping for %s: %w", src.SourceKey, err)
	}
	if src.ActiveMapping, err = decodeMapping(active); err != nil {
		return Source{}, fmt.Errorf("decode active mapping for %s: %w", src.SourceKey, err)
	}
	return src, nil
}

func decodeMapping(raw []byte) (*Mapping, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m Mapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSourceNotFound
	}
	return err
}

// Create creates a new source record.
func (r *Repository) Create(ctx context.Context, params CreateSourceParams) (Source, error) {
	domains := params.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	src, err := scanSource(r.pool.QueryRow(ctx, `
		INSERT INTO webhook_sources (source_key, name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+sourceColumns,
		params.SourceKey, params.Name, params.KeyHash, params.KeyPrefix, domains))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Source{}, ErrSourceKeyTaken
	}
	return src, err
}

// GetByHash retrieves an active source by its API key hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (Source, error) {
	src, err := scanSource(r.pool.QueryRow(ctx, `
		SELECT `+sourceColumns+`
		FROM webhook_sources
		WHERE key_hash = $1 AND is_active = true
	`, keyHash))
	return src, notFound(err)
}

// GetByID retrieves a source regardless of its active flag.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Source, error) {
	src, err := scanSource(r.pool.QueryRow(ctx, `
		SELECT `+sourceColumns+`
		FROM webhook_sources
		WHERE id = $1
	`, id))
	return src, notFound(err)
}

// List returns all sources, newest first.
func (r *Repository) List(ctx context.Context) ([]Source, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sourceColumns+`
		FROM webhook_sources
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Revoke deactivates a source. Its API key stops working immediately.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_sources SET is_active = false, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// SetPendingMapping stores a proposed mapping and records the sample
// timestamp it was inferred from.
func (r *Repository) SetPendingMapping(ctx context.Context, id uuid.UUID, m Mapping, sampleAt time.Time) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE webhook_sources
		SET pending_mapping = $2, last_applied_at = $3, updated_at = now()
		WHERE id = $1
	`, id, raw, sampleAt)
}

// SetLastAppliedAt advances the sample guard without proposing a mapping.
func (r *Repository) SetLastAppliedAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.exec(ctx, `
		UPDATE webhook_sources SET last_applied_at = $2, updated_at = now()
		WHERE id = $1
	`, id, at)
}

// ConfirmMapping activates m and clears the pending proposal.
func (r *Repository) ConfirmMapping(ctx context.Context, id uuid.UUID, m Mapping) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.exec(ctx, `
		UPDATE webhook_sources
		SET active_mapping = $2, pending_mapping = NULL, updated_at = now()
		WHERE id = $1
	`, id, raw)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

// ActiveOverrides returns the confirmed mappings of active sources keyed by
// source key, ready to be evaluated ahead of the static aliases.
func (r *Repository) ActiveOverrides(ctx context.Context) (map[string]map[normalizer.Field][]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT source_key, active_mapping
		FROM webhook_sources
		WHERE is_active = true AND active_mapping IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[normalizer.Field][]string)
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		m, err := decodeMapping(raw)
		if err != nil {
			return nil, fmt.Errorf("decode active mapping for %s: %w", key, err)
		}
		if m != nil {
			out[key] = m.Overrides()
		}
	}
	return out, rows.Err()
}
