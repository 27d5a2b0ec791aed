package region

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/leads/domain"
)

// Repository reads and seeds the area_codes reference table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new area code repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LookupAreaCode implements Lookup.
func (r *Repository) LookupAreaCode(ctx context.Context, areaCode int) (domain.AreaCodeRecord, bool, error) {
	var rec domain.AreaCodeRecord
	err := r.pool.QueryRow(ctx, `
		SELECT area_code, state_name, capital, region, cities
		FROM area_codes
		WHERE area_code = $1
	`, areaCode).Scan(&rec.AreaCode, &rec.StateName, &rec.Capital, &rec.Region, &rec.Cities)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AreaCodeRecord{}, false, nil
	}
	if err != nil {
		return domain.AreaCodeRecord{}, false, err
	}
	return rec, true, nil
}

// List returns every area code ordered by code.
func (r *Repository) List(ctx context.Context) ([]domain.AreaCodeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT area_code, state_name, capital, region, cities
		FROM area_codes
		ORDER BY area_code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.AreaCodeRecord
	for rows.Next() {
		var rec domain.AreaCodeRecord
		if err := rows.Scan(&rec.AreaCode, &rec.StateName, &rec.Capital, &rec.Region, &rec.Cities); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Upsert writes records in one transaction.
func (r *Repository) Upsert(ctx context.Context, records []domain.AreaCodeRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, rec := range records {
		cities := rec.Cities
		if cities == nil {
			cities = []string{}
		}
		batch.Queue(`
			INSERT INTO area_codes (area_code, state_name, capital, region, cities)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (area_code) DO UPDATE
			SET state_name = EXCLUDED.state_name,
			    capital = EXCLUDED.capital,
			    region = EXCLUDED.region,
			    cities = EXCLUDED.cities
		`, rec.AreaCode, rec.StateName, rec.Capital, rec.Region, cities)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert area codes: %w", err)
	}
	return tx.Commit(ctx)
}
