package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lysyi3m/bankwatch/app/news"
)

var _ CoverageRepository = (*CoverageRepo)(nil)

type CoverageRepo struct {
	db *DB
}

func NewCoverageRepository(db *DB) *CoverageRepo {
	return &CoverageRepo{db: db}
}

// GetCoverage returns nil without error when the entity has never been fetched.
func (r *CoverageRepo) GetCoverage(ctx context.Context, entity string) (*Coverage, error) {
	var from, to, refresh string
	err := r.db.QueryRowContext(ctx, `
		SELECT covered_from, covered_to, last_refresh
		FROM coverage
		WHERE entity = ?
	`, entity).Scan(&from, &to, &refresh)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coverage: %w", err)
	}

	c := &Coverage{Entity: entity}
	if c.CoveredFrom, err = parseDate(from); err != nil {
		return nil, err
	}
	if c.CoveredTo, err = parseDate(to); err != nil {
		return nil, err
	}
	if c.LastRefresh, err = parseTime(refresh); err != nil {
		return nil, err
	}

	return c, nil
}

func (r *CoverageRepo) UpsertCoverage(ctx context.Context, c Coverage) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO coverage (entity, covered_from, covered_to, last_refresh)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (entity) DO UPDATE SET
				covered_from = excluded.covered_from,
				covered_to = excluded.covered_to,
				last_refresh = excluded.last_refresh
		`, c.Entity, news.FormatDate(c.CoveredFrom), news.FormatDate(c.CoveredTo), formatTime(c.LastRefresh))
		if err != nil {
			return fmt.Errorf("failed to upsert coverage: %w", err)
		}
		return nil
	})
}
