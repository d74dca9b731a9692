package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
)

var _ SubscriptionRepository = (*SubscriptionRepo)(nil)

type SubscriptionRepo struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Subscribe returns false when the subscription already exists.
func (r *SubscriptionRepo) Subscribe(ctx context.Context, subscriberID, entity string) (bool, error) {
	err := r.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscriptions (subscriber_id, entity, created_at)
			VALUES (?, ?, ?)
		`, subscriberID, entity, formatTime(r.db.Now()))
		if isConstraintError(err) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert subscription: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SubscriptionRepo) Unsubscribe(ctx context.Context, subscriberID, entity string) (bool, error) {
	var removed bool
	err := r.db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM subscriptions WHERE subscriber_id = ? AND entity = ?", subscriberID, entity)
		if err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		n, _ := res.RowsAffected()
		removed = n > 0
		return nil
	})
	return removed, err
}

func (r *SubscriptionRepo) GetSubscriptions(ctx context.Context, subscriberID string) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subscriber_id, entity, last_notified, created_at
		FROM subscriptions
		WHERE subscriber_id = ?
		ORDER BY entity
	`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		var lastNotified, createdAt string
		if err := rows.Scan(&s.SubscriberID, &s.Entity, &lastNotified, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		if s.LastNotified, err = parseTime(lastNotified); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

func (r *SubscriptionRepo) GetSubscribersByEntity(ctx context.Context, entity string) ([]string, error) {
	return r.strings(ctx, psql.Select("subscriber_id").
		From("subscriptions").
		Where(sq.Eq{"entity": entity}).
		OrderBy("subscriber_id"))
}

func (r *SubscriptionRepo) GetSubscribers(ctx context.Context) ([]string, error) {
	return r.strings(ctx, psql.Select("DISTINCT subscriber_id").
		From("subscriptions").
		OrderBy("subscriber_id"))
}

// GetActiveEntities returns entities with a subscription created or notified after since.
func (r *SubscriptionRepo) GetActiveEntities(ctx context.Context, since time.Time) ([]string, error) {
	cutoff := formatTime(since)
	return r.strings(ctx, psql.Select("DISTINCT entity").
		From("subscriptions").
		Where(sq.Or{sq.GtOrEq{"created_at": cutoff}, sq.GtOrEq{"last_notified": cutoff}}).
		OrderBy("entity"))
}

func (r *SubscriptionRepo) MarkNotified(ctx context.Context, subscriberID string, at time.Time) error {
	return r.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE subscriptions SET last_notified = ? WHERE subscriber_id = ?", formatTime(at), subscriberID)
		if err != nil {
			return fmt.Errorf("failed to update last notification: %w", err)
		}
		return nil
	})
}

func (r *SubscriptionRepo) strings(ctx context.Context, builder sq.SelectBuilder) ([]string, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return values, nil
}

// isConstraintError reports SQLITE_CONSTRAINT and its extended codes.
func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xff == 19
	}
	return false
}
