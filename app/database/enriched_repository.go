package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lysyi3m/bankwatch/app/news"
)

var _ EnrichedItemRepository = (*EnrichedRepository)(nil)

type EnrichedRepository struct {
	db *DB
}

func NewEnrichedRepository(db *DB) *EnrichedRepository {
	return &EnrichedRepository{db: db}
}

var enrichedColumns = []string{
	"entity", "reg_number", "text", "summary", "event_type", "event_date", "entities", "date", "link",
	"source", "category", "sentiment", "informativeness", "summary_hash", "topic", "is_monitoring",
}

func (r *EnrichedRepository) InsertEnrichedItems(ctx context.Context, items []news.EnrichedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.Write(ctx, func(tx *sql.Tx) error {
		createdAt := formatTime(r.db.Now())
		for _, item := range items {
			entities, err := json.Marshal(item.Entities)
			if err != nil {
				return fmt.Errorf("failed to encode entities: %w", err)
			}

			query, args, err := psql.Insert("enriched_items").
				Columns(append(enrichedColumns, "created_at")...).
				Values(item.Entity, item.RegNumber, item.Text, item.Summary, item.EventType,
					news.FormatDate(item.EventDate), string(entities), news.FormatDate(item.Date), item.Link,
					item.Source, item.Category, item.Sentiment, item.Informativeness, item.SummaryHash,
					item.Topic, boolToInt(item.Monitoring), createdAt).
				Suffix("ON CONFLICT (is_monitoring, link, entity) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build insert: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to insert enriched item: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// GetEnrichedItems returns stored items whose publication date falls in r. An empty topic matches all topics.
func (r *EnrichedRepository) GetEnrichedItems(ctx context.Context, entity string, dr news.DateRange, topic string, monitoring bool) ([]news.EnrichedItem, error) {
	builder := psql.Select(enrichedColumns...).
		From("enriched_items").
		Where(sq.Eq{"entity": entity, "is_monitoring": boolToInt(monitoring)}).
		Where(sq.GtOrEq{"date": news.FormatDate(dr.From)}).
		Where(sq.LtOrEq{"date": news.FormatDate(dr.To)})
	if topic != "" {
		builder = builder.Where(sq.Eq{"topic": topic})
	}

	return r.query(ctx, builder.OrderBy("event_date DESC", "id"))
}

// GetEnrichedSince returns items stored after since.
func (r *EnrichedRepository) GetEnrichedSince(ctx context.Context, entity string, since time.Time, monitoring bool) ([]news.EnrichedItem, error) {
	builder := psql.Select(enrichedColumns...).
		From("enriched_items").
		Where(sq.Eq{"entity": entity, "is_monitoring": boolToInt(monitoring)}).
		Where(sq.Gt{"created_at": formatTime(since)}).
		OrderBy("created_at DESC", "id")

	return r.query(ctx, builder)
}

func (r *EnrichedRepository) GetLatestEnrichedItems(ctx context.Context, entity string, limit int) ([]news.EnrichedItem, error) {
	builder := psql.Select(enrichedColumns...).
		From("enriched_items").
		Where(sq.Eq{"entity": entity}).
		OrderBy("event_date DESC", "created_at DESC").
		Limit(uint64(limit))

	return r.query(ctx, builder)
}

func (r *EnrichedRepository) GetEnrichedCount(ctx context.Context, entity string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM enriched_items WHERE entity = ?", entity).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get enriched item count: %w", err)
	}
	return count, nil
}

func (r *EnrichedRepository) query(ctx context.Context, builder sq.SelectBuilder) ([]news.EnrichedItem, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get enriched items: %w", err)
	}
	defer rows.Close()

	var items []news.EnrichedItem
	for rows.Next() {
		var item news.EnrichedItem
		var eventDate, date, entities string
		var monitoringFlag int
		err := rows.Scan(&item.Entity, &item.RegNumber, &item.Text, &item.Summary, &item.EventType, &eventDate,
			&entities, &date, &item.Link, &item.Source, &item.Category, &item.Sentiment, &item.Informativeness,
			&item.SummaryHash, &item.Topic, &monitoringFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enriched item row: %w", err)
		}

		if item.EventDate, err = parseDate(eventDate); err != nil {
			return nil, err
		}
		if item.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(entities), &item.Entities); err != nil {
			return nil, fmt.Errorf("failed to decode entities: %w", err)
		}
		item.Monitoring = monitoringFlag == 1

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating enriched item rows: %w", err)
	}

	return items, nil
}
