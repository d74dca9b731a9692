package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/lysyi3m/bankwatch/app/news"
)

var _ RawItemRepository = (*ItemRepository)(nil)

// ItemRepository stores raw producer output.
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// InsertRawItems stores items, skipping (mode, link, entity) duplicates, and returns the number inserted.
func (r *ItemRepository) InsertRawItems(ctx context.Context, items []news.RawItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	inserted := 0
	err := r.db.Write(ctx, func(tx *sql.Tx) error {
		createdAt := formatTime(r.db.Now())
		for _, item := range items {
			query, args, err := psql.Insert("raw_items").
				Columns("entity", "reg_number", "source", "text", "date", "link", "topic", "is_monitoring", "created_at").
				Values(item.Entity, item.RegNumber, item.Source, item.Text, news.FormatDate(item.Date), item.Link,
					item.Topic, boolToInt(item.Monitoring), createdAt).
				Suffix("ON CONFLICT (is_monitoring, link, entity) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build insert: %w", err)
			}

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to insert raw item: %w", err)
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

// GetExistingLinks returns which of links are already stored for entity.
func (r *ItemRepository) GetExistingLinks(ctx context.Context, entity string, monitoring bool, links []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(links) == 0 {
		return existing, nil
	}

	query, args, err := psql.Select("link").
		From("raw_items").
		Where(sq.Eq{"entity": entity, "is_monitoring": boolToInt(monitoring), "link": links}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		existing[link] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating link rows: %w", err)
	}

	return existing, nil
}

func (r *ItemRepository) GetRawItems(ctx context.Context, entity string, dr news.DateRange, monitoring bool) ([]news.RawItem, error) {
	query, args, err := psql.Select("entity", "reg_number", "source", "text", "date", "link", "topic", "is_monitoring").
		From("raw_items").
		Where(sq.Eq{"entity": entity, "is_monitoring": boolToInt(monitoring)}).
		Where(sq.GtOrEq{"date": news.FormatDate(dr.From)}).
		Where(sq.LtOrEq{"date": news.FormatDate(dr.To)}).
		OrderBy("date DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get raw items: %w", err)
	}
	defer rows.Close()

	var items []news.RawItem
	for rows.Next() {
		var item news.RawItem
		var date string
		var monitoringFlag int
		if err := rows.Scan(&item.Entity, &item.RegNumber, &item.Source, &item.Text, &date, &item.Link,
			&item.Topic, &monitoringFlag); err != nil {
			return nil, fmt.Errorf("failed to scan raw item row: %w", err)
		}
		if item.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		item.Monitoring = monitoringFlag == 1
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw item rows: %w", err)
	}

	return items, nil
}
