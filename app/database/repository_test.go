package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/bankwatch/app/news"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func date(s string) time.Time {
	d, err := news.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRunMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := RunMigrations(db)
	if err != nil {
		t.Fatalf("Expected no error on repeated migration, got: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}
	if dirty {
		t.Error("Expected clean migration state")
	}

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", MigrationsTable).Scan(&name)
	if err != nil {
		t.Errorf("Expected version table %s, got: %v", MigrationsTable, err)
	}
}

func TestRunMigrationsRefusesDirtySchema(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec("UPDATE "+MigrationsTable+" SET dirty = 1"); err != nil {
		t.Fatalf("Failed to mark schema dirty: %v", err)
	}

	_, dirty, err := RunMigrations(db)
	if !errors.Is(err, ErrDirtySchema) {
		t.Errorf("Expected ErrDirtySchema, got: %v", err)
	}
	if !dirty {
		t.Error("Expected dirty flag to be reported")
	}
}

func TestInsertRawItemsSkipsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	items := []news.RawItem{
		{Entity: "Сбербанк", Text: "one", Date: date("2024-03-01"), Link: "https://a.ru/1"},
		{Entity: "Сбербанк", Text: "two", Date: date("2024-03-02"), Link: "https://a.ru/2"},
	}

	inserted, err := repo.InsertRawItems(ctx, items)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}

	inserted, err = repo.InsertRawItems(ctx, items)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted on repeat, got %d", inserted)
	}

	// Same link in monitoring mode is a separate row.
	monitoring := items[0]
	monitoring.Monitoring = true
	inserted, err = repo.InsertRawItems(ctx, []news.RawItem{monitoring})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected monitoring copy to be inserted, got %d", inserted)
	}
}

func TestGetRawItemsAndExistingLinks(t *testing.T) {
	db := setupTestDB(t)
	repo := NewItemRepository(db)
	ctx := context.Background()

	_, err := repo.InsertRawItems(ctx, []news.RawItem{
		{Entity: "ВТБ", Text: "early", Date: date("2024-02-01"), Link: "https://a.ru/early"},
		{Entity: "ВТБ", Text: "inside", Date: date("2024-03-05"), Link: "https://a.ru/inside"},
		{Entity: "Альфа", Text: "other", Date: date("2024-03-05"), Link: "https://a.ru/other"},
	})
	if err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	items, err := repo.GetRawItems(ctx, "ВТБ", news.NewDateRange(date("2024-03-01"), date("2024-03-31")), false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 1 || items[0].Link != "https://a.ru/inside" {
		t.Fatalf("Expected only the in-range item, got %+v", items)
	}
	if !items[0].Date.Equal(date("2024-03-05")) {
		t.Errorf("Expected date 2024-03-05, got %v", items[0].Date)
	}

	existing, err := repo.GetExistingLinks(ctx, "ВТБ", false, []string{"https://a.ru/early", "https://a.ru/new", "https://a.ru/other"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !existing["https://a.ru/early"] {
		t.Error("Expected early link to exist")
	}
	if existing["https://a.ru/new"] || existing["https://a.ru/other"] {
		t.Errorf("Unexpected links reported: %v", existing)
	}
}

func TestEnrichedItemsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEnrichedRepository(db)
	ctx := context.Background()

	item := news.EnrichedItem{
		Entity:          "Сбербанк",
		Text:            "Сбербанк получил штраф",
		Summary:         "Сбербанк оштрафован ЦБ",
		EventType:       "штраф",
		EventDate:       date("2024-03-04"),
		Entities:        []string{"Сбербанк", "ЦБ"},
		Date:            date("2024-03-05"),
		Link:            "https://tass.ru/1",
		Source:          "tass",
		Category:        news.CategoryRisk,
		Sentiment:       news.SentimentNegative,
		Informativeness: 15,
		SummaryHash:     news.ContentHash("Сбербанк оштрафован ЦБ"),
		Topic:           "регулирование",
	}

	inserted, err := repo.InsertEnrichedItems(ctx, []news.EnrichedItem{item, item})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected 1 inserted, got %d", inserted)
	}

	items, err := repo.GetEnrichedItems(ctx, "Сбербанк", news.NewDateRange(date("2024-03-01"), date("2024-03-31")), "", false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	got := items[0]
	if got.Summary != item.Summary || got.Category != item.Category || got.Informativeness != 15 {
		t.Errorf("Unexpected item: %+v", got)
	}
	if len(got.Entities) != 2 || got.Entities[1] != "ЦБ" {
		t.Errorf("Expected entities to round trip, got %v", got.Entities)
	}
	if !got.EventDate.Equal(item.EventDate) {
		t.Errorf("Expected event date %v, got %v", item.EventDate, got.EventDate)
	}

	items, err = repo.GetEnrichedItems(ctx, "Сбербанк", news.NewDateRange(date("2024-03-01"), date("2024-03-31")), "ипотека", false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected topic filter to exclude item, got %d", len(items))
	}

	count, err := repo.GetEnrichedCount(ctx, "Сбербанк")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestGetEnrichedSince(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	db.Now = func() time.Time { return now }
	repo := NewEnrichedRepository(db)
	ctx := context.Background()

	first := news.EnrichedItem{Entity: "ВТБ", Summary: "a", SummaryHash: "a", Link: "https://a.ru/1", Monitoring: true}
	if _, err := repo.InsertEnrichedItems(ctx, []news.EnrichedItem{first}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	now = now.Add(time.Hour)
	second := news.EnrichedItem{Entity: "ВТБ", Summary: "b", SummaryHash: "b", Link: "https://a.ru/2", Monitoring: true}
	if _, err := repo.InsertEnrichedItems(ctx, []news.EnrichedItem{second}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	items, err := repo.GetEnrichedSince(ctx, "ВТБ", now.Add(-30*time.Minute), true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 1 || items[0].Link != "https://a.ru/2" {
		t.Errorf("Expected only the later item, got %+v", items)
	}

	items, err = repo.GetEnrichedSince(ctx, "ВТБ", now.Add(-30*time.Minute), false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected on-demand items to be separate, got %d", len(items))
	}
}

func TestCoverageUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCoverageRepository(db)
	ctx := context.Background()

	c, err := repo.GetCoverage(ctx, "ВТБ")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if c != nil {
		t.Fatalf("Expected nil coverage for unknown entity, got %+v", c)
	}

	refresh := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	err = repo.UpsertCoverage(ctx, Coverage{Entity: "ВТБ", CoveredFrom: date("2024-03-01"), CoveredTo: date("2024-03-10"), LastRefresh: refresh})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	err = repo.UpsertCoverage(ctx, Coverage{Entity: "ВТБ", CoveredFrom: date("2024-02-01"), CoveredTo: date("2024-03-10"), LastRefresh: refresh})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	c, err = repo.GetCoverage(ctx, "ВТБ")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !c.CoveredFrom.Equal(date("2024-02-01")) {
		t.Errorf("Expected covered_from 2024-02-01, got %v", c.CoveredFrom)
	}
	if !c.LastRefresh.Equal(refresh) {
		t.Errorf("Expected last refresh %v, got %v", refresh, c.LastRefresh)
	}
}

func TestSubscriptions(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	db.Now = func() time.Time { return now }
	repo := NewSubscriptionRepository(db)
	ctx := context.Background()

	created, err := repo.Subscribe(ctx, "100", "ВТБ")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !created {
		t.Error("Expected new subscription")
	}

	created, err = repo.Subscribe(ctx, "100", "ВТБ")
	if err != nil {
		t.Fatalf("Expected duplicate to be swallowed, got: %v", err)
	}
	if created {
		t.Error("Expected duplicate subscription to report false")
	}

	now = now.Add(-60 * 24 * time.Hour)
	if _, err := repo.Subscribe(ctx, "200", "Альфа"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	active, err := repo.GetActiveEntities(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(active) != 1 || active[0] != "ВТБ" {
		t.Errorf("Expected only ВТБ active, got %v", active)
	}

	if err := repo.MarkNotified(ctx, "200", now); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	active, err = repo.GetActiveEntities(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("Expected notified entity to become active, got %v", active)
	}

	subscribers, err := repo.GetSubscribersByEntity(ctx, "ВТБ")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(subscribers) != 1 || subscribers[0] != "100" {
		t.Errorf("Expected subscriber 100, got %v", subscribers)
	}

	removed, err := repo.Unsubscribe(ctx, "100", "ВТБ")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !removed {
		t.Error("Expected subscription to be removed")
	}

	removed, err = repo.Unsubscribe(ctx, "100", "ВТБ")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if removed {
		t.Error("Expected second unsubscribe to report false")
	}

	all, err := repo.GetSubscribers(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(all) != 1 || all[0] != "200" {
		t.Errorf("Expected only subscriber 200, got %v", all)
	}
}
