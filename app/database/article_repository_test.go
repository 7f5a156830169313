package database

import (
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func insertTestFeed(t *testing.T, db *DB, id string) {
	t.Helper()

	repo := NewFeedRepository(db)
	err := repo.UpsertFeed(&Feed{ID: id, Title: "Feed " + id, URL: "https://example.com/" + id})
	if err != nil {
		t.Fatalf("failed to insert test feed: %v", err)
	}
}

func insertTestArticle(t *testing.T, db *DB, id, feedID, status string) {
	t.Helper()

	repo := NewArticleRepository(db)
	now := time.Now().UTC()
	inserted, err := repo.InsertArticleIfNew(&Article{
		ID:            id,
		FeedID:        feedID,
		Title:         "Article " + id,
		URL:           "https://example.com/articles/" + id,
		ContentText:   "some text",
		ContentSource: "feed",
		ProcessStatus: StatusSynced,
		PublishedAt:   timePtr(now),
		FetchedAt:     now,
	})
	if err != nil {
		t.Fatalf("failed to insert test article: %v", err)
	}
	if !inserted {
		t.Fatalf("expected article %s to be inserted", id)
	}

	if status != StatusSynced {
		article, err := repo.GetArticle(id)
		if err != nil {
			t.Fatal(err)
		}
		article.ProcessStatus = status
		if status == StatusFailed {
			article.ProcessStage = StageFetch
			article.ProcessError = "fetch failed"
		}
		if err := repo.UpdateProcessState(article); err != nil {
			t.Fatalf("failed to set article status: %v", err)
		}
	}
}

func TestInsertArticleIfNewSkipsExisting(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	repo := NewArticleRepository(db)

	article := &Article{
		ID:            "a1",
		FeedID:        "feed/1",
		Title:         "First title",
		ProcessStatus: StatusSynced,
		FetchedAt:     time.Now().UTC(),
	}

	inserted, err := repo.InsertArticleIfNew(article)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Error("expected first insert to report inserted")
	}

	article.Title = "Changed title"
	inserted, err = repo.InsertArticleIfNew(article)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("expected second insert to be a no-op")
	}

	stored, err := repo.GetArticle("a1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Title != "First title" {
		t.Errorf("expected original title to be preserved, got %q", stored.Title)
	}
}

func TestGetProcessStatsBuckets(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")

	insertTestArticle(t, db, "a1", "feed/1", StatusSynced)
	insertTestArticle(t, db, "a2", "feed/1", StatusPendingFetch)
	insertTestArticle(t, db, "a3", "feed/1", StatusPendingAnalysis)
	insertTestArticle(t, db, "a4", "feed/1", StatusFailed)
	insertTestArticle(t, db, "a5", "feed/1", StatusDone)

	repo := NewArticleRepository(db)
	stats, err := repo.GetProcessStats()
	if err != nil {
		t.Fatal(err)
	}

	if stats.Synced != 2 {
		t.Errorf("expected synced bucket 2 (synced + pending_fetch), got %d", stats.Synced)
	}
	if stats.PendingAnalysis != 1 {
		t.Errorf("expected pending_analysis 1, got %d", stats.PendingAnalysis)
	}
	if stats.Failed != 1 {
		t.Errorf("expected failed 1, got %d", stats.Failed)
	}
	if stats.Done != 1 {
		t.Errorf("expected done 1, got %d", stats.Done)
	}
	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
}

func TestListEligibleFiltersByStatus(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")

	insertTestArticle(t, db, "a1", "feed/1", StatusSynced)
	insertTestArticle(t, db, "a2", "feed/1", StatusDone)
	insertTestArticle(t, db, "a3", "feed/1", StatusPendingAnalysis)

	repo := NewArticleRepository(db)
	articles, err := repo.ListEligible([]string{StatusSynced, StatusPendingFetch, StatusPendingAnalysis}, 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(articles) != 2 {
		t.Fatalf("expected 2 eligible articles, got %d", len(articles))
	}
	for _, a := range articles {
		if a.ProcessStatus == StatusDone {
			t.Errorf("done article %s should not be eligible", a.ID)
		}
	}
}

func TestResetFailedRequeuesAtFailedStage(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	repo := NewArticleRepository(db)

	insertTestArticle(t, db, "a1", "feed/1", StatusSynced)
	insertTestArticle(t, db, "a2", "feed/1", StatusSynced)

	// Park a1 at fetch failure and a2 at analysis failure.
	a1, _ := repo.GetArticle("a1")
	a1.ProcessStatus = StatusFailed
	a1.ProcessStage = StageFetch
	a1.ProcessError = "download failed"
	if err := repo.UpdateProcessState(a1); err != nil {
		t.Fatal(err)
	}

	a2, _ := repo.GetArticle("a2")
	a2.ProcessStatus = StatusFailed
	a2.ProcessStage = StageAnalysis
	a2.ProcessError = "request timed out"
	if err := repo.UpdateProcessState(a2); err != nil {
		t.Fatal(err)
	}

	count, err := repo.ResetFailed()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 articles reset, got %d", count)
	}

	a1, _ = repo.GetArticle("a1")
	if a1.ProcessStatus != StatusPendingFetch {
		t.Errorf("expected a1 re-queued at pending_fetch, got %s", a1.ProcessStatus)
	}
	if a1.ProcessStage != "" || a1.ProcessError != "" {
		t.Errorf("expected a1 stage and error cleared, got stage=%q error=%q", a1.ProcessStage, a1.ProcessError)
	}

	a2, _ = repo.GetArticle("a2")
	if a2.ProcessStatus != StatusPendingAnalysis {
		t.Errorf("expected a2 re-queued at pending_analysis, got %s", a2.ProcessStatus)
	}
}

func TestResetFailedEmptyStore(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	insertTestArticle(t, db, "a1", "feed/1", StatusDone)

	repo := NewArticleRepository(db)
	count, err := repo.ResetFailed()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0 resets on a store with no failed articles, got %d", count)
	}

	article, _ := repo.GetArticle("a1")
	if article.ProcessStatus != StatusDone {
		t.Errorf("expected done article untouched, got %s", article.ProcessStatus)
	}
}

func TestRewindStaleStatuses(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	insertTestArticle(t, db, "a1", "feed/1", StatusFetching)
	insertTestArticle(t, db, "a2", "feed/1", StatusAnalyzing)
	insertTestArticle(t, db, "a3", "feed/1", StatusDone)

	repo := NewArticleRepository(db)
	count, err := repo.RewindStaleStatuses()
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 articles rewound, got %d", count)
	}

	a1, _ := repo.GetArticle("a1")
	if a1.ProcessStatus != StatusPendingFetch {
		t.Errorf("expected fetching rewound to pending_fetch, got %s", a1.ProcessStatus)
	}
	a2, _ := repo.GetArticle("a2")
	if a2.ProcessStatus != StatusPendingAnalysis {
		t.Errorf("expected analyzing rewound to pending_analysis, got %s", a2.ProcessStatus)
	}
	a3, _ := repo.GetArticle("a3")
	if a3.ProcessStatus != StatusDone {
		t.Errorf("expected done article untouched, got %s", a3.ProcessStatus)
	}
}

func TestGetFailedArticlesPaging(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	repo := NewArticleRepository(db)

	for _, id := range []string{"a1", "a2", "a3"} {
		insertTestArticle(t, db, id, "feed/1", StatusFailed)
	}

	items, total, err := repo.GetFailedArticles(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items on page 1, got %d", len(items))
	}
	for _, item := range items {
		if item.Stage != StageFetch {
			t.Errorf("expected stage fetch, got %q", item.Stage)
		}
		if item.FeedTitle != "Feed feed/1" {
			t.Errorf("expected feed title joined in, got %q", item.FeedTitle)
		}
	}

	items, _, err = repo.GetFailedArticles(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item on page 2, got %d", len(items))
	}
}

func TestUpsertAnalysisSingleRow(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	insertTestArticle(t, db, "a1", "feed/1", StatusDone)

	repo := NewAnalysisRepository(db)

	first := &Analysis{
		ArticleID:   "a1",
		Summary:     "first pass",
		KeyPoints:   []string{"one", "two"},
		ValueScore:  6.5,
		ReadingTime: 4,
		Language:    "en",
		Tags:        []string{"tech"},
		ModelUsed:   "gpt-4o-mini",
	}
	if err := repo.UpsertAnalysis(first); err != nil {
		t.Fatal(err)
	}

	second := &Analysis{
		ArticleID:  "a1",
		Summary:    "second pass",
		ValueScore: 8.0,
		Language:   "en",
		ModelUsed:  "gpt-4o-mini",
	}
	if err := repo.UpsertAnalysis(second); err != nil {
		t.Fatal(err)
	}

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM article_analyses WHERE article_id = ?", "a1").Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected exactly one analysis row after re-analysis, got %d", count)
	}

	stored, err := repo.GetAnalysis("a1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Summary != "second pass" {
		t.Errorf("expected summary overwritten, got %q", stored.Summary)
	}
	if stored.ValueScore != 8.0 {
		t.Errorf("expected value score 8.0, got %v", stored.ValueScore)
	}
}

func TestListArticlesFilterAndSort(t *testing.T) {
	db := setupTestDB(t)
	insertTestFeed(t, db, "feed/1")
	repo := NewArticleRepository(db)
	analysisRepo := NewAnalysisRepository(db)

	insertTestArticle(t, db, "a1", "feed/1", StatusDone)
	insertTestArticle(t, db, "a2", "feed/1", StatusDone)
	insertTestArticle(t, db, "a3", "feed/1", StatusDone)

	if err := repo.SetRead("a3", true); err != nil {
		t.Fatal(err)
	}

	analysisRepo.UpsertAnalysis(&Analysis{ArticleID: "a1", ValueScore: 3.0})
	analysisRepo.UpsertAnalysis(&Analysis{ArticleID: "a2", ValueScore: 9.0})

	items, total, err := repo.ListArticles(ListOptions{Filter: "unread", SortBy: "value", Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("expected 2 unread articles, got %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "a2" {
		t.Errorf("expected highest-scored article first, got %s", items[0].ID)
	}
	if items[0].Analysis == nil || items[0].Analysis.ValueScore != 9.0 {
		t.Error("expected analysis joined into listing")
	}

	minScore := 5.0
	items, total, err = repo.ListArticles(ListOptions{Filter: "all", MinScore: &minScore, Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != "a2" {
		t.Errorf("expected only a2 above min score, got total=%d", total)
	}
}
