package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/fetcher"
)

// ErrBatchActive is returned by Run while a previous batch is in flight.
var ErrBatchActive = errors.New("a fetch batch is already running")

// BatchError records one failed fetch attempt within a batch.
type BatchError struct {
	ArticleID string    `json:"article_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

// BatchStatus is the in-memory snapshot of one fetch batch. Retained until
// superseded by the next batch or process restart.
type BatchStatus struct {
	BatchID        string       `json:"batch_id"`
	Status         string       `json:"status"` // running | completed
	Total          int          `json:"total"`
	Completed      int          `json:"completed"`
	Failed         int          `json:"failed"`
	Skipped        int          `json:"skipped"`
	CurrentArticle string       `json:"current_article,omitempty"`
	Errors         []BatchError `json:"errors,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// FetchRunner fetches full text for articles with a pending legacy fetch
// status, concurrently up to a configured limit. It is independent of the
// pipeline engine; each article commits its own outcome.
type FetchRunner struct {
	articles database.ArticleRepository
	feeds    database.FeedRepository
	fetcher  ContentFetcher

	mu     sync.Mutex
	active bool
	status *BatchStatus
}

func NewFetchRunner(articles database.ArticleRepository, feeds database.FeedRepository, contentFetcher ContentFetcher) *FetchRunner {
	return &FetchRunner{
		articles: articles,
		feeds:    feeds,
		fetcher:  contentFetcher,
	}
}

// Run starts fetching up to batchSize pending articles with at most
// concurrency simultaneous downloads and returns the batch id. Only one
// batch may run at a time.
func (r *FetchRunner) Run(ctx context.Context, batchSize, concurrency int) (string, error) {
	if batchSize < 1 {
		batchSize = 20
	}
	if concurrency < 1 {
		concurrency = 4
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return "", ErrBatchActive
	}

	articles, err := r.articles.ListFetchPending(batchSize)
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("failed to list pending articles: %w", err)
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	r.status = &BatchStatus{
		BatchID:   batchID,
		Status:    "running",
		Total:     len(articles),
		StartedAt: now,
	}

	if len(articles) == 0 {
		r.status.Status = "completed"
		r.status.CompletedAt = &now
		r.mu.Unlock()

		slog.Info("No articles pending full-text fetch")
		return batchID, nil
	}

	r.active = true
	r.mu.Unlock()

	slog.Info("Fetch batch started", "batch_id", batchID, "total", len(articles), "concurrency", concurrency)

	go r.runBatch(ctx, articles, concurrency)

	return batchID, nil
}

// Status returns a copy of the latest batch snapshot, or nil if no batch
// has run yet.
func (r *FetchRunner) Status() *BatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == nil {
		return nil
	}

	snapshot := *r.status
	snapshot.Errors = append([]BatchError(nil), r.status.Errors...)

	return &snapshot
}

// Stats returns per-state counts over the legacy fetch status.
func (r *FetchRunner) Stats() (*database.FetchStats, error) {
	return r.articles.GetFetchStats()
}

// PendingCount returns how many articles await a full-text fetch.
func (r *FetchRunner) PendingCount() (int, error) {
	return r.articles.CountFetchPending()
}

// ResetFailed re-queues all failed fetches as pending.
func (r *FetchRunner) ResetFailed() (int, error) {
	return r.articles.ResetFetchFailed()
}

func (r *FetchRunner) runBatch(ctx context.Context, articles []database.Article, concurrency int) {
	defer func() {
		r.mu.Lock()
		now := time.Now().UTC()
		r.status.Status = "completed"
		r.status.CompletedAt = &now
		r.status.CurrentArticle = ""
		completed, failed, skipped := r.status.Completed, r.status.Failed, r.status.Skipped
		r.active = false
		r.mu.Unlock()

		slog.Info("Fetch batch completed", "completed", completed, "failed", failed, "skipped", skipped)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range articles {
		article := articles[i]
		g.Go(func() error {
			r.fetchOne(gctx, &article)
			return nil
		})
	}

	g.Wait()
}

// fetchOne commits exactly one outcome for the article: success, failed, or
// skipped. Articles are row-independent, so no cross-article locking.
func (r *FetchRunner) fetchOne(ctx context.Context, article *database.Article) {
	r.setCurrent(truncateLabel(article.Title, 30))

	if article.URL == "" {
		article.FetchStatus = database.FetchSkipped
		r.commit(article)
		r.addSkipped()
		return
	}

	feed, err := r.feeds.GetFeed(article.FeedID)
	if err != nil {
		slog.Warn("Failed to load feed for fetch policy, defaulting to auto", "feed_id", article.FeedID, "error", err)
	}

	if !r.shouldFetch(article, feed) {
		article.FetchStatus = database.FetchSkipped
		r.commit(article)
		r.addSkipped()
		return
	}

	result := r.fetcher.Fetch(ctx, article.URL)

	if result.Success && result.Content != "" {
		article.FullContent = result.Content
		article.FullContentHTML = result.ContentHTML
		article.ContentSource = "fetched"
		article.FetchStatus = database.FetchSuccess
		r.commit(article)
		r.addCompleted()
		slog.Info("Fetched full content", "article_id", article.ID, "words", result.WordCount)
		return
	}

	errMsg := result.Error
	if errMsg == "" {
		errMsg = "unknown fetch error"
	}
	article.FetchStatus = database.FetchFailed
	r.commit(article)
	r.addFailed(article, errMsg)
	slog.Warn("Fetch failed", "article_id", article.ID, "error", errMsg)
}

func (r *FetchRunner) shouldFetch(article *database.Article, feed *database.Feed) bool {
	if feed != nil {
		switch feed.FetchFullText {
		case database.FetchPolicyAlways:
			return true
		case database.FetchPolicyNever:
			return false
		}
	}

	return fetcher.NeedsFullContent(article.Title, article.ContentText)
}

func (r *FetchRunner) commit(article *database.Article) {
	if err := r.articles.UpdateProcessState(article); err != nil {
		slog.Error("Failed to persist fetch outcome", "article_id", article.ID, "error", err)
	}
}

func (r *FetchRunner) setCurrent(label string) {
	r.mu.Lock()
	r.status.CurrentArticle = label
	r.mu.Unlock()
}

func (r *FetchRunner) addCompleted() {
	r.mu.Lock()
	r.status.Completed++
	r.mu.Unlock()
}

func (r *FetchRunner) addSkipped() {
	r.mu.Lock()
	r.status.Skipped++
	r.mu.Unlock()
}

func (r *FetchRunner) addFailed(article *database.Article, errMsg string) {
	r.mu.Lock()
	r.status.Failed++
	r.status.Errors = append(r.status.Errors, BatchError{
		ArticleID: article.ID,
		Title:     article.Title,
		URL:       article.URL,
		Error:     errMsg,
		FailedAt:  time.Now().UTC(),
	})
	r.mu.Unlock()
}
