// Package processor drives articles through the fetch and analysis pipeline.
// The Engine owns all lifecycle and concurrency state; the services it calls
// are stateless.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/fetcher"
	"github.com/taptao/FeedWise/app/llm"
)

// ErrAlreadyRunning is returned by Start while a run is active.
var ErrAlreadyRunning = errors.New("processing engine is already running")

// eligibleStatuses are the pipeline states a run picks work from.
var eligibleStatuses = []string{
	database.StatusSynced,
	database.StatusPendingFetch,
	database.StatusPendingAnalysis,
}

// ContentFetcher retrieves the full text of an article page. Failures are
// reported in the Result, never as an error.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) fetcher.Result
}

// ArticleAnalyzer produces a structured analysis for an article.
type ArticleAnalyzer interface {
	Analyze(ctx context.Context, title, content, feedName string) (*llm.AnalysisResult, error)
}

// Progress is a snapshot of the active run, reset by every Start.
type Progress struct {
	Status         string     `json:"status"` // idle | running | paused
	Total          int        `json:"total"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	CurrentArticle string     `json:"current_article,omitempty"`
	CurrentStage   string     `json:"current_stage,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
}

// Engine runs the article pipeline: fetch full text where needed, then
// analyze. One engine instance is active process-wide.
type Engine struct {
	articles    database.ArticleRepository
	feeds       database.FeedRepository
	analyses    database.AnalysisRepository
	fetcher     ContentFetcher
	analyzer    ArticleAnalyzer
	broadcaster Broadcaster
	limiter     *Limiter
	modelName   string

	mu       sync.Mutex
	cond     *sync.Cond
	running  bool
	paused   bool
	cancel   context.CancelFunc
	progress Progress
}

func NewEngine(
	articles database.ArticleRepository,
	feeds database.FeedRepository,
	analyses database.AnalysisRepository,
	contentFetcher ContentFetcher,
	analyzer ArticleAnalyzer,
	broadcaster Broadcaster,
	limiter *Limiter,
	modelName string,
) *Engine {
	e := &Engine{
		articles:    articles,
		feeds:       feeds,
		analyses:    analyses,
		fetcher:     contentFetcher,
		analyzer:    analyzer,
		broadcaster: broadcaster,
		limiter:     limiter,
		modelName:   modelName,
		progress:    Progress{Status: "idle"},
	}
	e.cond = sync.NewCond(&e.mu)

	return e
}

// Start launches a pipeline run in the background. It returns
// ErrAlreadyRunning while a previous run is still active; counters of the
// active run are left untouched in that case.
func (e *Engine) Start(ctx context.Context, batchSize int) error {
	if batchSize < 1 {
		batchSize = 50
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.paused = false
	e.cancel = cancel

	now := time.Now().UTC()
	e.progress = Progress{Status: "running", StartedAt: &now}
	e.mu.Unlock()

	slog.Info("Processing engine started", "batch_size", batchSize)
	e.broadcaster.Broadcast(Event{Type: EventStarted, Data: struct{}{}})

	go e.runLoop(runCtx, batchSize)

	return nil
}

// Pause stops the run loop before the next article. The in-flight article
// finishes and commits normally. The run stays alive until Resume or Stop.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.paused {
		return
	}

	e.paused = true
	e.progress.Status = "paused"
	slog.Info("Processing engine paused")
}

// Resume continues a paused run. It has no effect once the run has exited.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || !e.paused {
		return
	}

	e.paused = false
	e.progress.Status = "running"
	e.cond.Broadcast()
	slog.Info("Processing engine resumed")
}

// Stop ends the run after the in-flight article completes.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.running = false
	e.paused = false
	if e.cancel != nil {
		e.cancel()
	}
	e.cond.Broadcast()
	slog.Info("Processing engine stopped")
}

// Status returns a copy of the current run progress.
func (e *Engine) Status() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.progress
}

// Stats returns per-state article counts.
func (e *Engine) Stats() (*database.ProcessStats, error) {
	return e.articles.GetProcessStats()
}

// FailedArticles returns one page of failed articles plus the total count.
func (e *Engine) FailedArticles(page, limit int) ([]database.FailedArticle, int, error) {
	return e.articles.GetFailedArticles(page, limit)
}

// ResetFailed re-queues every failed article at the stage it failed.
func (e *Engine) ResetFailed() (int, error) {
	return e.articles.ResetFailed()
}

// Recover rewinds articles stuck in transient states by a previous process.
// Called once at startup before any run is accepted.
func (e *Engine) Recover() (int, error) {
	count, err := e.articles.RewindStaleStatuses()
	if err != nil {
		return 0, fmt.Errorf("failed to rewind stale articles: %w", err)
	}
	if count > 0 {
		slog.Info("Rewound articles left in transient states", "count", count)
	}

	return count, nil
}

func (e *Engine) runLoop(ctx context.Context, batchSize int) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.paused = false
		e.progress.Status = "idle"
		e.progress.CurrentArticle = ""
		e.progress.CurrentStage = ""
		completed, failed, total := e.progress.Completed, e.progress.Failed, e.progress.Total
		if e.cancel != nil {
			e.cancel()
		}
		e.mu.Unlock()

		e.broadcaster.Broadcast(Event{Type: EventCompleted, Data: CompletedData{
			Total:   total,
			Success: completed,
			Failed:  failed,
		}})
		slog.Info("Processing run finished", "total", total, "completed", completed, "failed", failed)
	}()

	total, err := e.articles.CountByStatuses(eligibleStatuses...)
	if err != nil {
		slog.Error("Failed to count eligible articles", "error", err)
		return
	}

	e.mu.Lock()
	e.progress.Total = total
	e.mu.Unlock()

	e.broadcastProgress()

	for {
		if !e.waitIfPaused() || ctx.Err() != nil {
			return
		}

		batch, err := e.articles.ListEligible(eligibleStatuses, batchSize)
		if err != nil {
			slog.Error("Failed to load eligible articles", "error", err)
			return
		}
		if len(batch) == 0 {
			slog.Info("No articles left to process")
			return
		}

		for i := range batch {
			if !e.waitIfPaused() || ctx.Err() != nil {
				return
			}

			e.processOne(ctx, &batch[i])
			e.broadcastProgress()
		}
	}
}

// waitIfPaused blocks while the engine is paused and reports whether the run
// should continue.
func (e *Engine) waitIfPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.paused && e.running {
		e.cond.Wait()
	}

	return e.running
}

// processOne drives a single article through its remaining stages. A panic
// in either stage parks the article as failed and never escapes: one
// article's error must not abort the run.
func (e *Engine) processOne(ctx context.Context, article *database.Article) {
	e.mu.Lock()
	e.progress.CurrentArticle = truncateLabel(article.Title, 50)
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Unexpected failure while processing article", "article_id", article.ID, "panic", r)

			stage := database.StageFetch
			if article.ProcessStatus == database.StatusAnalyzing ||
				article.ProcessStatus == database.StatusPendingAnalysis {
				stage = database.StageAnalysis
			}
			e.failArticle(article, stage, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	if article.ProcessStatus == database.StatusSynced ||
		article.ProcessStatus == database.StatusPendingFetch {
		e.doFetch(ctx, article)
	}

	if article.ProcessStatus == database.StatusPendingAnalysis {
		e.doAnalysis(ctx, article)
	}
}

func (e *Engine) doFetch(ctx context.Context, article *database.Article) {
	e.setStage(database.StageFetch)

	e.transition(article, database.StatusFetching)

	if article.URL == "" {
		article.FetchStatus = database.FetchSkipped
		e.transition(article, database.StatusPendingAnalysis)
		slog.Info("Skipping full-text fetch, article has no URL", "article_id", article.ID)
		return
	}

	feed, err := e.feeds.GetFeed(article.FeedID)
	if err != nil {
		slog.Warn("Failed to load feed for fetch policy, defaulting to auto", "feed_id", article.FeedID, "error", err)
	}

	if !e.shouldFetch(article, feed) {
		article.FetchStatus = database.FetchSkipped
		e.transition(article, database.StatusPendingAnalysis)
		slog.Info("Skipping full-text fetch per feed policy", "article_id", article.ID)
		return
	}

	// Stop cancels the run context only to wake pause and permit waits; an
	// in-flight stage always runs to completion.
	result := e.fetcher.Fetch(context.WithoutCancel(ctx), article.URL)

	if result.Success && result.Content != "" {
		article.FullContent = result.Content
		article.FullContentHTML = result.ContentHTML
		article.ContentSource = "fetched"
		article.FetchStatus = database.FetchSuccess
		e.transition(article, database.StatusPendingAnalysis)
		slog.Info("Full content fetched", "article_id", article.ID, "words", result.WordCount)
		return
	}

	errMsg := result.Error
	if errMsg == "" {
		errMsg = "unknown fetch error"
	}
	article.FetchStatus = database.FetchFailed
	e.failArticle(article, database.StageFetch, errMsg)
	slog.Warn("Full-text fetch failed", "article_id", article.ID, "error", errMsg)
}

// shouldFetch applies the feed's full-text policy; auto defers to the
// content detector.
func (e *Engine) shouldFetch(article *database.Article, feed *database.Feed) bool {
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

func (e *Engine) doAnalysis(ctx context.Context, article *database.Article) {
	e.setStage(database.StageAnalysis)

	e.transition(article, database.StatusAnalyzing)

	content := article.FullContent
	if content == "" {
		content = article.ContentText
	}
	if content == "" {
		// Nothing to analyze counts as a degenerate success.
		e.transition(article, database.StatusDone)
		e.addCompleted()
		slog.Info("Skipping analysis, article has no content", "article_id", article.ID)
		return
	}

	release, err := e.limiter.Acquire(ctx)
	if err != nil {
		// Stopped while waiting for a permit; put the article back.
		e.transition(article, database.StatusPendingAnalysis)
		return
	}
	defer release()

	result, err := e.analyzer.Analyze(context.WithoutCancel(ctx), article.Title, content, "")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// A cancellation is never the article's fault; put it back.
			e.transition(article, database.StatusPendingAnalysis)
			return
		}
		classified := classifyAnalysisError(err)
		e.failArticle(article, database.StageAnalysis, classified)
		slog.Warn("Analysis failed", "article_id", article.ID, "error", classified)
		return
	}

	analysis := &database.Analysis{
		ArticleID:   article.ID,
		Summary:     result.Summary,
		KeyPoints:   result.KeyPoints,
		ValueScore:  result.ValueScore,
		ReadingTime: result.ReadingTime,
		Language:    result.Language,
		Tags:        result.Tags,
		ModelUsed:   e.modelName,
	}
	if err := e.analyses.UpsertAnalysis(analysis); err != nil {
		e.failArticle(article, database.StageAnalysis, fmt.Sprintf("failed to save analysis: %v", err))
		slog.Error("Failed to save analysis", "article_id", article.ID, "error", err)
		return
	}

	e.transition(article, database.StatusDone)
	e.addCompleted()
	slog.Info("Analysis completed", "article_id", article.ID, "score", result.ValueScore)

	e.broadcaster.Broadcast(Event{Type: EventItemDone, Data: ItemDoneData{
		ArticleID: article.ID,
		Title:     article.Title,
	}})
}

// transition moves the article to a non-failed status, clearing failure
// metadata, and commits immediately.
func (e *Engine) transition(article *database.Article, status string) {
	article.ProcessStatus = status
	article.ProcessStage = ""
	article.ProcessError = ""

	if err := e.articles.UpdateProcessState(article); err != nil {
		slog.Error("Failed to persist article state", "article_id", article.ID, "status", status, "error", err)
	}
}

// failArticle parks the article as failed at the given stage, commits, and
// emits an item_failed event.
func (e *Engine) failArticle(article *database.Article, stage, errMsg string) {
	article.ProcessStatus = database.StatusFailed
	article.ProcessStage = stage
	article.ProcessError = errMsg

	if err := e.articles.UpdateProcessState(article); err != nil {
		slog.Error("Failed to persist article failure", "article_id", article.ID, "error", err)
	}

	e.mu.Lock()
	e.progress.Failed++
	e.mu.Unlock()

	e.broadcaster.Broadcast(Event{Type: EventItemFailed, Data: ItemFailedData{
		ArticleID: article.ID,
		Title:     article.Title,
		Stage:     stage,
		Error:     errMsg,
	}})
}

func (e *Engine) addCompleted() {
	e.mu.Lock()
	e.progress.Completed++
	e.mu.Unlock()
}

func (e *Engine) setStage(stage string) {
	e.mu.Lock()
	e.progress.CurrentStage = stage
	e.mu.Unlock()
}

func (e *Engine) broadcastProgress() {
	e.mu.Lock()
	data := ProgressData{
		Total:     e.progress.Total,
		Completed: e.progress.Completed,
		Failed:    e.progress.Failed,
		Current:   e.progress.CurrentArticle,
		Stage:     e.progress.CurrentStage,
	}
	e.mu.Unlock()

	e.broadcaster.Broadcast(Event{Type: EventProgress, Data: data})
}

// classifyAnalysisError upgrades common transport and parse failures to
// user-facing messages; everything else keeps a truncated raw message.
func classifyAnalysisError(err error) string {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "deadline exceeded"):
		return "request timed out: LLM service is not responding"
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"),
		strings.Contains(lower, "connection"):
		return "connection failed: LLM service is unreachable"
	case strings.Contains(lower, "json"),
		strings.Contains(lower, "parse"):
		return "invalid response: LLM did not return the expected JSON"
	default:
		return truncateLabel(msg, 100)
	}
}

func truncateLabel(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}

	return string(runes[:max])
}
