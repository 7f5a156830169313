package processor

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/fetcher"
	"github.com/taptao/FeedWise/app/llm"
)

// fakeArticleRepo is an in-memory ArticleRepository safe for concurrent use.
type fakeArticleRepo struct {
	mu       sync.Mutex
	articles map[string]*database.Article
	order    []string
}

var _ database.ArticleRepository = (*fakeArticleRepo)(nil)

func newFakeArticleRepo(articles ...*database.Article) *fakeArticleRepo {
	repo := &fakeArticleRepo{articles: make(map[string]*database.Article)}
	for _, a := range articles {
		copied := *a
		repo.articles[a.ID] = &copied
		repo.order = append(repo.order, a.ID)
	}
	return repo
}

func (r *fakeArticleRepo) get(id string) database.Article {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.articles[id]
}

func (r *fakeArticleRepo) all() []database.Article {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]database.Article, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.articles[id])
	}
	return out
}

func (r *fakeArticleRepo) GetArticle(id string) (*database.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.articles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (r *fakeArticleRepo) InsertArticleIfNew(article *database.Article) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.articles[article.ID]; ok {
		return false, nil
	}
	copied := *article
	r.articles[article.ID] = &copied
	r.order = append(r.order, article.ID)
	return true, nil
}

func (r *fakeArticleRepo) UpdateProcessState(article *database.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.articles[article.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.FullContent = article.FullContent
	stored.FullContentHTML = article.FullContentHTML
	stored.ContentSource = article.ContentSource
	stored.FetchStatus = article.FetchStatus
	stored.ProcessStatus = article.ProcessStatus
	stored.ProcessStage = article.ProcessStage
	stored.ProcessError = article.ProcessError
	return nil
}

func (r *fakeArticleRepo) SetRead(id string, read bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[id].IsRead = read
	return nil
}

func (r *fakeArticleRepo) SetStarred(id string, starred bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[id].IsStarred = starred
	return nil
}

func (r *fakeArticleRepo) ListEligible(statuses []string, limit int) ([]database.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []database.Article
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		if slices.Contains(statuses, r.articles[id].ProcessStatus) {
			out = append(out, *r.articles[id])
		}
	}
	return out, nil
}

func (r *fakeArticleRepo) CountByStatuses(statuses ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.articles {
		if slices.Contains(statuses, a.ProcessStatus) {
			count++
		}
	}
	return count, nil
}

func (r *fakeArticleRepo) GetProcessStats() (*database.ProcessStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &database.ProcessStats{}
	for _, a := range r.articles {
		switch a.ProcessStatus {
		case database.StatusSynced, database.StatusPendingFetch:
			stats.Synced++
		case database.StatusFetching:
			stats.Fetching++
		case database.StatusPendingAnalysis:
			stats.PendingAnalysis++
		case database.StatusAnalyzing:
			stats.Analyzing++
		case database.StatusDone:
			stats.Done++
		case database.StatusFailed:
			stats.Failed++
		}
		stats.Total++
	}
	return stats, nil
}

func (r *fakeArticleRepo) GetFailedArticles(page, limit int) ([]database.FailedArticle, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []database.FailedArticle
	for _, id := range r.order {
		a := r.articles[id]
		if a.ProcessStatus == database.StatusFailed {
			failed = append(failed, database.FailedArticle{
				ArticleID: a.ID,
				Title:     a.Title,
				URL:       a.URL,
				Stage:     a.ProcessStage,
				Error:     a.ProcessError,
			})
		}
	}
	total := len(failed)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	return failed[start:min(start+limit, total)], total, nil
}

func (r *fakeArticleRepo) ResetFailed() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.articles {
		if a.ProcessStatus != database.StatusFailed {
			continue
		}
		if a.ProcessStage == database.StageFetch {
			a.ProcessStatus = database.StatusPendingFetch
		} else {
			a.ProcessStatus = database.StatusPendingAnalysis
		}
		a.ProcessStage = ""
		a.ProcessError = ""
		count++
	}
	return count, nil
}

func (r *fakeArticleRepo) RewindStaleStatuses() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.articles {
		switch a.ProcessStatus {
		case database.StatusFetching:
			a.ProcessStatus = database.StatusPendingFetch
			count++
		case database.StatusAnalyzing:
			a.ProcessStatus = database.StatusPendingAnalysis
			count++
		}
	}
	return count, nil
}

func (r *fakeArticleRepo) ListFetchPending(limit int) ([]database.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []database.Article
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		if r.articles[id].FetchStatus == database.FetchPending {
			out = append(out, *r.articles[id])
		}
	}
	return out, nil
}

func (r *fakeArticleRepo) CountFetchPending() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.articles {
		if a.FetchStatus == database.FetchPending {
			count++
		}
	}
	return count, nil
}

func (r *fakeArticleRepo) GetFetchStats() (*database.FetchStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &database.FetchStats{}
	for _, a := range r.articles {
		switch a.FetchStatus {
		case database.FetchPending:
			stats.Pending++
		case database.FetchSuccess:
			stats.Success++
		case database.FetchFailed:
			stats.Failed++
		case database.FetchSkipped:
			stats.Skipped++
		}
		stats.Total++
	}
	return stats, nil
}

func (r *fakeArticleRepo) ResetFetchFailed() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.articles {
		if a.FetchStatus == database.FetchFailed {
			a.FetchStatus = database.FetchPending
			count++
		}
	}
	return count, nil
}

func (r *fakeArticleRepo) ListArticles(database.ListOptions) ([]database.ArticleListItem, int, error) {
	return nil, 0, nil
}

// fakeFeedRepo serves feeds from a fixed map.
type fakeFeedRepo struct {
	feeds map[string]*database.Feed
}

var _ database.FeedRepository = (*fakeFeedRepo)(nil)

func newFakeFeedRepo(feeds ...*database.Feed) *fakeFeedRepo {
	repo := &fakeFeedRepo{feeds: make(map[string]*database.Feed)}
	for _, f := range feeds {
		repo.feeds[f.ID] = f
	}
	return repo
}

func (r *fakeFeedRepo) GetFeed(id string) (*database.Feed, error) {
	f, ok := r.feeds[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return f, nil
}

func (r *fakeFeedRepo) UpsertFeed(feed *database.Feed) error {
	r.feeds[feed.ID] = feed
	return nil
}

func (r *fakeFeedRepo) ListFeeds() ([]database.Feed, error) {
	var out []database.Feed
	for _, f := range r.feeds {
		out = append(out, *f)
	}
	return out, nil
}

func (r *fakeFeedRepo) UpdateFeedSettings(id, fetchFullText string, priority int) error {
	if f, ok := r.feeds[id]; ok {
		f.FetchFullText = fetchFullText
		f.Priority = priority
	}
	return nil
}

func (r *fakeFeedRepo) GetFeedCount() (int, error) {
	return len(r.feeds), nil
}

// fakeAnalysisRepo stores one analysis per article.
type fakeAnalysisRepo struct {
	mu       sync.Mutex
	analyses map[string]*database.Analysis
	upserts  int
}

var _ database.AnalysisRepository = (*fakeAnalysisRepo)(nil)

func newFakeAnalysisRepo() *fakeAnalysisRepo {
	return &fakeAnalysisRepo{analyses: make(map[string]*database.Analysis)}
}

func (r *fakeAnalysisRepo) GetAnalysis(articleID string) (*database.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.analyses[articleID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (r *fakeAnalysisRepo) UpsertAnalysis(analysis *database.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[analysis.ArticleID] = analysis
	r.upserts++
	return nil
}

func (r *fakeAnalysisRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.analyses)
}

// stubFetcher returns canned results keyed by URL and tracks concurrency.
type stubFetcher struct {
	mu       sync.Mutex
	results  map[string]fetcher.Result
	fallback fetcher.Result
	calls    int
	inFlight int
	maxSeen  int
	delay    chan struct{} // when non-nil, each call blocks until a receive
}

func (s *stubFetcher) Fetch(_ context.Context, url string) fetcher.Result {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	if s.delay != nil {
		<-s.delay
	}

	s.mu.Lock()
	s.inFlight--
	result, ok := s.results[url]
	if !ok {
		result = s.fallback
	}
	s.mu.Unlock()

	return result
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubFetcher) maxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

// stubAnalyzer returns a fixed result or error; optional gate blocks each
// call until released.
type stubAnalyzer struct {
	mu       sync.Mutex
	result   *llm.AnalysisResult
	err      error
	calls    int
	started  chan string   // receives article title when a call begins
	gate     chan struct{} // when non-nil, each call blocks until a receive
	honorCtx bool          // when set, fails like an HTTP client on a dead context
}

func (s *stubAnalyzer) Analyze(ctx context.Context, title, _, _ string) (*llm.AnalysisResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.started != nil {
		s.started <- title
	}
	if s.gate != nil {
		<-s.gate
	}

	if s.honorCtx && ctx.Err() != nil {
		return nil, fmt.Errorf("Post \"http://llm.local/api/chat\": %w", ctx.Err())
	}
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	return &result, nil
}

func (s *stubAnalyzer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// captureBroadcaster records every event and signals completion.
type captureBroadcaster struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func newCaptureBroadcaster() *captureBroadcaster {
	return &captureBroadcaster{done: make(chan struct{}, 1)}
}

func (b *captureBroadcaster) Broadcast(event Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()

	if event.Type == EventCompleted {
		select {
		case b.done <- struct{}{}:
		default:
		}
	}
}

func (b *captureBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}
