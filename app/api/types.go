package api

import (
	"context"
	"net/http"

	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/llm"
	"github.com/taptao/FeedWise/app/parser"
	"github.com/taptao/FeedWise/app/processor"
	"github.com/taptao/FeedWise/app/reader"
	"github.com/taptao/FeedWise/app/sync"
	"github.com/taptao/FeedWise/app/tasks"
	"github.com/taptao/FeedWise/app/ws"
)

// ProcessEngineInterface is the pipeline control surface used by handlers.
type ProcessEngineInterface interface {
	Start(ctx context.Context, batchSize int) error
	Pause()
	Resume()
	Stop()
	Status() processor.Progress
	Stats() (*database.ProcessStats, error)
	FailedArticles(page, limit int) ([]database.FailedArticle, int, error)
	ResetFailed() (int, error)
}

var _ ProcessEngineInterface = (*processor.Engine)(nil)

// FetchRunnerInterface is the fetch-only batch control surface.
type FetchRunnerInterface interface {
	Run(ctx context.Context, batchSize, concurrency int) (string, error)
	Status() *processor.BatchStatus
	Stats() (*database.FetchStats, error)
	PendingCount() (int, error)
	ResetFailed() (int, error)
}

var _ FetchRunnerInterface = (*processor.FetchRunner)(nil)

// SyncServiceInterface exposes reader synchronization to handlers.
type SyncServiceInterface interface {
	SyncAll(ctx context.Context, maxArticles int) (*database.SyncRecord, error)
	LatestStatus() (*database.SyncRecord, error)
}

var _ SyncServiceInterface = (*sync.Service)(nil)

// ArticleAnalyzerInterface runs LLM analysis for a single article, with a
// streaming variant that yields raw response chunks.
type ArticleAnalyzerInterface interface {
	Analyze(ctx context.Context, title, content, feedName string) (*llm.AnalysisResult, error)
	AnalyzeStream(ctx context.Context, title, content, feedName string, fn func(chunk string) error) error
}

var _ ArticleAnalyzerInterface = (*llm.Analyzer)(nil)

// FeedPreviewerInterface fetches and parses a feed without subscribing.
type FeedPreviewerInterface interface {
	Preview(ctx context.Context, url string, maxItems int) (*parser.FeedPreview, error)
}

var _ FeedPreviewerInterface = (*parser.Parser)(nil)

// ReaderStateWriter propagates read and starred state back to FreshRSS.
type ReaderStateWriter interface {
	MarkRead(ctx context.Context, itemID string) error
	MarkUnread(ctx context.Context, itemID string) error
	Star(ctx context.Context, itemID string) error
	Unstar(ctx context.Context, itemID string) error
}

var _ ReaderStateWriter = (*reader.Client)(nil)

// ConcurrencyLimiterInterface adjusts the analysis concurrency at runtime.
type ConcurrencyLimiterInterface interface {
	SetLimit(limit int)
	Limit() int
}

var _ ConcurrencyLimiterInterface = (*processor.Limiter)(nil)

// HubInterface serves websocket clients for progress events.
type HubInterface interface {
	Serve(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

var _ HubInterface = (*ws.Hub)(nil)

type Handler struct {
	articleRepo     database.ArticleRepository
	feedRepo        database.FeedRepository
	analysisRepo    database.AnalysisRepository
	engine          ProcessEngineInterface
	runner          FetchRunnerInterface
	syncService     SyncServiceInterface
	previewer       FeedPreviewerInterface
	readerClient    ReaderStateWriter
	analyzer        ArticleAnalyzerInterface
	limiter         ConcurrencyLimiterInterface
	hub             HubInterface
	scheduler       tasks.TaskSchedulerInterface
	syncMaxArticles int
	modelName       string
}
