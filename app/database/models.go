package database

import (
	"time"
)

// Pipeline statuses for articles. An article enters as "synced" and moves
// through fetch and analysis toward "done" or "failed".
const (
	StatusSynced          = "synced"
	StatusPendingFetch    = "pending_fetch"
	StatusFetching        = "fetching"
	StatusPendingAnalysis = "pending_analysis"
	StatusAnalyzing       = "analyzing"
	StatusDone            = "done"
	StatusFailed          = "failed"
)

// Pipeline stages. Recorded on an article only while it is failed.
const (
	StageFetch    = "fetch"
	StageAnalysis = "analysis"
)

// Legacy full-text fetch statuses, kept for the fetch-only batch runner.
const (
	FetchPending = "pending"
	FetchSuccess = "success"
	FetchFailed  = "failed"
	FetchSkipped = "skipped"
)

// Per-feed full-text fetch policies.
const (
	FetchPolicyAuto   = "auto"
	FetchPolicyAlways = "always"
	FetchPolicyNever  = "never"
)

// Article is a synced reader item plus its pipeline state.
type Article struct {
	ID              string // FreshRSS item ID
	FeedID          string
	Title           string
	Author          string
	URL             string
	Content         string // raw HTML from the feed
	ContentText     string // plain text extracted from Content
	FullContent     string // fetched full text
	FullContentHTML string
	ContentSource   string // feed | fetched
	FetchStatus     string // legacy: pending | success | failed | skipped
	ProcessStatus   string
	ProcessStage    string // fetch | analysis, set only while failed
	ProcessError    string
	PublishedAt     *time.Time
	FetchedAt       time.Time
	IsRead          bool
	IsStarred       bool
	Rating          int
}

type Feed struct {
	ID            string // FreshRSS stream ID
	Title         string
	URL           string
	SiteURL       string
	IconURL       string
	Category      string
	FetchFullText string // auto | always | never
	Priority      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Analysis is the LLM output for one article. At most one row per article.
type Analysis struct {
	ID          int64
	ArticleID   string
	Summary     string
	KeyPoints   []string
	ValueScore  float64
	ReadingTime int
	Language    string
	Tags        []string
	ModelUsed   string
	AnalyzedAt  time.Time
}

// SyncRecord tracks one FreshRSS sync run.
type SyncRecord struct {
	ID              int64
	SyncType        string // full | incremental
	Status          string // running | success | failed
	ArticlesFetched int
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
}

// ProcessStats buckets articles by pipeline stage. Synced covers both
// synced and pending_fetch, matching how the stats endpoint groups them.
type ProcessStats struct {
	Synced          int `json:"synced"`
	Fetching        int `json:"fetching"`
	PendingAnalysis int `json:"pending_analysis"`
	Analyzing       int `json:"analyzing"`
	Done            int `json:"done"`
	Failed          int `json:"failed"`
	Total           int `json:"total"`
}

// FailedArticle is one row of the failed-articles listing.
type FailedArticle struct {
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	FeedTitle string `json:"feed_title"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// FetchStats buckets articles by legacy fetch status.
type FetchStats struct {
	Pending int `json:"pending"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// ArticleListItem is one row of the ranked article listing, with the
// analysis and feed columns joined in when present.
type ArticleListItem struct {
	Article
	FeedTitle   string
	FeedIconURL string
	Analysis    *Analysis
}

// ListOptions narrows and orders the article listing.
type ListOptions struct {
	Filter   string // unread | starred | all
	SortBy   string // value | date | feed
	FeedID   string
	MinScore *float64
	Page     int
	Limit    int
}
