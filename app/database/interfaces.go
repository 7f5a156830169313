package database

type ArticleRepository interface {
	GetArticle(id string) (*Article, error)
	InsertArticleIfNew(article *Article) (bool, error)
	UpdateProcessState(article *Article) error
	SetRead(id string, read bool) error
	SetStarred(id string, starred bool) error

	ListEligible(statuses []string, limit int) ([]Article, error)
	CountByStatuses(statuses ...string) (int, error)
	GetProcessStats() (*ProcessStats, error)
	GetFailedArticles(page, limit int) ([]FailedArticle, int, error)
	ResetFailed() (int, error)
	RewindStaleStatuses() (int, error)

	ListFetchPending(limit int) ([]Article, error)
	CountFetchPending() (int, error)
	GetFetchStats() (*FetchStats, error)
	ResetFetchFailed() (int, error)

	ListArticles(opts ListOptions) ([]ArticleListItem, int, error)
}

type FeedRepository interface {
	GetFeed(id string) (*Feed, error)
	UpsertFeed(feed *Feed) error
	ListFeeds() ([]Feed, error)
	UpdateFeedSettings(id string, fetchFullText string, priority int) error
	GetFeedCount() (int, error)
}

type AnalysisRepository interface {
	GetAnalysis(articleID string) (*Analysis, error)
	UpsertAnalysis(analysis *Analysis) error
}

type SyncRepository interface {
	CreateSyncRecord(record *SyncRecord) (int64, error)
	CompleteSyncRecord(record *SyncRecord) error
	GetLatestSyncRecord() (*SyncRecord, error)
}
