package tasks

import (
	"context"

	"github.com/taptao/FeedWise/app/database"
)

// TaskSchedulerInterface defines the interface for background task scheduling.
// Used by the main application to manage the worker pool that keeps article
// synchronization and content fetching running on a fixed interval.
// Example usage:
//
//	scheduler := NewScheduler(syncService, fetchRunner)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewSyncArticlesTask(syncService, maxArticles))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// ArticleSyncer pulls new articles and subscriptions from the reader service.
type ArticleSyncer interface {
	SyncAll(ctx context.Context, maxArticles int) (*database.SyncRecord, error)
}

// BatchFetcher runs a background full-content fetch batch.
type BatchFetcher interface {
	Run(ctx context.Context, batchSize, concurrency int) (string, error)
}
