package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

type SyncArticlesTask struct {
	Task
	syncer      ArticleSyncer
	maxArticles int
}

func NewSyncArticlesTask(syncer ArticleSyncer, maxArticles int) *SyncArticlesTask {
	return &SyncArticlesTask{
		Task:        NewTask(TaskTypeSyncArticles),
		syncer:      syncer,
		maxArticles: maxArticles,
	}
}

func (t *SyncArticlesTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	record, err := t.syncer.SyncAll(ctx, t.maxArticles)
	if err != nil {
		slog.Error("Task failed", "type", "SyncArticles", "error", err)
		return fmt.Errorf("failed to sync articles: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncArticles",
		"fetched", record.ArticlesFetched,
		"duration", t.GetDuration())

	return nil
}
