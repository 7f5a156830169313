package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taptao/FeedWise/app/processor"
)

type FetchPendingTask struct {
	Task
	fetcher     BatchFetcher
	batchSize   int
	concurrency int
}

func NewFetchPendingTask(fetcher BatchFetcher, batchSize, concurrency int) *FetchPendingTask {
	return &FetchPendingTask{
		Task:        NewTask(TaskTypeFetchPending),
		fetcher:     fetcher,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

func (t *FetchPendingTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Run returns as soon as the batch goroutine is spawned; the worker's
	// task context is cancelled right after, so the batch must not inherit it.
	batchID, err := t.fetcher.Run(context.WithoutCancel(ctx), t.batchSize, t.concurrency)
	if err != nil {
		if errors.Is(err, processor.ErrBatchActive) {
			slog.Debug("Task skipped, a fetch batch is already running", "type", "FetchPending")
			return nil
		}
		slog.Error("Task failed", "type", "FetchPending", "error", err)
		return fmt.Errorf("failed to start fetch batch: %w", err)
	}

	slog.Info("Task completed",
		"type", "FetchPending",
		"batch_id", batchID,
		"duration", t.GetDuration())

	return nil
}
