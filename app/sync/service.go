// Package sync pulls feeds and articles out of FreshRSS into the local
// store.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/reader"
)

// ReaderClient is the slice of the FreshRSS client the sync service needs.
type ReaderClient interface {
	Login(ctx context.Context) error
	GetSubscriptions(ctx context.Context) ([]reader.Subscription, error)
	GetUnreadItems(ctx context.Context, limit int) ([]reader.Item, error)
}

// Service copies subscriptions and unread articles from FreshRSS into the
// database. New articles enter the pipeline in the synced state.
type Service struct {
	client   ReaderClient
	articles database.ArticleRepository
	feeds    database.FeedRepository
	syncs    database.SyncRepository
}

func NewService(client ReaderClient, articles database.ArticleRepository, feeds database.FeedRepository, syncs database.SyncRepository) *Service {
	return &Service{
		client:   client,
		articles: articles,
		feeds:    feeds,
		syncs:    syncs,
	}
}

// SyncFeeds upserts all FreshRSS subscriptions and returns how many were
// processed.
func (s *Service) SyncFeeds(ctx context.Context) (int, error) {
	subs, err := s.client.GetSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}

	for _, sub := range subs {
		feed := &database.Feed{
			ID:      sub.ID,
			Title:   sub.Title,
			URL:     sub.URL,
			SiteURL: sub.HTMLURL,
			IconURL: sub.IconURL,
		}
		if len(sub.Categories) > 0 {
			feed.Category = sub.Categories[0].Label
		}

		if err := s.feeds.UpsertFeed(feed); err != nil {
			return 0, fmt.Errorf("failed to save feed %s: %w", sub.ID, err)
		}
	}

	slog.Info("Feeds synced", "count", len(subs))

	return len(subs), nil
}

// SyncArticles pulls up to maxArticles unread items and stores the ones not
// seen before. The outcome is recorded in the sync log either way.
func (s *Service) SyncArticles(ctx context.Context, maxArticles int) (*database.SyncRecord, error) {
	record := &database.SyncRecord{
		SyncType:  "incremental",
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}

	id, err := s.syncs.CreateSyncRecord(record)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync record: %w", err)
	}
	record.ID = id

	fetched, err := s.pullArticles(ctx, maxArticles)

	now := time.Now().UTC()
	record.CompletedAt = &now
	record.ArticlesFetched = fetched
	if err != nil {
		record.Status = "failed"
		record.ErrorMessage = err.Error()
		slog.Error("Article sync failed", "error", err)
	} else {
		record.Status = "success"
		slog.Info("Articles synced", "fetched", fetched)
	}

	if err := s.syncs.CompleteSyncRecord(record); err != nil {
		slog.Error("Failed to finalize sync record", "sync_id", record.ID, "error", err)
	}

	return record, nil
}

// SyncAll authenticates, then syncs feeds followed by articles.
func (s *Service) SyncAll(ctx context.Context, maxArticles int) (*database.SyncRecord, error) {
	if err := s.client.Login(ctx); err != nil {
		return nil, fmt.Errorf("freshrss login failed: %w", err)
	}

	if _, err := s.SyncFeeds(ctx); err != nil {
		return nil, err
	}

	return s.SyncArticles(ctx, maxArticles)
}

// LatestStatus returns the most recent sync record, or nil when none exists.
func (s *Service) LatestStatus() (*database.SyncRecord, error) {
	return s.syncs.GetLatestSyncRecord()
}

func (s *Service) pullArticles(ctx context.Context, maxArticles int) (int, error) {
	items, err := s.client.GetUnreadItems(ctx, maxArticles)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unread items: %w", err)
	}

	fetched := 0
	for _, item := range items {
		article := itemToArticle(item)

		inserted, err := s.articles.InsertArticleIfNew(article)
		if err != nil {
			return fetched, fmt.Errorf("failed to save article %s: %w", item.ID, err)
		}
		if inserted {
			fetched++
		}
	}

	return fetched, nil
}

func itemToArticle(item reader.Item) *database.Article {
	html := item.HTML()

	article := &database.Article{
		ID:            item.ID,
		FeedID:        item.Origin.StreamID,
		Title:         item.Title,
		Author:        item.Author,
		URL:           item.URL(),
		Content:       html,
		ContentText:   HTMLToText(html),
		ContentSource: "feed",
		FetchStatus:   database.FetchPending,
		ProcessStatus: database.StatusSynced,
		FetchedAt:     time.Now().UTC(),
		IsRead:        item.IsRead(),
		IsStarred:     item.IsStarred(),
	}

	if item.Published > 0 {
		published := time.Unix(item.Published, 0).UTC()
		article.PublishedAt = &published
	}

	return article
}
