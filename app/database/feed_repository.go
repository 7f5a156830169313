package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ FeedRepository = (*FeedRepo)(nil)

type FeedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

func (r *FeedRepo) GetFeed(id string) (*Feed, error) {
	var feed Feed
	err := r.db.QueryRow(`
		SELECT id, title, url, site_url, icon_url, category,
		       fetch_full_text, priority, created_at, updated_at
		FROM feeds
		WHERE id = ?
	`, id).Scan(
		&feed.ID, &feed.Title, &feed.URL, &feed.SiteURL, &feed.IconURL,
		&feed.Category, &feed.FetchFullText, &feed.Priority,
		&feed.CreatedAt, &feed.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return &feed, nil
}

// UpsertFeed inserts a feed from the reader service or refreshes its
// metadata. User-controlled columns (fetch policy, priority) are preserved
// on update.
func (r *FeedRepo) UpsertFeed(feed *Feed) error {
	_, err := r.db.Exec(`
		INSERT INTO feeds (id, title, url, site_url, icon_url, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			site_url = excluded.site_url,
			icon_url = excluded.icon_url,
			category = excluded.category,
			updated_at = excluded.updated_at
	`, feed.ID, feed.Title, feed.URL, feed.SiteURL, feed.IconURL, feed.Category,
		time.Now().UTC(), time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	return nil
}

func (r *FeedRepo) ListFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`
		SELECT id, title, url, site_url, icon_url, category,
		       fetch_full_text, priority, created_at, updated_at
		FROM feeds
		ORDER BY title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var feed Feed
		err := rows.Scan(
			&feed.ID, &feed.Title, &feed.URL, &feed.SiteURL, &feed.IconURL,
			&feed.Category, &feed.FetchFullText, &feed.Priority,
			&feed.CreatedAt, &feed.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) UpdateFeedSettings(id string, fetchFullText string, priority int) error {
	switch fetchFullText {
	case FetchPolicyAuto, FetchPolicyAlways, FetchPolicyNever:
	default:
		return fmt.Errorf("invalid fetch policy: %q", fetchFullText)
	}
	if priority < 1 || priority > 10 {
		return fmt.Errorf("priority out of range: %d", priority)
	}

	_, err := r.db.Exec(`
		UPDATE feeds
		SET fetch_full_text = ?, priority = ?, updated_at = ?
		WHERE id = ?
	`, fetchFullText, priority, time.Now().UTC(), id)

	if err != nil {
		return fmt.Errorf("failed to update feed settings: %w", err)
	}

	return nil
}

func (r *FeedRepo) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}
