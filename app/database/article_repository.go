package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var _ ArticleRepository = (*ArticleRepo)(nil)

type ArticleRepo struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

const articleColumns = `id, feed_id, title, author, url, content, content_text,
	full_content, full_content_html, content_source, fetch_status,
	process_status, process_stage, process_error, published_at, fetched_at,
	is_read, is_starred, rating`

func scanArticle(scanner interface{ Scan(...any) error }) (*Article, error) {
	var a Article
	err := scanner.Scan(
		&a.ID, &a.FeedID, &a.Title, &a.Author, &a.URL, &a.Content, &a.ContentText,
		&a.FullContent, &a.FullContentHTML, &a.ContentSource, &a.FetchStatus,
		&a.ProcessStatus, &a.ProcessStage, &a.ProcessError, &a.PublishedAt, &a.FetchedAt,
		&a.IsRead, &a.IsStarred, &a.Rating,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ArticleRepo) GetArticle(id string) (*Article, error) {
	row := r.db.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	return article, nil
}

// InsertArticleIfNew stores a freshly synced article. Existing articles are
// left untouched so pipeline state survives repeated syncs.
func (r *ArticleRepo) InsertArticleIfNew(article *Article) (bool, error) {
	result, err := r.db.Exec(`
		INSERT INTO articles (
			id, feed_id, title, author, url, content, content_text,
			content_source, fetch_status, process_status, published_at, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, article.ID, article.FeedID, article.Title, article.Author, article.URL,
		article.Content, article.ContentText, article.ContentSource,
		article.FetchStatus, article.ProcessStatus, article.PublishedAt,
		article.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert article: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

// UpdateProcessState persists the columns the pipeline engine mutates.
// It is committed after every stage transition.
func (r *ArticleRepo) UpdateProcessState(article *Article) error {
	_, err := r.db.Exec(`
		UPDATE articles
		SET full_content = ?, full_content_html = ?, content_source = ?,
		    fetch_status = ?, process_status = ?, process_stage = ?,
		    process_error = ?
		WHERE id = ?
	`, article.FullContent, article.FullContentHTML, article.ContentSource,
		article.FetchStatus, article.ProcessStatus, article.ProcessStage,
		article.ProcessError, article.ID)

	if err != nil {
		return fmt.Errorf("failed to update article process state: %w", err)
	}

	return nil
}

func (r *ArticleRepo) SetRead(id string, read bool) error {
	_, err := r.db.Exec(`UPDATE articles SET is_read = ? WHERE id = ?`, read, id)
	if err != nil {
		return fmt.Errorf("failed to set read flag: %w", err)
	}
	return nil
}

func (r *ArticleRepo) SetStarred(id string, starred bool) error {
	_, err := r.db.Exec(`UPDATE articles SET is_starred = ? WHERE id = ?`, starred, id)
	if err != nil {
		return fmt.Errorf("failed to set starred flag: %w", err)
	}
	return nil
}

// ListEligible returns articles in any of the given pipeline statuses.
// Selection order is whatever the store returns; the pipeline makes no
// cross-article ordering guarantee.
func (r *ArticleRepo) ListEligible(statuses []string, limit int) ([]Article, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	args = append(args, limit)

	rows, err := r.db.Query(`
		SELECT `+articleColumns+`
		FROM articles
		WHERE process_status IN (`+placeholders+`)
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) CountByStatuses(statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, s)
	}

	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM articles WHERE process_status IN (`+placeholders+`)
	`, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles by status: %w", err)
	}

	return count, nil
}

// GetProcessStats buckets articles by pipeline stage. Synced and
// pending_fetch share a bucket: both are waiting for the fetch stage.
func (r *ArticleRepo) GetProcessStats() (*ProcessStats, error) {
	rows, err := r.db.Query(`
		SELECT process_status, COUNT(*) FROM articles GROUP BY process_status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get process stats: %w", err)
	}
	defer rows.Close()

	stats := &ProcessStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}

		switch status {
		case StatusSynced, StatusPendingFetch:
			stats.Synced += count
		case StatusFetching:
			stats.Fetching += count
		case StatusPendingAnalysis:
			stats.PendingAnalysis += count
		case StatusAnalyzing:
			stats.Analyzing += count
		case StatusDone:
			stats.Done += count
		case StatusFailed:
			stats.Failed += count
		}
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats rows: %w", err)
	}

	return stats, nil
}

func (r *ArticleRepo) GetFailedArticles(page, limit int) ([]FailedArticle, int, error) {
	var total int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM articles WHERE process_status = ?
	`, StatusFailed).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count failed articles: %w", err)
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := r.db.Query(`
		SELECT a.id, a.title, a.url, COALESCE(f.title, ''), a.process_stage, a.process_error
		FROM articles a
		LEFT JOIN feeds f ON f.id = a.feed_id
		WHERE a.process_status = ?
		LIMIT ? OFFSET ?
	`, StatusFailed, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list failed articles: %w", err)
	}
	defer rows.Close()

	items := make([]FailedArticle, 0, limit)
	for rows.Next() {
		var item FailedArticle
		err := rows.Scan(&item.ArticleID, &item.Title, &item.URL, &item.FeedTitle,
			&item.Stage, &item.Error)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan failed article row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating failed article rows: %w", err)
	}

	return items, total, nil
}

// ResetFailed re-queues every failed article at the stage it failed,
// clearing the stage and error columns. Returns the number of articles
// reset; a store with no failed articles performs no writes.
func (r *ArticleRepo) ResetFailed() (int, error) {
	result, err := r.db.Exec(`
		UPDATE articles
		SET process_status = CASE WHEN process_stage = ? THEN ? ELSE ? END,
		    process_stage = '',
		    process_error = ''
		WHERE process_status = ?
	`, StageFetch, StatusPendingFetch, StatusPendingAnalysis, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed articles: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", err)
	}

	return int(affected), nil
}

// RewindStaleStatuses moves articles stuck in a transient state back to
// the pending state just before it. Transient states cannot survive a
// process restart, so anything found in one is left over from a crash.
func (r *ArticleRepo) RewindStaleStatuses() (int, error) {
	result, err := r.db.Exec(`
		UPDATE articles
		SET process_status = CASE process_status
			WHEN ? THEN ?
			WHEN ? THEN ?
		END
		WHERE process_status IN (?, ?)
	`, StatusFetching, StatusPendingFetch, StatusAnalyzing, StatusPendingAnalysis,
		StatusFetching, StatusAnalyzing)
	if err != nil {
		return 0, fmt.Errorf("failed to rewind stale statuses: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rewind result: %w", err)
	}

	return int(affected), nil
}

func (r *ArticleRepo) ListFetchPending(limit int) ([]Article, error) {
	rows, err := r.db.Query(`
		SELECT `+articleColumns+`
		FROM articles
		WHERE fetch_status = ?
		LIMIT ?
	`, FetchPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fetch-pending articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) CountFetchPending() (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM articles WHERE fetch_status = ?
	`, FetchPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fetch-pending articles: %w", err)
	}
	return count, nil
}

func (r *ArticleRepo) GetFetchStats() (*FetchStats, error) {
	rows, err := r.db.Query(`
		SELECT fetch_status, COUNT(*)
		FROM articles
		WHERE fetch_status != ''
		GROUP BY fetch_status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch stats: %w", err)
	}
	defer rows.Close()

	stats := &FetchStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan fetch stats row: %w", err)
		}

		switch status {
		case FetchPending:
			stats.Pending = count
		case FetchSuccess:
			stats.Success = count
		case FetchFailed:
			stats.Failed = count
		case FetchSkipped:
			stats.Skipped = count
		}
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fetch stats rows: %w", err)
	}

	return stats, nil
}

func (r *ArticleRepo) ResetFetchFailed() (int, error) {
	result, err := r.db.Exec(`
		UPDATE articles SET fetch_status = ? WHERE fetch_status = ?
	`, FetchPending, FetchFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed fetches: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reset result: %w", err)
	}

	return int(affected), nil
}

// ListArticles returns one page of the article listing with analysis and
// feed columns joined in. Ordering is by stored values only.
func (r *ArticleRepo) ListArticles(opts ListOptions) ([]ArticleListItem, int, error) {
	where := []string{"1=1"}
	var args []any

	switch opts.Filter {
	case "unread":
		where = append(where, "a.is_read = 0")
	case "starred":
		where = append(where, "a.is_starred = 1")
	}
	if opts.FeedID != "" {
		where = append(where, "a.feed_id = ?")
		args = append(args, opts.FeedID)
	}
	if opts.MinScore != nil {
		where = append(where, "n.value_score >= ?")
		args = append(args, *opts.MinScore)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM articles a
		LEFT JOIN article_analyses n ON n.article_id = a.id
		WHERE ` + whereClause
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count articles: %w", err)
	}

	var orderBy string
	switch opts.SortBy {
	case "date":
		orderBy = "a.published_at DESC"
	case "feed":
		orderBy = "f.title ASC, a.published_at DESC"
	default: // value
		orderBy = "n.value_score DESC NULLS LAST, a.published_at DESC"
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := `
		SELECT ` + prefixedArticleColumns("a") + `,
		       COALESCE(f.title, ''), COALESCE(f.icon_url, ''),
		       n.id, n.summary, n.key_points, n.value_score, n.reading_time,
		       n.language, n.tags, n.model_used, n.analyzed_at
		FROM articles a
		LEFT JOIN feeds f ON f.id = a.feed_id
		LEFT JOIN article_analyses n ON n.article_id = a.id
		WHERE ` + whereClause + `
		ORDER BY ` + orderBy + `
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleListItem, 0, limit)
	for rows.Next() {
		var item ArticleListItem
		var analysisID sql.NullInt64
		var summary, keyPoints, language, tags, modelUsed sql.NullString
		var valueScore sql.NullFloat64
		var readingTime sql.NullInt64
		var analyzedAt sql.NullTime

		err := rows.Scan(
			&item.ID, &item.FeedID, &item.Title, &item.Author, &item.URL,
			&item.Content, &item.ContentText, &item.FullContent, &item.FullContentHTML,
			&item.ContentSource, &item.FetchStatus, &item.ProcessStatus,
			&item.ProcessStage, &item.ProcessError, &item.PublishedAt, &item.FetchedAt,
			&item.IsRead, &item.IsStarred, &item.Rating,
			&item.FeedTitle, &item.FeedIconURL,
			&analysisID, &summary, &keyPoints, &valueScore, &readingTime,
			&language, &tags, &modelUsed, &analyzedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan article listing row: %w", err)
		}

		if analysisID.Valid {
			analysis := &Analysis{
				ID:          analysisID.Int64,
				ArticleID:   item.ID,
				Summary:     summary.String,
				ValueScore:  valueScore.Float64,
				ReadingTime: int(readingTime.Int64),
				Language:    language.String,
				ModelUsed:   modelUsed.String,
			}
			if analyzedAt.Valid {
				analysis.AnalyzedAt = analyzedAt.Time
			}
			if keyPoints.Valid && keyPoints.String != "" {
				json.Unmarshal([]byte(keyPoints.String), &analysis.KeyPoints)
			}
			if tags.Valid && tags.String != "" {
				json.Unmarshal([]byte(tags.String), &analysis.Tags)
			}
			item.Analysis = analysis
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating article listing rows: %w", err)
	}

	return items, total, nil
}

func prefixedArticleColumns(alias string) string {
	cols := strings.Split(articleColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

// timePtr is a small helper for tests and callers building articles.
func timePtr(t time.Time) *time.Time {
	return &t
}
