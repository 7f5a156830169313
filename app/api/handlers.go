package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/processor"
	"github.com/taptao/FeedWise/app/tasks"
)

func NewHandler(articleRepo database.ArticleRepository, feedRepo database.FeedRepository,
	analysisRepo database.AnalysisRepository, engine ProcessEngineInterface,
	runner FetchRunnerInterface, syncService SyncServiceInterface,
	previewer FeedPreviewerInterface, readerClient ReaderStateWriter,
	analyzer ArticleAnalyzerInterface, limiter ConcurrencyLimiterInterface,
	hub HubInterface, scheduler tasks.TaskSchedulerInterface,
	syncMaxArticles int, modelName string) *Handler {
	return &Handler{
		articleRepo:     articleRepo,
		feedRepo:        feedRepo,
		analysisRepo:    analysisRepo,
		engine:          engine,
		runner:          runner,
		syncService:     syncService,
		previewer:       previewer,
		readerClient:    readerClient,
		analyzer:        analyzer,
		limiter:         limiter,
		hub:             hub,
		scheduler:       scheduler,
		syncMaxArticles: syncMaxArticles,
		modelName:       modelName,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	health["ws_clients"] = h.hub.ClientCount()
	health["process_status"] = h.engine.Status().Status

	c.JSON(http.StatusOK, health)
}

// GetStats reports pipeline and fetch counters without authentication,
// alongside /health.
func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{}

	if processStats, err := h.engine.Stats(); err == nil {
		stats["process"] = processStats
	}
	if fetchStats, err := h.runner.Stats(); err == nil {
		stats["fetch"] = fetchStats
	}
	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		stats["feeds"] = feedCount
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Websocket(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request)
}

func (h *Handler) ProcessStart(c *gin.Context) {
	var req struct {
		BatchSize int `json:"batch_size"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	// The run outlives the request, so it is not bound to the request context.
	err := h.engine.Start(context.Background(), req.BatchSize)
	if err != nil {
		if errors.Is(err, processor.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "Processing is already running"})
			return
		}
		slog.Error("Failed to start processing", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start processing", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "progress": h.engine.Status()})
}

func (h *Handler) ProcessPause(c *gin.Context) {
	h.engine.Pause()
	c.JSON(http.StatusOK, gin.H{"success": true, "progress": h.engine.Status()})
}

func (h *Handler) ProcessResume(c *gin.Context) {
	h.engine.Resume()
	c.JSON(http.StatusOK, gin.H{"success": true, "progress": h.engine.Status()})
}

func (h *Handler) ProcessStop(c *gin.Context) {
	h.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"success": true, "progress": h.engine.Status()})
}

func (h *Handler) ProcessProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

func (h *Handler) ProcessStats(c *gin.Context) {
	stats, err := h.engine.Stats()
	if err != nil {
		slog.Error("Database error", "operation", "process_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ProcessFailed(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	articles, total, err := h.engine.FailedArticles(page, limit)
	if err != nil {
		slog.Error("Database error", "operation", "failed_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func (h *Handler) ProcessRetry(c *gin.Context) {
	count, err := h.engine.ResetFailed()
	if err != nil {
		slog.Error("Database error", "operation", "reset_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	err = h.engine.Start(context.Background(), 0)
	if err != nil {
		if errors.Is(err, processor.ErrAlreadyRunning) {
			c.JSON(http.StatusOK, gin.H{"success": true, "reset": count, "message": "Articles requeued, processing already running"})
			return
		}
		slog.Error("Failed to start processing", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start processing", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reset": count, "progress": h.engine.Status()})
}

func (h *Handler) FetchRun(c *gin.Context) {
	var req struct {
		BatchSize   int `json:"batch_size"`
		Concurrency int `json:"concurrency"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	batchID, err := h.runner.Run(context.Background(), req.BatchSize, req.Concurrency)
	if err != nil {
		if errors.Is(err, processor.ErrBatchActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "A fetch batch is already running"})
			return
		}
		slog.Error("Failed to start fetch batch", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start fetch batch", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "batch_id": batchID})
}

func (h *Handler) FetchStatus(c *gin.Context) {
	status := h.runner.Status()
	if status == nil {
		pending, err := h.runner.PendingCount()
		if err != nil {
			slog.Error("Database error", "operation", "fetch_pending_count", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "idle", "pending": pending})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) FetchStats(c *gin.Context) {
	stats, err := h.runner.Stats()
	if err != nil {
		slog.Error("Database error", "operation", "fetch_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) FetchReset(c *gin.Context) {
	count, err := h.runner.ResetFailed()
	if err != nil {
		slog.Error("Database error", "operation", "reset_fetch_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reset": count})
}

func (h *Handler) ListArticles(c *gin.Context) {
	opts := database.ListOptions{
		Filter: c.DefaultQuery("filter", "all"),
		SortBy: c.DefaultQuery("sort", "value"),
		FeedID: c.Query("feed_id"),
		Page:   queryInt(c, "page", 1),
		Limit:  queryInt(c, "limit", 20),
	}
	if raw := c.Query("min_score"); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_score parameter"})
			return
		}
		opts.MinScore = &score
	}

	items, total, err := h.articleRepo.ListArticles(opts)
	if err != nil {
		slog.Error("Database error", "operation", "list_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	articles := make([]map[string]interface{}, 0, len(items))
	for i := range items {
		articles = append(articles, articleListItemJSON(&items[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"articles": articles,
		"total":    total,
		"page":     opts.Page,
		"limit":    opts.Limit,
	})
}

func (h *Handler) GetArticle(c *gin.Context) {
	id := c.Param("id")

	article, err := h.articleRepo.GetArticle(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	detail := articleJSON(article)
	detail["content"] = article.Content
	detail["content_text"] = article.ContentText
	detail["full_content"] = article.FullContent
	detail["full_content_html"] = article.FullContentHTML

	if analysis, err := h.analysisRepo.GetAnalysis(id); err == nil && analysis != nil {
		detail["analysis"] = analysisJSON(analysis)
	}
	if feed, err := h.feedRepo.GetFeed(article.FeedID); err == nil && feed != nil {
		detail["feed"] = feedJSON(feed)
	}

	c.JSON(http.StatusOK, detail)
}

func (h *Handler) MarkArticleRead(c *gin.Context) {
	h.setArticleState(c, "read", true)
}

func (h *Handler) MarkArticleUnread(c *gin.Context) {
	h.setArticleState(c, "read", false)
}

func (h *Handler) StarArticle(c *gin.Context) {
	h.setArticleState(c, "starred", true)
}

func (h *Handler) UnstarArticle(c *gin.Context) {
	h.setArticleState(c, "starred", false)
}

// setArticleState updates the local flag, then propagates the change to
// FreshRSS best effort. A reader failure leaves the local state in place.
func (h *Handler) setArticleState(c *gin.Context, state string, value bool) {
	id := c.Param("id")

	article, err := h.articleRepo.GetArticle(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return
	}

	if state == "read" {
		err = h.articleRepo.SetRead(id, value)
	} else {
		err = h.articleRepo.SetStarred(id, value)
	}
	if err != nil {
		slog.Error("Database error", "operation", "set_"+state, "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	var readerErr error
	switch {
	case state == "read" && value:
		readerErr = h.readerClient.MarkRead(c.Request.Context(), id)
	case state == "read" && !value:
		readerErr = h.readerClient.MarkUnread(c.Request.Context(), id)
	case state == "starred" && value:
		readerErr = h.readerClient.Star(c.Request.Context(), id)
	default:
		readerErr = h.readerClient.Unstar(c.Request.Context(), id)
	}
	if readerErr != nil {
		slog.Warn("Failed to propagate state to reader", "article", id, "state", state, "error", readerErr)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": id, state: value, "synced_to_reader": readerErr == nil})
}

// AnalyzeArticle runs analysis for one article outside a pipeline run and
// stores the result. The article moves to done on success.
func (h *Handler) AnalyzeArticle(c *gin.Context) {
	id := c.Param("id")

	article, content, ok := h.analyzableArticle(c, id)
	if !ok {
		return
	}

	feedName := ""
	if feed, err := h.feedRepo.GetFeed(article.FeedID); err == nil && feed != nil {
		feedName = feed.Title
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), article.Title, content, feedName)
	if err != nil {
		slog.Error("Analysis failed", "article", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Analysis failed", "details": err.Error()})
		return
	}

	analysis := &database.Analysis{
		ArticleID:   article.ID,
		Summary:     result.Summary,
		KeyPoints:   result.KeyPoints,
		ValueScore:  result.ValueScore,
		ReadingTime: result.ReadingTime,
		Language:    result.Language,
		Tags:        result.Tags,
		ModelUsed:   h.modelName,
	}
	if err := h.analysisRepo.UpsertAnalysis(analysis); err != nil {
		slog.Error("Database error", "operation", "upsert_analysis", "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	article.ProcessStatus = database.StatusDone
	article.ProcessStage = ""
	article.ProcessError = ""
	if err := h.articleRepo.UpdateProcessState(article); err != nil {
		slog.Error("Database error", "operation", "update_process_state", "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": analysisJSON(analysis)})
}

// StreamAnalysis streams raw LLM output for one article as server-sent
// events. Nothing is persisted.
func (h *Handler) StreamAnalysis(c *gin.Context) {
	id := c.Param("id")

	article, content, ok := h.analyzableArticle(c, id)
	if !ok {
		return
	}

	feedName := ""
	if feed, err := h.feedRepo.GetFeed(article.FeedID); err == nil && feed != nil {
		feedName = feed.Title
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	err := h.analyzer.AnalyzeStream(c.Request.Context(), article.Title, content, feedName,
		func(chunk string) error {
			c.SSEvent("chunk", chunk)
			c.Writer.Flush()
			return nil
		})
	if err != nil {
		slog.Error("Streaming analysis failed", "article", id, "error", err)
		c.SSEvent("error", err.Error())
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", "[DONE]")
	c.Writer.Flush()
}

// analyzableArticle loads the article and picks the content to analyze,
// writing the error response itself when there is nothing to work with.
func (h *Handler) analyzableArticle(c *gin.Context, id string) (*database.Article, string, bool) {
	article, err := h.articleRepo.GetArticle(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_article", "article", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, "", false
	}
	if article == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Article not found"})
		return nil, "", false
	}

	content := article.FullContent
	if content == "" {
		content = article.ContentText
	}
	if content == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Article has no content to analyze"})
		return nil, "", false
	}

	return article, content, true
}

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	result := make([]map[string]interface{}, 0, len(feeds))
	for i := range feeds {
		result = append(result, feedJSON(&feeds[i]))
	}

	c.JSON(http.StatusOK, gin.H{"feeds": result, "total": len(result)})
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		FetchFullText *string `json:"fetch_full_text"`
		Priority      *int    `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	feed, err := h.feedRepo.GetFeed(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	fetchFullText := feed.FetchFullText
	if req.FetchFullText != nil {
		switch *req.FetchFullText {
		case database.FetchPolicyAuto, database.FetchPolicyAlways, database.FetchPolicyNever:
			fetchFullText = *req.FetchFullText
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid fetch_full_text value", "message": "Must be auto, always or never"})
			return
		}
	}
	priority := feed.Priority
	if req.Priority != nil {
		priority = *req.Priority
	}

	if err := h.feedRepo.UpdateFeedSettings(id, fetchFullText, priority); err != nil {
		slog.Error("Database error", "operation", "update_feed_settings", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	feed.FetchFullText = fetchFullText
	feed.Priority = priority
	c.JSON(http.StatusOK, gin.H{"success": true, "feed": feedJSON(feed)})
}

func (h *Handler) PreviewFeed(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing feed URL", "details": err.Error()})
		return
	}

	preview, err := h.previewer.Preview(c.Request.Context(), req.URL, 5)
	if err != nil {
		slog.Error("Feed preview failed", "url", req.URL, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Failed to parse feed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, preview)
}

func (h *Handler) SyncRun(c *gin.Context) {
	task := tasks.NewSyncArticlesTask(h.syncService, h.syncMaxArticles)
	if err := h.scheduler.EnqueueTask(task); err != nil {
		slog.Error("Error enqueueing sync task", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue sync task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Sync task enqueued",
		"task": gin.H{
			"id":   task.ID,
			"type": task.Type,
		},
	})
}

func (h *Handler) SyncStatus(c *gin.Context) {
	record, err := h.syncService.LatestStatus()
	if err != nil {
		slog.Error("Database error", "operation", "sync_status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if record == nil {
		c.JSON(http.StatusOK, gin.H{"status": "never"})
		return
	}

	status := map[string]interface{}{
		"status":           record.Status,
		"sync_type":        record.SyncType,
		"articles_fetched": record.ArticlesFetched,
		"started_at":       record.StartedAt,
	}
	if record.CompletedAt != nil {
		status["completed_at"] = record.CompletedAt
	}
	if record.ErrorMessage != "" {
		status["error"] = record.ErrorMessage
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) SetConcurrency(c *gin.Context) {
	var req struct {
		Limit int `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Limit must be at least 1"})
		return
	}

	h.limiter.SetLimit(req.Limit)
	c.JSON(http.StatusOK, gin.H{"success": true, "limit": h.limiter.Limit()})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func articleJSON(a *database.Article) map[string]interface{} {
	return map[string]interface{}{
		"id":             a.ID,
		"feed_id":        a.FeedID,
		"title":          a.Title,
		"author":         a.Author,
		"url":            a.URL,
		"content_source": a.ContentSource,
		"process_status": a.ProcessStatus,
		"process_stage":  a.ProcessStage,
		"process_error":  a.ProcessError,
		"published_at":   a.PublishedAt,
		"fetched_at":     a.FetchedAt,
		"is_read":        a.IsRead,
		"is_starred":     a.IsStarred,
	}
}

func articleListItemJSON(item *database.ArticleListItem) map[string]interface{} {
	m := articleJSON(&item.Article)
	m["feed_title"] = item.FeedTitle
	m["feed_icon_url"] = item.FeedIconURL
	if item.Analysis != nil {
		m["analysis"] = analysisJSON(item.Analysis)
	}
	return m
}

func analysisJSON(a *database.Analysis) map[string]interface{} {
	return map[string]interface{}{
		"summary":      a.Summary,
		"key_points":   a.KeyPoints,
		"value_score":  a.ValueScore,
		"reading_time": a.ReadingTime,
		"language":     a.Language,
		"tags":         a.Tags,
		"model_used":   a.ModelUsed,
		"analyzed_at":  a.AnalyzedAt,
	}
}

func feedJSON(f *database.Feed) map[string]interface{} {
	return map[string]interface{}{
		"id":              f.ID,
		"title":           f.Title,
		"url":             f.URL,
		"site_url":        f.SiteURL,
		"icon_url":        f.IconURL,
		"category":        f.Category,
		"fetch_full_text": f.FetchFullText,
		"priority":        f.Priority,
		"updated_at":      f.UpdatedAt,
	}
}
