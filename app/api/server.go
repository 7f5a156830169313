package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	// Set Gin mode (can be controlled via GIN_MODE environment variable)
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Reader stream IDs contain slashes, so routes match on the raw path
	// and IDs arrive percent-encoded.
	r.UseRawPath = true

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Routes
	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// Health and websocket endpoints stay open, the websocket carries no
	// control operations and the frontend connects to it before signing in.
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)
	r.GET("/ws", handler.Websocket)

	api := r.Group("/api")
	if apiAccessKey != "" {
		api.Use(authMiddleware(apiAccessKey))
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API authentication disabled (API_ACCESS_KEY not set)")
	}
	{
		api.POST("/process/start", handler.ProcessStart)
		api.POST("/process/pause", handler.ProcessPause)
		api.POST("/process/resume", handler.ProcessResume)
		api.POST("/process/stop", handler.ProcessStop)
		api.GET("/process/progress", handler.ProcessProgress)
		api.GET("/process/stats", handler.ProcessStats)
		api.GET("/process/failed", handler.ProcessFailed)
		api.POST("/process/retry", handler.ProcessRetry)

		api.POST("/fetch/run", handler.FetchRun)
		api.GET("/fetch/status", handler.FetchStatus)
		api.GET("/fetch/stats", handler.FetchStats)
		api.POST("/fetch/reset", handler.FetchReset)

		api.GET("/articles", handler.ListArticles)
		api.GET("/articles/:id", handler.GetArticle)
		api.POST("/articles/:id/read", handler.MarkArticleRead)
		api.POST("/articles/:id/unread", handler.MarkArticleUnread)
		api.POST("/articles/:id/star", handler.StarArticle)
		api.POST("/articles/:id/unstar", handler.UnstarArticle)
		api.POST("/articles/:id/analyze", handler.AnalyzeArticle)
		api.GET("/articles/:id/analysis/stream", handler.StreamAnalysis)

		api.GET("/feeds", handler.ListFeeds)
		api.PATCH("/feeds/:id", handler.UpdateFeed)
		api.POST("/feeds/preview", handler.PreviewFeed)

		api.POST("/sync/run", handler.SyncRun)
		api.GET("/sync/status", handler.SyncStatus)

		api.PUT("/settings/concurrency", handler.SetConcurrency)
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "FeedWise",
			"description": "RSS article pipeline with full-text fetching and LLM analysis",
			"endpoints": map[string]string{
				"health":    "/health",
				"stats":     "/stats",
				"websocket": "/ws",
				"api":       "/api (requires X-API-Key header)",
			},
			"api_status": map[string]interface{}{
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from X-API-Key header
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
