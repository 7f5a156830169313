package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taptao/FeedWise/app/api"
	"github.com/taptao/FeedWise/app/cfg"
	"github.com/taptao/FeedWise/app/database"
	"github.com/taptao/FeedWise/app/fetcher"
	"github.com/taptao/FeedWise/app/llm"
	"github.com/taptao/FeedWise/app/parser"
	"github.com/taptao/FeedWise/app/processor"
	"github.com/taptao/FeedWise/app/reader"
	"github.com/taptao/FeedWise/app/sync"
	"github.com/taptao/FeedWise/app/tasks"
	"github.com/taptao/FeedWise/app/ws"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting FeedWise server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	if dirty {
		slog.Error("Database schema is dirty, manual intervention required", "version", version)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version)

	articleRepo := database.NewArticleRepository(db)
	feedRepo := database.NewFeedRepository(db)
	analysisRepo := database.NewAnalysisRepository(db)
	syncRepo := database.NewSyncRepository(db)

	readerClient := reader.NewClient(appCfg.FreshRSSURL, appCfg.FreshRSSUser,
		appCfg.FreshRSSPassword, appCfg.UserAgent)
	syncService := sync.NewService(readerClient, articleRepo, feedRepo, syncRepo)

	contentFetcher := fetcher.NewExtractor(appCfg.UserAgent)

	provider, err := llm.NewProvider(appCfg)
	if err != nil {
		slog.Error("Failed to configure LLM provider", "error", err)
		os.Exit(1)
	}
	settings, err := llm.LoadAnalysisSettings(appCfg.AnalysisConfigPath)
	if err != nil {
		slog.Error("Failed to load analysis settings", "path", appCfg.AnalysisConfigPath, "error", err)
		os.Exit(1)
	}
	analyzer := llm.NewAnalyzer(provider, settings)

	modelName := appCfg.OpenAIModel
	if appCfg.LLMProvider == "ollama" {
		modelName = appCfg.OllamaModel
	}

	hub := ws.NewHub()
	limiter := processor.NewLimiter(appCfg.AnalysisConcurrency)
	engine := processor.NewEngine(articleRepo, feedRepo, analysisRepo,
		contentFetcher, analyzer, hub, limiter, modelName)
	runner := processor.NewFetchRunner(articleRepo, feedRepo, contentFetcher)
	hub.SetStatusSource(func() any { return engine.Status() })

	// Articles left mid-stage by a previous crash go back to their
	// pending state before anything else runs.
	if rewound, err := engine.Recover(); err != nil {
		slog.Error("Failed to recover stale articles", "error", err)
		os.Exit(1)
	} else if rewound > 0 {
		slog.Info("Recovered stale articles", "count", rewound)
	}

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "sync_interval", appCfg.SyncInterval)
	scheduler := tasks.NewScheduler(syncService, runner)
	scheduler.Start()
	defer scheduler.Stop()

	feedParser := parser.NewParser(appCfg.UserAgent)
	apiHandler := api.NewHandler(articleRepo, feedRepo, analysisRepo, engine, runner,
		syncService, feedParser, readerClient, analyzer, limiter, hub, scheduler,
		appCfg.SyncMaxArticles, modelName)
	router := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
