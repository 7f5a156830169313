package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// FreshRSS connection
	FreshRSSURL      string `long:"freshrss-url" env:"FRESHRSS_URL" description:"FreshRSS base URL (e.g., https://rss.example.com)"`
	FreshRSSUser     string `long:"freshrss-user" env:"FRESHRSS_USER" description:"FreshRSS username"`
	FreshRSSPassword string `long:"freshrss-password" env:"FRESHRSS_API_PASSWORD" description:"FreshRSS API password"`

	// LLM configuration
	LLMProvider   string `long:"llm-provider" env:"LLM_PROVIDER" default:"openai" choice:"openai" choice:"ollama" description:"LLM backend for article analysis"`
	OpenAIAPIKey  string `long:"openai-api-key" env:"OPENAI_API_KEY" description:"OpenAI API key"`
	OpenAIBaseURL string `long:"openai-base-url" env:"OPENAI_BASE_URL" default:"https://api.openai.com/v1" description:"OpenAI-compatible API base URL"`
	OpenAIModel   string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" description:"OpenAI model name"`
	OllamaHost    string `long:"ollama-host" env:"OLLAMA_HOST" default:"http://localhost:11434" description:"Ollama host URL"`
	OllamaModel   string `long:"ollama-model" env:"OLLAMA_MODEL" default:"llama3.2" description:"Ollama model name"`

	// Application configuration
	DBPath              string `long:"db-path" env:"DB_PATH" default:"./feedwise.db" description:"Path to the SQLite database file"`
	Port                string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey        string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	ProcessBatchSize    int    `long:"process-batch-size" env:"PROCESS_BATCH_SIZE" default:"50" description:"Default batch size for pipeline runs"`
	FetchBatchSize      int    `long:"fetch-batch-size" env:"FETCH_BATCH_SIZE" default:"20" description:"Default batch size for full-text fetch runs"`
	FetchConcurrency    int    `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"4" description:"Concurrent full-text fetches per batch"`
	AnalysisConcurrency int    `long:"analysis-concurrency" env:"ANALYSIS_CONCURRENCY" default:"1" description:"Concurrent LLM analysis calls"`
	SyncInterval        int    `long:"sync-interval" env:"SYNC_INTERVAL" default:"1800" description:"FreshRSS sync interval in seconds"`
	SyncMaxArticles     int    `long:"sync-max-articles" env:"SYNC_MAX_ARTICLES" default:"100" description:"Maximum articles pulled per sync"`
	WorkerCount         int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for scheduled tasks"`
	AnalysisConfigPath  string `long:"analysis-config" env:"ANALYSIS_CONFIG" description:"Optional YAML file with analysis prompt overrides"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"FeedWise/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		FreshRSSURL:         raw.FreshRSSURL,
		FreshRSSUser:        raw.FreshRSSUser,
		FreshRSSPassword:    raw.FreshRSSPassword,
		LLMProvider:         raw.LLMProvider,
		OpenAIAPIKey:        raw.OpenAIAPIKey,
		OpenAIBaseURL:       raw.OpenAIBaseURL,
		OpenAIModel:         raw.OpenAIModel,
		OllamaHost:          raw.OllamaHost,
		OllamaModel:         raw.OllamaModel,
		DBPath:              raw.DBPath,
		Port:                raw.Port,
		APIAccessKey:        raw.APIAccessKey,
		ProcessBatchSize:    raw.ProcessBatchSize,
		FetchBatchSize:      raw.FetchBatchSize,
		FetchConcurrency:    raw.FetchConcurrency,
		AnalysisConcurrency: raw.AnalysisConcurrency,
		SyncInterval:        raw.SyncInterval,
		SyncMaxArticles:     raw.SyncMaxArticles,
		WorkerCount:         raw.WorkerCount,
		AnalysisConfigPath:  raw.AnalysisConfigPath,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
