package cfg

type Cfg struct {
	// FreshRSS connection
	FreshRSSURL      string
	FreshRSSUser     string
	FreshRSSPassword string

	// LLM configuration
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OllamaHost    string
	OllamaModel   string

	// Application configuration
	DBPath              string
	Port                string
	APIAccessKey        string
	ProcessBatchSize    int
	FetchBatchSize      int
	FetchConcurrency    int
	AnalysisConcurrency int
	SyncInterval        int
	SyncMaxArticles     int
	WorkerCount         int
	AnalysisConfigPath  string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
