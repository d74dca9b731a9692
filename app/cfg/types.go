package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath    string
	RedisAddr string

	// Registry
	EntitiesFile string
	SourcesDir   string

	// HTTP
	Port         string
	BaseUrl      string
	APIAccessKey string
	WorkerCount  int
	CORSOrigins  []string
	SyncInterval time.Duration

	// Enrichment
	LLMProvider     string
	LLMAPIKey       string
	LLMModel        string
	LLMBaseURL      string
	LLMTimeout      time.Duration
	LLMMaxAttempts  int
	BudgetInitial   int
	BudgetFloor     int
	BudgetCeiling   int
	CacheTTL        time.Duration
	PairConcurrency int
	ProducerTimeout time.Duration
	NewsAPIKey      string
	Freshness       time.Duration

	// Monitoring
	MonitorEnabled   bool
	CheckpointHours  []int
	MonitorLocation  *time.Location
	MonitorWindow    time.Duration
	MonitorBatchSize int
	MonitorParallel  int
	EntityDelay      time.Duration
	BatchDelay       time.Duration
	ActiveWindow     time.Duration
	TelegramBotToken string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
