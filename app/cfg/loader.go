package cfg

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath    string `long:"db-path" env:"DB_PATH" default:"./bankwatch.db" description:"SQLite database file"`
	RedisAddr string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for shared enrichment caches (optional)"`

	// Registry
	EntitiesFile string `long:"entities-file" env:"ENTITIES_FILE" default:"./config/entities.yml" description:"YAML file with tracked entities"`
	SourcesDir   string `long:"sources-dir" env:"SOURCES_DIR" default:"./config/sources" description:"Directory containing source configuration files"`

	// HTTP
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for fetch tasks"`
	CORSOrigins  string `long:"cors-origins" env:"CORS_ORIGINS" description:"Comma-separated allowed CORS origins (all when empty)"`
	SyncInterval int    `long:"sync-interval" env:"REGISTRY_SYNC_INTERVAL" default:"300" description:"Registry reload interval in seconds (0 disables)"`

	// Enrichment
	LLMProvider      string `long:"llm-provider" env:"LLM_PROVIDER" default:"anthropic" choice:"anthropic" choice:"openai" description:"Enrichment backend"`
	LLMAPIKey        string `long:"llm-api-key" env:"LLM_API_KEY" description:"Enrichment backend API key"`
	LLMModel         string `long:"llm-model" env:"LLM_MODEL" description:"Enrichment backend model (provider default when empty)"`
	LLMBaseURL       string `long:"llm-base-url" env:"LLM_BASE_URL" description:"Enrichment backend base URL override"`
	LLMTimeout       int    `long:"llm-timeout" env:"LLM_TIMEOUT" default:"60" description:"Per-request enrichment timeout in seconds"`
	LLMMaxAttempts   int    `long:"llm-max-attempts" env:"LLM_MAX_ATTEMPTS" default:"10" description:"Attempts per enrichment request"`
	BudgetInitial    int    `long:"budget-initial" env:"BUDGET_INITIAL" default:"10" description:"Initial enrichment concurrency"`
	BudgetFloor      int    `long:"budget-floor" env:"BUDGET_FLOOR" default:"3" description:"Minimum enrichment concurrency"`
	BudgetCeiling    int    `long:"budget-ceiling" env:"BUDGET_CEILING" default:"15" description:"Maximum enrichment concurrency"`
	CacheTTLHours    int    `long:"cache-ttl-hours" env:"CACHE_TTL_HOURS" default:"24" description:"TTL of enrichment and judgment caches in hours"`
	PairConcurrency  int    `long:"pair-concurrency" env:"PAIR_CONCURRENCY" default:"15" description:"Concurrent duplicate judgments"`
	ProducerTimeout  int    `long:"producer-timeout" env:"PRODUCER_TIMEOUT" default:"30" description:"Per-producer fetch timeout in seconds"`
	NewsAPIKey       string `long:"newsapi-key" env:"NEWSAPI_KEY" description:"newsapi.org key (producer disabled when empty)"`
	FreshnessMinutes int    `long:"freshness" env:"COVERAGE_FRESHNESS" default:"60" description:"On-demand coverage freshness in minutes"`

	// Monitoring
	MonitorEnabled    bool   `long:"monitor" env:"MONITOR_ENABLED" description:"Run the monitoring scheduler"`
	CheckpointHours   string `long:"checkpoints" env:"CHECKPOINT_HOURS" default:"7,11,15,19" description:"Comma-separated daily checkpoint hours"`
	MonitorTimezone   string `long:"monitor-timezone" env:"MONITOR_TIMEZONE" default:"Europe/Moscow" description:"Timezone of checkpoint hours"`
	MonitorWindow     int    `long:"monitor-window" env:"MONITOR_WINDOW_HOURS" default:"12" description:"Trailing fetch window in hours"`
	MonitorBatchSize  int    `long:"monitor-batch-size" env:"MONITOR_BATCH_SIZE" default:"10" description:"Entities per batch"`
	MonitorParallel   int    `long:"monitor-parallel" env:"MONITOR_PARALLEL" default:"2" description:"Entities processed concurrently inside a batch"`
	EntityDelay       int    `long:"entity-delay" env:"ENTITY_DELAY" default:"2" description:"Delay after each entity in seconds"`
	BatchDelay        int    `long:"batch-delay" env:"BATCH_DELAY" default:"15" description:"Delay between batches in seconds"`
	ActiveDays        int    `long:"active-days" env:"ACTIVE_DAYS" default:"30" description:"Subscription activity window in days"`
	TelegramBotToken  string `long:"telegram-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token for digests"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"bankwatch/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Moscow)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	hours, err := parseHours(raw.CheckpointHours)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint hours: %w", err)
	}

	monitorLoc, err := time.LoadLocation(raw.MonitorTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid monitor timezone '%s': %w", raw.MonitorTimezone, err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		RedisAddr:        raw.RedisAddr,
		EntitiesFile:     raw.EntitiesFile,
		SourcesDir:       raw.SourcesDir,
		Port:             raw.Port,
		BaseUrl:          raw.BaseUrl,
		APIAccessKey:     raw.APIAccessKey,
		WorkerCount:      raw.WorkerCount,
		CORSOrigins:      splitList(raw.CORSOrigins),
		SyncInterval:     time.Duration(raw.SyncInterval) * time.Second,
		LLMProvider:      raw.LLMProvider,
		LLMAPIKey:        raw.LLMAPIKey,
		LLMModel:         raw.LLMModel,
		LLMBaseURL:       raw.LLMBaseURL,
		LLMTimeout:       time.Duration(raw.LLMTimeout) * time.Second,
		LLMMaxAttempts:   raw.LLMMaxAttempts,
		BudgetInitial:    raw.BudgetInitial,
		BudgetFloor:      raw.BudgetFloor,
		BudgetCeiling:    raw.BudgetCeiling,
		CacheTTL:         time.Duration(raw.CacheTTLHours) * time.Hour,
		PairConcurrency:  raw.PairConcurrency,
		ProducerTimeout:  time.Duration(raw.ProducerTimeout) * time.Second,
		NewsAPIKey:       raw.NewsAPIKey,
		Freshness:        time.Duration(raw.FreshnessMinutes) * time.Minute,
		MonitorEnabled:   raw.MonitorEnabled,
		CheckpointHours:  hours,
		MonitorLocation:  monitorLoc,
		MonitorWindow:    time.Duration(raw.MonitorWindow) * time.Hour,
		MonitorBatchSize: raw.MonitorBatchSize,
		MonitorParallel:  raw.MonitorParallel,
		EntityDelay:      time.Duration(raw.EntityDelay) * time.Second,
		BatchDelay:       time.Duration(raw.BatchDelay) * time.Second,
		ActiveWindow:     time.Duration(raw.ActiveDays) * 24 * time.Hour,
		TelegramBotToken: raw.TelegramBotToken,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if cfg.BudgetFloor > cfg.BudgetCeiling {
		return nil, fmt.Errorf("budget floor %d exceeds ceiling %d", cfg.BudgetFloor, cfg.BudgetCeiling)
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

// parseHours turns "7,11,15,19" into sorted, de-duplicated hours.
func parseHours(value string) ([]int, error) {
	seen := make(map[int]bool)
	var hours []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		h, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("'%s' is not a number", part)
		}
		if h < 0 || h > 23 {
			return nil, fmt.Errorf("hour %d out of range", h)
		}
		if !seen[h] {
			seen[h] = true
			hours = append(hours, h)
		}
	}
	if len(hours) == 0 {
		return nil, fmt.Errorf("at least one hour required")
	}
	for i := 1; i < len(hours); i++ {
		for j := i; j > 0 && hours[j] < hours[j-1]; j-- {
			hours[j], hours[j-1] = hours[j-1], hours[j]
		}
	}
	return hours, nil
}

func splitList(value string) []string {
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
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
