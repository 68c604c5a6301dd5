package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBolt   = "bolt"
)

type Config struct {
	Server struct {
		Port           string   `envconfig:"PORT" default:"8080"`
		AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
		StatsToken     string   `envconfig:"STATS_ACCESS_TOKEN" default:""`
	}

	Origin struct {
		BaseURL            string            `envconfig:"ORIGIN_BASE_URL" default:""`
		PathFormat         string            `envconfig:"ORIGIN_PATH_FORMAT" default:"/%s.json"`
		Headers            map[string]string `envconfig:"ORIGIN_HEADERS"`
		ParserRoot         []string          `envconfig:"ORIGIN_PARSER_ROOT"`
		LocalesPath        string            `envconfig:"ORIGIN_LOCALES_PATH" default:""`
		LocalesField       string            `envconfig:"ORIGIN_LOCALES_FIELD" default:"locale"`
		LocalesRoot        []string          `envconfig:"ORIGIN_LOCALES_ROOT"`
		OpenTimeout        time.Duration     `envconfig:"ORIGIN_OPEN_TIMEOUT" default:"1s"`
		ReadTimeout        time.Duration     `envconfig:"ORIGIN_READ_TIMEOUT" default:"1s"`
		OpenTimeoutRetries int               `envconfig:"ORIGIN_OPEN_TIMEOUT_RETRIES" default:"0"`
		ReadTimeoutRetries int               `envconfig:"ORIGIN_READ_TIMEOUT_RETRIES" default:"0"`
		RateLimitPerSecond float64           `envconfig:"ORIGIN_RATE_LIMIT_PER_SECOND" default:"0"`
		RateLimitBurst     int               `envconfig:"ORIGIN_RATE_LIMIT_BURST" default:"1"`
	}

	Cache struct {
		PollingInterval time.Duration `envconfig:"POLLING_INTERVAL" default:"10m"`
		PollJitter      float64       `envconfig:"POLL_JITTER" default:"0"`
		Poll            bool          `envconfig:"POLL" default:"true"`
		MemoryCacheSize int           `envconfig:"MEMORY_CACHE_SIZE" default:"10"`
		Preload         []string      `envconfig:"PRELOAD_LOCALES"`
	}

	Store struct {
		Backend   string        `envconfig:"STORE_BACKEND" default:"none"`
		RedisURL  string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
		BoltPath  string        `envconfig:"BOLT_PATH" default:"./data/i18ncache.db"`
		KeyPrefix string        `envconfig:"STORE_KEY_PREFIX" default:"i18ncache:"`
		RecordTTL time.Duration `envconfig:"STORE_RECORD_TTL" default:"24h"`
	}

	Logging struct {
		Enabled bool   `envconfig:"LOG_ENABLED" default:"true"`
		Level   string `envconfig:"LOG_LEVEL" default:"info"`
		JSON    bool   `envconfig:"LOG_JSON" default:"false"`
	}
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}
