package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/omerorhan/i18ncache"
	"github.com/omerorhan/i18ncache/internal/config"
)

func newLogger(cfg config.Config) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(os.Stdout)
	if cfg.Logging.JSON {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logger.SetLevel(level)
	return logger, nil
}

// newStore returns nil for the "none" backend, which runs the cache in
// direct-fetch mode.
func newStore(cfg config.Config) (i18ncache.Store, error) {
	opts := &i18ncache.CacheOptions{DefaultTTL: cfg.Store.RecordTTL}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "", config.StoreNone:
		return nil, nil
	case config.StoreMemory:
		return i18ncache.NewMemoryStore(i18ncache.WithMemoryStoreOptions(opts)), nil
	case config.StoreRedis:
		store, err := i18ncache.NewRedisStore(cfg.Store.RedisURL, i18ncache.WithRedisOptions(opts))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreBolt:
		store, err := i18ncache.NewBoltStore(cfg.Store.BoltPath, i18ncache.WithBoltOptions(opts))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func clientOptions(cfg config.Config, store i18ncache.Store, metrics i18ncache.Metrics, logger *log.Logger) []i18ncache.ServiceOption {
	options := []i18ncache.ServiceOption{
		i18ncache.WithBaseURL(cfg.Origin.BaseURL),
		i18ncache.WithTimeouts(cfg.Origin.OpenTimeout, cfg.Origin.ReadTimeout),
		i18ncache.WithTimeoutRetries(cfg.Origin.OpenTimeoutRetries, cfg.Origin.ReadTimeoutRetries),
		i18ncache.WithPollingInterval(cfg.Cache.PollingInterval),
		i18ncache.WithPollJitter(cfg.Cache.PollJitter),
		i18ncache.WithPolling(cfg.Cache.Poll),
		i18ncache.WithMemoryCacheSize(cfg.Cache.MemoryCacheSize),
		i18ncache.WithKeyPrefix(cfg.Store.KeyPrefix),
		i18ncache.WithPathBuilder(i18ncache.PathFormat(cfg.Origin.PathFormat)),
		i18ncache.WithParser(i18ncache.JSONParser(cfg.Origin.ParserRoot...)),
		i18ncache.WithMetrics(metrics),
		i18ncache.WithLogging(cfg.Logging.Enabled),
	}
	if cfg.Logging.Enabled {
		options = append(options, i18ncache.WithLogger(logger))
	}
	if len(cfg.Origin.Headers) > 0 {
		options = append(options, i18ncache.WithHeaders(cfg.Origin.Headers))
	}
	if cfg.Origin.RateLimitPerSecond > 0 {
		options = append(options, i18ncache.WithOriginRateLimit(cfg.Origin.RateLimitPerSecond, cfg.Origin.RateLimitBurst))
	}
	if cfg.Origin.LocalesPath != "" {
		options = append(options, i18ncache.WithAvailableLocales(
			cfg.Origin.LocalesPath,
			i18ncache.JSONLocalesParser(cfg.Origin.LocalesField, cfg.Origin.LocalesRoot...),
		))
	}
	if store != nil {
		options = append(options, i18ncache.WithStore(store))
	}
	return options
}
