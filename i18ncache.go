package i18ncache

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/omerorhan/i18ncache/internal/origin"
	"github.com/omerorhan/i18ncache/internal/service"
	"github.com/omerorhan/i18ncache/internal/stats"
	"github.com/omerorhan/i18ncache/internal/storage"
)

// Client provides a clean public API for the translation cache
type Client struct {
	backend *service.Backend
}

// NewClient creates a new translation cache client. Unless WithPolling(false)
// is given, the background refresh loop starts immediately.
func NewClient(options ...ServiceOption) (*Client, error) {
	backend, err := service.NewBackend(options...)
	if err != nil {
		return nil, err
	}

	return &Client{
		backend: backend,
	}, nil
}

// T resolves key in locale.
func (c *Client) T(ctx context.Context, locale, key string) (string, error) {
	return c.backend.Lookup(ctx, locale, key)
}

// TScoped resolves scope + key, joined with ".", in locale.
func (c *Client) TScoped(ctx context.Context, locale string, scope []string, key string) (string, error) {
	return c.backend.LookupScoped(ctx, locale, scope, key)
}

// Translations returns a copy of every translation known for locale.
func (c *Client) Translations(ctx context.Context, locale string) (TranslationSet, error) {
	return c.backend.Translations(ctx, locale)
}

// Preload loads locales into memory ahead of the first lookup.
func (c *Client) Preload(ctx context.Context, locales ...string) error {
	var result *multierror.Error
	for _, locale := range locales {
		if _, err := c.backend.Translations(ctx, locale); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Client) AvailableLocales(ctx context.Context) ([]string, error) {
	return c.backend.AvailableLocales(ctx)
}

// Loaded lists the locales held in memory, least recently used first.
func (c *Client) Loaded() []string {
	return c.backend.Loaded()
}

// Refresh runs one refresh cycle now.
func (c *Client) Refresh(ctx context.Context) error {
	return c.backend.Refresh(ctx)
}

func (c *Client) Reload() {
	c.backend.Reload()
}

// Stop gracefully shuts down polling and closes the shared store
func (c *Client) Stop() error {
	return c.backend.Close()
}

// Service options (re-exported for convenience)
type (
	ServiceOption    = service.ServiceOption
	ExceptionHandler = service.ExceptionHandler
)

// Re-export service options for clean API
var (
	WithBaseURL          = service.WithBaseURL
	WithHeaders          = service.WithHeaders
	WithTimeouts         = service.WithTimeouts
	WithTimeoutRetries   = service.WithTimeoutRetries
	WithPollingInterval  = service.WithPollingInterval
	WithPollJitter       = service.WithPollJitter
	WithPolling          = service.WithPolling
	WithMemoryCacheSize  = service.WithMemoryCacheSize
	WithStore            = service.WithStore
	WithKeyPrefix        = service.WithKeyPrefix
	WithOriginRateLimit  = service.WithOriginRateLimit
	WithPathBuilder      = service.WithPathBuilder
	WithParser           = service.WithParser
	WithAvailableLocales = service.WithAvailableLocales
	WithMetrics          = service.WithMetrics
	WithExceptionHandler = service.WithExceptionHandler
	WithLogging          = service.WithLogging
	WithLogger           = service.WithLogger
)

// Re-export common types for convenience
type (
	TranslationSet          = storage.TranslationSet
	CacheRecord             = storage.CacheRecord
	Store                   = storage.Store
	CacheOptions            = storage.CacheOptions
	Parser                  = origin.Parser
	ParserFunc              = origin.ParserFunc
	PathBuilder             = origin.PathBuilder
	PathFunc                = origin.PathFunc
	LocalesParser           = origin.LocalesParser
	LocalesParserFunc       = origin.LocalesParserFunc
	Metrics                 = origin.Metrics
	FetchError              = origin.FetchError
	MissingTranslationError = service.MissingTranslationError
	StatsCollector          = stats.Collector
)

// Errors
var (
	ErrMissingTranslation = service.ErrMissingTranslation
	ErrClosed             = service.ErrClosed
	ErrCycleStillRunning  = service.ErrCycleStillRunning
	ErrFetchFailed        = origin.ErrFetchFailed
)

// Stores, parsers and metrics
var (
	NewRedisStore           = storage.NewRedisStore
	NewRedisStoreFromClient = storage.NewRedisStoreFromClient
	WithRedisOptions        = storage.WithRedisOptions
	NewBoltStore            = storage.NewBoltStore
	NewBoltStoreFromDB      = storage.NewBoltStoreFromDB
	WithBoltOptions         = storage.WithBoltOptions
	NewMemoryStore          = storage.NewMemoryStore
	WithMemoryStoreOptions  = storage.WithMemoryStoreOptions
	DefaultCacheOptions     = storage.DefaultCacheOptions

	JSONParser        = origin.JSONParser
	JSONLocalesParser = origin.JSONLocalesParser
	PathFormat        = origin.PathFormat

	NewStatsCollector = stats.NewCollector
)

// Metric names emitted through WithMetrics.
const (
	MetricLookupHit          = service.MetricLookupHit
	MetricLookupMiss         = service.MetricLookupMiss
	MetricInitialFetch       = service.MetricInitialFetch
	MetricRefreshUpdated     = service.MetricRefreshUpdated
	MetricRefreshNotModified = service.MetricRefreshNotModified
	MetricRefreshFailed      = service.MetricRefreshFailed
	MetricRefreshAdopted     = service.MetricRefreshAdopted
	MetricRefreshContended   = service.MetricRefreshContended
	MetricPollCycle          = service.MetricPollCycle
	MetricOriginSuccess      = origin.MetricSuccess
	MetricOriginFailure      = origin.MetricFailure
	MetricOriginRequestTime  = origin.MetricRequestTime
)
