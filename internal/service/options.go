package service

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omerorhan/i18ncache/internal/origin"
	"github.com/omerorhan/i18ncache/internal/storage"
)

// ExceptionHandler receives every failure the cache absorbs: failed fetches,
// shared-store write errors, lock errors. It must not block for long.
type ExceptionHandler func(err error)

// ServiceOptions provides configuration for the translation backend
type ServiceOptions struct {
	BaseURL string            `json:"baseUrl"`
	Headers map[string]string `json:"headers"`

	OpenTimeout        time.Duration `json:"openTimeout"`
	ReadTimeout        time.Duration `json:"readTimeout"`
	OpenTimeoutRetries int           `json:"openTimeoutRetries"`
	ReadTimeoutRetries int           `json:"readTimeoutRetries"`

	PollingInterval time.Duration `json:"pollingInterval"`
	// PollJitter spreads polling across processes, 0.1 = ±10%.
	PollJitter      float64 `json:"pollJitter"`
	Poll            bool    `json:"poll"`
	MemoryCacheSize int     `json:"memoryCacheSize"`

	Store     storage.Store `json:"-"`
	KeyPrefix string        `json:"keyPrefix"`

	OriginRateLimit float64 `json:"originRateLimit"`
	OriginRateBurst int     `json:"originRateBurst"`

	Path          origin.PathBuilder   `json:"-"`
	Parser        origin.Parser        `json:"-"`
	LocalesPath   string               `json:"localesPath"`
	LocalesParser origin.LocalesParser `json:"-"`

	Metrics          origin.Metrics   `json:"-"`
	ExceptionHandler ExceptionHandler `json:"-"`
	EnableLogging    bool             `json:"enableLogging"`
	Logger           *logrus.Logger   `json:"-"`

	now func() time.Time
}

// DefaultServiceOptions returns sensible default options
func DefaultServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		OpenTimeout:     time.Second,
		ReadTimeout:     time.Second,
		PollingInterval: 10 * time.Minute,
		Poll:            true,
		MemoryCacheSize: 10,
		KeyPrefix:       storage.DefaultKeyPrefix,
		Path:            origin.PathFormat("/%s.json"),
		Parser:          origin.JSONParser(),
		LocalesParser:   origin.JSONLocalesParser("locale"),
		EnableLogging:   true,
		now:             time.Now,
	}
}

// ServiceOption is a function that configures service options
type ServiceOption func(*ServiceOptions)

// WithBaseURL sets the origin serving translation documents
func WithBaseURL(url string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.BaseURL = url
	}
}

// WithHeaders adds static headers to every origin request
func WithHeaders(headers map[string]string) ServiceOption {
	return func(opts *ServiceOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithTimeouts(open, read time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.OpenTimeout = open
		opts.ReadTimeout = read
	}
}

// WithTimeoutRetries sets how often open and read timeouts are retried within
// one fetch. The two budgets are independent.
func WithTimeoutRetries(open, read int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.OpenTimeoutRetries = open
		opts.ReadTimeoutRetries = read
	}
}

func WithPollingInterval(interval time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.PollingInterval = interval
	}
}

func WithPollJitter(fraction float64) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.PollJitter = fraction
	}
}

// WithPolling enables/disables the background refresh loop
func WithPolling(enabled bool) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Poll = enabled
	}
}

func WithMemoryCacheSize(size int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.MemoryCacheSize = size
	}
}

// WithStore enables shared mode. Without a store every process talks to the
// origin directly.
func WithStore(store storage.Store) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Store = store
	}
}

func WithKeyPrefix(prefix string) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.KeyPrefix = prefix
	}
}

// WithOriginRateLimit caps origin requests per second for this process
func WithOriginRateLimit(perSecond float64, burst int) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.OriginRateLimit = perSecond
		opts.OriginRateBurst = burst
	}
}

func WithPathBuilder(path origin.PathBuilder) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Path = path
	}
}

func WithParser(parser origin.Parser) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Parser = parser
	}
}

// WithAvailableLocales configures the document listing the locales the origin
// serves.
func WithAvailableLocales(path string, parser origin.LocalesParser) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.LocalesPath = path
		if parser != nil {
			opts.LocalesParser = parser
		}
	}
}

func WithMetrics(metrics origin.Metrics) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Metrics = metrics
	}
}

func WithExceptionHandler(handler ExceptionHandler) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.ExceptionHandler = handler
	}
}

// WithLogging enables/disables logging
func WithLogging(enabled bool) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.EnableLogging = enabled
	}
}

// WithLogger routes log output through an existing logrus logger
func WithLogger(logger *logrus.Logger) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// withClock replaces time.Now; tests only.
func withClock(now func() time.Time) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.now = now
	}
}
