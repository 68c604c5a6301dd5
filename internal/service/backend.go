package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/omerorhan/i18ncache/internal/origin"
	"github.com/omerorhan/i18ncache/internal/storage"
)

// Backend is a self-refreshing translation cache: lookups are served from
// memory, cold locales are loaded on first use and a poller keeps resident
// locales fresh.
type Backend struct {
	opts        *ServiceOptions
	fetcher     *origin.Fetcher
	memory      *storage.MemoryCache
	coordinator *Coordinator
	poller      *Poller
	logger      *logrus.Logger

	group singleflight.Group

	mu     sync.RWMutex
	closed bool
}

// NewBackend creates a backend and, unless polling is disabled, starts its
// poller.
func NewBackend(options ...ServiceOption) (*Backend, error) {
	opts := DefaultServiceOptions()
	for _, option := range options {
		option(opts)
	}
	if err := validate(opts); err != nil {
		return nil, err
	}
	logger := newLogger(opts)
	opts.Logger = logger

	fetcher, err := origin.NewFetcher(origin.Config{
		BaseURL:            opts.BaseURL,
		Headers:            opts.Headers,
		OpenTimeout:        opts.OpenTimeout,
		ReadTimeout:        opts.ReadTimeout,
		OpenTimeoutRetries: opts.OpenTimeoutRetries,
		ReadTimeoutRetries: opts.ReadTimeoutRetries,
		RateLimit:          opts.OriginRateLimit,
		RateBurst:          opts.OriginRateBurst,
		Path:               opts.Path,
		Parser:             opts.Parser,
		Metrics:            opts.Metrics,
		Logger:             logrus.NewEntry(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create origin fetcher: %w", err)
	}

	return newBackend(opts, fetcher, fetcher, logger)
}

// newBackend lets tests substitute the fetcher used by the coordinator.
func newBackend(opts *ServiceOptions, fetcher Fetcher, raw *origin.Fetcher, logger *logrus.Logger) (*Backend, error) {
	memory, err := storage.NewMemoryCache(opts.MemoryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	coordinator := NewCoordinator(fetcher, memory, opts)
	b := &Backend{
		opts:        opts,
		fetcher:     raw,
		memory:      memory,
		coordinator: coordinator,
		poller:      newPoller(opts, coordinator),
		logger:      logger,
	}

	mode := "direct"
	if coordinator.Shared() {
		mode = "shared"
	}
	b.log("🚀 Translation backend ready (%s mode, %d locales in memory, polling %v)", mode, opts.MemoryCacheSize, opts.Poll)

	if opts.Poll {
		if err := b.poller.Start(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func validate(opts *ServiceOptions) error {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return errors.New("base url is required")
	}
	if opts.PollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive, got %v", opts.PollingInterval)
	}
	if opts.MemoryCacheSize < 1 {
		return fmt.Errorf("memory cache size must be positive, got %d", opts.MemoryCacheSize)
	}
	if opts.OpenTimeoutRetries < 0 || opts.ReadTimeoutRetries < 0 {
		return errors.New("timeout retries must not be negative")
	}
	if opts.PollJitter < 0 || opts.PollJitter > 1 {
		return fmt.Errorf("poll jitter must be within [0, 1], got %v", opts.PollJitter)
	}
	if opts.Path == nil || opts.Parser == nil {
		return errors.New("path builder and parser are required")
	}
	return nil
}

// Lookup resolves key in locale. A locale seen for the first time is loaded
// synchronously; concurrent first lookups share one load. Absent keys and
// locales that failed to load yield a *MissingTranslationError.
func (b *Backend) Lookup(ctx context.Context, locale, key string) (string, error) {
	rec, err := b.record(ctx, locale)
	if err != nil {
		return "", err
	}
	if value, ok := rec.Data[key]; ok {
		b.count(MetricLookupHit)
		return value, nil
	}
	b.count(MetricLookupMiss)
	return "", &MissingTranslationError{Locale: locale, Key: key, Unavailable: rec.Failed}
}

// LookupScoped joins scope and key with "." before resolving.
func (b *Backend) LookupScoped(ctx context.Context, locale string, scope []string, key string) (string, error) {
	return b.Lookup(ctx, locale, joinKey(scope, key))
}

// Translations returns a copy of the full set of locale. It is empty when the
// locale failed to load.
func (b *Backend) Translations(ctx context.Context, locale string) (storage.TranslationSet, error) {
	rec, err := b.record(ctx, locale)
	if err != nil {
		return nil, err
	}
	return rec.Data.Clone(), nil
}

// Loaded lists the locales currently held in memory, least recently used first.
func (b *Backend) Loaded() []string {
	return b.memory.Keys()
}

func (b *Backend) record(ctx context.Context, locale string) (*storage.CacheRecord, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	if rec, ok := b.memory.Get(locale); ok {
		return rec, nil
	}

	ch := b.group.DoChan(locale, func() (interface{}, error) {
		if rec, ok := b.memory.Get(locale); ok {
			return rec, nil
		}
		// Detached so one impatient caller does not fail the others.
		return b.coordinator.InitialFetch(context.WithoutCancel(ctx), locale), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val.(*storage.CacheRecord), nil
	}
}

// Refresh runs one refresh cycle immediately, outside the polling schedule.
func (b *Backend) Refresh(ctx context.Context) error {
	return b.poller.RunOnce(ctx)
}

// Reload drops every cached locale and etag; the next lookups load afresh.
func (b *Backend) Reload() {
	b.memory.Purge()
	b.coordinator.Forget()
	b.log("🔄 Reloaded, memory cache cleared")
}

// AvailableLocales reads the locales document configured with
// WithAvailableLocales.
func (b *Backend) AvailableLocales(ctx context.Context) ([]string, error) {
	if b.opts.LocalesPath == "" {
		return nil, errors.New("no locales path configured")
	}
	if b.fetcher == nil {
		return nil, errors.New("no origin fetcher configured")
	}
	body, err := b.fetcher.FetchRaw(ctx, b.opts.LocalesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch available locales: %w", err)
	}
	locales, err := b.opts.LocalesParser.ParseLocales(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse available locales: %w", err)
	}
	return locales, nil
}

// StopPolling stops the background refresh loop. Lookups keep working from
// memory and cold locales are still loaded on demand.
func (b *Backend) StopPolling() {
	b.poller.Stop()
}

// Close stops polling and closes the shared store. A refresh cycle that
// outlives the stop timeout keeps the store open, and Close reports it.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.log("🛑 Stopping translation backend...")
	stopped := b.poller.Stop()

	var result *multierror.Error
	if b.opts.Store != nil {
		if !stopped {
			b.log("⚠️ Refresh cycle still running, leaving the store open")
			result = multierror.Append(result, ErrCycleStillRunning)
		} else if err := b.opts.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close store: %w", err))
		}
	}
	b.log("✅ Translation backend stopped")
	return result.ErrorOrNil()
}

func (b *Backend) count(name string) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.Increment(name, nil)
	}
}

func (b *Backend) log(format string, args ...interface{}) {
	b.logger.Infof("[Backend] "+format, args...)
}
