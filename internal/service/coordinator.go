package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omerorhan/i18ncache/internal/origin"
	"github.com/omerorhan/i18ncache/internal/storage"
)

// Fetcher performs conditional downloads of one locale.
type Fetcher interface {
	Fetch(ctx context.Context, locale, priorETag string) origin.FetchResult
}

// Coordinator decides, per locale, whether data comes from the shared store or
// the origin, and which process pays for the origin request.
type Coordinator struct {
	fetcher   Fetcher
	memory    *storage.MemoryCache
	store     storage.Store
	interval  time.Duration
	keyPrefix string
	now       func() time.Time
	report    ExceptionHandler
	metrics   origin.Metrics
	logger    *logrus.Logger

	mu    sync.Mutex
	etags map[string]string
}

// NewCoordinator wires a coordinator. A nil store selects direct-fetch mode.
func NewCoordinator(fetcher Fetcher, memory *storage.MemoryCache, opts *ServiceOptions) *Coordinator {
	logger := newLogger(opts)
	handler := opts.ExceptionHandler
	if handler == nil {
		handler = stderrHandler()
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = storage.DefaultKeyPrefix
	}
	c := &Coordinator{
		fetcher:   fetcher,
		memory:    memory,
		store:     opts.Store,
		interval:  opts.PollingInterval,
		keyPrefix: prefix,
		now:       now,
		report:    safeHandler(handler, logger),
		metrics:   opts.Metrics,
		logger:    logger,
		etags:     make(map[string]string),
	}
	memory.OnEvict(c.forgetLocale)
	return c
}

// InitialFetch loads a locale that is not in memory. A record already in the
// shared store is adopted as is, without revalidation. Otherwise the origin is
// asked unconditionally. On failure memory receives an empty placeholder and
// the shared store is left alone. The returned record is never nil.
func (c *Coordinator) InitialFetch(ctx context.Context, locale string) *storage.CacheRecord {
	c.count(MetricInitialFetch)

	if c.store != nil {
		rec, err := c.store.Read(ctx, c.translationsKey(locale))
		if err != nil {
			c.logf(locale, "⚠️ Failed to read shared record, fetching from origin: %v", err)
		} else if rec != nil {
			c.logf(locale, "📥 Seeded from shared store")
			c.adopt(locale, rec)
			return rec
		}
	}

	res := c.fetcher.Fetch(ctx, locale, "")
	switch res.Status {
	case origin.StatusUpdated:
		rec := c.newRecord(res)
		c.writeShared(ctx, locale, rec)
		c.adopt(locale, rec)
		c.logf(locale, "✅ Downloaded %d keys", len(rec.Data))
		return rec
	case origin.StatusNotModified:
		res.Err = fmt.Errorf("%w: unconditional request for %s answered 304", origin.ErrFetchFailed, locale)
	}

	c.report(res.Err)
	c.logf(locale, "❌ Initial fetch failed: %v", res.Err)
	rec := storage.FailedRecord()
	c.adopt(locale, rec)
	return rec
}

// Refresh revalidates a locale that is already in memory. Failures leave both
// layers untouched and are returned after being reported. Losing the refresh
// lock to another process is not an error.
func (c *Coordinator) Refresh(ctx context.Context, locale string) error {
	if c.store == nil {
		return c.refreshDirect(ctx, locale)
	}
	return c.refreshShared(ctx, locale)
}

func (c *Coordinator) refreshDirect(ctx context.Context, locale string) error {
	res := c.fetcher.Fetch(ctx, locale, c.priorETag(locale))
	switch res.Status {
	case origin.StatusUpdated:
		c.count(MetricRefreshUpdated)
		c.adopt(locale, c.newRecord(res))
		c.logf(locale, "🔄 Updated (%d keys)", len(res.Data))
		return nil
	case origin.StatusNotModified:
		c.count(MetricRefreshNotModified)
		c.logf(locale, "📝 Not modified")
		return nil
	default:
		return c.refreshFailed(locale, res.Err)
	}
}

func (c *Coordinator) refreshShared(ctx context.Context, locale string) error {
	key := c.translationsKey(locale)
	shared, err := c.store.Read(ctx, key)
	if err != nil {
		c.logf(locale, "⚠️ Failed to read shared record, treating as absent: %v", err)
		shared = nil
	}
	if shared.IsFresh(c.now()) {
		c.count(MetricRefreshAdopted)
		c.adopt(locale, shared)
		return nil
	}

	acquired, err := c.store.WriteIfAbsent(ctx, c.lockKey(locale), storage.LockValue(), c.lockTTL())
	if err != nil {
		err = fmt.Errorf("refresh lock for %s: %w", locale, err)
		c.report(err)
		c.logf(locale, "⚠️ Skipping refresh: %v", err)
		return err
	}
	if !acquired {
		c.count(MetricRefreshContended)
		c.logf(locale, "⏭️ Another process is refreshing")
		latest, err := c.store.Read(ctx, key)
		if err != nil {
			c.logf(locale, "⚠️ Failed to re-read shared record: %v", err)
			return nil
		}
		if latest != nil {
			c.adopt(locale, latest)
		}
		return nil
	}

	c.logf(locale, "👑 Refreshing for all processes")
	base, etag := c.revalidationBase(locale, shared)
	res := c.fetcher.Fetch(ctx, locale, etag)
	switch res.Status {
	case origin.StatusUpdated:
		c.count(MetricRefreshUpdated)
		rec := c.newRecord(res)
		werr := c.writeShared(ctx, locale, rec)
		c.adopt(locale, rec)
		c.logf(locale, "✅ Updated (%d keys), next expiry %s", len(rec.Data), rec.ExpiresAt.Format(time.RFC3339))
		return werr
	case origin.StatusNotModified:
		c.count(MetricRefreshNotModified)
		if base == nil {
			// Nothing to confirm; keep whatever memory holds.
			return nil
		}
		rec := &storage.CacheRecord{Data: base.Data, ETag: res.ETag, ExpiresAt: c.now().Add(c.interval)}
		werr := c.writeShared(ctx, locale, rec)
		c.adopt(locale, rec)
		c.logf(locale, "📝 Not modified, expiry extended to %s", rec.ExpiresAt.Format(time.RFC3339))
		return werr
	default:
		return c.refreshFailed(locale, res.Err)
	}
}

// revalidationBase picks the data a 304 would confirm together with the etag
// describing it. The stale shared record wins; memory is the fallback.
func (c *Coordinator) revalidationBase(locale string, shared *storage.CacheRecord) (*storage.CacheRecord, string) {
	if shared != nil && shared.ETag != "" {
		return shared, shared.ETag
	}
	etag := c.etag(locale)
	if etag == "" {
		return nil, ""
	}
	if rec, ok := c.memory.Peek(locale); ok && !rec.Failed {
		return rec, etag
	}
	return nil, ""
}

func (c *Coordinator) refreshFailed(locale string, err error) error {
	if err == nil {
		err = fmt.Errorf("%w: %s", origin.ErrFetchFailed, locale)
	}
	c.count(MetricRefreshFailed)
	c.report(err)
	c.logf(locale, "❌ Refresh failed, keeping previous data: %v", err)
	return err
}

func (c *Coordinator) newRecord(res origin.FetchResult) *storage.CacheRecord {
	rec := &storage.CacheRecord{Data: res.Data, ETag: res.ETag}
	if rec.Data == nil {
		rec.Data = storage.TranslationSet{}
	}
	if c.store != nil {
		rec.ExpiresAt = c.now().Add(c.interval)
	}
	return rec
}

// writeShared persists rec unless it is a failure placeholder. Errors are
// reported; memory is updated regardless by the caller.
func (c *Coordinator) writeShared(ctx context.Context, locale string, rec *storage.CacheRecord) error {
	if c.store == nil || rec == nil || rec.Failed {
		return nil
	}
	if err := c.store.Write(ctx, c.translationsKey(locale), rec); err != nil {
		err = fmt.Errorf("store translations for %s: %w", locale, err)
		c.report(err)
		c.logf(locale, "⚠️ %v", err)
		return err
	}
	return nil
}

// adopt installs rec in memory. The etag goes first so that an eviction racing
// the Put still clears it.
func (c *Coordinator) adopt(locale string, rec *storage.CacheRecord) {
	c.mu.Lock()
	c.etags[locale] = rec.ETag
	c.mu.Unlock()
	c.memory.Put(locale, rec)
}

func (c *Coordinator) etag(locale string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.etags[locale]
}

// priorETag is the etag to revalidate with. A failure placeholder has nothing
// to revalidate, so its refresh is unconditional.
func (c *Coordinator) priorETag(locale string) string {
	if rec, ok := c.memory.Peek(locale); ok && rec.Failed {
		return ""
	}
	return c.etag(locale)
}

// forgetLocale runs when memory evicts locale.
func (c *Coordinator) forgetLocale(locale string) {
	c.mu.Lock()
	delete(c.etags, locale)
	c.mu.Unlock()
}

// Forget drops every remembered etag so the next fetch is unconditional.
func (c *Coordinator) Forget() {
	c.mu.Lock()
	c.etags = make(map[string]string)
	c.mu.Unlock()
}

// Shared reports whether a shared store is configured.
func (c *Coordinator) Shared() bool {
	return c.store != nil
}

func (c *Coordinator) lockTTL() time.Duration {
	return lockTTLFactor * c.interval
}

func (c *Coordinator) translationsKey(locale string) string {
	return storage.TranslationsKey(c.keyPrefix, locale)
}

func (c *Coordinator) lockKey(locale string) string {
	return storage.RefreshLockKey(c.keyPrefix, locale)
}

func (c *Coordinator) count(name string) {
	if c.metrics != nil {
		c.metrics.Increment(name, nil)
	}
}

func (c *Coordinator) logf(locale, format string, args ...interface{}) {
	c.logger.WithField("locale", locale).Infof("[Coordinator] "+format, args...)
}

// IsFetchFailure reports whether err came from a failed origin fetch.
func IsFetchFailure(err error) bool {
	return errors.Is(err, origin.ErrFetchFailed)
}
