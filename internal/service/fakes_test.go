package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omerorhan/i18ncache/internal/origin"
	"github.com/omerorhan/i18ncache/internal/storage"
)

type fetchCall struct {
	locale string
	etag   string
}

// fakeFetcher replays queued results per locale; the last one repeats.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []fetchCall
	results map[string][]origin.FetchResult
	gate    chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: make(map[string][]origin.FetchResult)}
}

func (f *fakeFetcher) queue(locale string, results ...origin.FetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[locale] = append(f.results[locale], results...)
}

func (f *fakeFetcher) Fetch(_ context.Context, locale, priorETag string) origin.FetchResult {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{locale: locale, etag: priorETag})
	q := f.results[locale]
	if len(q) == 0 {
		return failure()
	}
	res := q[0]
	if len(q) > 1 {
		f.results[locale] = q[1:]
	}
	return res
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callsFor(locale string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.locale == locale {
			out = append(out, c)
		}
	}
	return out
}

func updated(data storage.TranslationSet, etag string) origin.FetchResult {
	return origin.FetchResult{Status: origin.StatusUpdated, Data: data, ETag: etag}
}

func notModified(etag string) origin.FetchResult {
	return origin.FetchResult{Status: origin.StatusNotModified, ETag: etag}
}

func failure() origin.FetchResult {
	return origin.FetchResult{
		Status: origin.StatusFailed,
		Err:    &origin.FetchError{Kind: origin.OriginRejected, Path: "/test.json", Status: 500},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) handle(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func testOptions(extra ...ServiceOption) *ServiceOptions {
	opts := DefaultServiceOptions()
	opts.BaseURL = "http://origin.invalid"
	opts.Poll = false
	opts.EnableLogging = false
	opts.ExceptionHandler = func(error) {}
	opts.PollingInterval = time.Minute
	for _, option := range extra {
		option(opts)
	}
	return opts
}

func newTestBackend(t *testing.T, fetcher Fetcher, extra ...ServiceOption) *Backend {
	t.Helper()
	opts := testOptions(extra...)
	require.NoError(t, validate(opts))
	b, err := newBackend(opts, fetcher, nil, newLogger(opts))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

// sharedRecord writes rec straight into store under the translations key.
func sharedRecord(t *testing.T, store storage.Store, locale string, rec *storage.CacheRecord) {
	t.Helper()
	require.NoError(t, store.Write(context.Background(), storage.TranslationsKey(storage.DefaultKeyPrefix, locale), rec))
}

func readShared(t *testing.T, store storage.Store, locale string) *storage.CacheRecord {
	t.Helper()
	rec, err := store.Read(context.Background(), storage.TranslationsKey(storage.DefaultKeyPrefix, locale))
	require.NoError(t, err)
	return rec
}
