package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/omerorhan/i18ncache/internal/storage"
)

// Status is the outcome of a conditional fetch.
type Status int

const (
	StatusFailed Status = iota
	StatusUpdated
	StatusNotModified
)

func (s Status) String() string {
	switch s {
	case StatusUpdated:
		return "updated"
	case StatusNotModified:
		return "not_modified"
	default:
		return "failed"
	}
}

// FetchResult carries Data and ETag for StatusUpdated, and Err (wrapping
// ErrFetchFailed) for StatusFailed. StatusNotModified carries no data; the
// caller keeps what it has.
type FetchResult struct {
	Status Status
	Data   storage.TranslationSet
	ETag   string
	Err    error
}

func failed(err error) FetchResult {
	return FetchResult{Status: StatusFailed, Err: err}
}

// Config configures a Fetcher. BaseURL is required; every other field has a
// usable zero value.
type Config struct {
	BaseURL string
	Headers map[string]string

	OpenTimeout        time.Duration
	ReadTimeout        time.Duration
	OpenTimeoutRetries int
	ReadTimeoutRetries int
	RetryWaitMin       time.Duration
	RetryWaitMax       time.Duration

	// RateLimit bounds origin requests per second for this process. Zero
	// disables limiting.
	RateLimit float64
	RateBurst int

	Path    PathBuilder
	Parser  Parser
	Metrics Metrics
	Logger  *logrus.Entry

	// DialContext overrides the dialer, e.g. to route through a proxy.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

const (
	DefaultOpenTimeout  = 10 * time.Second
	DefaultReadTimeout  = 10 * time.Second
	DefaultRetryWaitMin = 50 * time.Millisecond
	DefaultRetryWaitMax = time.Second
)

// Fetcher downloads translation sets with conditional GETs.
type Fetcher struct {
	cfg     Config
	client  *retryablehttp.Client
	limiter *rate.Limiter
	logger  *logrus.Entry
}

func NewFetcher(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("origin base url is required")
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.OpenTimeoutRetries < 0 || cfg.ReadTimeoutRetries < 0 {
		return nil, fmt.Errorf("retry counts must not be negative (open %d, read %d)", cfg.OpenTimeoutRetries, cfg.ReadTimeoutRetries)
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = DefaultRetryWaitMin
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = DefaultRetryWaitMax
		if cfg.RetryWaitMax < cfg.RetryWaitMin {
			cfg.RetryWaitMax = cfg.RetryWaitMin
		}
	}
	if cfg.Path == nil {
		cfg.Path = PathFormat("/%s.json")
	}
	if cfg.Parser == nil {
		cfg.Parser = JSONParser()
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}

	dialer := &net.Dialer{Timeout: cfg.OpenTimeout, KeepAlive: 30 * time.Second}
	transport := cleanhttp.DefaultPooledTransport()
	transport.DialContext = dialer.DialContext
	if cfg.DialContext != nil {
		transport.DialContext = cfg.DialContext
	}
	transport.TLSHandshakeTimeout = cfg.OpenTimeout
	transport.ResponseHeaderTimeout = cfg.ReadTimeout

	var rt http.RoundTripper = &bufferingTransport{base: transport, readTimeout: cfg.ReadTimeout}
	if cfg.Metrics != nil {
		rt = &instrumentedTransport{base: rt, metrics: cfg.Metrics}
	}

	f := &Fetcher{
		cfg: cfg,
		client: &retryablehttp.Client{
			HTTPClient: &http.Client{
				Transport: rt,
				Timeout:   cfg.OpenTimeout + cfg.ReadTimeout,
			},
			RetryWaitMin: cfg.RetryWaitMin,
			RetryWaitMax: cfg.RetryWaitMax,
			RetryMax:     cfg.OpenTimeoutRetries + cfg.ReadTimeoutRetries,
			CheckRetry:   checkRetry,
			Backoff:      retryablehttp.DefaultBackoff,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
		},
		logger: logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return f, nil
}

// Fetch downloads the dataset of locale. A non-empty priorETag makes the
// request conditional.
func (f *Fetcher) Fetch(ctx context.Context, locale, priorETag string) FetchResult {
	path := f.cfg.Path.PathFor(locale)
	resp, err := f.get(ctx, path, priorETag)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return failed(&FetchError{Kind: NetworkTransient, Path: path, Status: resp.StatusCode, Cause: err})
		}
		data, err := f.cfg.Parser.Parse(body)
		if err != nil {
			return failed(&FetchError{Kind: MalformedPayload, Path: path, Status: resp.StatusCode, Cause: err})
		}
		f.logger.WithField("locale", locale).Debugf("[Fetcher] downloaded %d keys", len(data))
		return FetchResult{Status: StatusUpdated, Data: data, ETag: resp.Header.Get("ETag")}
	case http.StatusNotModified:
		etag := resp.Header.Get("ETag")
		if etag == "" {
			etag = priorETag
		}
		f.logger.WithField("locale", locale).Debug("[Fetcher] not modified")
		return FetchResult{Status: StatusNotModified, ETag: etag}
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return failed(&FetchError{Kind: OriginRejected, Path: path, Status: resp.StatusCode})
	}
}

// FetchRaw performs an unconditional GET of path and returns the body of a 200
// response.
func (f *Fetcher) FetchRaw(ctx context.Context, path string) ([]byte, error) {
	resp, err := f.get(ctx, path, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{Kind: OriginRejected, Path: path, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: NetworkTransient, Path: path, Status: resp.StatusCode, Cause: err}
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, path, etag string) (*http.Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: NetworkTransient, Path: path, Cause: err}
		}
	}

	budget := &retryBudget{open: f.cfg.OpenTimeoutRetries, read: f.cfg.ReadTimeoutRetries}
	reqCtx := withBudget(withPath(ctx, path), budget)

	req, err := retryablehttp.NewRequestWithContext(reqCtx, http.MethodGet, f.url(path), nil)
	if err != nil {
		return nil, &FetchError{Kind: OriginRejected, Path: path, Cause: err}
	}
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		f.logger.WithField("path", path).Debugf("[Fetcher] giving up after %d attempt(s): %v", budget.attempts, err)
		return nil, &FetchError{Kind: NetworkTransient, Path: path, Cause: err}
	}
	return resp, nil
}

func (f *Fetcher) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
