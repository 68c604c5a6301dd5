package origin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type failureClass int

const (
	otherFailure failureClass = iota
	openTimeout
	readTimeout
)

// classify separates connect timeouts from timeouts hit once the connection
// was established.
func classify(err error) failureClass {
	if err == nil {
		return otherFailure
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout() {
		return openTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return readTimeout
	}
	return otherFailure
}

// retryBudget is the per-Fetch allowance of retries. The two counters are
// consumed independently.
type retryBudget struct {
	mu       sync.Mutex
	open     int
	read     int
	attempts int
}

type budgetKey struct{}

func withBudget(ctx context.Context, b *retryBudget) context.Context {
	return context.WithValue(ctx, budgetKey{}, b)
}

func budgetFrom(ctx context.Context) *retryBudget {
	b, _ := ctx.Value(budgetKey{}).(*retryBudget)
	return b
}

// checkRetry is the retryablehttp.CheckRetry policy: only open and read
// timeouts are retried, status codes never are.
func checkRetry(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	b := budgetFrom(ctx)
	if b != nil {
		b.mu.Lock()
		b.attempts++
		b.mu.Unlock()
	}
	if err == nil || b == nil {
		return false, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch classify(err) {
	case openTimeout:
		if b.open > 0 {
			b.open--
			return true, nil
		}
	case readTimeout:
		if b.read > 0 {
			b.read--
			return true, nil
		}
	}
	return false, nil
}

// bodyTimeoutError reports a response body that stalled past the read timeout.
// It satisfies net.Error so classify treats it as a read timeout.
type bodyTimeoutError struct {
	cause error
}

func (e *bodyTimeoutError) Error() string {
	return "timeout reading response body: " + e.cause.Error()
}

func (e *bodyTimeoutError) Timeout() bool   { return true }
func (e *bodyTimeoutError) Temporary() bool { return true }
func (e *bodyTimeoutError) Unwrap() error   { return e.cause }

// bufferingTransport reads 200 bodies inside the attempt, bounded by
// readTimeout, so a stalled body reaches checkRetry like a stalled header.
type bufferingTransport struct {
	base        http.RoundTripper
	readTimeout time.Duration
}

func (t *bufferingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	resp, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		// Only the status matters; detach the body from the attempt context.
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if err != nil {
			body = nil
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(t.readTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	body, err := io.ReadAll(resp.Body)
	timer.Stop()
	resp.Body.Close()
	if err != nil {
		if timedOut.Load() {
			return nil, &bodyTimeoutError{cause: err}
		}
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
