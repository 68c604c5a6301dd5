package origin

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// MetricsNamespace prefixes every metric the fetcher emits.
const MetricsNamespace = "i18ncache.etag_client"

const (
	MetricSuccess     = MetricsNamespace + ".success"
	MetricFailure     = MetricsNamespace + ".failure"
	MetricRequestTime = MetricsNamespace + ".request_time"
)

// Metrics receives per-attempt measurements. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	Increment(name string, tags map[string]string)
	Histogram(name string, value float64, tags map[string]string)
}

type pathKey struct{}

func withPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey{}, path)
}

// instrumentedTransport records the duration and outcome of every attempt,
// including the ones the retry policy repeats.
type instrumentedTransport struct {
	base    http.RoundTripper
	metrics Metrics
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	path, _ := req.Context().Value(pathKey{}).(string)
	if path == "" {
		path = req.URL.RequestURI()
	}
	tags := map[string]string{"path": path, "status_code": "error"}
	if err == nil {
		tags["status_code"] = strconv.Itoa(resp.StatusCode)
	}

	t.metrics.Histogram(MetricRequestTime, elapsed, tags)
	if err == nil && (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotModified) {
		t.metrics.Increment(MetricSuccess, tags)
	} else {
		t.metrics.Increment(MetricFailure, tags)
	}
	return resp, err
}
