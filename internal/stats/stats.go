package stats

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is an in-process metrics sink. It keeps a counter per metric name
// and per name+status_code pair, and a running summary per histogram name.
type Collector struct {
	StartTime time.Time

	mu         sync.RWMutex
	counters   map[string]*atomic.Int64
	histograms map[string]*summary
}

type summary struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *summary) observe(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.count++
	s.sum += v
}

// HistogramSnapshot is a point-in-time view of one histogram.
type HistogramSnapshot struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

func NewCollector() *Collector {
	return &Collector{
		StartTime:  time.Now(),
		counters:   make(map[string]*atomic.Int64),
		histograms: make(map[string]*summary),
	}
}

// Increment adds one to name and, when tags carry a status_code, to
// name{status_code=...}.
func (c *Collector) Increment(name string, tags map[string]string) {
	c.counter(name).Add(1)
	if code := tags["status_code"]; code != "" {
		c.counter(name + "{status_code=" + code + "}").Add(1)
	}
}

func (c *Collector) Histogram(name string, value float64, _ map[string]string) {
	if math.IsNaN(value) {
		return
	}
	c.mu.RLock()
	h, ok := c.histograms[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if h, ok = c.histograms[name]; !ok {
			h = &summary{}
			c.histograms[name] = h
		}
		c.mu.Unlock()
	}
	h.observe(value)
}

func (c *Collector) counter(name string) *atomic.Int64 {
	c.mu.RLock()
	n, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return n
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok = c.counters[name]; !ok {
		n = &atomic.Int64{}
		c.counters[name] = n
	}
	return n
}

// Count returns the current value of a counter, zero if it was never touched.
func (c *Collector) Count(name string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n, ok := c.counters[name]; ok {
		return n.Load()
	}
	return 0
}

func (c *Collector) HistogramSummary(name string) HistogramSnapshot {
	c.mu.RLock()
	h, ok := c.histograms[name]
	c.mu.RUnlock()
	if !ok {
		return HistogramSnapshot{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HistogramSnapshot{Count: h.count, Sum: h.sum, Min: h.min, Max: h.max}
	if h.count > 0 {
		snap.Avg = h.sum / float64(h.count)
	}
	return snap
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.StartTime)
}

// Snapshot returns a point-in-time snapshot of all stats
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	counterNames := make([]string, 0, len(c.counters))
	for name := range c.counters {
		counterNames = append(counterNames, name)
	}
	histNames := make([]string, 0, len(c.histograms))
	for name := range c.histograms {
		histNames = append(histNames, name)
	}
	c.mu.RUnlock()
	sort.Strings(counterNames)
	sort.Strings(histNames)

	counters := make(map[string]int64, len(counterNames))
	for _, name := range counterNames {
		counters[name] = c.Count(name)
	}
	histograms := make(map[string]HistogramSnapshot, len(histNames))
	for _, name := range histNames {
		histograms[name] = c.HistogramSummary(name)
	}

	uptime := c.Uptime()
	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     c.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"counters":   counters,
		"histograms": histograms,
	}
}

// HitRate returns hits/(hits+misses) as a percentage.
func (c *Collector) HitRate(hitName, missName string) float64 {
	hits := c.Count(hitName)
	misses := c.Count(missName)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// CountPrefix sums every counter whose name starts with prefix, excluding the
// per-status_code breakdowns.
func (c *Collector) CountPrefix(prefix string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for name, n := range c.counters {
		if strings.HasPrefix(name, prefix) && !strings.Contains(name, "{") {
			total += n.Load()
		}
	}
	return total
}
