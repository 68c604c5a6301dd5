package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Poller periodically refreshes every locale resident in memory. Each backend
// owns exactly one.
type Poller struct {
	interval time.Duration
	jitter   float64
	keys     func() []string
	resident func(locale string) bool
	refresh  func(ctx context.Context, locale string) error
	metrics  func(name string)
	logger   *logrus.Logger

	stopTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

func newPoller(opts *ServiceOptions, c *Coordinator) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		interval: opts.PollingInterval,
		jitter:   opts.PollJitter,
		keys:     c.memory.Keys,
		resident: c.memory.Contains,
		refresh:  c.Refresh,
		metrics:  c.count,
		logger:   newLogger(opts),
		ctx:      ctx,
		cancel:   cancel,

		stopTimeout: stopTimeout,
	}
}

// Start launches the polling goroutine.
func (p *Poller) Start() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if p.started {
		return fmt.Errorf("poller already started")
	}
	if p.ctx.Err() != nil {
		return fmt.Errorf("poller already stopped")
	}

	p.wg.Add(1)
	go p.loop()

	p.started = true
	p.log("🚀 Polling every %v (jitter %.0f%%)", p.interval, p.jitter*100)
	return nil
}

// Stop signals the loop and waits for an in-flight cycle to finish. The signal
// is observed between cycles only; refreshes already running complete. It
// returns false if the cycle was still running when the wait timed out.
func (p *Poller) Stop() bool {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log("🛑 Polling stopped")
		return true
	case <-time.After(p.stopTimeout):
		p.log("⚠️ Timeout waiting for refresh cycle to finish")
		return false
	}
}

func (p *Poller) loop() {
	defer p.wg.Done()

	for {
		timer := time.NewTimer(addJitter(p.interval, p.jitter))
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := p.RunOnce(context.WithoutCancel(p.ctx)); err != nil {
			p.log("❌ Refresh cycle finished with errors: %v", err)
		}
	}
}

// RunOnce refreshes the locales resident at the start of the call, one after
// the other. Locales loaded meanwhile wait for the next cycle; locales evicted
// meanwhile are skipped.
func (p *Poller) RunOnce(ctx context.Context) error {
	locales := p.keys()
	if p.metrics != nil {
		p.metrics(MetricPollCycle)
	}

	var result *multierror.Error
	for _, locale := range locales {
		if !p.resident(locale) {
			continue
		}
		if err := p.refresh(ctx, locale); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", locale, err))
		}
	}
	return result.ErrorOrNil()
}

func (p *Poller) log(format string, args ...interface{}) {
	p.logger.Infof("[Poller] "+format, args...)
}
