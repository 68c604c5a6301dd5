package service

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// addJitter adds random jitter to prevent thundering herd across processes
// jitterPercent should be between 0.0-1.0 (e.g., 0.1 = ±10%)
func addJitter(duration time.Duration, jitterPercent float64) time.Duration {
	if jitterPercent <= 0 {
		return duration
	}
	if jitterPercent > 1 {
		jitterPercent = 1
	}

	jitterRange := float64(duration) * jitterPercent
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange

	result := time.Duration(float64(duration) + jitter)
	if result <= 0 {
		result = duration / 2
	}
	return result
}

// joinKey builds the dotted lookup key from scope parts and key, dropping
// empty segments: ("txt", "welcome") + "title" -> "txt.welcome.title".
func joinKey(scope []string, key string) string {
	parts := make([]string, 0, len(scope)+1)
	for _, s := range append(append([]string{}, scope...), key) {
		s = strings.Trim(s, ".")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ".")
}

func newLogger(opts *ServiceOptions) *logrus.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	logger := logrus.New()
	// stdout keeps informational lines out of the error stream
	logger.SetOutput(os.Stdout)
	if !opts.EnableLogging {
		logger.SetOutput(io.Discard)
	}
	return logger
}

// stderrHandler is the default ExceptionHandler.
func stderrHandler() ExceptionHandler {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return func(err error) {
		logger.WithError(err).Error("[i18ncache] translation fetch failed")
	}
}

// safeHandler shields cache state from a panicking handler.
func safeHandler(handler ExceptionHandler, logger *logrus.Logger) ExceptionHandler {
	return func(err error) {
		if err == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[i18ncache] exception handler panicked: %v", fmt.Sprint(r))
			}
		}()
		handler(err)
	}
}
