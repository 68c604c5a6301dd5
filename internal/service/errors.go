package service

import (
	"errors"
	"fmt"
)

// ErrMissingTranslation is matched by every MissingTranslationError.
var ErrMissingTranslation = errors.New("translation missing")

// ErrClosed is returned by lookups on a closed backend.
var ErrClosed = errors.New("backend closed")

// ErrCycleStillRunning is returned by Close when a refresh cycle outlived the
// stop timeout. The store is left open for it.
var ErrCycleStillRunning = errors.New("refresh cycle still running, store left open")

// MissingTranslationError is returned when a key cannot be resolved, whether it
// is absent from the locale or the locale failed to load.
type MissingTranslationError struct {
	Locale string
	Key    string
	// Unavailable is set when the locale itself could not be loaded.
	Unavailable bool
}

func (e *MissingTranslationError) Error() string {
	if e.Unavailable {
		return fmt.Sprintf("translation missing: %s.%s (locale unavailable)", e.Locale, e.Key)
	}
	return fmt.Sprintf("translation missing: %s.%s", e.Locale, e.Key)
}

func (e *MissingTranslationError) Is(target error) bool {
	return target == ErrMissingTranslation
}
