package storage

import (
	"time"
)

// TranslationSet maps dotted keys ("txt.welcome.title") to their translated
// value for one locale. It is never mutated after a fetch produced it.
type TranslationSet map[string]string

// Clone returns a shallow copy that callers may modify freely.
func (ts TranslationSet) Clone() TranslationSet {
	out := make(TranslationSet, len(ts))
	for k, v := range ts {
		out[k] = v
	}
	return out
}

// CacheRecord is the unit stored in both cache layers.
type CacheRecord struct {
	Data TranslationSet `json:"data"`
	// ETag is empty when the origin did not return one.
	ETag string `json:"etag,omitempty"`
	// ExpiresAt is only set when a shared store is in use.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	// Failed marks a placeholder created after a failed first fetch. Such
	// records live in memory only.
	Failed bool `json:"-"`
}

// IsFresh reports whether the record carries an expiry that lies after now.
func (r *CacheRecord) IsFresh(now time.Time) bool {
	if r == nil || r.ExpiresAt.IsZero() {
		return false
	}
	return r.ExpiresAt.After(now)
}

// FailedRecord returns the empty placeholder cached after a failed first fetch.
func FailedRecord() *CacheRecord {
	return &CacheRecord{Data: TranslationSet{}, Failed: true}
}
