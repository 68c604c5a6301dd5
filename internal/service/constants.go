package service

import "time"

// Counters emitted through ServiceOptions.Metrics next to the fetcher's own.
const (
	MetricLookupHit          = "i18ncache.lookup.hit"
	MetricLookupMiss         = "i18ncache.lookup.miss"
	MetricInitialFetch       = "i18ncache.initial_fetch"
	MetricRefreshUpdated     = "i18ncache.refresh.updated"
	MetricRefreshNotModified = "i18ncache.refresh.not_modified"
	MetricRefreshFailed      = "i18ncache.refresh.failed"
	MetricRefreshAdopted     = "i18ncache.refresh.adopted"
	MetricRefreshContended   = "i18ncache.refresh.contended"
	MetricPollCycle          = "i18ncache.poll.cycle"
)

// lockTTLFactor times the polling interval is how long a refresh lock blocks
// other processes; a crashed refresher delays the next refresh by at most that.
const lockTTLFactor = 3

const stopTimeout = 10 * time.Second
