package authcore

import "sync/atomic"

// MetricID names one engine counter.
type MetricID int

const (
	MetricSignInSuccess MetricID = iota
	MetricSignInFailure
	MetricSignInRateLimited
	MetricFederatedSignIn
	MetricUserCreated
	MetricAccountLinked
	MetricLinkRaceRecovered
	MetricClaimsSynced
	MetricClaimsSyncStale
	MetricTwoFactorVerified
	MetricTwoFactorFailed
	MetricRateLimitFailOpen

	metricCount
)

var metricNames = [metricCount]string{
	MetricSignInSuccess:     "signin_success",
	MetricSignInFailure:     "signin_failure",
	MetricSignInRateLimited: "signin_rate_limited",
	MetricFederatedSignIn:   "federated_signin",
	MetricUserCreated:       "user_created",
	MetricAccountLinked:     "account_linked",
	MetricLinkRaceRecovered: "link_race_recovered",
	MetricClaimsSynced:      "claims_synced",
	MetricClaimsSyncStale:   "claims_sync_stale",
	MetricTwoFactorVerified: "two_factor_verified",
	MetricTwoFactorFailed:   "two_factor_failed",
	MetricRateLimitFailOpen: "rate_limit_fail_open",
}

// String returns the metric's stable snapshot name.
func (id MetricID) String() string {
	if id < 0 || id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics is a fixed-size atomic counter registry. Inc is lock-free and
// safe on the hot path.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id < 0 || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of all counters keyed by
// [MetricID].
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
