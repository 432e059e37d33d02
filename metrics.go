package authflow

import "sync/atomic"

// MetricID indexes a counter in the orchestrator's metric table.
type MetricID uint16

const (
	// MetricInitializeAuthenticated counts Initialize runs that ended authenticated.
	MetricInitializeAuthenticated MetricID = iota
	// MetricInitializeUnauthenticated counts Initialize runs that found no valid session.
	MetricInitializeUnauthenticated
	// MetricInitializeError counts Initialize runs that ended in the error state.
	MetricInitializeError
	// MetricInitializeDeduped counts Initialize callers that joined an in-flight run.
	MetricInitializeDeduped
	// MetricInitializeTimeoutRecovery counts first-load timeouts resolved by the degraded path.
	MetricInitializeTimeoutRecovery
	// MetricSignInSuccess counts successful sign-ins.
	MetricSignInSuccess
	// MetricSignInFailure counts rejected sign-ins.
	MetricSignInFailure
	// MetricSignOut counts sign-outs, local and provider driven.
	MetricSignOut
	// MetricProfileCacheHit counts profile resolutions served from cache.
	MetricProfileCacheHit
	// MetricProfileCacheMiss counts profile resolutions that went to a collaborator.
	MetricProfileCacheMiss
	// MetricProfileLegacyHit counts resolutions satisfied by the legacy schema.
	MetricProfileLegacyHit
	// MetricProfileCreated counts lazily created profiles.
	MetricProfileCreated
	// MetricAgreementFailOpen counts agreement evaluations resolved permissively after a fetch error.
	MetricAgreementFailOpen
	// MetricAgreementAccepted counts successful acceptance submissions.
	MetricAgreementAccepted
	// MetricRedirectAgreement counts redirects to the agreement path.
	MetricRedirectAgreement
	// MetricRedirectOnboarding counts redirects to the onboarding path.
	MetricRedirectOnboarding
	// MetricRedirectIntended counts restored intended routes.
	MetricRedirectIntended
	// MetricRedirectHome counts default redirects to the landing path.
	MetricRedirectHome
	// MetricStaleResultDiscarded counts operation results dropped because a
	// newer operation superseded them.
	MetricStaleResultDiscarded

	metricCount
)

// Metrics is a fixed-size lock-free counter table. A nil or disabled Metrics
// accepts increments and reports nothing.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

// NewMetrics returns a Metrics honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter at id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every non-zero counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the counter table.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		if v := m.counters[id].Load(); v > 0 {
			snap.Counters[id] = v
		}
	}
	return snap
}
