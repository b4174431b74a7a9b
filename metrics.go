package authcore

import "sync/atomic"

type counters struct {
	codeRequests      atomic.Uint64
	loginSuccess      atomic.Uint64
	loginFailure      atomic.Uint64
	rateLimited       atomic.Uint64
	refreshSuccess    atomic.Uint64
	refreshFailure    atomic.Uint64
	mailFailures      atomic.Uint64
	degradedRateLimit atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of the protocol counters.
type MetricsSnapshot struct {
	CodeRequests   uint64
	LoginSuccess   uint64
	LoginFailure   uint64
	RateLimited    uint64
	RefreshSuccess uint64
	RefreshFailure uint64
	MailFailures   uint64
	// DegradedRateLimit counts verifications that proceeded fail-open
	// because the counting store was unreachable.
	DegradedRateLimit uint64
}

// MetricsSnapshot returns the current counter values.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CodeRequests:      s.metrics.codeRequests.Load(),
		LoginSuccess:      s.metrics.loginSuccess.Load(),
		LoginFailure:      s.metrics.loginFailure.Load(),
		RateLimited:       s.metrics.rateLimited.Load(),
		RefreshSuccess:    s.metrics.refreshSuccess.Load(),
		RefreshFailure:    s.metrics.refreshFailure.Load(),
		MailFailures:      s.metrics.mailFailures.Load(),
		DegradedRateLimit: s.metrics.degradedRateLimit.Load(),
	}
}

// AuditDropped reports how many audit events were dropped by the
// dispatcher since start.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}
