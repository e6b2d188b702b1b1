package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DocumentsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "documents_served_total", Help: "Number of document files served, by outcome (ok, not_modified)."},
		[]string{"outcome"},
	)
	ServeDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "serve_denied_total", Help: "Number of denied document requests, by decision (forbidden, not_found)."},
		[]string{"decision"},
	)
	RevisionIndexLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "revision_index_lookups_total", Help: "Revision index cache lookups, by result (hit, miss)."},
		[]string{"result"},
	)
	ContentPointerRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docvault", Name: "content_pointer_repairs_total", Help: "Times the latest-revision content pointer was invalid and the newest attachment was substituted."},
	)
	LockOverrides = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docvault", Name: "lock_overrides_total", Help: "Number of document edit-lock overrides."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docvault", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		DocumentsServed,
		ServeDenied,
		RevisionIndexLookups,
		ContentPointerRepairs,
		LockOverrides,
		RateLimitAllowed,
		RateLimitRejected,
	)
}
