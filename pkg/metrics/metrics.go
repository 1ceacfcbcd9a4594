package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meadowlark", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meadowlark", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	DocumentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meadowlark", Name: "document_operations_total", Help: "Document operations by action and result kind."},
		[]string{"action", "response"},
	)
	ReferenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meadowlark", Name: "reference_failures_total", Help: "Unresolved references by kind (document or descriptor)."},
		[]string{"kind"},
	)
	OwnershipResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "meadowlark", Name: "ownership_results_total", Help: "Ownership gate outcomes by action."},
		[]string{"action", "result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(DocumentOperations)
	reg.MustRegister(ReferenceFailures)
	reg.MustRegister(OwnershipResults)
}
