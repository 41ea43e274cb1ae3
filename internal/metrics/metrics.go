// Package metrics exposes Prometheus counters for the scheduling services.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "booking_created_total",
			Help:      "Count of booking entries processed by result.",
		},
		[]string{"result"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled with a refund.",
		},
	)

	joinDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "join_decision_total",
			Help:      "Count of join decisions by outcome.",
		},
		[]string{"outcome"},
	)

	restrictionDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "restriction_denied_total",
			Help:      "Count of booking attempts denied by restriction bound.",
		},
		[]string{"bound"},
	)

	creditAuthorization = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "credit_authorization_total",
			Help:      "Count of credit authorizations by result.",
		},
		[]string{"result"},
	)

	expansionCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "expansion_cache_total",
			Help:      "Expansion cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingCancelled,
			joinDecision,
			restrictionDenied,
			creditAuthorization,
			expansionCache,
			httpRequests,
		)
	})
}

func IncBookingCreated(result string) {
	bookingCreated.WithLabelValues(result).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncJoinDecision(outcome string) {
	joinDecision.WithLabelValues(outcome).Inc()
}

func IncRestrictionDenied(bound string) {
	restrictionDenied.WithLabelValues(bound).Inc()
}

func IncCreditAuthorization(authorized bool) {
	result := "insufficient"
	if authorized {
		result = "authorized"
	}
	creditAuthorization.WithLabelValues(result).Inc()
}

func IncCacheHit() {
	expansionCache.WithLabelValues("hit").Inc()
}

func IncCacheMiss() {
	expansionCache.WithLabelValues("miss").Inc()
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
