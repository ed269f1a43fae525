// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orion_rent_requests_total",
		Help: "Rent requests by outcome",
	}, []string{"outcome"}) // outcome=ok|insufficient_capacity|provisioning_failed|error

	nodesRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orion_nodes_registered_total",
		Help: "Workers registered through the agent endpoint",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orion_http_requests_total",
		Help: "HTTP requests by route and status class",
	}, []string{"route", "class"})
)

// RecordRent counts one rent request outcome.
func RecordRent(outcome string) {
	rentRequests.WithLabelValues(outcome).Inc()
}

// RecordNodeRegistered counts one successful worker registration.
func RecordNodeRegistered() {
	nodesRegistered.Inc()
}

// RecordHTTP counts one handled request.
func RecordHTTP(route, class string) {
	httpRequests.WithLabelValues(route, class).Inc()
}
