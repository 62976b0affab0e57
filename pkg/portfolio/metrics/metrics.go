// Package metrics exposes Prometheus counters for asset and purge activity.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfolio"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	uploadsTotal         atomic.Pointer[prometheus.CounterVec]
	objectDeletionsTotal atomic.Pointer[prometheus.CounterVec]
	purgeRequestsTotal   atomic.Pointer[prometheus.CounterVec]
	reauthFailuresTotal  atomic.Pointer[prometheus.Counter]
	requestsTotal        atomic.Pointer[prometheus.CounterVec]
	requestDuration      atomic.Pointer[prometheus.HistogramVec]
)

// Init registers all metrics with reg. Record functions are no-ops until
// Init has been called.
func Init(reg prometheus.Registerer) error {
	uploads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "uploads_total",
			Help:      "Asset uploads by bucket and result",
		},
		[]string{"bucket", "result"},
	)
	deletions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "object_deletions_total",
			Help:      "Stored object deletions by bucket and result",
		},
		[]string{"bucket", "result"},
	)
	purges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "requests_total",
			Help:      "Bulk deletion requests sent to the purge function by result",
		},
		[]string{"result"},
	)
	reauth := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "reauth_failures_total",
			Help:      "Rejected re-authentications during bulk deletion",
		},
	)
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	for name, c := range map[string]prometheus.Collector{
		"uploads":         uploads,
		"objectDeletions": deletions,
		"purgeRequests":   purges,
		"reauthFailures":  reauth,
		"requests":        requests,
		"requestDuration": duration,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	uploadsTotal.Store(uploads)
	objectDeletionsTotal.Store(deletions)
	purgeRequestsTotal.Store(purges)
	reauthFailuresTotal.Store(&reauth)
	requestsTotal.Store(requests)
	requestDuration.Store(duration)
	return nil
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// RecordUpload counts an asset upload into bucket.
func RecordUpload(bucket string, err error) {
	if c := uploadsTotal.Load(); c != nil {
		c.WithLabelValues(bucket, result(err)).Inc()
	}
}

// RecordObjectDeletion counts a stored object removal from bucket.
func RecordObjectDeletion(bucket string, err error) {
	if c := objectDeletionsTotal.Load(); c != nil {
		c.WithLabelValues(bucket, result(err)).Inc()
	}
}

// RecordPurge counts a purge function call.
func RecordPurge(err error) {
	if c := purgeRequestsTotal.Load(); c != nil {
		c.WithLabelValues(result(err)).Inc()
	}
}

// RecordReauthFailure counts a rejected re-authentication.
func RecordReauthFailure() {
	if c := reauthFailuresTotal.Load(); c != nil {
		(*c).Inc()
	}
}

// RecordRequest records one served HTTP request.
func RecordRequest(method, route, status string, seconds float64) {
	if c := requestsTotal.Load(); c != nil {
		c.WithLabelValues(method, route, status).Inc()
	}
	if h := requestDuration.Load(); h != nil {
		h.WithLabelValues(method, route).Observe(seconds)
	}
}

// Handler serves the metrics gathered by g in text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
