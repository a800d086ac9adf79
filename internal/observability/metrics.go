// Package observability holds the Prometheus collectors shared by the service.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goportfolio_upstream_requests_total",
			Help: "Storage API calls by endpoint and HTTP status (0 for transport errors)",
		},
		[]string{"endpoint", "status"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goportfolio_upstream_request_duration_seconds",
			Help:    "Storage API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	tokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goportfolio_token_refreshes_total",
			Help: "Refresh-grant exchanges by result",
		},
		[]string{"result"},
	)

	bucketRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goportfolio_bucket_refreshes_total",
			Help: "Bucket refreshes by bucket, trigger and result",
		},
		[]string{"bucket", "trigger", "result"},
	)

	bucketRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goportfolio_bucket_refresh_duration_seconds",
			Help:    "Time to list and resolve a bucket",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"bucket"},
	)

	bucketAssets = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "goportfolio_bucket_assets",
			Help: "Assets currently served per bucket",
		},
		[]string{"bucket"},
	)

	scanErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goportfolio_scan_errors_total",
			Help: "Folder listing and link resolution failures that were skipped",
		},
		[]string{"kind"},
	)
)

// ObserveUpstream records one storage API call.
func ObserveUpstream(endpoint string, status int, elapsed time.Duration) {
	upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	upstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveTokenRefresh records a refresh-grant exchange.
func ObserveTokenRefresh(err error) {
	tokenRefreshes.WithLabelValues(result(err)).Inc()
}

// ObserveBucketRefresh records a bucket refresh and the resulting asset count.
func ObserveBucketRefresh(bucket, trigger string, assets int, elapsed time.Duration, err error) {
	bucketRefreshes.WithLabelValues(bucket, trigger, result(err)).Inc()
	bucketRefreshDuration.WithLabelValues(bucket).Observe(elapsed.Seconds())
	if err == nil {
		bucketAssets.WithLabelValues(bucket).Set(float64(assets))
	}
}

// SetBucketAssets sets the served asset gauge, e.g. after loading a stored snapshot.
func SetBucketAssets(bucket string, assets int) {
	bucketAssets.WithLabelValues(bucket).Set(float64(assets))
}

// ObserveScanError counts a skipped folder ("list") or path ("link").
func ObserveScanError(kind string) {
	scanErrors.WithLabelValues(kind).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
