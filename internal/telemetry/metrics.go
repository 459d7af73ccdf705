package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued    = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_jobs_enqueued_total", Help: "Jobs created via the API"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_jobs_completed_total", Help: "Jobs completed successfully"})
	JobsRetried     = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_jobs_retried_total", Help: "Job failures returned to pending for retry"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_jobs_failed_total", Help: "Jobs that failed terminally"})
	ClaimsLost      = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_claims_lost_total", Help: "Claim attempts lost to another worker"})
	PostsPublished  = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_posts_published_total", Help: "Scheduled posts published"})
	PostsFailed     = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_posts_failed_total", Help: "Scheduled posts that failed to publish"})
	OAuthCallbacks  = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_oauth_callbacks_total", Help: "OAuth callbacks handled"})
	PendingJobDepth = prometheus.NewGauge(prometheus.GaugeOpts{Name: "engine_jobs_pending", Help: "Pending jobs eligible for claiming"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsRetried,
			JobsFailed,
			ClaimsLost,
			PostsPublished,
			PostsFailed,
			OAuthCallbacks,
			PendingJobDepth,
		)
	})
	return promhttp.Handler()
}
