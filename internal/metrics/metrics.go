package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_verifier_rating_submissions_total",
		Help: "Rating submissions by outcome.",
	}, []string{"outcome"})

	Replays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_verifier_rating_replays_total",
		Help: "Pending rating replays by result.",
	}, []string{"result"})

	DrainPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "news_verifier_drain_passes_total",
		Help: "Completed drain passes over the pending queue.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "news_verifier_pending_ratings",
		Help: "Rating submissions waiting in the local queue.",
	})

	FeedLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_verifier_feed_loads_total",
		Help: "Feed load requests by where the data came from.",
	}, []string{"source"})

	AggregateUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "news_verifier_aggregate_updates_total",
		Help: "Reliability aggregate recomputations by result.",
	}, []string{"result"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
