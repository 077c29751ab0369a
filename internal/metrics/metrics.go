package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the tracker's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	cycles             *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	classified         *prometheus.CounterVec
	enrichmentFailures prometheus.Counter
	historyAppends     prometheus.Counter
	priceChanges       prometheus.Counter
	purged             prometheus.Counter
	activeListings     prometheus.Gauge
}

// New registers the collectors on reg
func New(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_cycles_total",
			Help: "Reconciliation cycles by outcome",
		}, []string{"status"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		classified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_listings_classified_total",
			Help: "Listings classified by the reconciler",
		}, []string{"class"}),
		enrichmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_enrichment_failures_total",
			Help: "Detail fetches that failed or timed out",
		}),
		historyAppends: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_history_appends_total",
			Help: "History entries appended",
		}),
		priceChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_price_changes_total",
			Help: "Price change events added to the ledger",
		}),
		purged: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_listings_purged_total",
			Help: "Listings hard-deleted by the boundary policy",
		}),
		activeListings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_listings",
			Help: "Listings not marked removed",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// CycleFinished records a cycle outcome and its duration
func (r *Recorder) CycleFinished(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// Classified adds n listings to the given class
func (r *Recorder) Classified(class string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.classified.WithLabelValues(class).Add(float64(n))
}

func (r *Recorder) EnrichmentFailed() {
	if r == nil {
		return
	}
	r.enrichmentFailures.Inc()
}

func (r *Recorder) HistoryAppended() {
	if r == nil {
		return
	}
	r.historyAppends.Inc()
}

func (r *Recorder) PriceChanged() {
	if r == nil {
		return
	}
	r.priceChanges.Inc()
}

func (r *Recorder) Purged(n int) {
	if r == nil || n == 0 {
		return
	}
	r.purged.Add(float64(n))
}

// SetActiveListings sets the active listing gauge
func (r *Recorder) SetActiveListings(n int) {
	if r == nil {
		return
	}
	r.activeListings.Set(float64(n))
}
