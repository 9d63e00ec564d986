package mapper

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/canonical/bib-ranking/internal/ranking"
)

const (
	MetricDocumentsProcessed = "ranking_documents_processed_total"
	MetricEntriesEmitted     = "ranking_entries_emitted_total"
	MetricDocumentsSkipped   = "ranking_documents_skipped_total"
	MetricDocumentsMalformed = "ranking_documents_malformed_total"
	MetricMapDuration        = "ranking_map_duration_seconds"
)

// Metrics holds the Prometheus collectors of the runner. All operations
// are thread-safe.
type Metrics struct {
	processed *prometheus.CounterVec
	emitted   *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	malformed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDocumentsProcessed,
			Help: "Total number of documents read from the source",
		}, []string{"view"}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEntriesEmitted,
			Help: "Total number of index entries emitted",
		}, []string{"view"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDocumentsSkipped,
			Help: "Total number of documents that did not qualify, by reason",
		}, []string{"view", "reason"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDocumentsMalformed,
			Help: "Total number of documents that could not be decoded",
		}, []string{"view"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricMapDuration,
			Help:    "Duration of whole map runs in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"view"}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.processed,
		m.emitted,
		m.skipped,
		m.malformed,
		m.duration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) observe(view string, reason ranking.Reason) {
	m.processed.WithLabelValues(view).Inc()
	if reason == ranking.Qualified {
		m.emitted.WithLabelValues(view).Inc()
		return
	}
	m.skipped.WithLabelValues(view, reason.String()).Inc()
}

func (m *Metrics) observeMalformed(view string) {
	m.processed.WithLabelValues(view).Inc()
	m.malformed.WithLabelValues(view).Inc()
}

func (m *Metrics) observeRun(view string, seconds float64) {
	m.duration.WithLabelValues(view).Observe(seconds)
}

func (m *Metrics) observeIgnored(view string) {
	m.processed.WithLabelValues(view).Inc()
}
