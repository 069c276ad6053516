package thumbnail

import (
	"github.com/prometheus/client_golang/prometheus"

	"thumbapi/internal/model"
)

// Metrics holds the generation metrics.
type Metrics struct {
	variants *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		variants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbnail_variants_total",
				Help: "Thumbnail variants that reached a terminal status.",
			},
			[]string{"size", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "thumbnail_variant_duration_seconds",
				Help:    "Time from job start to the terminal status of one variant.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"size"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thumbnail_jobs_in_flight",
			Help: "Thumbnail jobs currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{m.variants, m.duration, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(size model.Size, status model.ThumbnailStatus, seconds float64) {
	m.variants.WithLabelValues(size.String(), string(status)).Inc()
	m.duration.WithLabelValues(size.String()).Observe(seconds)
}
