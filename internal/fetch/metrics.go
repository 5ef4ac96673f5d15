package fetch

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	downloadsTotal    *prometheus.CounterVec
	downloadDuration  *prometheus.HistogramVec
	activeDownloads   prometheus.Gauge
	bytesFetchedTotal prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vidflow_fetch_downloads_total",
			Help: "Total fetches by platform and final status.",
		}, []string{"platform", "status"}),
		downloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidflow_fetch_download_duration_seconds",
			Help:    "Wall-clock duration of each fetch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"platform", "status"}),
		activeDownloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vidflow_fetch_active_downloads",
			Help: "Fetch processes currently running.",
		}),
		bytesFetchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vidflow_fetch_bytes_total",
			Help: "Total bytes of completed download files.",
		}),
	}
	registry.MustRegister(
		m.downloadsTotal,
		m.downloadDuration,
		m.activeDownloads,
		m.bytesFetchedTotal,
	)
	return m
}
