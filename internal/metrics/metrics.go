package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wetter_archive_fetches_total",
			Help: "Total DWD station archive downloads",
		},
		[]string{"transport", "status"},
	)

	ArchiveFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wetter_archive_fetch_latency_seconds",
			Help:    "DWD archive download latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wetter_table_cache_lookups_total",
			Help: "Station table cache lookups by result",
		},
		[]string{"result"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wetter_forecast_sessions_total",
			Help: "Forecast sessions by outcome",
		},
		[]string{"outcome"},
	)

	SessionStations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wetter_forecast_session_stations",
			Help:    "Number of stations selected per forecast session",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)
)
