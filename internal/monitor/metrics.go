// Package monitor defines the prometheus metrics of the service.
package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the API and scan collectors. Each instance registers its
// own collectors, so tests can use private registries.
type Metrics struct {
	// API请求
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec

	// 扫描任务
	ScanRuns      *prometheus.CounterVec
	ScanDuration  *prometheus.HistogramVec
	ClustersFound *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusters_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"path", "method", "status"},
		),
		APIDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clusters_api_duration_seconds",
				Help:    "API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		ScanRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusters_scan_runs_total",
				Help: "Total number of finished scan runs",
			},
			[]string{"strategy", "status"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clusters_scan_duration_seconds",
				Help:    "Scan run latency",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"strategy"},
		),
		ClustersFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusters_found_total",
				Help: "Total number of significant clusters found",
			},
			[]string{"strategy"},
		),
	}

	reg.MustRegister(m.APIRequests, m.APIDuration)
	reg.MustRegister(m.ScanRuns, m.ScanDuration, m.ClustersFound)
	return m
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(path, method string, status int, elapsed time.Duration) {
	m.APIRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.APIDuration.WithLabelValues(path, method).Observe(elapsed.Seconds())
}

// ObserveScan records one finished scan run.
func (m *Metrics) ObserveScan(strategy, status string, clusters int, elapsed time.Duration) {
	m.ScanRuns.WithLabelValues(strategy, status).Inc()
	m.ScanDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if clusters > 0 {
		m.ClustersFound.WithLabelValues(strategy).Add(float64(clusters))
	}
}
