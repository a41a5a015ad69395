package ctcp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSegmentsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctcp_segments_sent_total",
			Help: "Segments transmitted, by variant and whether it was a retransmission.",
		},
		[]string{"variant", "retransmit"},
	)

	metricChecksumErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctcp_checksum_errors_total",
			Help: "Segments dropped for a checksum mismatch, by variant.",
		},
		[]string{"variant"},
	)

	metricConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ctcp_connections_active",
			Help: "Number of ctcp connections currently registered.",
		},
		[]string{"variant"},
	)

	metricTeardowns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctcp_teardowns_total",
			Help: "Connection teardowns, by variant and reason.",
		},
		[]string{"variant", "reason"},
	)
)
