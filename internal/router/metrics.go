package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelIface  = "iface"
	labelReason = "reason"
	labelType   = "type"
)

var (
	metricPacketsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_packets_forwarded_total",
			Help: "Count of IP packets forwarded out an interface",
		},
		[]string{labelIface},
	)

	metricPacketsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_packets_dropped_total",
			Help: "Count of packets dropped by the router, by reason",
		},
		[]string{labelReason},
	)

	metricICMPSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_icmp_sent_total",
			Help: "Count of ICMP messages generated by the router, by type",
		},
		[]string{labelType},
	)

	metricARPRepliesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_arp_replies_sent_total",
			Help: "Count of ARP replies emitted locally",
		},
		[]string{labelIface},
	)

	metricNATTranslations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_nat_translations_total",
			Help: "Count of NAT translations applied, by direction",
		},
		[]string{"direction", labelType},
	)
)
