package hazel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-wide traffic counters, registered with the default registry.
// cmd/hazelecho exposes them over HTTP; library users can scrape them
// through their own promhttp handler.
var (
	metricDatagramsIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "datagrams_received_total",
		Help:      "Total number of datagrams received across all connections",
	})

	metricDatagramsOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "datagrams_sent_total",
		Help:      "Total number of datagrams sent across all connections",
	})

	metricBytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "bytes_received_total",
		Help:      "Total bytes received across all connections",
	})

	metricBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "bytes_sent_total",
		Help:      "Total bytes sent across all connections",
	})

	metricRetransmits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "retransmits_total",
		Help:      "Total number of reliable packet retransmissions",
	})

	metricConnections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "connections_total",
		Help:      "Total number of connections created",
	})

	metricConnectionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hazel",
		Name:      "connections_closed_total",
		Help:      "Total number of connections closed",
	})
)
