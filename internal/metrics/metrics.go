// Package metrics exposes prometheus counters for the sync client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "imsync"

// Collector groups the client metrics. A nil *Collector is valid and records
// nothing, so components can be built without metrics in tests.
type Collector struct {
	FramesReceived prometheus.Counter
	FramesDropped  prometheus.Counter
	ServerErrors   prometheus.Counter
	SendsAccepted  prometheus.Counter
	SendsRejected  *prometheus.CounterVec
	Reconnects     prometheus.Counter
	Status         *prometheus.GaugeVec
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Inbound websocket frames handed to dispatch.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_dropped_total",
			Help: "Inbound frames dropped because they could not be parsed.",
		}),
		ServerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "server_errors_total",
			Help: "Frames carrying a server reported error.",
		}),
		SendsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sends_accepted_total",
			Help: "Outbound frames queued for writing.",
		}),
		SendsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sends_rejected_total",
			Help: "Outbound frames refused before any network I/O.",
		}, []string{"reason"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total",
			Help: "Reconnect attempts started by the reconnect policy.",
		}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connection_status",
			Help: "1 for the current connection status, 0 otherwise.",
		}, []string{"status"}),
	}
	reg.MustRegister(c.FramesReceived, c.FramesDropped, c.ServerErrors,
		c.SendsAccepted, c.SendsRejected, c.Reconnects, c.Status)
	return c
}

func (c *Collector) FrameReceived() {
	if c != nil {
		c.FramesReceived.Inc()
	}
}

func (c *Collector) FrameDropped() {
	if c != nil {
		c.FramesDropped.Inc()
	}
}

func (c *Collector) ServerError() {
	if c != nil {
		c.ServerErrors.Inc()
	}
}

func (c *Collector) SendAccepted() {
	if c != nil {
		c.SendsAccepted.Inc()
	}
}

func (c *Collector) SendRejected(reason string) {
	if c != nil {
		c.SendsRejected.WithLabelValues(reason).Inc()
	}
}

func (c *Collector) Reconnect() {
	if c != nil {
		c.Reconnects.Inc()
	}
}

// SetStatus marks status as the current connection status.
func (c *Collector) SetStatus(status string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == status {
			v = 1
		}
		c.Status.WithLabelValues(s).Set(v)
	}
}
