package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.FrameReceived()
		c.SendRejected("not_open")
		c.SetStatus("open", []string{"open"})
	})
}

func TestCollectorCounts(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.FrameReceived()
	c.FrameReceived()
	c.SendRejected("empty_body")
	c.SetStatus("open", []string{"connecting", "open"})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FramesReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SendsRejected.WithLabelValues("empty_body")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Status.WithLabelValues("open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Status.WithLabelValues("connecting")))
}
