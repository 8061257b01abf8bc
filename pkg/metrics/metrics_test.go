package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_IsolatedRegistries(t *testing.T) {
	a := NewCollectorWithRegistry("radar_uptime", prometheus.NewRegistry())
	b := NewCollectorWithRegistry("radar_uptime", prometheus.NewRegistry())

	a.RecordFile("valid")
	a.RecordFile("valid")
	b.RecordFile("corrupt")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.FilesProcessedTotal.WithLabelValues("valid")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FilesProcessedTotal.WithLabelValues("valid")))
}

func TestCollector_RecordDownload(t *testing.T) {
	c := NewCollectorWithRegistry("radar_uptime", prometheus.NewRegistry())

	c.RecordDownload("ok", 1024)
	c.RecordDownload("error", 0)

	assert.Equal(t, 1024.0, testutil.ToFloat64(c.RemoteBytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RemoteDownloadsTotal.WithLabelValues("error")))
}
