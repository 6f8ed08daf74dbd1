package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/bugs/:id", "GET", 200, 5*time.Millisecond)
	m.RecordRequest("/bugs/:id", "GET", 200, 7*time.Millisecond)
	m.RecordError("/bugs", "POST", "VALIDATION_FAILED")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/bugs/:id|GET|200"])
	assert.Equal(t, int64(12), snap.RequestMillis["/bugs/:id|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/bugs|POST|VALIDATION_FAILED"])

	m.RecordRequest("/bugs", "GET", 200, 0)
	assert.NotContains(t, snap.Requests, "/bugs|GET|200", "snapshot must not alias live counters")
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordError("/", "GET", "X")
	assert.Empty(t, m.Snapshot().Requests)
}
