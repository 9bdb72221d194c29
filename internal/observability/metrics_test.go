package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets/:id", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/tickets/:id", "GET", 200, 30*time.Millisecond)
	m.RecordError("/dispatch/next", "POST", "NO_TICKETS_AVAILABLE")
	m.RecordDispatch("overdue")
	m.RecordDispatch("overdue")
	m.RecordTransition("close")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/tickets/:id|GET|200"])
	assert.Equal(t, int64(20), snap.AvgLatency["/tickets/:id|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/dispatch/next|POST|NO_TICKETS_AVAILABLE"])
	assert.Equal(t, int64(2), snap.Dispatches["overdue"])
	assert.Equal(t, int64(1), snap.Transitions["close"])

	// snapshot is a copy
	snap.Dispatches["overdue"] = 99
	assert.Equal(t, int64(2), m.Snapshot().Dispatches["overdue"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordDispatch("priority")
		_ = m.Snapshot()
	})
}
