package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/changes", "POST", 201, 20*time.Millisecond)
	m.RecordRequest("/changes", "POST", 201, 40*time.Millisecond)
	m.RecordRequest("/changes/:id", "GET", 200, 10*time.Millisecond)
	m.RecordError("/changes", "POST", "VALIDATION_FAILED")

	requests, errCounts := m.Snapshot()
	require.Len(t, requests, 2)

	assert.Equal(t, "/changes/:id|GET|200", requests[0].Key)
	assert.Equal(t, int64(1), requests[0].Count)

	assert.Equal(t, "/changes|POST|201", requests[1].Key)
	assert.Equal(t, int64(2), requests[1].Count)
	assert.InDelta(t, 30.0, requests[1].AvgMillis, 0.01)

	assert.Equal(t, int64(1), errCounts["/changes|POST|VALIDATION_FAILED"])
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/x", "GET", 200, time.Millisecond)
	m.RecordError("/x", "GET", "INTERNAL_ERROR")
	requests, errCounts := m.Snapshot()
	assert.Nil(t, requests)
	assert.Nil(t, errCounts)
}
