package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

type requestStats struct {
	count         int64
	totalDuration time.Duration
}

// Metrics keeps in-process request and error counters, keyed by
// path|method|status. Good enough for the ops endpoint; anything heavier
// belongs in an external collector.
type Metrics struct {
	mu       sync.Mutex
	requests map[string]*requestStats
	errors   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: make(map[string]*requestStats),
		errors:   make(map[string]int64),
	}
}

// RecordRequest counts a completed request and accumulates its duration.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.requests[key]
	if !ok {
		stats = &requestStats{}
		m.requests[key] = stats
	}
	stats.count++
	stats.totalDuration += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key]++
}

// RequestSnapshot is one row of the metrics snapshot.
type RequestSnapshot struct {
	Key       string  `json:"key"`
	Count     int64   `json:"count"`
	AvgMillis float64 `json:"avg_ms"`
}

// Snapshot returns current counters sorted by key for stable output.
func (m *Metrics) Snapshot() (requests []RequestSnapshot, errors map[string]int64) {
	if m == nil {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	requests = make([]RequestSnapshot, 0, len(m.requests))
	for key, stats := range m.requests {
		avg := float64(stats.totalDuration.Milliseconds()) / float64(stats.count)
		requests = append(requests, RequestSnapshot{Key: key, Count: stats.count, AvgMillis: avg})
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].Key < requests[j].Key })

	errors = make(map[string]int64, len(m.errors))
	for key, count := range m.errors {
		errors[key] = count
	}
	return requests, errors
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
