package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	errorCount      map[string]int64
	transitionCount map[string]int64
	transitionErrs  map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		errorCount:      make(map[string]int64),
		transitionCount: make(map[string]int64),
		transitionErrs:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordTransition counts one transition execution per transition name.
func (m *Metrics) RecordTransition(transition string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionCount[transition]++
}

// RecordTransitionError counts one failed transition per name and error code.
func (m *Metrics) RecordTransitionError(transition, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitionErrs[transition+"|"+code]++
}

// TransitionCount returns the current count for a transition name.
func (m *Metrics) TransitionCount(transition string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionCount[transition]
}
