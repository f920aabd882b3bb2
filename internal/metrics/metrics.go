// Package metrics holds the small set of in-process counters and
// latency samples the application service exposes through
// get_metrics. There is no exporter here: the service surfaces a
// Summary snapshot directly to its caller rather than serving a
// scrape endpoint, so a counter struct guarded by its own mutex is
// all this needs.
package metrics

import (
	"sync"

	"github.com/sibukixxx/voicetypeless/internal/domainerr"
)

const latencyRingSize = 1000

// Summary is a point-in-time snapshot returned by get_metrics.
type Summary struct {
	SessionsStarted     int64
	SegmentsTranscribed int64
	SegmentsRewritten   int64
	SegmentsDelivered   int64
	ErrorsByCode        map[domainerr.Code]int64
	RecentLatenciesMs   []int64
}

// Metrics tracks counters behind its own mutex, independent of the
// session and store locks, per the concurrency model's rule that
// metrics updates never participate in session/store lock ordering.
type Metrics struct {
	mu sync.Mutex

	sessionsStarted     int64
	segmentsTranscribed int64
	segmentsRewritten   int64
	segmentsDelivered   int64
	errorsByCode        map[domainerr.Code]int64

	latencies []int64 // bounded ring, most recent latencyRingSize samples
	next      int
	filled    bool
}

// New builds an empty metrics tracker.
func New() *Metrics {
	return &Metrics{
		errorsByCode: make(map[domainerr.Code]int64),
		latencies:    make([]int64, latencyRingSize),
	}
}

func (m *Metrics) IncSessionsStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionsStarted++
}

func (m *Metrics) IncSegmentsTranscribed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segmentsTranscribed++
}

func (m *Metrics) IncSegmentsRewritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segmentsRewritten++
}

func (m *Metrics) IncSegmentsDelivered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segmentsDelivered++
}

func (m *Metrics) IncErrors(code domainerr.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorsByCode[code]++
}

// RecordLatency pushes a phase latency (in milliseconds) into the
// bounded ring, overwriting the oldest sample once full.
func (m *Metrics) RecordLatency(ms int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[m.next] = ms
	m.next = (m.next + 1) % latencyRingSize
	if m.next == 0 {
		m.filled = true
	}
}

// Summary snapshots the current counters, per-code error tallies, and
// the last 20 recorded latency samples (most recent first).
func (m *Metrics) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCode := make(map[domainerr.Code]int64, len(m.errorsByCode))
	for k, v := range m.errorsByCode {
		byCode[k] = v
	}

	n := latencyRingSize
	if !m.filled {
		n = m.next
	}
	window := 20
	if n < window {
		window = n
	}
	recent := make([]int64, 0, window)
	for i := 0; i < window; i++ {
		idx := (m.next - 1 - i + latencyRingSize) % latencyRingSize
		recent = append(recent, m.latencies[idx])
	}

	return Summary{
		SessionsStarted:     m.sessionsStarted,
		SegmentsTranscribed: m.segmentsTranscribed,
		SegmentsRewritten:   m.segmentsRewritten,
		SegmentsDelivered:   m.segmentsDelivered,
		ErrorsByCode:        byCode,
		RecentLatenciesMs:   recent,
	}
}
