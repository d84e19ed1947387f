// Package netstats measures the latency and throughput of job round trips.
// It only records when each request left and when its response arrived,
// keyed by job ID.
package netstats

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatEntry holds the timings of ONE request.
type StatEntry struct {
	SentAt time.Time
	RecvAt time.Time
	Bytes  int
	Delay  time.Duration
	TP     float64 // bytes/second
}

// StatsCollector keeps the pending requests and a circular window with the
// last measurements.
type StatsCollector struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*StatEntry
	delays  []time.Duration
	tps     []float64
	idx     int // insertion pointer (grows forever)

	now func() time.Time
}

// New creates a collector averaging over the last window (>=1) measurements.
func New(window int) *StatsCollector {
	if window < 1 {
		window = 1
	}
	return &StatsCollector{
		pending: make(map[uuid.UUID]*StatEntry),
		delays:  make([]time.Duration, window),
		tps:     make([]float64, window),
		now:     time.Now,
	}
}

// RecordSend must be called as soon as request id is sent.
func (sc *StatsCollector) RecordSend(id uuid.UUID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.pending[id] = &StatEntry{SentAt: sc.now()}
}

// RecordRecv must be called when the response for id arrives. Unknown ids are
// ignored.
func (sc *StatsCollector) RecordRecv(id uuid.UUID, bytes int) (delay time.Duration, tp float64) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	entry, ok := sc.pending[id]
	if !ok {
		return 0, 0
	}

	entry.RecvAt = sc.now()
	entry.Bytes = bytes
	entry.Delay = entry.RecvAt.Sub(entry.SentAt)
	if entry.Delay > 0 {
		entry.TP = float64(bytes) / entry.Delay.Seconds()
	}

	sc.delays[sc.idx%len(sc.delays)] = entry.Delay
	sc.tps[sc.idx%len(sc.tps)] = entry.TP
	sc.idx++

	delete(sc.pending, id)

	return entry.Delay, entry.TP
}

// Forget drops a request that will get no response.
func (sc *StatsCollector) Forget(id uuid.UUID) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.pending, id)
}

func (sc *StatsCollector) AvgDelay() time.Duration {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	n := sc.filledLocked()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range sc.delays[:n] {
		sum += v
	}
	return sum / time.Duration(n)
}

func (sc *StatsCollector) AvgThroughput() float64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	n := sc.filledLocked()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range sc.tps[:n] {
		sum += v
	}
	return sum / float64(n)
}

// Pending returns how many requests are still waiting for a response.
func (sc *StatsCollector) Pending() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.pending)
}

func (sc *StatsCollector) filledLocked() int {
	if sc.idx < len(sc.delays) {
		return sc.idx
	}
	return len(sc.delays)
}
