package metrics

import (
	"context"
	"serialq/src/queue"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Counters for the requests that went through a queue.
type Counters struct {
	Enqueued, Started, Completed int64
	// Removed before they became active.
	Dropped int64

	QueueDelaySum, ServiceTimeSum, ResponseTimeSum time.Duration
}

func (c Counters) AvgQueueDelay() time.Duration {
	return avg(c.QueueDelaySum, c.Started)
}

func (c Counters) AvgServiceTime() time.Duration {
	return avg(c.ServiceTimeSum, c.Completed)
}

func (c Counters) AvgResponseTime() time.Duration {
	return avg(c.ResponseTimeSum, c.Completed)
}

type Snapshot struct {
	Counters

	Pending int

	Busy, Idle, Backlog time.Duration
}

// Fraction of the backlog time a request was in service.
func (s Snapshot) WorkConservingRatio() float64 {
	return ratio(s.Busy, s.Idle)
}

type requestTimes struct {
	enqueuedAt time.Time
	startedAt  time.Time
}

// Metrics observes a SerialQueue. Use it with queue.WithObserver.
type Metrics struct {
	mu       sync.Mutex
	counters Counters
	pending  map[*queue.Request]*requestTimes

	total  workConserving
	window workConserving

	events  csvOut
	samples csvOut

	now    func() time.Time
	logger *logrus.Entry
}

var _ queue.Observer = (*Metrics)(nil)

type Option func(*Metrics)

func WithClock(now func() time.Time) Option {
	return func(m *Metrics) {
		m.now = now
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(m *Metrics) {
		m.logger = logger
	}
}

func New(opts ...Option) *Metrics {
	m := &Metrics{
		pending: make(map[*queue.Request]*requestTimes),
		now:     time.Now,
		logger:  logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(m)
	}
	start := m.now()
	m.total.last = start
	m.window.last = start
	return m
}

// -------------------- CSVs --------------------

// OpenEvents writes one row per completed or dropped request to path.
func (m *Metrics) OpenEvents(path string) error {
	return m.events.open(path, []string{
		"ts",
		"request",
		"id",
		"event", // complete | drop
		"queue_delay_ms",
		"service_time_ms",
		"response_time_ms",
		"pending",
	})
}

// OpenSamples writes one row per Sample call to path.
func (m *Metrics) OpenSamples(path string) error {
	return m.samples.open(path, []string{
		"ts", "pending", "busy_ms", "idle_ms", "backlog_ms", "ratio",
	})
}

func (m *Metrics) Close() error {
	errEvents := m.events.close()
	errSamples := m.samples.close()
	if errEvents != nil {
		return errEvents
	}
	return errSamples
}

// -------------------- Queue events --------------------

func (m *Metrics) OnEnqueue(r *queue.Request) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters.Enqueued++
	m.pending[r] = &requestTimes{enqueuedAt: now}

	m.tickLocked(now)
	m.total.backlog++
	m.window.backlog++
}

func (m *Metrics) OnStart(r *queue.Request) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters.Started++
	if t, ok := m.pending[r]; ok {
		t.startedAt = now
		m.counters.QueueDelaySum += now.Sub(t.enqueuedAt)
	}

	m.tickLocked(now)
	m.total.inService = true
	m.window.inService = true
}

func (m *Metrics) OnComplete(r *queue.Request, started bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.pending[r]
	if !ok {
		t = &requestTimes{enqueuedAt: now, startedAt: now}
	}
	delete(m.pending, r)

	m.tickLocked(now)
	m.total.backlog--
	m.window.backlog--

	event := "drop"
	var delay, service time.Duration
	response := now.Sub(t.enqueuedAt)
	if started {
		event = "complete"
		delay = t.startedAt.Sub(t.enqueuedAt)
		service = now.Sub(t.startedAt)

		m.counters.Completed++
		m.counters.ServiceTimeSum += service
		m.counters.ResponseTimeSum += response
		m.total.inService = false
		m.window.inService = false
	} else {
		m.counters.Dropped++
	}

	m.events.write([]string{
		now.Format(time.RFC3339Nano),
		r.Name,
		r.ID.String(),
		event,
		ms(delay),
		ms(service),
		ms(response),
		strconv.Itoa(len(m.pending)),
	})
}

func (m *Metrics) tickLocked(now time.Time) {
	m.total.tick(now)
	m.window.tick(now)
}

// -------------------- Snapshots --------------------

// Snapshot returns the totals since New.
func (m *Metrics) Snapshot() Snapshot {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tickLocked(now)
	return Snapshot{
		Counters: m.counters,
		Pending:  len(m.pending),
		Busy:     m.total.busy,
		Idle:     m.total.idle,
		Backlog:  m.total.pending,
	}
}

// Sample returns the time accounting since the previous Sample, writes it to
// the samples CSV and starts a new window.
func (m *Metrics) Sample() Snapshot {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tickLocked(now)
	s := Snapshot{
		Counters: m.counters,
		Pending:  len(m.pending),
		Busy:     m.window.busy,
		Idle:     m.window.idle,
		Backlog:  m.window.pending,
	}
	m.window.reset()

	m.samples.write([]string{
		now.Format(time.RFC3339Nano),
		strconv.Itoa(s.Pending),
		ms(s.Busy), ms(s.Idle), ms(s.Backlog),
		f64(s.WorkConservingRatio()),
	})
	return s
}

// Run samples every interval until ctx is done.
func (m *Metrics) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("metrics: invalid sample interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s := m.Sample()
			m.logger.WithFields(logrus.Fields{
				"pending":   s.Pending,
				"completed": s.Completed,
				"dropped":   s.Dropped,
				"avg_delay": s.AvgQueueDelay(),
				"ratio":     f64(s.WorkConservingRatio()),
			}).Info("queue sample")
		}
	}
}

func avg(sum time.Duration, n int64) time.Duration {
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}

func ms(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }
func f64(v float64) string     { return strconv.FormatFloat(v, 'f', 3, 64) }
