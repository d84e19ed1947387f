package queue

import (
	"serialq/src/datastructures"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const appendIndex = -1

// A FIFO queue that runs at most one request at a time.
//
// The request at the front of the queue is the active one: its start action
// runs when it gets there, and the queue only moves on when the owner calls
// Complete. Every method is safe for concurrent use.
//
// Start actions never run while the queue lock is held, so they may call back
// into the queue. Only one goroutine dispatches start actions at a time; a
// promotion caused while another call is dispatching is started by that call
// once its current start action returns. With a single caller goroutine this
// means every start action runs synchronously inside the call that caused it.
type SerialQueue struct {
	mutex    sync.Mutex
	requests datastructures.OrderedList[*Request]

	// The request allowed to run. It stays active until completed, even if a
	// positional insert places other requests in front of it.
	active *Request
	// Whether the start action of active has been dispatched.
	started     bool
	dispatching bool

	observer Observer
	logger   *logrus.Entry
	capacity int
}

func NewSerialQueue(opts ...Option) *SerialQueue {
	q := &SerialQueue{
		observer: nopObserver{},
		logger:   logrus.NewEntry(logrus.StandardLogger()),
		capacity: 16,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.requests = datastructures.NewOrderedList[*Request](q.capacity)
	return q
}

// Enqueue appends r to the queue and reports whether it was newly added.
//
// Enqueueing a request that is already queued does nothing. If the queue had
// no active request, r becomes active and its start action runs.
func (q *SerialQueue) Enqueue(r *Request) bool {
	n, _ := q.insert(appendIndex, []*Request{r})
	return n == 1
}

// EnqueueAt inserts r at index, which must be within [0, Len()].
//
// r is started only if the queue was empty. Inserting in front of the active
// request does not preempt it.
func (q *SerialQueue) EnqueueAt(index int, r *Request) (bool, error) {
	if index < 0 {
		return false, errors.Wrapf(ErrIndexOutOfRange, "index %d", index)
	}
	n, err := q.insert(index, []*Request{r})
	return n == 1, err
}

// EnqueueAll appends the requests in order and returns how many were newly
// added. Requests already queued, or repeated in rs, are skipped.
//
// If the queue was empty, the first added request is started.
func (q *SerialQueue) EnqueueAll(rs ...*Request) int {
	n, _ := q.insert(appendIndex, rs)
	return n
}

// EnqueueAllAt inserts the requests in order at index. See EnqueueAll and
// EnqueueAt.
func (q *SerialQueue) EnqueueAllAt(index int, rs ...*Request) (int, error) {
	if index < 0 {
		return 0, errors.Wrapf(ErrIndexOutOfRange, "index %d", index)
	}
	return q.insert(index, rs)
}

// Complete removes r from the queue. The owner of r calls it when the work
// started by r has finished, whatever the outcome.
//
// Completing the active request starts the next one. Completing a request that
// has not become active yet just drops it. Completing a request that is not
// queued does nothing and returns false.
func (q *SerialQueue) Complete(r *Request) bool {
	q.mutex.Lock()

	if r == nil || q.requests.Remove(r) < 0 {
		q.mutex.Unlock()
		return false
	}

	started := false
	if r == q.active {
		started = q.started
		q.active = nil
		q.started = false
	}
	q.observer.OnComplete(r, started)
	q.debug("request completed", logrus.Fields{
		"request": r,
		"started": started,
		"pending": q.requests.Len(),
	})

	q.promoteLocked()
	q.mutex.Unlock()

	q.dispatch()
	return true
}

// Cancel removes r only if it has not become active yet, and reports whether it
// did. Unlike Complete it never disturbs the running request.
func (q *SerialQueue) Cancel(r *Request) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if r == nil || r == q.active || q.requests.Remove(r) < 0 {
		return false
	}
	q.observer.OnComplete(r, false)
	q.debug("request canceled", logrus.Fields{
		"request": r,
		"pending": q.requests.Len(),
	})
	return true
}

// Clear removes every request without starting any and returns them in queue
// order. A start action already running is not interrupted; completing its
// request afterwards is a no-op.
func (q *SerialQueue) Clear() []*Request {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	removed := q.requests.Clear()
	for _, r := range removed {
		q.observer.OnComplete(r, r == q.active && q.started)
	}
	q.active = nil
	q.started = false

	if len(removed) > 0 {
		q.debug("queue cleared", logrus.Fields{"removed": len(removed)})
	}
	return removed
}

func (q *SerialQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.requests.Len()
}

func (q *SerialQueue) Contains(r *Request) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.requests.Contains(r)
}

// Active returns the request currently allowed to run.
func (q *SerialQueue) Active() (*Request, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.active, q.active != nil
}

// Requests returns a snapshot of the queue in order.
func (q *SerialQueue) Requests() []*Request {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.requests.Items()
}

func (q *SerialQueue) insert(index int, rs []*Request) (int, error) {
	q.mutex.Lock()

	if index == appendIndex {
		index = q.requests.Len()
	}

	candidates := make([]*Request, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			candidates = append(candidates, r)
		}
	}

	inserted, ok := q.requests.Insert(index, candidates...)
	if !ok {
		size := q.requests.Len()
		q.mutex.Unlock()
		return 0, errors.Wrapf(ErrIndexOutOfRange, "index %d, size %d", index, size)
	}

	for _, r := range inserted {
		q.observer.OnEnqueue(r)
		q.debug("request enqueued", logrus.Fields{
			"request": r,
			"pending": q.requests.Len(),
		})
	}

	q.promoteLocked()
	q.mutex.Unlock()

	q.dispatch()
	return len(inserted), nil
}

// The front request becomes active only when no request is active.
func (q *SerialQueue) promoteLocked() {
	if q.active != nil {
		return
	}
	head, ok := q.requests.First()
	if !ok {
		return
	}
	q.active = head
	q.started = false
}

// Runs the start action of the active request unless another call is already
// dispatching. Loops because a start action may complete its own request.
func (q *SerialQueue) dispatch() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.dispatching {
		return
	}
	q.dispatching = true
	defer func() { q.dispatching = false }()

	for q.active != nil && !q.started {
		r := q.active
		q.started = true
		q.observer.OnStart(r)
		q.debug("request started", logrus.Fields{"request": r})

		q.runUnlocked(r)
	}
}

func (q *SerialQueue) runUnlocked(r *Request) {
	// Execute start outside mutex
	q.mutex.Unlock()
	defer q.mutex.Lock()

	r.start()
}

func (q *SerialQueue) debug(msg string, fields logrus.Fields) {
	if q.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		q.logger.WithFields(fields).Debug(msg)
	}
}
