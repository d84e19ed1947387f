package queue_test

import (
	"serialq/src/queue"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mutex  sync.Mutex
	starts []string
}

func (rec *recorder) request(name string) *queue.Request {
	return queue.NewRequest(name, func() {
		rec.mutex.Lock()
		rec.starts = append(rec.starts, name)
		rec.mutex.Unlock()
	})
}

func (rec *recorder) started() []string {
	rec.mutex.Lock()
	defer rec.mutex.Unlock()
	return append([]string(nil), rec.starts...)
}

func names(rs []*queue.Request) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

// Tests if only the first request is started, and the second one once the
// first completes.
func TestSerialQueue_EmptyToNonEmpty(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b := rec.request("a"), rec.request("b")

	assert.True(t, q.Enqueue(a))
	assert.Equal(t, []string{"a"}, rec.started())

	assert.True(t, q.Enqueue(b))
	assert.Equal(t, []string{"a"}, rec.started())

	assert.True(t, q.Complete(a))
	assert.Equal(t, []string{"a", "b"}, rec.started())
	assert.Equal(t, []string{"b"}, names(q.Requests()))

	active, ok := q.Active()
	assert.True(t, ok)
	assert.Same(t, b, active)
}

// Tests if requests run in admission order.
func TestSerialQueue_FIFOOrder(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		q.Enqueue(rec.request(name))
	}

	var completed []string
	for {
		active, ok := q.Active()
		if !ok {
			break
		}
		completed = append(completed, active.Name)
		require.True(t, q.Complete(active))
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, completed)
	assert.Equal(t, completed, rec.started())
	assert.Equal(t, 0, q.Len())
}

func TestSerialQueue_CompleteIsIdempotent(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b, c := rec.request("a"), rec.request("b"), rec.request("c")
	q.EnqueueAll(a, b, c)

	assert.True(t, q.Complete(a))
	assert.False(t, q.Complete(a))

	assert.Equal(t, []string{"a", "b"}, rec.started())
	assert.Equal(t, []string{"b", "c"}, names(q.Requests()))

	// Never admitted
	assert.False(t, q.Complete(rec.request("x")))
	assert.False(t, q.Complete(nil))
	assert.Equal(t, 2, q.Len())
}

func TestSerialQueue_DuplicateEnqueue(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b := rec.request("a"), rec.request("b")

	assert.True(t, q.Enqueue(a))
	assert.True(t, q.Enqueue(b))

	assert.False(t, q.Enqueue(a))
	assert.False(t, q.Enqueue(b))
	added, err := q.EnqueueAt(0, b)
	assert.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 0, q.EnqueueAll(a, b))

	assert.Equal(t, []string{"a", "b"}, names(q.Requests()))
	assert.Equal(t, []string{"a"}, rec.started())
}

func TestSerialQueue_EnqueueNil(t *testing.T) {
	q := queue.NewSerialQueue()

	assert.False(t, q.Enqueue(nil))
	assert.Equal(t, 0, q.Len())
	_, ok := q.Active()
	assert.False(t, ok)
}

// Tests if a batch admitted into an empty queue starts its first request only.
func TestSerialQueue_EnqueueAllIntoEmpty(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()

	n := q.EnqueueAll(rec.request("x"), rec.request("y"), rec.request("z"))

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"x"}, rec.started())
	assert.Equal(t, []string{"x", "y", "z"}, names(q.Requests()))
}

func TestSerialQueue_EnqueueAllIntoNonEmpty(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	q.Enqueue(rec.request("a"))

	assert.Equal(t, 2, q.EnqueueAll(rec.request("b"), rec.request("c")))
	assert.Equal(t, 0, q.EnqueueAll())

	assert.Equal(t, []string{"a"}, rec.started())
	assert.Equal(t, 3, q.Len())
}

func TestSerialQueue_EnqueueAllSkipsRepeats(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b := rec.request("a"), rec.request("b")

	assert.Equal(t, 2, q.EnqueueAll(a, b, a, nil))
	assert.Equal(t, []string{"a", "b"}, names(q.Requests()))
}

// Tests if completing a request that is not active neither starts nor
// disturbs anything.
func TestSerialQueue_MiddleRemoval(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b, c := rec.request("a"), rec.request("b"), rec.request("c")
	q.EnqueueAll(a, b, c)

	assert.True(t, q.Complete(b))

	assert.Equal(t, []string{"a", "c"}, names(q.Requests()))
	assert.Equal(t, []string{"a"}, rec.started())
	active, _ := q.Active()
	assert.Same(t, a, active)

	assert.True(t, q.Complete(c))
	assert.Equal(t, []string{"a"}, rec.started())

	assert.True(t, q.Complete(a))
	assert.Equal(t, []string{"a"}, rec.started())
	assert.Equal(t, 0, q.Len())
}

func TestSerialQueue_EnqueueAtOutOfRange(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	q.EnqueueAll(rec.request("a"), rec.request("b"))

	added, err := q.EnqueueAt(5, rec.request("r"))
	assert.False(t, added)
	assert.True(t, errors.Is(err, queue.ErrIndexOutOfRange))
	assert.Equal(t, 2, q.Len())

	added, err = q.EnqueueAt(-1, rec.request("r"))
	assert.False(t, added)
	assert.True(t, errors.Is(err, queue.ErrIndexOutOfRange))

	n, err := q.EnqueueAllAt(3, rec.request("s"), rec.request("t"))
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, queue.ErrIndexOutOfRange))

	assert.Equal(t, []string{"a", "b"}, names(q.Requests()))
	assert.Equal(t, []string{"a"}, rec.started())
}

func TestSerialQueue_EnqueueAtIntoEmpty(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()

	added, err := q.EnqueueAt(0, rec.request("a"))
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"a"}, rec.started())
}

// Tests if inserting in front of the active request does not preempt it.
func TestSerialQueue_EnqueueAtFrontDoesNotPreempt(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b, x := rec.request("a"), rec.request("b"), rec.request("x")
	q.EnqueueAll(a, b)

	added, err := q.EnqueueAt(0, x)
	require.NoError(t, err)
	assert.True(t, added)

	assert.Equal(t, []string{"x", "a", "b"}, names(q.Requests()))
	assert.Equal(t, []string{"a"}, rec.started())
	active, _ := q.Active()
	assert.Same(t, a, active)

	q.Complete(a)
	assert.Equal(t, []string{"a", "x"}, rec.started())

	q.Complete(x)
	assert.Equal(t, []string{"a", "x", "b"}, rec.started())
}

func TestSerialQueue_EnqueueAllAt(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()

	n, err := q.EnqueueAllAt(0, rec.request("a"), rec.request("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a"}, rec.started())

	n, err = q.EnqueueAllAt(1, rec.request("x"), rec.request("y"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, []string{"a", "x", "y", "b"}, names(q.Requests()))
	assert.Equal(t, []string{"a"}, rec.started())
}

// Tests if a start action can call back into the queue.
func TestSerialQueue_ReentrantStart(t *testing.T) {
	var events []string
	q := queue.NewSerialQueue()

	b := queue.NewRequest("b", func() { events = append(events, "b") })
	var a *queue.Request
	a = queue.NewRequest("a", func() {
		events = append(events, "a begin")
		q.Enqueue(b)
		q.Complete(a)
		events = append(events, "a end")
	})

	q.Enqueue(a)

	// b starts once a's start action has returned, still within Enqueue
	assert.Equal(t, []string{"a begin", "a end", "b"}, events)
	assert.Equal(t, []string{"b"}, names(q.Requests()))
}

// Tests if a long chain of requests completing synchronously does not recurse.
func TestSerialQueue_SynchronousCompletionChain(t *testing.T) {
	const count = 10000
	q := queue.NewSerialQueue()

	started := 0
	requests := make([]*queue.Request, count)
	for i := range requests {
		i := i
		requests[i] = queue.NewRequest("", func() {
			started++
			q.Complete(requests[i])
		})
	}

	assert.Equal(t, count, q.EnqueueAll(requests...))
	assert.Equal(t, count, started)
	assert.Equal(t, 0, q.Len())
}

// Tests if a completed request can be enqueued again as a retry.
func TestSerialQueue_Retry(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b := rec.request("a"), rec.request("b")
	q.EnqueueAll(a, b)

	q.Complete(a)
	assert.True(t, q.Enqueue(a))
	assert.Equal(t, []string{"b", "a"}, names(q.Requests()))

	q.Complete(b)
	assert.Equal(t, []string{"a", "b", "a"}, rec.started())
}

func TestSerialQueue_Clear(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b, c := rec.request("a"), rec.request("b"), rec.request("c")
	q.EnqueueAll(a, b, c)

	assert.Equal(t, []string{"a", "b", "c"}, names(q.Clear()))
	assert.Equal(t, 0, q.Len())
	_, ok := q.Active()
	assert.False(t, ok)

	assert.False(t, q.Complete(a))
	assert.Equal(t, []string{"a"}, rec.started())

	q.Enqueue(c)
	assert.Equal(t, []string{"a", "c"}, rec.started())
}

// Tests if a panicking start action leaves the queue usable.
func TestSerialQueue_PanickingStart(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	p := queue.NewRequest("p", func() { panic("boom") })

	assert.Panics(t, func() { q.Enqueue(p) })

	b := rec.request("b")
	assert.True(t, q.Enqueue(b))
	assert.Empty(t, rec.started())

	assert.True(t, q.Complete(p))
	assert.Equal(t, []string{"b"}, rec.started())
}

type eventObserver struct {
	events []string
}

func (o *eventObserver) OnEnqueue(r *queue.Request) { o.events = append(o.events, "enqueue "+r.Name) }
func (o *eventObserver) OnStart(r *queue.Request)   { o.events = append(o.events, "start "+r.Name) }
func (o *eventObserver) OnComplete(r *queue.Request, started bool) {
	if started {
		o.events = append(o.events, "complete "+r.Name)
	} else {
		o.events = append(o.events, "drop "+r.Name)
	}
}

func TestSerialQueue_Observer(t *testing.T) {
	o := &eventObserver{}
	q := queue.NewSerialQueue(queue.WithObserver(o), queue.WithCapacity(2))
	a, b, c := queue.NewRequest("a", nil), queue.NewRequest("b", nil), queue.NewRequest("c", nil)

	q.EnqueueAll(a, b, c)
	q.Complete(b)
	q.Complete(a)
	q.Clear()

	assert.Equal(t, []string{
		"enqueue a", "enqueue b", "enqueue c",
		"start a",
		"drop b",
		"complete a",
		"start c",
		"complete c",
	}, o.events)
}

// Tests if concurrent producers never get two requests running at once.
func TestSerialQueue_ConcurrentSingleActive(t *testing.T) {
	const producers = 8
	const perProducer = 50

	q := queue.NewSerialQueue()

	var running, maxRunning, started int32
	var done sync.WaitGroup
	done.Add(producers * perProducer)

	newRequest := func() *queue.Request {
		var r *queue.Request
		r = queue.NewRequest("", func() {
			n := atomic.AddInt32(&running, 1)
			for {
				max := atomic.LoadInt32(&maxRunning)
				if n <= max || atomic.CompareAndSwapInt32(&maxRunning, max, n) {
					break
				}
			}
			atomic.AddInt32(&started, 1)

			go func() {
				time.Sleep(10 * time.Microsecond)
				atomic.AddInt32(&running, -1)
				q.Complete(r)
				done.Done()
			}()
		})
		return r
	}

	var producing sync.WaitGroup
	for p := 0; p < producers; p++ {
		producing.Add(1)
		go func() {
			defer producing.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(newRequest())
			}
		}()
	}
	producing.Wait()
	done.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
	assert.Equal(t, int32(producers*perProducer), atomic.LoadInt32(&started))
	assert.Equal(t, 0, q.Len())
}

func TestSerialQueue_Cancel(t *testing.T) {
	rec := &recorder{}
	q := queue.NewSerialQueue()
	a, b, c := rec.request("a"), rec.request("b"), rec.request("c")
	q.EnqueueAll(a, b, c)

	assert.False(t, q.Cancel(a))
	assert.True(t, q.Cancel(b))
	assert.False(t, q.Cancel(b))
	assert.False(t, q.Cancel(nil))

	assert.Equal(t, []string{"a", "c"}, names(q.Requests()))
	assert.Equal(t, []string{"a"}, rec.started())

	q.Complete(a)
	assert.Equal(t, []string{"a", "c"}, rec.started())
}

func TestSerialQueue_NegativeCapacity(t *testing.T) {
	rec := &recorder{}
	var q *queue.SerialQueue
	require.NotPanics(t, func() { q = queue.NewSerialQueue(queue.WithCapacity(-1)) })

	assert.True(t, q.Enqueue(rec.request("a")))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []string{"a"}, rec.started())
}
