package queue

import "github.com/sirupsen/logrus"

// Observer receives the lifecycle events of the requests in a SerialQueue.
//
// Methods are called with the queue lock held and must not call back into the
// queue.
type Observer interface {
	// A request was admitted.
	OnEnqueue(r *Request)

	// A request became active. Called right before its start action runs.
	OnStart(r *Request)

	// A request was removed. started reports whether it had been active.
	OnComplete(r *Request, started bool)
}

type Option func(*SerialQueue)

func WithObserver(o Observer) Option {
	return func(q *SerialQueue) {
		q.observer = o
	}
}

func WithLogger(logger *logrus.Entry) Option {
	return func(q *SerialQueue) {
		q.logger = logger
	}
}

// Initial capacity of the backing list.
func WithCapacity(capacity int) Option {
	return func(q *SerialQueue) {
		if capacity < 0 {
			capacity = 0
		}
		q.capacity = capacity
	}
}

type nopObserver struct{}

func (nopObserver) OnEnqueue(*Request)        {}
func (nopObserver) OnStart(*Request)          {}
func (nopObserver) OnComplete(*Request, bool) {}
