package stream_handler

import (
	"context"
	"serialq/src/model"
	"time"
)

// Handler runs a job once it reaches the front of the queue.
type Handler interface {
	Handle(ctx context.Context, job *model.JobRequest) ([]byte, error)
}

type HandlerFunc func(ctx context.Context, job *model.JobRequest) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, job *model.JobRequest) ([]byte, error) {
	return f(ctx, job)
}

// Used by SimulatedHandler when MaxWork is not set.
const DefaultMaxWork = time.Minute

// SimulatedHandler stands in for a slow external call: it waits for the
// duration the job asks for, or Delay, and echoes the payload. No job waits
// longer than MaxWork.
type SimulatedHandler struct {
	Delay   time.Duration
	MaxWork time.Duration
}

func (h SimulatedHandler) Handle(ctx context.Context, job *model.JobRequest) ([]byte, error) {
	timer := time.NewTimer(h.duration(job))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return job.Payload, nil
	}
}

func (h SimulatedHandler) duration(job *model.JobRequest) time.Duration {
	limit := h.MaxWork
	if limit <= 0 {
		limit = DefaultMaxWork
	}

	delay := h.Delay
	if job.Work > 0 {
		// Compare before converting, Duration overflows past ~292 years
		if int64(job.Work) >= limit.Milliseconds() {
			return limit
		}
		delay = time.Duration(job.Work) * time.Millisecond
	}
	if delay > limit {
		return limit
	}
	return delay
}
