package stream_handler

import (
	"bufio"
	"context"
	"io"
	"serialq/src/model"
	"serialq/src/queue"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Handles the incoming streams of one connection.
//
// Each stream carries one job. Jobs from every connection go through the same
// SerialQueue, so only one job runs at a time on a server.
type StreamHandler struct {
	queue   *queue.SerialQueue
	handler Handler
	logger  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mutex   sync.Mutex
	pending map[*queue.Request]io.Closer
}

func NewStreamHandler(ctx context.Context, q *queue.SerialQueue, handler Handler, logger *logrus.Entry) *StreamHandler {
	ctx, cancel := context.WithCancel(ctx)
	return &StreamHandler{
		queue:   q,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[*queue.Request]io.Closer),
	}
}

// Stop drops the jobs of this connection that have not started and cancels
// the context of the running one.
func (s *StreamHandler) Stop() {
	s.mutex.Lock()
	for r, stream := range s.pending {
		if s.queue.Cancel(r) {
			delete(s.pending, r)
			stream.Close()
			s.logger.WithField("job", r).Info("job dropped")
		}
	}
	s.mutex.Unlock()

	// The running job must not finish before the others are dropped
	s.cancel()
}

// HandleStream reads the job request from stream and enqueues it. The stream
// is closed once the response is written.
//
// Returns the queued request, or nil if the job could not be read.
func (s *StreamHandler) HandleStream(stream io.ReadWriteCloser) *queue.Request {
	// receive job request
	job, err := model.ReadJobRequest(bufio.NewReader(stream))
	if err != nil {
		s.logger.WithError(errors.Wrap(err, "read job request")).Warn("invalid request")
		stream.Close()
		return nil
	}

	admitted := time.Now()
	position := s.queue.Len() + 1

	var r *queue.Request
	r = queue.NewRequest(job.Name, func() {
		waited := time.Since(admitted)
		go s.run(r, stream, job, position, waited)
	})
	if job.ID != uuid.Nil {
		r.ID = job.ID
	}

	s.mutex.Lock()
	s.pending[r] = stream
	s.mutex.Unlock()

	s.queue.Enqueue(r)
	return r
}

func (s *StreamHandler) run(r *queue.Request, stream io.WriteCloser, job *model.JobRequest, position int, waited time.Duration) {
	defer s.queue.Complete(r)
	defer s.finish(r)
	defer stream.Close()

	logger := s.logger.WithFields(logrus.Fields{
		"job":      r,
		"position": position,
		"waited":   waited,
	})

	res := &model.JobResponse{
		ID:       r.ID,
		Status:   model.STATUS_OK,
		Position: position,
		Waited:   int(waited.Milliseconds()),
	}

	if err := s.ctx.Err(); err != nil {
		res.Status = model.STATUS_CANCELED
	} else if payload, err := s.handler.Handle(s.ctx, job); err != nil {
		logger.WithError(err).Warn("job failed")
		res.Status = model.STATUS_FAILED
		if errors.Is(err, context.Canceled) {
			res.Status = model.STATUS_CANCELED
		}
		res.Payload = []byte(err.Error())
	} else {
		res.Payload = payload
	}

	// send job response
	if err := res.Write(stream); err != nil {
		logger.WithError(errors.Wrap(err, "write job response")).Warn("response not sent")
		return
	}
	logger.WithField("status", res.Status).Info("job done")
}

func (s *StreamHandler) finish(r *queue.Request) {
	s.mutex.Lock()
	delete(s.pending, r)
	s.mutex.Unlock()
}
