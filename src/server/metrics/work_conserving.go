package metrics

import "time"

// Time accounting for a serial queue. The queue is work-conserving while a
// request is in service whenever the backlog is not empty.
type workConserving struct {
	last time.Time

	backlog   int  // queued requests, including the active one
	inService bool // the active request has been started

	busy    time.Duration // backlog>0 && inService
	idle    time.Duration // backlog>0 && !inService
	pending time.Duration // backlog>0
}

// Accumulates the time since w.last according to the current state.
func (w *workConserving) tick(now time.Time) {
	dt := now.Sub(w.last)
	if dt < 0 {
		dt = 0
	}
	w.last = now
	if w.backlog > 0 {
		w.pending += dt
		if w.inService {
			w.busy += dt
		} else {
			w.idle += dt
		}
	}
}

func (w *workConserving) reset() {
	w.busy, w.idle, w.pending = 0, 0, 0
}

func ratio(busy, idle time.Duration) float64 {
	if busy+idle <= 0 {
		return 1.0
	}
	return float64(busy) / float64(busy+idle)
}
