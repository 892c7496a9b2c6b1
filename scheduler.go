package bluetooth

import "sync"

// scheduler marshals backend callbacks (which may arrive on a D-Bus signal
// goroutine, a WinRT apartment thread via cgo, or a CoreBluetooth dispatch
// queue goroutine) onto a single goroutine owned by the Client/Scanner that
// created it, so user callbacks are never invoked concurrently with each
// other and never on a backend's own thread. One internal event channel
// per Client/Scanner: a bounded channel absorbs bursts (notifications
// arriving faster than the consumer drains them) while preserving arrival
// order.
type scheduler struct {
	events  chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// newScheduler starts the drain goroutine immediately; call stop to end it.
func newScheduler(queueDepth int) *scheduler {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	s := &scheduler{
		events:  make(chan func(), queueDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *scheduler) run() {
	defer close(s.stopped)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			// Drain whatever is already queued before exiting, so a
			// disconnect callback enqueued just before stop() still fires.
			for {
				select {
				case fn := <-s.events:
					fn()
				default:
					return
				}
			}
		}
	}
}

// post enqueues fn to run on the scheduler's goroutine, blocking the
// backend's own thread only long enough to hand off the closure. It is
// safe to call from any goroutine, including after stop (the closure is
// silently dropped once the scheduler has exited).
func (s *scheduler) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// stop ends the drain goroutine after flushing anything already queued, and
// does not return until that goroutine has actually exited. It is
// idempotent. A caller that needs to close a channel the drain goroutine
// might still be sending on (e.g. Scanner.Stop closing outgoing) must wait
// for stop to return first.
//
// stop must never be called from a closure running on the scheduler's own
// goroutine (i.e. from inside a func passed to post) — run() is the very
// goroutine that would close stopped, so waiting on it there is a self-join
// that never returns. A callback running on the scheduler goroutine that
// needs to end the scheduler calls signalStop instead.
func (s *scheduler) stop() {
	s.signalStop()
	<-s.stopped
}

// signalStop asks the drain goroutine to exit, after flushing anything
// already queued, without waiting for it to actually do so. Safe to call
// from the scheduler's own goroutine.
func (s *scheduler) signalStop() {
	s.once.Do(func() {
		close(s.done)
	})
}
