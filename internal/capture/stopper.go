package capture

import "sync"

// Stopper is a shared cooperative stop signal. Any number of holders may wait
// on it; once stopped it never reverts, and every current and future waiter
// observes the stop. The zero value is not usable, use NewStopper.
type Stopper struct {
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewStopper creates a Stopper in the running state.
func NewStopper() *Stopper {
	return &Stopper{done: make(chan struct{})}
}

// Stop sets the stopped flag and wakes every waiter. Idempotent.
func (s *Stopper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

// Stopped is a non-blocking read of the current state.
func (s *Stopper) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done returns a channel that is closed when the Stopper is stopped. Receive
// from it to wait; re-check Stopped after waking when racing other signals.
func (s *Stopper) Done() <-chan struct{} {
	return s.done
}

// Wait blocks the caller until the Stopper is stopped.
func (s *Stopper) Wait() {
	<-s.done
}
