package store

import (
	"errors"
	"sync"
	"time"
)

// Saver coalesces bursts of state changes into one write. Request marks the
// state dirty and (re)arms a timer; when it fires, flush runs once for the
// whole burst. Close flushes anything still pending.
type Saver struct {
	flush func() error
	delay time.Duration

	mu      sync.Mutex
	dirty   bool
	timer   *time.Timer
	closed  bool
	lastErr error
}

// NewSaver creates a saver that invokes flush no sooner than delay after
// the first Request of a burst.
func NewSaver(flush func() error, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &Saver{flush: flush, delay: delay}
}

// Request marks state dirty. It returns any error from an earlier
// background flush, surfacing it on the next call.
func (s *Saver) Request() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("saver closed")
	}

	pendingErr := s.lastErr
	s.lastErr = nil

	s.dirty = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.onTimer)
	}
	s.mu.Unlock()
	return pendingErr
}

// Flush writes immediately when dirty, cancelling any pending timer.
func (s *Saver) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("saver closed")
	}
	s.stopTimerLocked()
	wasDirty := s.dirty
	s.dirty = false
	pendingErr := s.lastErr
	s.lastErr = nil
	s.mu.Unlock()

	if wasDirty {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return pendingErr
}

// Close flushes pending state and rejects further requests.
func (s *Saver) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopTimerLocked()
	wasDirty := s.dirty
	s.dirty = false
	pendingErr := s.lastErr
	s.lastErr = nil
	s.mu.Unlock()

	if wasDirty {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return pendingErr
}

func (s *Saver) onTimer() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	s.mu.Unlock()

	if err := s.flush(); err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}
}

func (s *Saver) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
