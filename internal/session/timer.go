package session

import (
	"context"
	"errors"
	"time"
)

// startTimerLocked starts the countdown goroutine if it is not running.
func (s *Session) startTimerLocked() {
	if s.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	s.stopTick = stop
	go s.runTimer(stop)
}

func (s *Session) stopTimerLocked() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

func (s *Session) runTimer(stop chan struct{}) {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.tick(stop) {
				return
			}
		}
	}
}

// tick decrements the remaining time and reports whether the countdown
// should keep running. Reaching zero submits the exam as elapsed.
func (s *Session) tick(stop chan struct{}) bool {
	s.mu.Lock()
	if s.stopTick != stop {
		s.mu.Unlock()
		return false
	}
	if s.state != StateActive {
		s.mu.Unlock()
		return true
	}

	s.remaining--
	if s.remaining > 0 {
		s.publishStateLocked()
		s.mu.Unlock()
		return true
	}
	s.remaining = 0
	s.mu.Unlock()

	s.log.Info().Msg("Exam time elapsed")
	if err := s.Submit(context.Background(), TriggerElapsed); err != nil && !errors.Is(err, ErrSessionNotActive) {
		s.log.Error().Err(err).Msg("Elapsed submit did not complete cleanly")
	}
	return false
}
