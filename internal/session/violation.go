package session

import (
	"context"

	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// RecordViolation counts one violation and escalates it. Violations outside
// Active and Paused are ignored.
func (s *Session) RecordViolation(ctx context.Context, kind model.ViolationKind) {
	s.mu.Lock()
	if !s.state.Running() {
		s.mu.Unlock()
		return
	}

	s.counts[kind]++
	total := 0
	for _, n := range s.counts {
		total += n
	}
	d := s.cfg.Policy.Evaluate(kind, s.counts[kind], total)
	metrics.Violations.WithLabelValues(string(kind)).Inc()

	s.log.Warn().
		Str("kind", string(kind)).
		Int("count", d.KindCount).
		Int("total", d.Total).
		Msg("Malpractice violation recorded")

	if d.AutoEvaluate {
		s.malpractice = true
		s.mu.Unlock()
		if err := s.Submit(ctx, TriggerMalpractice); err != nil {
			s.log.Error().Err(err).Msg("Auto-evaluation submit did not complete cleanly")
		}
		return
	}

	if d.Warn {
		if s.state == StateActive {
			s.state = StatePaused
			s.stopTimerLocked()
		}
		s.warning = s.cfg.Policy.WarningMessage(kind, d.KindCount)
		s.publishLocked(Event{Type: EventWarning, Message: s.warning})
	}
	s.publishStateLocked()
	s.mu.Unlock()
}

// DismissWarning hides the warning and resumes a paused exam.
func (s *Session) DismissWarning() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Running() {
		return ErrSessionNotActive
	}
	s.warning = ""
	if s.state == StatePaused {
		s.state = StateActive
		s.startTimerLocked()
	}
	s.publishStateLocked()
	return nil
}
