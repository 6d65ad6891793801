package session

import "github.com/stemsi/exstem-proctor/internal/model"

// Previous moves the cursor back one question across both phases.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Running() {
		return ErrSessionNotActive
	}
	cur := s.indexInAllLocked()
	if cur <= 0 {
		return nil
	}
	s.moveToLocked(cur - 1)
	s.publishLocked(Event{Type: EventContentChanged})
	s.publishStateLocked()
	return nil
}

// Next moves the cursor forward one question across both phases.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Running() {
		return ErrSessionNotActive
	}
	if s.advanceLocked() {
		s.publishLocked(Event{Type: EventContentChanged})
		s.publishStateLocked()
	}
	return nil
}

// SelectQuestion jumps to index within phase.
func (s *Session) SelectQuestion(phase model.Phase, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Running() {
		return ErrSessionNotActive
	}
	list := s.questions.Phase(phase)
	if index < 0 || index >= len(list) {
		return ErrQuestionNotFound
	}
	s.phase, s.index = phase, index
	s.publishLocked(Event{Type: EventContentChanged})
	s.publishStateLocked()
	return nil
}

// indexInAllLocked is the cursor position across phase1 then phase2, or -1.
func (s *Session) indexInAllLocked() int {
	switch {
	case s.index < 0:
		return -1
	case s.phase == model.Phase1:
		return s.index
	case s.phase == model.Phase2:
		return len(s.questions.Phase1) + s.index
	}
	return -1
}

func (s *Session) moveToLocked(i int) {
	if i < len(s.questions.Phase1) {
		s.phase, s.index = model.Phase1, i
		return
	}
	s.phase, s.index = model.Phase2, i-len(s.questions.Phase1)
}

// advanceLocked moves to the next question and reports whether it moved.
func (s *Session) advanceLocked() bool {
	cur := s.indexInAllLocked()
	if cur < 0 || cur >= s.questions.Len()-1 {
		return false
	}
	s.moveToLocked(cur + 1)
	return true
}

func (s *Session) currentLocked() *model.Question {
	list := s.questions.Phase(s.phase)
	if s.index < 0 || s.index >= len(list) {
		return nil
	}
	q := list[s.index]
	return &q
}
