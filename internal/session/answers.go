package session

import (
	"context"
	"slices"

	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
)

// SelectOption records the student's choice for a question. It is a no-op
// while paused or once the question is submitted.
func (s *Session) SelectOption(ctx context.Context, questionID, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePaused {
		return nil
	}
	if s.state != StateActive {
		return ErrSessionNotActive
	}
	if _, ok := s.findLocked(questionID); !ok {
		return ErrQuestionNotFound
	}
	if !slices.Contains(model.OptionKeys, option) {
		return ErrInvalidOption
	}
	if s.statuses[questionID] == model.StatusSubmitted {
		return nil
	}

	s.selected[questionID] = &option
	s.saveLocked(ctx)
	s.publishStateLocked()
	return nil
}

// MarkForReview flags a question for later and moves to the next one.
func (s *Session) MarkForReview(ctx context.Context, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePaused {
		return nil
	}
	if s.state != StateActive {
		return ErrSessionNotActive
	}
	if _, ok := s.findLocked(questionID); !ok {
		return ErrQuestionNotFound
	}
	if s.statuses[questionID] == model.StatusSubmitted {
		return nil
	}

	s.statuses[questionID] = model.StatusReview
	s.saveLocked(ctx)
	if s.advanceLocked() {
		s.publishLocked(Event{Type: EventContentChanged})
	}
	s.publishStateLocked()
	return nil
}

// SubmitAnswer delivers the selected answer of a question. The status turns
// submitted before delivery and stays submitted; an answer that cannot be
// delivered is queued as pending. The cursor always advances afterwards.
func (s *Session) SubmitAnswer(ctx context.Context, questionID string) error {
	s.mu.Lock()
	if s.state == StatePaused {
		s.mu.Unlock()
		return nil
	}
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	if _, ok := s.findLocked(questionID); !ok {
		s.mu.Unlock()
		return ErrQuestionNotFound
	}
	if s.statuses[questionID] == model.StatusSubmitted {
		s.mu.Unlock()
		return nil
	}
	answer := s.selected[questionID]
	if answer == nil || *answer == "" {
		s.messageLocked(MsgSelectOption)
		s.mu.Unlock()
		return ErrNoAnswerSelected
	}

	sub := model.AnswerSubmission{
		StudentID:      s.cfg.StudentID,
		CourseID:       s.cfg.Course.ID,
		QuestionID:     questionID,
		SelectedAnswer: *answer,
	}
	s.statuses[questionID] = model.StatusSubmitted
	s.saveLocked(ctx)
	s.publishStateLocked()
	s.mu.Unlock()

	err := s.cfg.Retrier.Do(ctx, "submit_answer", func(ctx context.Context) error {
		return s.cfg.Backend.SubmitAnswer(ctx, &sub)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	// The whole-exam manifest already carries this answer.
	if !s.state.Running() {
		s.log.Debug().Err(err).Str("question_id", questionID).Msg("Answer delivery finished after exam submission")
		return nil
	}

	switch {
	case retry.IsPermanent(err):
		// Resending would be refused again; the manifest still carries it.
		s.log.Error().Err(err).Str("question_id", questionID).Msg("Answer rejected by the backend")
		metrics.Submissions.WithLabelValues(string(model.PendingAnswer), "rejected").Inc()
		s.messageLocked("Answer rejected: " + err.Error())
	case err != nil:
		s.log.Error().Err(err).Str("question_id", questionID).Msg("Answer delivery failed, queued as pending")
		s.pending = append(s.pending, newPendingAnswer(sub, s.cfg.Now()))
		metrics.Submissions.WithLabelValues(string(model.PendingAnswer), "queued").Inc()
		s.messageLocked("Failed to submit answer: " + err.Error())
	default:
		s.submitted = append(s.submitted, model.SubmittedAnswer{
			QuestionID: questionID,
			Answer:     sub.SelectedAnswer,
			Timestamp:  s.cfg.Now(),
		})
		metrics.Submissions.WithLabelValues(string(model.PendingAnswer), "delivered").Inc()
		s.messageLocked(MsgAnswerSubmitted)
	}

	s.saveLocked(ctx)
	if s.advanceLocked() {
		s.publishLocked(Event{Type: EventContentChanged})
	}
	s.publishStateLocked()
	return nil
}
