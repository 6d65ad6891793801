package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
)

// ErrSubmitDeferred is returned when the manifest could not be delivered.
// The session is terminal and the manifest waits in the pending queue.
var ErrSubmitDeferred = errors.New("exam submission failed, answers cached for retry")

// Submit sends the whole-exam manifest. Only the first caller moving the
// session out of Active or Paused builds a manifest; later callers get
// ErrSessionNotActive. The session is terminal when Submit returns.
func (s *Session) Submit(ctx context.Context, trigger Trigger) error {
	// The manifest must survive the caller going away.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if !s.state.Running() {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	s.state = StateSubmitting
	s.trigger = trigger
	if trigger == TriggerMalpractice {
		s.malpractice = true
	}
	s.stopTimerLocked()
	s.publishStateLocked()
	s.mu.Unlock()

	s.log.Info().Str("trigger", string(trigger)).Msg("Submitting exam")
	s.drain(ctx, true)

	s.mu.Lock()
	manifest := s.manifestLocked()
	s.mu.Unlock()

	var (
		results *model.ExamResults
		err     error
	)
	if manifest.Valid() {
		results, err = retry.Value(ctx, s.cfg.Retrier, "submit_exam", func(ctx context.Context) (*model.ExamResults, error) {
			return s.cfg.Backend.SubmitExam(ctx, &manifest)
		})
	} else {
		err = ErrEmptyManifest
	}

	s.mu.Lock()
	outcome, state, msg := conclude(s.malpractice, s.trigger)
	res := Result{
		StudentID:     s.cfg.StudentID,
		CourseID:      s.cfg.Course.ID,
		Outcome:       outcome,
		State:         state,
		IsMalpractice: s.malpractice,
		StartedAt:     s.startedAt,
		FinishedAt:    s.cfg.Now(),
	}

	var retErr error
	switch {
	case errors.Is(err, ErrEmptyManifest):
		s.log.Error().Msg("Invalid exam submission data")
		s.abortLocked(&res, MsgInvalidExam)
		retErr = err
	case retry.IsPermanent(err):
		s.log.Error().Err(err).Msg("Exam submission rejected by the backend")
		metrics.Submissions.WithLabelValues(string(model.PendingExam), "rejected").Inc()
		s.abortLocked(&res, fmt.Sprintf("Exam submission rejected: %s", err))
		retErr = fmt.Errorf("%w: %v", ErrSubmitRejected, err)
	case err != nil:
		s.log.Error().Err(err).Msg("Exam submission failed, queued as pending")
		s.pending = append(s.pending, newPendingExam(manifest, s.cfg.Now()))
		metrics.Submissions.WithLabelValues(string(model.PendingExam), "queued").Inc()
		res.Message = fmt.Sprintf("Failed to submit exam: %s. Your answers are cached and will be retried.", err)
		retErr = fmt.Errorf("%w: %v", ErrSubmitDeferred, err)
	default:
		// The manifest supersedes every per-answer delivery still queued.
		s.pending = nil
		metrics.Submissions.WithLabelValues(string(model.PendingExam), "delivered").Inc()
		res.Delivered = true
		res.Results = results
		res.Message = msg
	}

	s.finishLocked(ctx, &res)
	s.mu.Unlock()

	if s.cfg.OnTerminal != nil {
		s.cfg.OnTerminal(res)
	}
	return retErr
}

// Exit ends the exam at the student's request.
func (s *Session) Exit(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrExitNotConfirmed
	}
	return s.Submit(ctx, TriggerExited)
}

// abortLocked turns res into an aborted end: nothing was delivered and
// nothing is queued, so the course stays open.
func (s *Session) abortLocked(res *Result, msg string) {
	res.Outcome = model.OutcomeAborted
	res.State = StateAborted
	res.Message = msg
	s.pending = nil
}

// finishLocked moves to the terminal state of res and tears down the
// detector. The cache is cleared only when nothing is left to deliver; an
// aborted session keeps its answers for the next attempt.
func (s *Session) finishLocked(ctx context.Context, res *Result) {
	s.state = res.State
	s.warning = ""
	s.teardownLocked()

	res.PendingCount = len(s.pending)
	switch {
	case res.State == StateAborted, len(s.pending) > 0:
		s.saveLocked(ctx)
	default:
		s.clearCacheLocked(ctx)
	}
	s.result = res
	metrics.Outcomes.WithLabelValues(string(res.Outcome)).Inc()

	s.log.Info().
		Str("outcome", string(res.Outcome)).
		Bool("delivered", res.Delivered).
		Int("pending", res.PendingCount).
		Msg("Exam session finished")

	r := *res
	s.publishLocked(Event{Type: EventFullscreenExit})
	s.messageLocked(res.Message)
	s.publishLocked(Event{Type: EventTerminal, Result: &r})
	s.publishStateLocked()
}

func (s *Session) manifestLocked() model.ExamSubmission {
	all := s.questions.All()
	entries := make([]model.ManifestEntry, 0, len(all))
	for _, q := range all {
		status := s.statuses[q.ID]
		if status == "" {
			status = model.StatusDefault
		}
		var answer *string
		if a := s.selected[q.ID]; a != nil && *a != "" {
			v := *a
			answer = &v
		}
		entries = append(entries, model.ManifestEntry{
			QuestionID:     q.ID,
			SelectedAnswer: answer,
			Status:         status,
			StartTime:      s.startedAt,
		})
	}
	return model.ExamSubmission{
		StudentID:     s.cfg.StudentID,
		CourseID:      s.cfg.Course.ID,
		Answers:       entries,
		IsMalpractice: s.malpractice,
	}
}

// RetryPendingSubmissions delivers queued submissions once each through the
// retrier. Invalid and rejected records are dropped; failures stay queued.
// It returns the number of records still pending. A drain already in flight
// is not waited for.
func (s *Session) RetryPendingSubmissions(ctx context.Context) int {
	return s.drain(ctx, false)
}

// drain runs one delivery pass. With wait set it first lets an in-flight
// pass finish, so the caller observes a queue drained after its call.
func (s *Session) drain(ctx context.Context, wait bool) int {
	s.mu.Lock()
	for wait && s.draining {
		done := s.drainDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return s.PendingCount()
		}
		s.mu.Lock()
	}
	if s.draining || s.state == StateIdle || len(s.pending) == 0 {
		n := len(s.pending)
		s.mu.Unlock()
		return n
	}
	batch := append([]model.PendingSubmission(nil), s.pending...)
	s.draining = true
	s.drainDone = make(chan struct{})
	s.mu.Unlock()

	done := make(map[string]struct{}, len(batch))
	var (
		delivered []model.SubmittedAnswer
		results   *model.ExamResults
		rejected  error
	)
	for _, rec := range batch {
		if !rec.Valid() {
			s.log.Error().Str("pending_id", rec.ID).Str("kind", string(rec.Kind)).Msg("Invalid pending submission, dropping")
			metrics.Submissions.WithLabelValues(string(rec.Kind), "dropped").Inc()
			done[rec.ID] = struct{}{}
			continue
		}

		switch rec.Kind {
		case model.PendingAnswer:
			err := s.cfg.Retrier.Do(ctx, "retry_answer", func(ctx context.Context) error {
				return s.cfg.Backend.SubmitAnswer(ctx, rec.Answer)
			})
			if retry.IsPermanent(err) {
				s.log.Error().Err(err).Str("question_id", rec.Answer.QuestionID).Msg("Pending answer rejected, dropping")
				metrics.Submissions.WithLabelValues(string(rec.Kind), "rejected").Inc()
				done[rec.ID] = struct{}{}
				continue
			}
			if err != nil {
				s.log.Warn().Err(err).Str("question_id", rec.Answer.QuestionID).Msg("Pending answer still undeliverable")
				continue
			}
			delivered = append(delivered, model.SubmittedAnswer{
				QuestionID: rec.Answer.QuestionID,
				Answer:     rec.Answer.SelectedAnswer,
				Timestamp:  s.cfg.Now(),
			})
		case model.PendingExam:
			res, err := retry.Value(ctx, s.cfg.Retrier, "retry_exam", func(ctx context.Context) (*model.ExamResults, error) {
				return s.cfg.Backend.SubmitExam(ctx, rec.Exam)
			})
			if retry.IsPermanent(err) {
				s.log.Error().Err(err).Msg("Pending exam submission rejected, dropping")
				metrics.Submissions.WithLabelValues(string(rec.Kind), "rejected").Inc()
				done[rec.ID] = struct{}{}
				rejected = err
				continue
			}
			if err != nil {
				s.log.Warn().Err(err).Msg("Pending exam submission still undeliverable")
				continue
			}
			results = res
		}
		metrics.Submissions.WithLabelValues(string(rec.Kind), "delivered").Inc()
		done[rec.ID] = struct{}{}
	}

	s.mu.Lock()
	s.draining = false
	close(s.drainDone)
	s.drainDone = nil

	kept := make([]model.PendingSubmission, 0, len(s.pending))
	for _, rec := range s.pending {
		if _, ok := done[rec.ID]; !ok {
			kept = append(kept, rec)
		}
	}
	s.pending = kept
	s.submitted = append(s.submitted, delivered...)

	var drained *Result
	switch {
	case s.state.Terminal() && s.result != nil:
		if results != nil {
			s.result.Results = results
		}
		if rejected != nil && !s.result.Delivered {
			// Answers left without an accepted manifest are moot.
			s.pending = nil
		}
		s.result.PendingCount = len(s.pending)
		switch {
		case rejected != nil && !s.result.Delivered:
			s.result.Message = fmt.Sprintf("Exam submission rejected: %s", rejected)
			s.clearCacheLocked(ctx)
			s.messageLocked(s.result.Message)
		case len(s.pending) > 0:
			s.saveLocked(ctx)
		case !s.result.Delivered:
			s.result.Delivered = true
			s.clearCacheLocked(ctx)
			r := *s.result
			drained = &r
			s.log.Info().Msg("Deferred submissions delivered")
		}
	case !s.state.Terminal():
		s.saveLocked(ctx)
	}
	remaining := len(s.pending)
	s.publishStateLocked()
	s.mu.Unlock()

	if drained != nil && s.cfg.OnDelivered != nil {
		s.cfg.OnDelivered(*drained)
	}
	return remaining
}
