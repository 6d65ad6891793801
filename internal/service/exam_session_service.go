package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/gate"
	"github.com/stemsi/exstem-proctor/internal/malpractice"
	"github.com/stemsi/exstem-proctor/internal/messaging"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// Session manager errors.
var (
	ErrNoActiveSession   = errors.New("no exam session for this student")
	ErrAnotherExamActive = errors.New("another exam is already in progress")
)

// EntryDeniedError is returned when the gate refuses entry to an exam.
type EntryDeniedError struct {
	Reason string
	Status model.ExamStatus
}

func (e *EntryDeniedError) Error() string { return e.Reason }

// CourseFinder resolves an enrolled course with local outcomes applied.
type CourseFinder interface {
	FindCourse(ctx context.Context, studentID, courseID string) (*model.Course, error)
}

// AttemptStore persists how attempts ended.
type AttemptStore interface {
	Record(ctx context.Context, a *model.Attempt) error
	MarkDelivered(ctx context.Context, studentID, courseID string, results json.RawMessage) error
	ListUndelivered(ctx context.Context) ([]model.Attempt, error)
}

// EventPublisher pushes session events to a student's open connections.
type EventPublisher interface {
	Publish(studentID string, msg any) int
}

// SessionOptions tunes every session the manager creates.
type SessionOptions struct {
	Policy           malpractice.Policy
	Duration         time.Duration
	Tick             time.Duration
	Debounce         time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

// ExamSessionService owns the live exam sessions: at most one per student,
// plus ended sessions whose submissions are still waiting for delivery.
type ExamSessionService struct {
	courses   CourseFinder
	gate      *gate.Gate
	backend   session.Backend
	cache     session.Cache
	attempts  AttemptStore
	reporter  malpractice.Reporter
	publisher messaging.Publisher
	board     StatusRecorder
	events    EventPublisher
	opts      SessionOptions
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	deferred map[string]*session.Session
}

// ExamSessionDeps groups the collaborators of ExamSessionService.
type ExamSessionDeps struct {
	Courses   CourseFinder
	Gate      *gate.Gate
	Backend   session.Backend
	Cache     session.Cache
	Attempts  AttemptStore
	Reporter  malpractice.Reporter
	Publisher messaging.Publisher
	Board     StatusRecorder
	Events    EventPublisher
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(deps ExamSessionDeps, opts SessionOptions, log zerolog.Logger) *ExamSessionService {
	if deps.Publisher == nil {
		deps.Publisher = messaging.NoopPublisher{}
	}
	return &ExamSessionService{
		courses:   deps.Courses,
		gate:      deps.Gate,
		backend:   deps.Backend,
		cache:     deps.Cache,
		attempts:  deps.Attempts,
		reporter:  deps.Reporter,
		publisher: deps.Publisher,
		board:     deps.Board,
		events:    deps.Events,
		opts:      opts,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		sessions:  make(map[string]*session.Session),
		deferred:  make(map[string]*session.Session),
	}
}

func attemptKey(studentID, courseID string) string {
	return studentID + "/" + courseID
}

// Start runs the gate for (student, course) and starts a new session. A
// student reconnecting to the exam already in progress gets its snapshot.
func (m *ExamSessionService) Start(ctx context.Context, studentID, courseID string) (*session.Snapshot, error) {
	if cur, err := m.running(studentID, courseID); cur != nil || err != nil {
		if err != nil {
			return nil, err
		}
		return cur.Snapshot(), nil
	}

	course, err := m.courses.FindCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}

	decision := m.gate.CanEnter(ctx, course)
	if !decision.OK {
		if decision.Status != "" {
			if err := m.board.Set(ctx, studentID, courseID, decision.Status); err != nil {
				m.log.Warn().Err(err).Str("student_id", studentID).Msg("Failed to update exam status board")
			}
		}
		m.log.Info().
			Str("student_id", studentID).
			Str("course_id", courseID).
			Str("reason", decision.Reason).
			Msg("Exam entry denied")
		return nil, &EntryDeniedError{Reason: decision.Reason, Status: decision.Status}
	}

	sess := m.newSession(studentID, course)

	m.mu.Lock()
	if cur := m.sessions[studentID]; cur != nil && !cur.State().Terminal() {
		m.mu.Unlock()
		if cur.CourseID() == courseID {
			return cur.Snapshot(), nil
		}
		return nil, ErrAnotherExamActive
	}
	m.sessions[studentID] = sess
	m.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		m.mu.Lock()
		if m.sessions[studentID] == sess {
			delete(m.sessions, studentID)
		}
		m.mu.Unlock()
		sess.Close()
		return nil, fmt.Errorf("start exam: %w", err)
	}

	metrics.ActiveSessions.Inc()
	return sess.Snapshot(), nil
}

// running returns the unfinished session of a student on courseID, or
// ErrAnotherExamActive when the student is busy with a different course.
func (m *ExamSessionService) running(studentID, courseID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.sessions[studentID]
	if cur == nil || cur.State().Terminal() {
		return nil, nil
	}
	if cur.CourseID() != courseID {
		return nil, ErrAnotherExamActive
	}
	return cur, nil
}

func (m *ExamSessionService) newSession(studentID string, course *model.Course) *session.Session {
	retrier := retry.New(m.opts.RetryMaxAttempts, m.opts.RetryBaseDelay, m.log)
	retrier.Observe = metrics.ObserveRetry

	var sess *session.Session
	sess = session.New(session.Config{
		StudentID: studentID,
		Course:    *course,
		Backend:   m.backend,
		Cache:     m.cache,
		Retrier:   retrier,
		Reporter:  m.reporter,
		Sink: session.SinkFunc(func(ev session.Event) {
			m.events.Publish(studentID, ev)
		}),
		Policy:   m.opts.Policy,
		Duration: m.opts.Duration,
		Tick:     m.opts.Tick,
		Debounce: m.opts.Debounce,
		OnTerminal: func(res session.Result) {
			m.onTerminal(sess, res)
		},
		OnDelivered: func(res session.Result) {
			m.onDelivered(res)
		},
		Log: m.log,
	})
	return sess
}

// Session returns the latest session of a student, including one that has
// already ended so its result stays readable.
func (m *ExamSessionService) Session(studentID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[studentID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

// HandleSignal routes an environment signal to the student's session.
func (m *ExamSessionService) HandleSignal(studentID string, sig malpractice.Signal) error {
	sess, err := m.Session(studentID)
	if err != nil {
		return err
	}
	sess.HandleSignal(sig)
	return nil
}

func (m *ExamSessionService) onTerminal(sess *session.Session, res session.Result) {
	metrics.ActiveSessions.Dec()

	log := m.log.With().
		Str("student_id", res.StudentID).
		Str("course_id", res.CourseID).
		Str("outcome", string(res.Outcome)).
		Logger()

	// Held before the attempt row exists so recovery never races the session
	// for the same manifest.
	if res.PendingCount > 0 {
		m.mu.Lock()
		m.deferred[attemptKey(res.StudentID, res.CourseID)] = sess
		m.mu.Unlock()
		log.Warn().Int("pending", res.PendingCount).Msg("Exam ended with undelivered submissions, deferring")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	attempt := &model.Attempt{
		StudentID:     res.StudentID,
		CourseID:      res.CourseID,
		Outcome:       res.Outcome,
		IsMalpractice: res.IsMalpractice,
		Delivered:     res.Delivered,
		Results:       marshalResults(res.Results),
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
	}
	// An aborted attempt leaves the course open, so it is not recorded.
	if res.Outcome == model.OutcomeAborted {
		log.Warn().Str("message", res.Message).Msg("Exam session aborted, course stays open")
	} else if err := m.attempts.Record(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("Failed to record exam attempt")
	}

	if err := m.board.Set(ctx, res.StudentID, res.CourseID, model.StatusForOutcome(res.Outcome)); err != nil {
		log.Warn().Err(err).Msg("Failed to update exam status board")
	}

	m.publishOutcome(ctx, res.StudentID, res.CourseID, res.Outcome, res.IsMalpractice, res.Delivered, res.FinishedAt)
}

func (m *ExamSessionService) onDelivered(res session.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m.mu.Lock()
	delete(m.deferred, attemptKey(res.StudentID, res.CourseID))
	m.mu.Unlock()

	if err := m.attempts.MarkDelivered(ctx, res.StudentID, res.CourseID, marshalResults(res.Results)); err != nil {
		m.log.Error().Err(err).
			Str("student_id", res.StudentID).
			Str("course_id", res.CourseID).
			Msg("Failed to mark attempt delivered")
	}
	m.publishOutcome(ctx, res.StudentID, res.CourseID, res.Outcome, res.IsMalpractice, true, res.FinishedAt)
}

func (m *ExamSessionService) publishOutcome(ctx context.Context, studentID, courseID string, outcome model.Outcome, malpractice, delivered bool, at time.Time) {
	ev := &messaging.OutcomeEvent{
		StudentID:     studentID,
		CourseID:      courseID,
		Outcome:       outcome,
		IsMalpractice: malpractice,
		Delivered:     delivered,
		FinishedAt:    at,
	}
	if err := m.publisher.PublishOutcome(ctx, ev); err != nil {
		m.log.Warn().Err(err).Str("student_id", studentID).Msg("Failed to publish exam outcome")
	}
}

// RetryPending drains the pending submissions of every held session, then
// retries attempts left undelivered by a previous process. It returns the
// number of submissions still pending.
func (m *ExamSessionService) RetryPending(ctx context.Context) int {
	m.mu.Lock()
	targets := make(map[*session.Session]struct{}, len(m.sessions)+len(m.deferred))
	for _, s := range m.sessions {
		targets[s] = struct{}{}
	}
	for _, s := range m.deferred {
		targets[s] = struct{}{}
	}
	m.mu.Unlock()

	remaining := 0
	for s := range targets {
		if s.PendingCount() == 0 {
			continue
		}
		remaining += s.RetryPendingSubmissions(ctx)
	}

	m.mu.Lock()
	for key, s := range m.deferred {
		if s.PendingCount() == 0 {
			delete(m.deferred, key)
		}
	}
	m.mu.Unlock()

	remaining += m.RecoverUndelivered(ctx)
	metrics.PendingDepth.Set(float64(remaining))
	return remaining
}

// RecoverUndelivered re-delivers the cached pending submissions of attempts
// recorded as undelivered that no live session holds, e.g. after a restart.
// It returns the number of submissions still pending.
func (m *ExamSessionService) RecoverUndelivered(ctx context.Context) int {
	attempts, err := m.attempts.ListUndelivered(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to list undelivered attempts")
		return 0
	}

	remaining := 0
	for i := range attempts {
		a := &attempts[i]
		key := attemptKey(a.StudentID, a.CourseID)

		m.mu.Lock()
		_, held := m.deferred[key]
		m.mu.Unlock()
		if held {
			continue
		}
		remaining += m.recoverAttempt(ctx, a)
	}
	return remaining
}

func (m *ExamSessionService) recoverAttempt(ctx context.Context, a *model.Attempt) int {
	log := m.log.With().Str("student_id", a.StudentID).Str("course_id", a.CourseID).Logger()

	snap, err := m.cache.Restore(ctx, a.StudentID, a.CourseID, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load cached submissions")
		return 0
	}
	if snap == nil || len(snap.PendingSubmissions) == 0 {
		log.Debug().Msg("Undelivered attempt has nothing cached to deliver")
		return 0
	}

	retrier := retry.New(m.opts.RetryMaxAttempts, m.opts.RetryBaseDelay, m.log)
	retrier.Observe = metrics.ObserveRetry

	var (
		kept     []model.PendingSubmission
		results  *model.ExamResults
		rejected bool
	)
	for _, rec := range snap.PendingSubmissions {
		if !rec.Valid() {
			log.Error().Str("pending_id", rec.ID).Msg("Invalid pending submission, dropping")
			metrics.Submissions.WithLabelValues(string(rec.Kind), "dropped").Inc()
			continue
		}

		switch rec.Kind {
		case model.PendingAnswer:
			err = retrier.Do(ctx, "recover_answer", func(ctx context.Context) error {
				return m.backend.SubmitAnswer(ctx, rec.Answer)
			})
		case model.PendingExam:
			var res *model.ExamResults
			res, err = retry.Value(ctx, retrier, "recover_exam", func(ctx context.Context) (*model.ExamResults, error) {
				return m.backend.SubmitExam(ctx, rec.Exam)
			})
			if err == nil {
				results = res
			}
		}
		if retry.IsPermanent(err) {
			log.Error().Err(err).Str("kind", string(rec.Kind)).Msg("Recovered submission rejected, dropping")
			metrics.Submissions.WithLabelValues(string(rec.Kind), "rejected").Inc()
			if rec.Kind == model.PendingExam {
				rejected = true
			}
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("kind", string(rec.Kind)).Msg("Recovered submission still undeliverable")
			kept = append(kept, rec)
			continue
		}
		metrics.Submissions.WithLabelValues(string(rec.Kind), "delivered").Inc()
	}

	if rejected {
		kept = nil
	}
	if len(kept) > 0 {
		snap.PendingSubmissions = kept
		if err := m.cache.Save(ctx, a.StudentID, a.CourseID, snap); err != nil {
			log.Error().Err(err).Msg("Failed to save remaining submissions")
		}
		return len(kept)
	}

	if err := m.cache.Clear(ctx, a.StudentID, a.CourseID); err != nil {
		log.Error().Err(err).Msg("Failed to clear answer cache")
	}
	if rejected {
		log.Error().Msg("Recovered attempt was rejected by the backend, giving up")
		return 0
	}
	if err := m.attempts.MarkDelivered(ctx, a.StudentID, a.CourseID, marshalResults(results)); err != nil {
		log.Error().Err(err).Msg("Failed to mark attempt delivered")
	}
	m.publishOutcome(ctx, a.StudentID, a.CourseID, a.Outcome, a.IsMalpractice, true, a.FinishedAt)
	log.Info().Msg("Recovered attempt delivered")
	return 0
}

// Shutdown stops the countdown of every session. Progress stays in the
// answer cache and is restored when the student starts again.
func (m *ExamSessionService) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		s.Close()
	}
	m.log.Info().Int("sessions", len(m.sessions)).Int("deferred", len(m.deferred)).Msg("Exam sessions closed")
}

func marshalResults(res *model.ExamResults) json.RawMessage {
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	return raw
}
