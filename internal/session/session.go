// Package session implements the exam session state machine: lifecycle,
// navigation, answer delivery, the countdown and malpractice escalation.
//
// A Session is safe for concurrent use. Its lock is released around every
// network call, and each operation re-checks the state when it reacquires
// the lock, so ticks and violations arriving after Submitting are no-ops.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cache"
	"github.com/stemsi/exstem-proctor/internal/malpractice"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
)

const (
	DefaultDuration = 7200 * time.Second
	DefaultTick     = time.Second
)

// Backend is the slice of the upstream API a session needs.
type Backend interface {
	FetchQuestions(ctx context.Context, courseID string) (*model.QuestionSet, error)
	SubmitAnswer(ctx context.Context, sub *model.AnswerSubmission) error
	SubmitExam(ctx context.Context, sub *model.ExamSubmission) (*model.ExamResults, error)
}

// Cache persists the in-progress session.
type Cache interface {
	Save(ctx context.Context, studentID, courseID string, snap *cache.Snapshot) error
	Restore(ctx context.Context, studentID, courseID string, known map[string]struct{}) (*cache.Snapshot, error)
	Clear(ctx context.Context, studentID, courseID string) error
}

// Config wires a Session.
type Config struct {
	StudentID string
	Course    model.Course

	Backend  Backend
	Cache    Cache
	Retrier  *retry.Retrier
	Reporter malpractice.Reporter
	Sink     Sink

	Policy   malpractice.Policy
	Duration time.Duration
	Tick     time.Duration
	Debounce time.Duration

	// OnTerminal is called once, outside the session lock, when the session
	// reaches a terminal state.
	OnTerminal func(Result)
	// OnDelivered is called when a session that ended with undelivered
	// submissions has drained them.
	OnDelivered func(Result)

	Now func() time.Time
	Log zerolog.Logger
}

// Session is one student's exam attempt.
type Session struct {
	cfg      Config
	log      zerolog.Logger
	detector *malpractice.Detector
	started  atomic.Bool

	mu          sync.Mutex
	state       State
	closed      bool
	questions   model.QuestionSet
	selected    map[string]*string
	statuses    map[string]model.QuestionStatus
	phase       model.Phase
	index       int
	remaining   int
	startedAt   time.Time
	warning     string
	counts      map[model.ViolationKind]int
	malpractice bool
	trigger     Trigger
	pending     []model.PendingSubmission
	submitted   []model.SubmittedAnswer
	message     string
	result      *Result
	stopTick    chan struct{}
	dispose     func()
	draining    bool
	drainDone   chan struct{} // closed when the running drain finishes
}

// New creates an Idle session.
func New(cfg Config) *Session {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Policy.TotalLimit <= 0 {
		cfg.Policy = malpractice.DefaultPolicy()
	}
	if cfg.Retrier == nil {
		cfg.Retrier = retry.New(retry.DefaultMaxAttempts, retry.DefaultBaseDelay, cfg.Log)
	}
	if cfg.Sink == nil {
		cfg.Sink = discard{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		cfg: cfg,
		log: cfg.Log.With().
			Str("component", "exam_session").
			Str("student_id", cfg.StudentID).
			Str("course_id", cfg.Course.ID).
			Logger(),
		state: StateIdle,
	}
	s.resetLocked()

	s.detector = malpractice.NewDetector(malpractice.DetectorConfig{
		StudentID:   cfg.StudentID,
		CourseID:    cfg.Course.ID,
		Debounce:    cfg.Debounce,
		Reporter:    cfg.Reporter,
		ExamStarted: s.started.Load,
		OnViolation: func(kind model.ViolationKind) {
			s.RecordViolation(context.Background(), kind)
		},
		Log: cfg.Log,
	})
	return s
}

func (s *Session) resetLocked() {
	s.questions = model.QuestionSet{Phase1: []model.Question{}, Phase2: []model.Question{}}
	s.selected = make(map[string]*string)
	s.statuses = make(map[string]model.QuestionStatus)
	s.phase = model.PhaseNone
	s.index = -1
	s.remaining = int(s.cfg.Duration / time.Second)
	s.startedAt = time.Time{}
	s.warning = ""
	s.counts = make(map[model.ViolationKind]int, len(model.ViolationKinds))
	s.malpractice = false
	s.trigger = ""
	s.pending = nil
	s.submitted = nil
	s.message = ""
	s.result = nil
}

// Start loads the questions, restores cached progress, drains pending
// submissions and starts the countdown. On failure the session returns to
// Idle and never reaches Active.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle || s.closed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.resetLocked()
	s.state = StateLoading
	s.startedAt = s.cfg.Now()
	s.publishLocked(Event{Type: EventFullscreenEnter})
	s.publishStateLocked()
	s.mu.Unlock()

	set, err := retry.Value(ctx, s.cfg.Retrier, "fetch_questions", func(ctx context.Context) (*model.QuestionSet, error) {
		return s.cfg.Backend.FetchQuestions(ctx, s.cfg.Course.ID)
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to fetch questions")
		s.mu.Lock()
		s.state = StateIdle
		s.message = "Failed to fetch questions: " + err.Error()
		s.publishLocked(Event{Type: EventFullscreenExit})
		s.publishLocked(Event{Type: EventMessage, Message: s.message})
		s.publishStateLocked()
		s.mu.Unlock()
		return fmt.Errorf("fetch questions: %w", err)
	}

	snap, err := s.cfg.Cache.Restore(ctx, s.cfg.StudentID, s.cfg.Course.ID, set.IDs())
	if err != nil {
		s.log.Warn().Err(err).Msg("Answer cache unavailable, starting fresh")
	}

	s.mu.Lock()
	s.questions = *set
	for _, q := range set.All() {
		if q.ID == "" {
			continue
		}
		s.selected[q.ID] = nil
		s.statuses[q.ID] = model.StatusDefault
	}
	if snap != nil {
		s.restoreLocked(snap)
	}
	s.mu.Unlock()

	s.drain(ctx, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state != StateLoading {
		return ErrSessionNotActive
	}

	switch {
	case len(s.questions.Phase1) > 0:
		s.phase, s.index = model.Phase1, 0
	case len(s.questions.Phase2) > 0:
		s.phase, s.index = model.Phase2, 0
	}

	s.state = StateActive
	s.started.Store(true)
	s.dispose = s.detector.Install()
	s.startTimerLocked()
	s.saveLocked(ctx)

	s.log.Info().Int("questions", s.questions.Len()).Int("pending", len(s.pending)).Msg("Exam session started")
	s.publishLocked(Event{Type: EventContentChanged})
	s.publishStateLocked()
	return nil
}

// restoreLocked merges cached progress over the freshly defaulted maps.
func (s *Session) restoreLocked(snap *cache.Snapshot) {
	for id, ans := range snap.SelectedAnswers {
		s.selected[id] = ans
	}
	for id, st := range snap.QuestionStatuses {
		s.statuses[id] = st
	}
	if !snap.ExamStartedAt.IsZero() {
		s.startedAt = snap.ExamStartedAt
	}
	s.pending = snap.PendingSubmissions
	for i := range s.pending {
		if s.pending[i].ID == "" {
			s.pending[i].ID = uuid.NewString()
		}
	}
	s.submitted = snap.SubmittedAnswers
	s.log.Info().Int("answers", len(snap.SelectedAnswers)).Int("pending", len(s.pending)).Msg("Restored answers from cache")
}

// Close stops the countdown and the detector without changing the state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.stopTimerLocked()
	s.teardownLocked()
}

func (s *Session) teardownLocked() {
	s.started.Store(false)
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
}

// HandleSignal feeds one environment signal to the malpractice detector.
func (s *Session) HandleSignal(sig malpractice.Signal) {
	s.detector.Observe(sig)
}

func (s *Session) StudentID() string { return s.cfg.StudentID }

func (s *Session) CourseID() string { return s.cfg.Course.ID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCount returns the number of undelivered submissions.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Result returns how the session ended, or nil while it is still running.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// saveLocked mirrors the session into the answer cache. Failures are logged.
func (s *Session) saveLocked(ctx context.Context) {
	snap := &cache.Snapshot{
		SelectedAnswers:    s.selected,
		QuestionStatuses:   s.statuses,
		ExamStartedAt:      s.startedAt,
		PendingSubmissions: s.pending,
		SubmittedAnswers:   s.submitted,
	}
	if err := s.cfg.Cache.Save(context.WithoutCancel(ctx), s.cfg.StudentID, s.cfg.Course.ID, snap); err != nil {
		s.log.Error().Err(err).Msg("Failed to save answer cache")
	}
}

func (s *Session) clearCacheLocked(ctx context.Context) {
	if err := s.cfg.Cache.Clear(context.WithoutCancel(ctx), s.cfg.StudentID, s.cfg.Course.ID); err != nil {
		s.log.Error().Err(err).Msg("Failed to clear answer cache")
	}
	s.pending = nil
	s.submitted = nil
}

func (s *Session) publishLocked(ev Event) {
	s.cfg.Sink.Publish(ev)
}

func (s *Session) publishStateLocked() {
	s.cfg.Sink.Publish(Event{Type: EventState, Snapshot: s.snapshotLocked()})
}

func (s *Session) messageLocked(msg string) {
	s.message = msg
	s.publishLocked(Event{Type: EventMessage, Message: msg})
}

func (s *Session) findLocked(questionID string) (*model.Question, bool) {
	for _, list := range [][]model.Question{s.questions.Phase1, s.questions.Phase2} {
		for i := range list {
			if list[i].ID == questionID && questionID != "" {
				return &list[i], true
			}
		}
	}
	return nil, false
}

func newPendingAnswer(sub model.AnswerSubmission, at time.Time) model.PendingSubmission {
	return model.PendingSubmission{
		ID:       uuid.NewString(),
		Kind:     model.PendingAnswer,
		Answer:   &sub,
		QueuedAt: at,
	}
}

func newPendingExam(sub model.ExamSubmission, at time.Time) model.PendingSubmission {
	return model.PendingSubmission{
		ID:       uuid.NewString(),
		Kind:     model.PendingExam,
		Exam:     &sub,
		QueuedAt: at,
	}
}
