package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cache"
	"github.com/stemsi/exstem-proctor/internal/gate"
	"github.com/stemsi/exstem-proctor/internal/messaging"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/websocket"
	"github.com/stretchr/testify/require"
	_ "time/tzdata"
)

var errOffline = errors.New("network unreachable")

type fixedClock struct{ t time.Time }

func (c fixedClock) Now(context.Context) time.Time { return c.t }

// examDay is 2025-06-01 11:00 IST, one hour into the window of openCourse.
func examDay(t *testing.T) (time.Time, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	return time.Date(2025, 6, 1, 11, 0, 0, 0, loc), loc
}

func openCourse(id string) model.Course {
	return model.Course{
		ID:               id,
		Name:             "Course " + id,
		ExamDate:         "2025-06-01",
		ExamTime:         "10:00",
		IsEligible:       true,
		PaymentConfirmed: true,
	}
}

type fakeUpstream struct {
	mu       sync.Mutex
	courses  []model.Course
	fetchErr error
	examErr  error
	exams    []model.ExamSubmission
	answers  []model.AnswerSubmission
}

func (u *fakeUpstream) FetchCourses(_ context.Context, _ string) ([]model.Course, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.Course(nil), u.courses...), nil
}

func (u *fakeUpstream) FetchQuestions(_ context.Context, courseID string) (*model.QuestionSet, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fetchErr != nil {
		return nil, u.fetchErr
	}
	return &model.QuestionSet{
		Phase1: []model.Question{
			{ID: courseID + "-q1", Option1: "a", Option2: "b"},
			{ID: courseID + "-q2", Option1: "a", Option2: "b"},
		},
		Phase2: []model.Question{},
	}, nil
}

func (u *fakeUpstream) SubmitAnswer(_ context.Context, sub *model.AnswerSubmission) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.answers = append(u.answers, *sub)
	return nil
}

func (u *fakeUpstream) SubmitExam(_ context.Context, sub *model.ExamSubmission) (*model.ExamResults, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.examErr != nil {
		return nil, u.examErr
	}
	u.exams = append(u.exams, *sub)
	return &model.ExamResults{Marks: json.RawMessage(`[1,0]`), TotalMarks: 1}, nil
}

func (u *fakeUpstream) set(fn func(u *fakeUpstream)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fn(u)
}

func (u *fakeUpstream) examCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.exams)
}

type fakeAttempts struct {
	mu          sync.Mutex
	records     map[string]model.Attempt
	delivered   map[string]json.RawMessage
	undelivered []model.Attempt
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{
		records:   make(map[string]model.Attempt),
		delivered: make(map[string]json.RawMessage),
	}
}

func (a *fakeAttempts) Record(_ context.Context, at *model.Attempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[attemptKey(at.StudentID, at.CourseID)] = *at
	return nil
}

func (a *fakeAttempts) MarkDelivered(_ context.Context, studentID, courseID string, results json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delivered[attemptKey(studentID, courseID)] = results
	return nil
}

func (a *fakeAttempts) ListUndelivered(context.Context) ([]model.Attempt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.Attempt
	for _, at := range a.undelivered {
		if _, ok := a.delivered[attemptKey(at.StudentID, at.CourseID)]; !ok {
			out = append(out, at)
		}
	}
	return out, nil
}

func (a *fakeAttempts) OutcomesByStudent(_ context.Context, studentID string) (map[string]model.Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]model.Outcome)
	for _, at := range a.records {
		if at.StudentID == studentID {
			out[at.CourseID] = at.Outcome
		}
	}
	return out, nil
}

func (a *fakeAttempts) record(studentID, courseID string) (model.Attempt, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.records[attemptKey(studentID, courseID)]
	return at, ok
}

func (a *fakeAttempts) wasDelivered(studentID, courseID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.delivered[attemptKey(studentID, courseID)]
	return ok
}

type fakeBoard struct {
	mu       sync.Mutex
	statuses map[string]model.ExamStatus
}

func (b *fakeBoard) Set(ctx context.Context, studentID, courseID string, status model.ExamStatus) error {
	return b.SetAll(ctx, studentID, map[string]model.ExamStatus{courseID: status})
}

func (b *fakeBoard) SetAll(_ context.Context, studentID string, statuses map[string]model.ExamStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statuses == nil {
		b.statuses = make(map[string]model.ExamStatus)
	}
	for courseID, st := range statuses {
		b.statuses[attemptKey(studentID, courseID)] = st
	}
	return nil
}

func (b *fakeBoard) get(studentID, courseID string) model.ExamStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statuses[attemptKey(studentID, courseID)]
}

type fakePublisher struct {
	mu       sync.Mutex
	outcomes []messaging.OutcomeEvent
}

func (p *fakePublisher) PublishOutcome(_ context.Context, ev *messaging.OutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, *ev)
	return nil
}

func (p *fakePublisher) PublishViolation(context.Context, *model.MalpracticeEvent) error {
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) all() []messaging.OutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.OutcomeEvent(nil), p.outcomes...)
}

type fixture struct {
	upstream  *fakeUpstream
	attempts  *fakeAttempts
	board     *fakeBoard
	publisher *fakePublisher
	hub       *websocket.Hub
	store     *cache.MemoryStore
	cache     *cache.AnswerCache
	courses   *CourseService
	sessions  *ExamSessionService
}

func newFixture(t *testing.T, courses ...model.Course) *fixture {
	t.Helper()

	now, loc := examDay(t)
	log := zerolog.Nop()

	f := &fixture{
		upstream:  &fakeUpstream{courses: courses},
		attempts:  newFakeAttempts(),
		board:     &fakeBoard{},
		publisher: &fakePublisher{},
		hub:       websocket.NewHub(),
		store:     cache.NewMemoryStore(),
	}
	f.cache = cache.New(f.store, time.Hour, log)

	g := gate.New(fixedClock{t: now}, loc, gate.DefaultWindow)
	f.courses = NewCourseService(f.upstream, f.attempts, g, f.board, retry.New(1, 0, log), log)
	f.sessions = NewExamSessionService(ExamSessionDeps{
		Courses:   f.courses,
		Gate:      g,
		Backend:   f.upstream,
		Cache:     f.cache,
		Attempts:  f.attempts,
		Publisher: f.publisher,
		Board:     f.board,
		Events:    f.hub,
	}, SessionOptions{
		Tick:             time.Hour,
		Debounce:         time.Millisecond,
		RetryMaxAttempts: 1,
	}, log)
	t.Cleanup(f.sessions.Shutdown)
	return f
}

// answerAll selects and submits every question of the student's session.
func (f *fixture) answerAll(t *testing.T, studentID string) *session.Session {
	t.Helper()
	sess, err := f.sessions.Session(studentID)
	require.NoError(t, err)

	snap := sess.Snapshot()
	for _, id := range append(snap.Phase1, snap.Phase2...) {
		require.NoError(t, sess.SelectOption(context.Background(), id, "option1"), fmt.Sprintf("select %s", id))
		require.NoError(t, sess.SubmitAnswer(context.Background(), id))
	}
	return sess
}
