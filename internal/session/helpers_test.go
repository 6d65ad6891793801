package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cache"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("network unreachable")

type fakeBackend struct {
	mu        sync.Mutex
	questions *model.QuestionSet
	fetchErr  error
	answerErr error
	examErr   error
	examDelay time.Duration
	// answerHold, when set, blocks answer delivery until closed.
	answerHold    chan struct{}
	answerEntered chan struct{}

	answers []model.AnswerSubmission
	exams   []model.ExamSubmission
}

func (b *fakeBackend) FetchQuestions(_ context.Context, _ string) (*model.QuestionSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	set := &model.QuestionSet{
		Phase1: append([]model.Question{}, b.questions.Phase1...),
		Phase2: append([]model.Question{}, b.questions.Phase2...),
	}
	return set, nil
}

func (b *fakeBackend) SubmitAnswer(_ context.Context, sub *model.AnswerSubmission) error {
	b.mu.Lock()
	hold, entered := b.answerHold, b.answerEntered
	b.mu.Unlock()
	if hold != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-hold
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.answerErr != nil {
		return b.answerErr
	}
	b.answers = append(b.answers, *sub)
	return nil
}

func (b *fakeBackend) SubmitExam(_ context.Context, sub *model.ExamSubmission) (*model.ExamResults, error) {
	b.mu.Lock()
	delay := b.examDelay
	b.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.examErr != nil {
		return nil, b.examErr
	}
	b.exams = append(b.exams, *sub)
	return &model.ExamResults{Marks: []byte(`[1]`), TotalMarks: 1}, nil
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) examCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.exams)
}

func (b *fakeBackend) lastExam() model.ExamSubmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exams[len(b.exams)-1]
}

func (b *fakeBackend) answerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.answers)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) has(t EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	s         *Session
	backend   *fakeBackend
	store     *cache.MemoryStore
	cache     *cache.AnswerCache
	events    *eventLog
	terminal  chan Result
	delivered chan Result
}

func questionSet(phase1, phase2 int) *model.QuestionSet {
	set := &model.QuestionSet{Phase1: []model.Question{}, Phase2: []model.Question{}}
	for i := 1; i <= phase1; i++ {
		set.Phase1 = append(set.Phase1, model.Question{ID: "p1q" + string(rune('0'+i)), Text: "phase one", Option1: "a", Option2: "b"})
	}
	for i := 1; i <= phase2; i++ {
		set.Phase2 = append(set.Phase2, model.Question{ID: "p2q" + string(rune('0'+i)), Text: "phase two", Option1: "a", Option2: "b"})
	}
	return set
}

func newHarness(t *testing.T, set *model.QuestionSet, opts ...func(*Config)) *harness {
	t.Helper()

	h := &harness{
		backend:   &fakeBackend{questions: set},
		store:     cache.NewMemoryStore(),
		events:    &eventLog{},
		terminal:  make(chan Result, 4),
		delivered: make(chan Result, 4),
	}
	h.cache = cache.New(h.store, 0, zerolog.Nop())

	cfg := Config{
		StudentID:   "stu-1",
		Course:      model.Course{ID: "course-1", Name: "Physics"},
		Backend:     h.backend,
		Cache:       h.cache,
		Retrier:     retry.New(2, 0, zerolog.Nop()),
		Sink:        h.events,
		Debounce:    10 * time.Millisecond,
		Tick:        time.Hour,
		OnTerminal:  func(r Result) { h.terminal <- r },
		OnDelivered: func(r Result) { h.delivered <- r },
		Log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h.s = New(cfg)
	t.Cleanup(h.s.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.Start(context.Background()))
	require.Equal(t, StateActive, h.s.State())
}

func (h *harness) cached(t *testing.T) *cache.Snapshot {
	t.Helper()
	snap, err := h.cache.Restore(context.Background(), "stu-1", "course-1", map[string]struct{}{})
	require.NoError(t, err)
	return snap
}
