package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cache"
	"github.com/stemsi/exstem-proctor/internal/gate"
	"github.com/stemsi/exstem-proctor/internal/messaging"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "time/tzdata"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now(context.Context) time.Time { return c.t }

type courseList []model.Course

func (l courseList) FindCourse(_ context.Context, _, courseID string) (*model.Course, error) {
	for i := range l {
		if l[i].ID == courseID {
			c := l[i]
			return &c, nil
		}
	}
	return nil, service.ErrCourseNotFound
}

// slowBackend holds every answer delivery until release is closed.
type slowBackend struct {
	release chan struct{}

	mu      sync.Mutex
	answers int
}

func (b *slowBackend) FetchQuestions(context.Context, string) (*model.QuestionSet, error) {
	return &model.QuestionSet{
		Phase1: []model.Question{{ID: "q1", Option1: "a", Option2: "b"}, {ID: "q2", Option1: "a", Option2: "b"}},
		Phase2: []model.Question{},
	}, nil
}

func (b *slowBackend) SubmitAnswer(ctx context.Context, _ *model.AnswerSubmission) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers++
	return nil
}

func (b *slowBackend) SubmitExam(context.Context, *model.ExamSubmission) (*model.ExamResults, error) {
	return &model.ExamResults{Marks: json.RawMessage(`[]`)}, nil
}

func (b *slowBackend) answerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.answers
}

type nopAttempts struct{}

func (nopAttempts) Record(context.Context, *model.Attempt) error { return nil }

func (nopAttempts) MarkDelivered(context.Context, string, string, json.RawMessage) error { return nil }

func (nopAttempts) ListUndelivered(context.Context) ([]model.Attempt, error) { return nil, nil }

type nopBoard struct{}

func (nopBoard) Set(context.Context, string, string, model.ExamStatus) error { return nil }

func (nopBoard) SetAll(context.Context, string, map[string]model.ExamStatus) error { return nil }

type streamMessage struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Data  json.RawMessage `json:"data"`
}

func TestSessionStream_SignalsHandledDuringSlowDelivery(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 11, 0, 0, 0, loc)

	course := model.Course{
		ID:               "c1",
		Name:             "Physics",
		ExamDate:         "2025-06-01",
		ExamTime:         "10:00",
		IsEligible:       true,
		PaymentConfirmed: true,
	}
	backend := &slowBackend{release: make(chan struct{})}
	hub := ws.NewHub()
	log := zerolog.Nop()

	sessions := service.NewExamSessionService(service.ExamSessionDeps{
		Courses:   courseList{course},
		Gate:      gate.New(fixedClock{t: now}, loc, gate.DefaultWindow),
		Backend:   backend,
		Cache:     cache.New(cache.NewMemoryStore(), 0, log),
		Attempts:  nopAttempts{},
		Publisher: messaging.NoopPublisher{},
		Board:     nopBoard{},
		Events:    hub,
	}, service.SessionOptions{
		Tick:             time.Hour,
		Debounce:         time.Millisecond,
		RetryMaxAttempts: 1,
	}, log)
	t.Cleanup(sessions.Shutdown)

	_, err = sessions.Start(context.Background(), "s1", "c1")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{StudentID: "s1"})
		c.Next()
	}, NewWSHandler(sessions, hub, log, nil).SessionStream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(payload string) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
	}
	send(`{"action":"select_option","question_id":"q1","option":"option1"}`)
	send(`{"action":"submit_answer","question_id":"q1"}`)
	send(`{"action":"signal","signal":{"type":"contextmenu"}}`)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var warned bool
	for !warned {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg), "no warning while the answer was in flight")
		assert.NotEqual(t, "error", msg.Event, msg.Code)
		warned = msg.Event == "warning"
	}
	assert.Equal(t, 0, backend.answerCount())

	close(backend.release)
	assert.Eventually(t, func() bool { return backend.answerCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestNetworkBound(t *testing.T) {
	for _, a := range []ws.Action{ws.ActionSubmitAnswer, ws.ActionSubmitExam, ws.ActionExit} {
		assert.True(t, networkBound(a), a)
	}
	for _, a := range []ws.Action{ws.ActionSignal, ws.ActionDismissWarning, ws.ActionPing, ws.ActionSelectOption} {
		assert.False(t, networkBound(a), a)
	}
}
