package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zerolog.Nop())
}

func TestFetchCourses_MapsCatalogColumns(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/student-courses/complete-details/s-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"student": {"id": "s-1"},
			"courses": [{
				"courseid": "c-1", "coursename": "Physics", "coursecode": "PHY101",
				"examdate": "2025-06-01T00:00:00.000Z", "examtime": "10:00",
				"iseligible": true, "paymentconfirmed": true, "hasexited": true
			}]
		}`))
	})

	courses, err := c.FetchCourses(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "c-1", courses[0].ID)
	assert.Equal(t, "PHY101", courses[0].CourseCode)
	assert.Equal(t, "2025-06-01", courses[0].ExamDate)
	assert.True(t, courses[0].IsEligible)
	assert.True(t, courses[0].HasExited)
	assert.False(t, courses[0].HasCompleted)
}

func TestFetchQuestions_DefaultsMissingPhases(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"phase1":[{"id":"q1","question":"2+2?","option1":"4"}]}`))
	})

	set, err := c.FetchQuestions(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Len(t, set.Phase1, 1)
	assert.NotNil(t, set.Phase2)
	assert.Empty(t, set.Phase2)
}

func TestSubmitAnswer_SendsJSONBody(t *testing.T) {
	var got model.AnswerSubmission
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	sub := &model.AnswerSubmission{StudentID: "s", CourseID: "c", QuestionID: "q", SelectedAnswer: "option3"}
	require.NoError(t, c.SubmitAnswer(context.Background(), sub))
	assert.Equal(t, *sub, got)
}

func TestSubmitExam_MissingResultsUsesEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	res, err := c.SubmitExam(context.Background(), &model.ExamSubmission{StudentID: "s", CourseID: "c"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(res.Marks))
	assert.Zero(t, res.TotalMarks)
}

func TestClientErrorIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad course"}`))
	})

	err := c.SubmitAnswer(context.Background(), &model.AnswerSubmission{})
	require.Error(t, err)

	var perm *retry.Permanent
	assert.True(t, errors.As(err, &perm))
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.Code)
	assert.Equal(t, "bad course", serr.Message)
}

func TestServerErrorIsTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r := retry.New(5, 0, zerolog.Nop())

	err := r.Do(context.Background(), "submit_answer", func(ctx context.Context) error {
		return c.SubmitAnswer(ctx, &model.AnswerSubmission{})
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestResponseOverLimitIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"phase1":[{"id":"` + strings.Repeat("q", 512) + `"}]}`))
	})
	c.maxBytes = 64

	_, err := c.FetchQuestions(context.Background(), "c-1")
	require.ErrorIs(t, err, ErrResponseTooLarge)
	assert.True(t, retry.IsPermanent(err))
}

func TestTimeAuthority_OversizedReplyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datetime":"2025-06-01T11:00:00+05:30","pad":"` + strings.Repeat("x", maxTimeBytes) + `"}`))
	}))
	defer srv.Close()

	local := time.Date(2025, 6, 1, 5, 30, 0, 0, time.UTC)
	ta := NewTimeAuthority(srv.URL, time.UTC, time.Second, zerolog.Nop())
	ta.now = func() time.Time { return local }

	assert.True(t, ta.Now(context.Background()).Equal(local))
}

func TestTimeAuthority_UsesRemoteClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datetime":"2025-06-01T11:00:00.000000+05:30"}`))
	}))
	defer srv.Close()

	ist := time.FixedZone("IST", 5*3600+1800)
	ta := NewTimeAuthority(srv.URL, ist, time.Second, zerolog.Nop())
	ta.now = func() time.Time { return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC) }

	now := ta.Now(context.Background())
	assert.Equal(t, 2025, now.Year())
	assert.Equal(t, 11, now.Hour())
}

func TestTimeAuthority_FallsBackToLocalClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	local := time.Date(2025, 6, 1, 5, 30, 0, 0, time.UTC)
	ist := time.FixedZone("IST", 5*3600+1800)
	ta := NewTimeAuthority(srv.URL, ist, time.Second, zerolog.Nop())
	ta.now = func() time.Time { return local }

	now := ta.Now(context.Background())
	assert.True(t, now.Equal(local))
	assert.Equal(t, 11, now.Hour())
}
