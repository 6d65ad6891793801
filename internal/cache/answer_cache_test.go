package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func ids(list ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, id := range list {
		out[id] = struct{}{}
	}
	return out
}

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		SelectedAnswers: map[string]*string{
			"q1": strPtr("option2"),
			"q2": nil,
			"q3": strPtr("option4"),
		},
		QuestionStatuses: map[string]model.QuestionStatus{
			"q1": model.StatusSubmitted,
			"q2": model.StatusDefault,
			"q3": model.StatusReview,
		},
		ExamStartedAt: time.Date(2025, 6, 1, 4, 30, 0, 0, time.UTC),
		PendingSubmissions: []model.PendingSubmission{{
			ID:   "p1",
			Kind: model.PendingAnswer,
			Answer: &model.AnswerSubmission{
				StudentID: "s1", CourseID: "c1", QuestionID: "q1", SelectedAnswer: "option2",
			},
		}},
		SubmittedAnswers: []model.SubmittedAnswer{},
	}
}

func TestRoundTrip_UnchangedQuestionSet(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), time.Hour, zerolog.Nop())
	snap := sampleSnapshot()

	require.NoError(t, c.Save(ctx, "s1", "c1", snap))
	got, err := c.Restore(ctx, "s1", "c1", ids("q1", "q2", "q3"))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, snap.SelectedAnswers, got.SelectedAnswers)
	assert.Equal(t, snap.QuestionStatuses, got.QuestionStatuses)
	assert.True(t, snap.ExamStartedAt.Equal(got.ExamStartedAt))
	assert.Len(t, got.PendingSubmissions, 1)
}

func TestRestore_DropsStaleIDs(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), 0, zerolog.Nop())
	require.NoError(t, c.Save(ctx, "s1", "c1", sampleSnapshot()))

	got, err := c.Restore(ctx, "s1", "c1", ids("q1", "q9"))
	require.NoError(t, err)

	assert.Equal(t, map[string]*string{"q1": strPtr("option2")}, got.SelectedAnswers)
	assert.Equal(t, map[string]model.QuestionStatus{"q1": model.StatusSubmitted}, got.QuestionStatuses)
}

func TestRestore_MissingEntry(t *testing.T) {
	c := New(NewMemoryStore(), 0, zerolog.Nop())

	got, err := c.Restore(context.Background(), "s1", "c1", ids("q1"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRestore_CorruptEntryIsCleared(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, config.CacheKey.AnswerCacheKey("s1", "c1"), []byte("{not json"), 0))
	c := New(store, 0, zerolog.Nop())

	got, err := c.Restore(ctx, "s1", "c1", ids("q1"))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, store.Len())
}

func TestClear_ScopedToStudentAndCourse(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := New(store, 0, zerolog.Nop())
	require.NoError(t, c.Save(ctx, "s1", "c1", sampleSnapshot()))
	require.NoError(t, c.Save(ctx, "s1", "c2", sampleSnapshot()))

	require.NoError(t, c.Clear(ctx, "s1", "c1"))

	gone, err := c.Restore(ctx, "s1", "c1", ids("q1"))
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := c.Restore(ctx, "s1", "c2", ids("q1"))
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
