package service

import (
	"context"
	"testing"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCourses_StatusesAndBoard(t *testing.T) {
	open := openCourse("open")
	later := openCourse("later")
	later.ExamTime = "15:00"
	past := openCourse("past")
	past.ExamDate = "2025-05-30"
	flagged := openCourse("flagged")
	flagged.HasMalpractice = true
	flagged.HasCompleted = true
	recorded := openCourse("recorded")

	f := newFixture(t, open, later, past, flagged, recorded)
	require.NoError(t, f.attempts.Record(context.Background(), &model.Attempt{
		StudentID: "s1",
		CourseID:  "recorded",
		Outcome:   model.OutcomeExited,
	}))

	courses, err := f.courses.ListCourses(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, courses, 5)

	want := map[string]model.ExamStatus{
		"open":     model.ExamStatusOpen,
		"later":    model.ExamStatusNotStarted,
		"past":     model.ExamStatusElapsed,
		"flagged":  model.ExamStatusAutoEvaluated,
		"recorded": model.ExamStatusExited,
	}
	for _, c := range courses {
		assert.Equal(t, want[c.ID], c.ExamStatus, c.ID)
		assert.Equal(t, want[c.ID], f.board.get("s1", c.ID), c.ID)
	}
}

func TestFindCourse_AppliesRecordedOutcome(t *testing.T) {
	f := newFixture(t, openCourse("c1"))
	require.NoError(t, f.attempts.Record(context.Background(), &model.Attempt{
		StudentID: "s1",
		CourseID:  "c1",
		Outcome:   model.OutcomeAutoEvaluated,
	}))

	c, err := f.courses.FindCourse(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, c.HasMalpractice)

	_, err = f.courses.FindCourse(context.Background(), "s1", "nope")
	assert.ErrorIs(t, err, ErrCourseNotFound)
}
