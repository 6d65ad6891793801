// Package gate decides whether a student may enter a course exam.
package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	DefaultWindow = 150 * time.Minute

	ReasonNotEligible  = "You are not eligible to take this exam."
	ReasonNoPayment    = "Payment not confirmed for this exam."
	ReasonNotAvailable = "Exam not available."
)

// Clock is the time source, normally the time authority.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// Decision is the outcome of CanEnter.
type Decision struct {
	OK     bool
	Reason string
	// Status is the per-course status string to record, empty when the
	// course is open.
	Status model.ExamStatus
}

// Gate runs the entry checks against one exam timezone.
type Gate struct {
	clock  Clock
	loc    *time.Location
	window time.Duration
}

// New creates a Gate. A non-positive window uses DefaultWindow.
func New(clock Clock, loc *time.Location, window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{clock: clock, loc: loc, window: window}
}

// CanEnter runs the checks in order and stops at the first failure.
func (g *Gate) CanEnter(ctx context.Context, course *model.Course) Decision {
	if status, finished := FinishedStatus(course); finished {
		return Decision{Reason: string(status), Status: status}
	}
	if !course.IsEligible {
		return Decision{Reason: ReasonNotEligible}
	}
	if !course.PaymentConfirmed {
		return Decision{Reason: ReasonNoPayment}
	}

	status, err := g.WindowStatus(g.clock.Now(ctx), course)
	if err != nil {
		return Decision{Reason: ReasonNotAvailable}
	}
	if status != model.ExamStatusOpen {
		return Decision{Reason: string(status), Status: status}
	}
	return Decision{OK: true}
}

// Status is the lobby status of a course: its final outcome if it has one,
// otherwise where now falls relative to the exam window.
func (g *Gate) Status(ctx context.Context, course *model.Course) model.ExamStatus {
	if status, finished := FinishedStatus(course); finished {
		return status
	}
	status, err := g.WindowStatus(g.clock.Now(ctx), course)
	if err != nil {
		return model.ExamStatusNotStarted
	}
	return status
}

// FinishedStatus reports the status of a course the student already ended.
// Malpractice takes precedence over completion.
func FinishedStatus(course *model.Course) (model.ExamStatus, bool) {
	switch {
	case course.HasMalpractice:
		return model.ExamStatusAutoEvaluated, true
	case course.HasCompleted:
		return model.ExamStatusCompleted, true
	case course.HasExited:
		return model.ExamStatusExited, true
	case course.HasElapsed:
		return model.ExamStatusElapsed, true
	}
	return "", false
}

// WindowStatus places now relative to [start, start+window] on the exam day.
// The bounds are inclusive.
func (g *Gate) WindowStatus(now time.Time, course *model.Course) (model.ExamStatus, error) {
	start, err := g.ExamStart(course)
	if err != nil {
		return "", err
	}
	end := start.Add(g.window)
	now = now.In(g.loc)

	day := civilDay(now)
	examDay := civilDay(start)
	switch {
	case day.Before(examDay):
		return model.ExamStatusNotStarted, nil
	case day.After(examDay):
		return model.ExamStatusElapsed, nil
	case now.Before(start):
		return model.ExamStatusNotStarted, nil
	case now.After(end):
		return model.ExamStatusElapsed, nil
	}
	return model.ExamStatusOpen, nil
}

// ExamStart parses the course's exam date and time in the exam timezone.
func (g *Gate) ExamStart(course *model.Course) (time.Time, error) {
	if course.ExamDate == "" || course.ExamTime == "" {
		return time.Time{}, fmt.Errorf("course %s has no exam schedule", course.ID)
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", course.ExamDate+" "+course.ExamTime, g.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse exam schedule: %w", err)
	}
	return start, nil
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
