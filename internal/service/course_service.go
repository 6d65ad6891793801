package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/gate"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
)

var ErrCourseNotFound = errors.New("course not found")

// Catalog lists the courses a student is enrolled in.
type Catalog interface {
	FetchCourses(ctx context.Context, studentID string) ([]model.Course, error)
}

// OutcomeSource returns the locally recorded outcome per course.
type OutcomeSource interface {
	OutcomesByStudent(ctx context.Context, studentID string) (map[string]model.Outcome, error)
}

// StatusRecorder stores the display status of a student's courses.
type StatusRecorder interface {
	Set(ctx context.Context, studentID, courseID string, status model.ExamStatus) error
	SetAll(ctx context.Context, studentID string, statuses map[string]model.ExamStatus) error
}

// CourseService builds the student lobby: the upstream catalog merged with
// the outcomes recorded by this service.
type CourseService struct {
	catalog  Catalog
	outcomes OutcomeSource
	gate     *gate.Gate
	board    StatusRecorder
	retrier  *retry.Retrier
	log      zerolog.Logger
}

// NewCourseService creates a new CourseService.
func NewCourseService(catalog Catalog, outcomes OutcomeSource, g *gate.Gate, board StatusRecorder, retrier *retry.Retrier, log zerolog.Logger) *CourseService {
	return &CourseService{
		catalog:  catalog,
		outcomes: outcomes,
		gate:     g,
		board:    board,
		retrier:  retrier,
		log:      log.With().Str("component", "course_service").Logger(),
	}
}

// ListCourses returns every enrolled course with its exam status and records
// the statuses on the board.
func (s *CourseService) ListCourses(ctx context.Context, studentID string) ([]model.CourseWithStatus, error) {
	courses, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}

	out := make([]model.CourseWithStatus, 0, len(courses))
	statuses := make(map[string]model.ExamStatus, len(courses))
	for i := range courses {
		status := s.gate.Status(ctx, &courses[i])
		statuses[courses[i].ID] = status
		out = append(out, model.CourseWithStatus{Course: courses[i], ExamStatus: status})
	}

	if err := s.board.SetAll(ctx, studentID, statuses); err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID).Msg("Failed to update exam status board")
	}
	return out, nil
}

// FindCourse returns one enrolled course with local outcomes applied.
func (s *CourseService) FindCourse(ctx context.Context, studentID, courseID string) (*model.Course, error) {
	courses, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if courses[i].ID == courseID {
			return &courses[i], nil
		}
	}
	return nil, ErrCourseNotFound
}

func (s *CourseService) load(ctx context.Context, studentID string) ([]model.Course, error) {
	courses, err := retry.Value(ctx, s.retrier, "fetch_courses", func(ctx context.Context) ([]model.Course, error) {
		return s.catalog.FetchCourses(ctx, studentID)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch courses: %w", err)
	}

	// The catalog stays usable when the attempt store is down; the catalog
	// flags still gate re-entry.
	outcomes, err := s.outcomes.OutcomesByStudent(ctx, studentID)
	if err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID).Msg("Failed to load recorded outcomes")
	}
	for i := range courses {
		if o, ok := outcomes[courses[i].ID]; ok {
			courses[i].ApplyOutcome(o)
		}
	}
	return courses, nil
}
