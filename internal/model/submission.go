package model

import (
	"encoding/json"
	"time"
)

// AnswerSubmission is the per-question delivery payload.
type AnswerSubmission struct {
	StudentID      string `json:"studentId"`
	CourseID       string `json:"courseId"`
	QuestionID     string `json:"questionId"`
	SelectedAnswer string `json:"selectedAnswer"`
}

// Valid reports whether every field is populated.
func (a *AnswerSubmission) Valid() bool {
	return a.StudentID != "" && a.CourseID != "" && a.QuestionID != "" && a.SelectedAnswer != ""
}

// SubmittedAnswer is one audit entry of the submitted-answer log.
type SubmittedAnswer struct {
	QuestionID string    `json:"questionId"`
	Answer     string    `json:"answer"`
	Timestamp  time.Time `json:"timestamp"`
}

// ManifestEntry is one row of the whole-exam answer manifest.
type ManifestEntry struct {
	QuestionID     string         `json:"questionId"`
	SelectedAnswer *string        `json:"selectedAnswer"`
	Status         QuestionStatus `json:"status"`
	StartTime      time.Time      `json:"startTime"`
}

// ExamSubmission is the whole-exam delivery payload. The backend treats it as
// an idempotent upsert keyed by student and course.
type ExamSubmission struct {
	StudentID     string          `json:"studentId"`
	CourseID      string          `json:"courseId"`
	Answers       []ManifestEntry `json:"answers"`
	IsMalpractice bool            `json:"isMalpractice"`
}

// Valid reports whether the manifest can be sent.
func (e *ExamSubmission) Valid() bool {
	return e.StudentID != "" && e.CourseID != "" && len(e.Answers) > 0
}

// ExamResults is what the backend returns for a graded exam.
type ExamResults struct {
	Marks      json.RawMessage `json:"marks"`
	TotalMarks float64         `json:"totalMarks"`
}

// EmptyResults mirrors the backend default when no results are returned.
func EmptyResults() *ExamResults {
	return &ExamResults{Marks: json.RawMessage("[]")}
}

// PendingKind distinguishes queued payloads.
type PendingKind string

const (
	PendingAnswer PendingKind = "answer"
	PendingExam   PendingKind = "exam"
)

// PendingSubmission is a payload whose delivery failed and awaits retry.
type PendingSubmission struct {
	ID       string            `json:"id"`
	Kind     PendingKind       `json:"kind"`
	Answer   *AnswerSubmission `json:"answer,omitempty"`
	Exam     *ExamSubmission   `json:"exam,omitempty"`
	QueuedAt time.Time         `json:"queuedAt"`
}

// Valid reports whether the record still carries a deliverable payload.
func (p *PendingSubmission) Valid() bool {
	switch p.Kind {
	case PendingAnswer:
		return p.Answer != nil && p.Answer.Valid()
	case PendingExam:
		return p.Exam != nil && p.Exam.Valid()
	}
	return false
}
