package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome enumerates how an exam attempt ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "COMPLETED"
	OutcomeAutoEvaluated Outcome = "AUTO_EVALUATED"
	OutcomeExited        Outcome = "EXITED"
	OutcomeElapsed       Outcome = "ELAPSED"
	// OutcomeAborted ends a session whose manifest was invalid or refused.
	// It is never recorded and leaves the course open.
	OutcomeAborted Outcome = "ABORTED"
)

// Attempt is the locally persisted record of a finished exam attempt.
type Attempt struct {
	ID            uuid.UUID       `json:"id"`
	StudentID     string          `json:"student_id"`
	CourseID      string          `json:"course_id"`
	Outcome       Outcome         `json:"outcome"`
	IsMalpractice bool            `json:"is_malpractice"`
	Delivered     bool            `json:"delivered"`
	Results       json.RawMessage `json:"results,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
}
