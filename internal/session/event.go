package session

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventType names a push notification to the browser shell.
type EventType string

const (
	EventState           EventType = "state"
	EventMessage         EventType = "message"
	EventWarning         EventType = "warning"
	EventFullscreenEnter EventType = "fullscreen_enter"
	EventFullscreenExit  EventType = "fullscreen_exit"
	EventContentChanged  EventType = "content_changed"
	EventTerminal        EventType = "terminal"
)

// Event is one push notification.
type Event struct {
	Type     EventType `json:"type"`
	Message  string    `json:"message,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Result   *Result   `json:"result,omitempty"`
}

// Sink receives session events. Publish is called with the session lock
// held; it must not block or call back into the session.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

type discard struct{}

func (discard) Publish(Event) {}

// Result describes how a session ended.
type Result struct {
	StudentID     string             `json:"studentId"`
	CourseID      string             `json:"courseId"`
	Outcome       model.Outcome      `json:"outcome"`
	State         State              `json:"state"`
	IsMalpractice bool               `json:"isMalpractice"`
	Delivered     bool               `json:"delivered"`
	Results       *model.ExamResults `json:"results,omitempty"`
	Message       string             `json:"message"`
	PendingCount  int                `json:"pendingCount"`
	StartedAt     time.Time          `json:"startedAt"`
	FinishedAt    time.Time          `json:"finishedAt"`
}
