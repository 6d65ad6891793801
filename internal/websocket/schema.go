package websocket

import (
	"encoding/json"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelectOption   Action = "select_option"
	ActionReview         Action = "review"
	ActionSubmitAnswer   Action = "submit_answer"
	ActionNavigate       Action = "navigate"
	ActionSelectQuestion Action = "select_question"
	ActionSubmitExam     Action = "submit_exam"
	ActionExit           Action = "exit"
	ActionDismissWarning Action = "dismiss_warning"
	ActionSignal         Action = "signal"
	ActionPing           Action = "ping"
)

// RequestPayload is every client message. Fields not used by an action are
// left empty.
type RequestPayload struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id,omitempty"`
	Option     string          `json:"option,omitempty"`
	Direction  string          `json:"direction,omitempty"`
	Phase      string          `json:"phase,omitempty"`
	Index      *int            `json:"index,omitempty"`
	Confirmed  bool            `json:"confirmed,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventPong  Event = "pong"
)

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// SessionEventResponse wraps a session event. The event name is the session
// event type (state, message, warning, fullscreen_exit, ...).
type SessionEventResponse struct {
	Event Event `json:"event"`
	Data  any   `json:"data"`
}
