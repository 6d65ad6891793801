package session

import (
	"errors"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// State is the lifecycle position of a session.
type State string

const (
	StateIdle          State = "idle"
	StateLoading       State = "loading"
	StateActive        State = "active"
	StatePaused        State = "paused"
	StateSubmitting    State = "submitting"
	StateCompleted     State = "completed"
	StateAutoEvaluated State = "auto_evaluated"
	StateExited        State = "exited"
	StateElapsed       State = "elapsed"
	// StateAborted ends a session without a delivered or deliverable
	// manifest. The course stays open for another attempt.
	StateAborted State = "aborted"
)

// Terminal reports whether s is one of the end states.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateAutoEvaluated, StateExited, StateElapsed, StateAborted:
		return true
	}
	return false
}

// Running reports whether the exam is in progress.
func (s State) Running() bool {
	return s == StateActive || s == StatePaused
}

// Trigger is what caused a whole-exam submission.
type Trigger string

const (
	TriggerManual      Trigger = "manual"
	TriggerElapsed     Trigger = "elapsed"
	TriggerExited      Trigger = "exited"
	TriggerMalpractice Trigger = "malpractice"
)

var (
	ErrNoAnswerSelected = errors.New("no answer selected")
	ErrSessionNotActive = errors.New("exam session is not active")
	ErrExitNotConfirmed = errors.New("exit not confirmed")
	ErrQuestionNotFound = errors.New("question not found")
	ErrInvalidOption    = errors.New("invalid option")
	ErrAlreadyStarted   = errors.New("exam session already started")
	ErrEmptyManifest    = errors.New("exam manifest is empty")
	ErrSubmitRejected   = errors.New("exam submission rejected")
)

// User-facing messages.
const (
	MsgSelectOption    = "Please select an option before submitting."
	MsgAnswerSubmitted = "Answer submitted successfully."
	MsgAutoEvaluated   = "Your Exam Auto Evaluated Due to Malpractice"
	MsgElapsed         = "Exam Time Elapsed"
	MsgCompleted       = "Exam Completed Successfully"
	MsgExited          = "You Have Exited from Exam"
	MsgInvalidExam     = "Invalid exam data. Please try again."
)

// conclude maps the sticky malpractice flag and the trigger to the terminal
// outcome. Malpractice takes precedence.
func conclude(malpractice bool, trigger Trigger) (model.Outcome, State, string) {
	switch {
	case malpractice:
		return model.OutcomeAutoEvaluated, StateAutoEvaluated, MsgAutoEvaluated
	case trigger == TriggerExited:
		return model.OutcomeExited, StateExited, MsgExited
	case trigger == TriggerElapsed:
		return model.OutcomeElapsed, StateElapsed, MsgElapsed
	}
	return model.OutcomeCompleted, StateCompleted, MsgCompleted
}
