package model

// SelectOptionRequest is the payload for POST /session/questions/:question_id/option.
type SelectOptionRequest struct {
	Option string `json:"option" binding:"required,oneof=option1 option2 option3 option4"`
}

// NavigateRequest is the payload for POST /session/navigate.
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required,oneof=previous next"`
}

// SelectQuestionRequest is the payload for POST /session/select.
type SelectQuestionRequest struct {
	Phase Phase `json:"phase" binding:"required,oneof=phase1 phase2"`
	Index *int  `json:"index" binding:"required,min=0"`
}

// ExitRequest is the payload for POST /session/exit.
type ExitRequest struct {
	Confirmed bool `json:"confirmed"`
}
