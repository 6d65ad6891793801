package session

import (
	"fmt"
	"maps"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Snapshot is the read model pushed to the browser shell.
type Snapshot struct {
	StudentID  string `json:"studentId"`
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName"`
	State      State  `json:"state"`
	Paused     bool   `json:"paused"`

	CurrentPhase              model.Phase     `json:"currentPhase"`
	CurrentQuestionIndex      *int            `json:"currentQuestionIndex"`
	CurrentQuestionIndexInAll int             `json:"currentQuestionIndexInAll"`
	CurrentQuestion           *model.Question `json:"currentQuestion"`
	TotalQuestions            int             `json:"totalQuestions"`
	Phase1                    []string        `json:"phase1"`
	Phase2                    []string        `json:"phase2"`

	SelectedAnswers  map[string]*string              `json:"selectedAnswers"`
	QuestionStatuses map[string]model.QuestionStatus `json:"questionStatuses"`

	RemainingSeconds int       `json:"remainingSeconds"`
	RemainingTime    string    `json:"remainingTime"`
	StartedAt        time.Time `json:"startedAt"`

	Warning           string                      `json:"warning,omitempty"`
	MalpracticeCounts map[model.ViolationKind]int `json:"malpracticeCounts"`
	HasMalpractice    bool                        `json:"hasMalpractice"`

	PendingSubmissions int     `json:"pendingSubmissions"`
	SubmittedAnswers   int     `json:"submittedAnswers"`
	CanSubmit          bool    `json:"canSubmit"`
	Message            string  `json:"message,omitempty"`
	Result             *Result `json:"result,omitempty"`
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		StudentID:                 s.cfg.StudentID,
		CourseID:                  s.cfg.Course.ID,
		CourseName:                s.cfg.Course.Name,
		State:                     s.state,
		Paused:                    s.state == StatePaused,
		CurrentPhase:              s.phase,
		CurrentQuestionIndexInAll: s.indexInAllLocked(),
		CurrentQuestion:           s.currentLocked(),
		TotalQuestions:            s.questions.Len(),
		Phase1:                    questionIDs(s.questions.Phase1),
		Phase2:                    questionIDs(s.questions.Phase2),
		SelectedAnswers:           maps.Clone(s.selected),
		QuestionStatuses:          maps.Clone(s.statuses),
		RemainingSeconds:          s.remaining,
		RemainingTime:             FormatTime(s.remaining),
		StartedAt:                 s.startedAt,
		Warning:                   s.warning,
		MalpracticeCounts:         maps.Clone(s.counts),
		HasMalpractice:            s.malpractice,
		PendingSubmissions:        len(s.pending),
		SubmittedAnswers:          len(s.submitted),
		CanSubmit:                 s.canSubmitLocked(),
		Message:                   s.message,
	}
	if s.index >= 0 {
		i := s.index
		snap.CurrentQuestionIndex = &i
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

// canSubmitLocked reports whether every question is submitted.
func (s *Session) canSubmitLocked() bool {
	for _, q := range s.questions.All() {
		if s.statuses[q.ID] != model.StatusSubmitted {
			return false
		}
	}
	return true
}

// FormatTime renders seconds as mm:ss. Minutes are not capped at 59.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func questionIDs(list []model.Question) []string {
	ids := make([]string, len(list))
	for i, q := range list {
		ids[i] = q.ID
	}
	return ids
}
