package model

// Phase names one of the two ordered question groups of an exam.
type Phase string

const (
	PhaseNone Phase = ""
	Phase1    Phase = "phase1"
	Phase2    Phase = "phase2"
)

// QuestionStatus is the per-question progress marker.
type QuestionStatus string

const (
	StatusDefault   QuestionStatus = "default"
	StatusReview    QuestionStatus = "review"
	StatusSubmitted QuestionStatus = "submitted"
)

// OptionKeys are the answer values a student can select.
var OptionKeys = []string{"option1", "option2", "option3", "option4"}

// Question is a multiple-choice question as served by the question bank.
type Question struct {
	ID           string `json:"id"`
	CourseID     string `json:"courseId,omitempty"`
	Text         string `json:"question"`
	Image        string `json:"questionImage,omitempty"`
	Option1      string `json:"option1"`
	Option2      string `json:"option2"`
	Option3      string `json:"option3"`
	Option4      string `json:"option4"`
	Option1Image string `json:"option1Image,omitempty"`
	Option2Image string `json:"option2Image,omitempty"`
	Option3Image string `json:"option3Image,omitempty"`
	Option4Image string `json:"option4Image,omitempty"`
}

// HasOption reports whether key names an option that carries text or an image.
func (q *Question) HasOption(key string) bool {
	switch key {
	case "option1":
		return q.Option1 != "" || q.Option1Image != ""
	case "option2":
		return q.Option2 != "" || q.Option2Image != ""
	case "option3":
		return q.Option3 != "" || q.Option3Image != ""
	case "option4":
		return q.Option4 != "" || q.Option4Image != ""
	}
	return false
}

// QuestionSet is the phased question payload for one course.
type QuestionSet struct {
	Phase1 []Question `json:"phase1"`
	Phase2 []Question `json:"phase2"`
}

// All returns phase1 followed by phase2.
func (s *QuestionSet) All() []Question {
	all := make([]Question, 0, len(s.Phase1)+len(s.Phase2))
	all = append(all, s.Phase1...)
	return append(all, s.Phase2...)
}

// Len is the number of questions across both phases.
func (s *QuestionSet) Len() int {
	return len(s.Phase1) + len(s.Phase2)
}

// Phase returns the questions of p, or nil for PhaseNone.
func (s *QuestionSet) Phase(p Phase) []Question {
	switch p {
	case Phase1:
		return s.Phase1
	case Phase2:
		return s.Phase2
	}
	return nil
}

// IDs returns the set of question ids across both phases. Questions without an
// id are skipped.
func (s *QuestionSet) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, s.Len())
	for _, q := range s.All() {
		if q.ID != "" {
			ids[q.ID] = struct{}{}
		}
	}
	return ids
}
