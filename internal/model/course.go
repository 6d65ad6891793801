package model

// Course is a catalog entry as seen by one student.
type Course struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	CourseCode        string `json:"course_code"`
	LearningPlatform  string `json:"learning_platform,omitempty"`
	ExamDate          string `json:"exam_date"` // YYYY-MM-DD
	ExamTime          string `json:"exam_time"` // HH:mm, exam timezone
	ExamQuestionCount int    `json:"exam_question_count"`
	ExamMarks         int    `json:"exam_marks"`
	IsEligible        bool   `json:"is_eligible"`
	PaymentConfirmed  bool   `json:"payment_confirmed"`
	HasCompleted      bool   `json:"has_completed"`
	HasMalpractice    bool   `json:"has_malpractice"`
	HasExited         bool   `json:"has_exited"`
	HasElapsed        bool   `json:"has_elapsed"`
}

// Finished reports whether the student already ended this exam one way or another.
func (c *Course) Finished() bool {
	return c.HasCompleted || c.HasMalpractice || c.HasExited || c.HasElapsed
}

// ApplyOutcome folds a locally recorded attempt outcome into the catalog flags.
func (c *Course) ApplyOutcome(o Outcome) {
	switch o {
	case OutcomeCompleted:
		c.HasCompleted = true
	case OutcomeAutoEvaluated:
		c.HasMalpractice = true
	case OutcomeExited:
		c.HasExited = true
	case OutcomeElapsed:
		c.HasElapsed = true
	}
}

// ExamStatus is the human-readable status shown next to a course.
type ExamStatus string

const (
	ExamStatusCompleted     ExamStatus = "Exam completed successfully"
	ExamStatusAutoEvaluated ExamStatus = "Your Exam Auto Evaluated"
	ExamStatusExited        ExamStatus = "You Have Exited from Exam"
	ExamStatusNotStarted    ExamStatus = "Exam Not Yet Started"
	ExamStatusElapsed       ExamStatus = "Exam Elapsed"
	ExamStatusOpen          ExamStatus = "Exam Open"
)

// StatusForOutcome maps a terminal outcome to the status a course displays
// afterwards. An aborted attempt leaves the course open.
func StatusForOutcome(o Outcome) ExamStatus {
	switch o {
	case OutcomeAborted:
		return ExamStatusOpen
	case OutcomeAutoEvaluated:
		return ExamStatusAutoEvaluated
	case OutcomeExited:
		return ExamStatusExited
	case OutcomeElapsed:
		return ExamStatusElapsed
	default:
		return ExamStatusCompleted
	}
}

// CourseWithStatus is the lobby view of a course.
type CourseWithStatus struct {
	Course
	ExamStatus ExamStatus `json:"exam_status,omitempty"`
}
