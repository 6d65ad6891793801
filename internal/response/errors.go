package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamEntryDenied    ErrCode = "EXAM_ENTRY_DENIED"
	ErrNoActiveSession    ErrCode = "NO_ACTIVE_SESSION"
	ErrAnotherExamActive  ErrCode = "ANOTHER_EXAM_ACTIVE"
	ErrSessionNotActive   ErrCode = "SESSION_NOT_ACTIVE"
	ErrQuestionNotFound   ErrCode = "QUESTION_NOT_FOUND"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"
	ErrNoAnswerSelected   ErrCode = "NO_ANSWER_SELECTED"
	ErrExitNotConfirmed   ErrCode = "EXIT_NOT_CONFIRMED"
	ErrInvalidExamData    ErrCode = "INVALID_EXAM_DATA"
	ErrSubmissionDeferred ErrCode = "SUBMISSION_DEFERRED"
	ErrSubmissionRejected ErrCode = "SUBMISSION_REJECTED"
	ErrUpstreamFailure    ErrCode = "UPSTREAM_FAILURE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Exam not available."
	case ErrExamEntryDenied:
		return "You cannot enter this exam."
	case ErrNoActiveSession:
		return "You have no exam session."
	case ErrAnotherExamActive:
		return "Another exam is already in progress."
	case ErrSessionNotActive:
		return "The exam is not in progress."
	case ErrQuestionNotFound:
		return "Question not found."
	case ErrInvalidOption:
		return "Invalid option."
	case ErrNoAnswerSelected:
		return "Please select an option before submitting."
	case ErrExitNotConfirmed:
		return "Exit must be confirmed."
	case ErrInvalidExamData:
		return "Invalid exam data. Please try again."
	case ErrSubmissionDeferred:
		return "Failed to submit exam. Your answers are cached and will be retried."
	case ErrSubmissionRejected:
		return "Exam submission was rejected. Your answers are kept for another attempt."
	case ErrUpstreamFailure:
		return "The exam service is unreachable. Please try again."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
