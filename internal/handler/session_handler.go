package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/malpractice"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler exposes the running exam session over REST. The WebSocket
// stream offers the same commands.
type SessionHandler struct {
	sessionService *service.ExamSessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// withSession resolves the caller's session, runs op and answers with the
// resulting snapshot.
func (h *SessionHandler) withSession(c *gin.Context, op func(ctx context.Context, sess *session.Session) error) {
	studentID, err := middleware.MustStudentID(c)
	if err != nil {
		return
	}
	sess, err := h.sessionService.Session(studentID)
	if err != nil {
		failWith(c, err)
		return
	}
	if err := op(c.Request.Context(), sess); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess.Snapshot()})
}

// GetSession godoc
// GET /api/v1/student/session
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.withSession(c, func(context.Context, *session.Session) error { return nil })
}

// SelectOption godoc
// POST /api/v1/student/session/questions/:question_id/option
func (h *SessionHandler) SelectOption(c *gin.Context) {
	var req model.SelectOptionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	questionID, ok := questionParam(c)
	if !ok {
		return
	}
	h.withSession(c, func(ctx context.Context, sess *session.Session) error {
		return sess.SelectOption(ctx, questionID, req.Option)
	})
}

// MarkForReview godoc
// POST /api/v1/student/session/questions/:question_id/review
func (h *SessionHandler) MarkForReview(c *gin.Context) {
	questionID, ok := questionParam(c)
	if !ok {
		return
	}
	h.withSession(c, func(ctx context.Context, sess *session.Session) error {
		return sess.MarkForReview(ctx, questionID)
	})
}

// SubmitAnswer godoc
// POST /api/v1/student/session/questions/:question_id/submit
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	questionID, ok := questionParam(c)
	if !ok {
		return
	}
	h.withSession(c, func(ctx context.Context, sess *session.Session) error {
		return sess.SubmitAnswer(ctx, questionID)
	})
}

// Navigate godoc
// POST /api/v1/student/session/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.withSession(c, func(_ context.Context, sess *session.Session) error {
		return navigate(sess, req.Direction)
	})
}

// SelectQuestion godoc
// POST /api/v1/student/session/select
func (h *SessionHandler) SelectQuestion(c *gin.Context) {
	var req model.SelectQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.withSession(c, func(_ context.Context, sess *session.Session) error {
		return sess.SelectQuestion(req.Phase, *req.Index)
	})
}

// SubmitExam godoc
// POST /api/v1/student/session/submit
// A submission that could not be delivered answers 202: the exam is over and
// the manifest is retried in the background.
func (h *SessionHandler) SubmitExam(c *gin.Context) {
	h.finish(c, func(ctx context.Context, sess *session.Session) error {
		return sess.Submit(ctx, session.TriggerManual)
	})
}

// Exit godoc
// POST /api/v1/student/session/exit
func (h *SessionHandler) Exit(c *gin.Context) {
	var req model.ExitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.finish(c, func(ctx context.Context, sess *session.Session) error {
		return sess.Exit(ctx, req.Confirmed)
	})
}

func (h *SessionHandler) finish(c *gin.Context, op func(ctx context.Context, sess *session.Session) error) {
	studentID, err := middleware.MustStudentID(c)
	if err != nil {
		return
	}
	sess, err := h.sessionService.Session(studentID)
	if err != nil {
		failWith(c, err)
		return
	}

	err = op(c.Request.Context(), sess)
	if errors.Is(err, session.ErrSubmitDeferred) {
		response.FailWithMessage(c, http.StatusAccepted, response.ErrSubmissionDeferred, err.Error(), gin.H{"result": sess.Result()})
		return
	}
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": sess.Result()})
}

// DismissWarning godoc
// POST /api/v1/student/session/warning/dismiss
func (h *SessionHandler) DismissWarning(c *gin.Context) {
	h.withSession(c, func(_ context.Context, sess *session.Session) error {
		return sess.DismissWarning()
	})
}

// RetryPending godoc
// POST /api/v1/student/session/pending/retry
func (h *SessionHandler) RetryPending(c *gin.Context) {
	h.withSession(c, func(ctx context.Context, sess *session.Session) error {
		sess.RetryPendingSubmissions(ctx)
		return nil
	})
}

// Signal godoc
// POST /api/v1/student/session/signals
// REST fallback for shells that cannot hold the WebSocket open.
func (h *SessionHandler) Signal(c *gin.Context) {
	var sig malpractice.Signal
	if fields := validator.Bind(c, &sig); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if sig.At.IsZero() {
		sig.At = time.Now()
	}
	h.withSession(c, func(_ context.Context, sess *session.Session) error {
		sess.HandleSignal(sig)
		return nil
	})
}

func questionParam(c *gin.Context) (string, bool) {
	questionID, fields := validator.Param(c, "question_id")
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return "", false
	}
	return questionID, true
}

func navigate(sess *session.Session, direction string) error {
	if direction == "previous" {
		return sess.Previous()
	}
	return sess.Next()
}
