package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// classify maps a domain error to its HTTP status and code. Unknown errors
// are treated as upstream failures: everything a session does that can fail
// for other reasons goes over the network.
func classify(err error) (int, response.ErrCode) {
	var denied *service.EntryDeniedError
	switch {
	case errors.As(err, &denied):
		return http.StatusForbidden, response.ErrExamEntryDenied
	case errors.Is(err, service.ErrCourseNotFound):
		return http.StatusNotFound, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrNoActiveSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, service.ErrAnotherExamActive):
		return http.StatusConflict, response.ErrAnotherExamActive
	case errors.Is(err, session.ErrSessionNotActive), errors.Is(err, session.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrSessionNotActive
	case errors.Is(err, session.ErrQuestionNotFound):
		return http.StatusNotFound, response.ErrQuestionNotFound
	case errors.Is(err, session.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, session.ErrNoAnswerSelected):
		return http.StatusBadRequest, response.ErrNoAnswerSelected
	case errors.Is(err, session.ErrExitNotConfirmed):
		return http.StatusBadRequest, response.ErrExitNotConfirmed
	case errors.Is(err, session.ErrEmptyManifest):
		return http.StatusUnprocessableEntity, response.ErrInvalidExamData
	case errors.Is(err, session.ErrSubmitRejected):
		return http.StatusUnprocessableEntity, response.ErrSubmissionRejected
	case errors.Is(err, session.ErrSubmitDeferred):
		return http.StatusAccepted, response.ErrSubmissionDeferred
	}
	return http.StatusBadGateway, response.ErrUpstreamFailure
}

// failWith writes err as an API error.
func failWith(c *gin.Context, err error) {
	status, code := classify(err)

	var denied *service.EntryDeniedError
	if errors.As(err, &denied) {
		response.FailWithMessage(c, status, code, denied.Reason, gin.H{"exam_status": denied.Status})
		return
	}
	response.Fail(c, status, code)
}
