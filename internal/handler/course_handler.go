package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// CourseHandler serves the student lobby and exam entry.
type CourseHandler struct {
	courseService  *service.CourseService
	sessionService *service.ExamSessionService
}

// NewCourseHandler creates a new CourseHandler.
func NewCourseHandler(courseService *service.CourseService, sessionService *service.ExamSessionService) *CourseHandler {
	return &CourseHandler{courseService: courseService, sessionService: sessionService}
}

// ListCourses godoc
// GET /api/v1/student/courses
// Returns the enrolled courses with their exam status.
func (h *CourseHandler) ListCourses(c *gin.Context) {
	studentID, err := middleware.MustStudentID(c)
	if err != nil {
		return
	}

	courses, err := h.courseService.ListCourses(c.Request.Context(), studentID)
	if err != nil {
		failWith(c, err)
		return
	}
	if courses == nil {
		courses = []model.CourseWithStatus{}
	}

	response.Success(c, http.StatusOK, gin.H{"courses": courses})
}

// StartAttempt godoc
// POST /api/v1/student/courses/:course_id/attempt
// Runs the entry checks and starts the exam. Reconnecting to the exam in
// progress returns its current state.
func (h *CourseHandler) StartAttempt(c *gin.Context) {
	studentID, err := middleware.MustStudentID(c)
	if err != nil {
		return
	}

	courseID, fields := validator.Param(c, "course_id")
	if fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}

	snap, err := h.sessionService.Start(c.Request.Context(), studentID, courseID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": snap})
}
