// Package upstream talks to the course-management backend that owns the
// catalog, the question bank and grading.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/retry"
)

// DefaultMaxResponseBytes caps how much of an upstream body is read.
const DefaultMaxResponseBytes = 8 << 20

// ErrResponseTooLarge is returned when a body exceeds the client's limit.
var ErrResponseTooLarge = errors.New("upstream response too large")

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream returned %d", e.Code)
}

// Client is a JSON client for the student-course API.
type Client struct {
	baseURL  string
	http     *http.Client
	log      zerolog.Logger
	maxBytes int64
}

// NewClient creates a Client against baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		log:      log.With().Str("component", "upstream").Logger(),
		maxBytes: DefaultMaxResponseBytes,
	}
}

// catalogResponse mirrors the lowercase column names the catalog endpoint emits.
type catalogResponse struct {
	Courses []struct {
		ID                string `json:"courseid"`
		Name              string `json:"coursename"`
		CourseCode        string `json:"coursecode"`
		LearningPlatform  string `json:"learningplatform"`
		ExamDate          string `json:"examdate"`
		ExamTime          string `json:"examtime"`
		ExamQuestionCount int    `json:"examquestioncount"`
		ExamMarks         int    `json:"exammarks"`
		IsEligible        bool   `json:"iseligible"`
		PaymentConfirmed  bool   `json:"paymentconfirmed"`
		HasCompleted      bool   `json:"hascompleted"`
		HasMalpractice    bool   `json:"hasmalpractice"`
		HasExited         bool   `json:"hasexited"`
	} `json:"courses"`
}

// FetchCourses returns the courses a student is enrolled in.
func (c *Client) FetchCourses(ctx context.Context, studentID string) ([]model.Course, error) {
	var resp catalogResponse
	if err := c.do(ctx, http.MethodGet, "/api/student-courses/complete-details/"+url.PathEscape(studentID), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch courses: %w", err)
	}

	courses := make([]model.Course, 0, len(resp.Courses))
	for _, rc := range resp.Courses {
		courses = append(courses, model.Course{
			ID:                rc.ID,
			Name:              rc.Name,
			CourseCode:        rc.CourseCode,
			LearningPlatform:  rc.LearningPlatform,
			ExamDate:          normalizeDate(rc.ExamDate),
			ExamTime:          rc.ExamTime,
			ExamQuestionCount: rc.ExamQuestionCount,
			ExamMarks:         rc.ExamMarks,
			IsEligible:        rc.IsEligible,
			PaymentConfirmed:  rc.PaymentConfirmed,
			HasCompleted:      rc.HasCompleted,
			HasMalpractice:    rc.HasMalpractice,
			HasExited:         rc.HasExited,
		})
	}
	return courses, nil
}

// FetchQuestions returns the phased question set of a course.
func (c *Client) FetchQuestions(ctx context.Context, courseID string) (*model.QuestionSet, error) {
	var set model.QuestionSet
	if err := c.do(ctx, http.MethodGet, "/api/student-courses/questions/"+url.PathEscape(courseID), nil, &set); err != nil {
		return nil, fmt.Errorf("fetch questions: %w", err)
	}
	if set.Phase1 == nil {
		set.Phase1 = []model.Question{}
	}
	if set.Phase2 == nil {
		set.Phase2 = []model.Question{}
	}
	return &set, nil
}

// SubmitAnswer delivers one answer.
func (c *Client) SubmitAnswer(ctx context.Context, sub *model.AnswerSubmission) error {
	if err := c.do(ctx, http.MethodPost, "/api/student-courses/submit-answer", sub, nil); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	return nil
}

// SubmitExam delivers the whole-exam manifest and returns the grading results.
func (c *Client) SubmitExam(ctx context.Context, sub *model.ExamSubmission) (*model.ExamResults, error) {
	var resp struct {
		Results *model.ExamResults `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/student-courses/submit-exam", sub, &resp); err != nil {
		return nil, fmt.Errorf("submit exam: %w", err)
	}
	if resp.Results == nil {
		return model.EmptyResults(), nil
	}
	if len(resp.Results.Marks) == 0 {
		resp.Results.Marks = json.RawMessage("[]")
	}
	return resp.Results, nil
}

// LogMalpractice records one violation with the backend.
func (c *Client) LogMalpractice(ctx context.Context, ev *model.MalpracticeEvent) error {
	body := struct {
		StudentID string              `json:"studentId"`
		CourseID  string              `json:"courseId"`
		Type      model.ViolationKind `json:"type"`
	}{ev.StudentID, ev.CourseID, ev.Type}
	if err := c.do(ctx, http.MethodPost, "/api/student-courses/malpractice", body, nil); err != nil {
		return fmt.Errorf("log malpractice: %w", err)
	}
	return nil
}

// do performs one request. 4xx responses are marked permanent so the retrier
// does not repeat them.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return retry.MarkPermanent(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return retry.MarkPermanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if int64(len(raw)) > c.maxBytes {
		c.log.Error().Str("method", method).Str("path", path).Int64("limit", c.maxBytes).Msg("Upstream response too large")
		return retry.MarkPermanent(fmt.Errorf("%s %s: %w", method, path, ErrResponseTooLarge))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Code: resp.StatusCode, Message: errorMessage(raw)}
		c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("Upstream error response")
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.MarkPermanent(serr)
		}
		return serr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.MarkPermanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage pulls "message" or "error" out of an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

// normalizeDate trims an ISO timestamp down to its YYYY-MM-DD prefix.
func normalizeDate(s string) string {
	if len(s) > 10 && s[4] == '-' && s[7] == '-' {
		return s[:10]
	}
	return s
}
