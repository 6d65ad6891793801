package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBrotli_CompressesLargeBodies(t *testing.T) {
	large := strings.Repeat("exam ", 1000)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	body, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, large, string(body))

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRateLimiter_RefillsPerInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 2, time.Minute)
	now := time.Now()

	assert.True(t, rl.allow("student:s1", now))
	assert.True(t, rl.allow("student:s1", now))
	assert.False(t, rl.allow("student:s1", now))
	assert.True(t, rl.allow("student:s2", now))

	assert.True(t, rl.allow("student:s1", now.Add(time.Minute)))
}

func TestRequireStudentJWT(t *testing.T) {
	auth := service.NewAuthService("test-secret")
	token, err := auth.IssueStudentToken("s42", time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueStudentToken("s42", -time.Minute)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireStudentJWT(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).StudentID)
	})

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "s42"},
		{"missing", "", http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestRequestLogger_TagsRequestAndStudent(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	auth := service.NewAuthService("test-secret")
	token, err := auth.IssueStudentToken("s-42", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(response.RequestIDMiddleware(), RequestLogger(log))
	r.GET("/me", RequireStudentJWT(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "shell-retry-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "shell-retry-7", rec.Header().Get("X-Request-ID"))
	line := buf.String()
	assert.Contains(t, line, `"request_id":"shell-retry-7"`)
	assert.Contains(t, line, `"student_id":"s-42"`)
	assert.Contains(t, line, `"status":204`)
	assert.Contains(t, line, `"path":"/me"`)
}

func TestRequestID_ReplacesImplausibleHeader(t *testing.T) {
	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	assert.Len(t, got, 36)
}
