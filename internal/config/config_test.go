package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXAM_DURATION_SECONDS", "")
	t.Setenv("RETRY_MAX_ATTEMPTS", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")

	cfg := Load()

	assert.Equal(t, 7200*time.Second, cfg.ExamDuration)
	assert.Equal(t, 150*time.Minute, cfg.ExamWindow)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 600*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 2, cfg.MalpracticeWarnLimit)
	assert.Equal(t, 3, cfg.MalpracticeTotalLimit)
	assert.Equal(t, "Asia/Kolkata", cfg.ExamTimezone)
	assert.Equal(t, 240, cfg.RateLimitPerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EXAM_DURATION_SECONDS", "60")
	t.Setenv("RETRY_BASE_DELAY_MS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, time.Minute, cfg.ExamDuration)
	assert.Equal(t, 600*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "student:s1:course:c9:answers_cache", CacheKey.AnswerCacheKey("s1", "c9"))
	assert.Equal(t, "student:s1:exam_status", CacheKey.ExamStatusKey("s1"))
}
