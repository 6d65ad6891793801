package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AnswerCacheKey returns the cache key for a student's in-progress answers on a course.
func (r *CacheKeyStruct) AnswerCacheKey(studentID, courseID string) string {
	return fmt.Sprintf("student:%s:course:%s:answers_cache", studentID, courseID)
}

// ExamStatusKey returns the hash key holding display statuses for a student's courses.
func (r *CacheKeyStruct) ExamStatusKey(studentID string) string {
	return fmt.Sprintf("student:%s:exam_status", studentID)
}

var CacheKey = NewCacheKeyStruct()
