package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

type optionBody struct {
	Option string `json:"option" binding:"required,oneof=option1 option2 option3 option4"`
}

func paramOf(t *testing.T, raw string) (string, map[string]string) {
	t.Helper()
	var (
		value  string
		fields map[string]string
	)
	r := gin.New()
	r.GET("/q/:question_id", func(c *gin.Context) {
		value, fields = Param(c, "question_id")
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/q/"+raw, nil))
	return value, fields
}

func TestParam(t *testing.T) {
	value, fields := paramOf(t, "c1-q7")
	assert.Nil(t, fields)
	assert.Equal(t, "c1-q7", value)

	_, fields = paramOf(t, strings.Repeat("q", 65))
	assert.Contains(t, fields, "question_id")

	_, fields = paramOf(t, "has%20space")
	assert.Contains(t, fields, "question_id")
}

func TestBind_TranslatesUsingJSONNames(t *testing.T) {
	var fields map[string]string
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var body optionBody
		fields = Bind(c, &body)
	})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"option":"option9"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if assert.Contains(t, fields, "option") {
		assert.Contains(t, fields["option"], "option1 option2 option3 option4")
	}
}

func TestTranslateErrors_NonValidationError(t *testing.T) {
	fields := TranslateErrors(assert.AnError)
	assert.Equal(t, assert.AnError.Error(), fields["detail"])
}
