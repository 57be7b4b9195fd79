package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/apperror"
	"github.com/stemsi/learntrack-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	VideoID   string   `json:"videoId" binding:"required"`
	WatchTime *float64 `json:"watchTime" binding:"omitempty,gte=0"`
}

func testContext(body string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c
}

func TestBind(t *testing.T) {
	Setup()

	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{name: "valid", body: `{"videoId":"v1","watchTime":3}`},
		{name: "unknown field ignored", body: `{"videoId":"v1","sdkVersion":"2.1"}`},
		{name: "missing required", body: `{}`, want: map[string]string{"videoId": "videoId is a required field"}},
		{name: "wrong type", body: `{"videoId":"v1","watchTime":"soon"}`, want: map[string]string{"watchTime": "must be a float64"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst sample
			assert.Equal(t, tt.want, Bind(testContext(tt.body), &dst))
		})
	}
}

func TestBindStrict(t *testing.T) {
	Setup()

	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{name: "valid", body: `{"videos":[{"videoId":"v1","watchTime":3}]}`},
		{name: "case-insensitive key", body: `{"Videos":[{"videoId":"v1"}]}`},
		{name: "derived field", body: `{"videos":[{"videoId":"v1"},{"videoId":"v2","bestScore":90}]}`, want: map[string]string{"videos[1].bestScore": "is not accepted"}},
		{name: "unknown top-level key", body: `{"videos":[],"overallProgress":100}`, want: map[string]string{"overallProgress": "is not accepted"}},
		{name: "missing list", body: `{}`, want: map[string]string{"videos": "videos is a required field"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst model.ApplyVideosRequest
			assert.Equal(t, tt.want, BindStrict(testContext(tt.body), &dst))
		})
	}
}

func TestBindSyntaxError(t *testing.T) {
	Setup()

	var dst sample
	fields := BindStrict(testContext(`{"videoId":`), &dst)
	require.Contains(t, fields, "detail")
}

func TestUnknownFieldSkipsCustomDecoders(t *testing.T) {
	type stamped struct {
		At time.Time `json:"at"`
	}
	assert.Empty(t, UnknownField([]byte(`{"at":"2026-01-01T00:00:00Z"}`), &stamped{}))
	assert.Equal(t, "extra", UnknownField([]byte(`{"at":"2026-01-01T00:00:00Z","extra":1}`), &stamped{}))
	assert.Empty(t, UnknownField([]byte(`not json`), &stamped{}))
}

func TestTranslateDomainError(t *testing.T) {
	fields := TranslateErrors(apperror.Invalid("watchTime", "must be finite"))
	assert.Equal(t, map[string]string{"watchTime": "must be finite"}, fields)
}
