package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"x-api-key", map[string]string{"x-api-key": "k1"}, "k1"},
		{"bearer", map[string]string{"Authorization": "Bearer k2"}, "k2"},
		{"x-api-key wins", map[string]string{"x-api-key": "k1", "Authorization": "Bearer k2"}, "k1"},
		{"basic auth ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "/v1/generate/text", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			if got := credential(c); got != tt.want {
				t.Errorf("credential() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		reset time.Time
		want  string
	}{
		{now.Add(30 * time.Second), "30"},
		{now.Add(1500 * time.Millisecond), "2"},
		{now.Add(-time.Second), "1"},
		{now, "1"},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.reset, now); got != tt.want {
			t.Errorf("retryAfter(%v) = %s, want %s", tt.reset.Sub(now), got, tt.want)
		}
	}
}

func TestCallerFrom_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if caller := callerFrom(c); caller.ID != "" || caller.IsAdmin() {
		t.Errorf("Expected zero caller, got %+v", caller)
	}
}
