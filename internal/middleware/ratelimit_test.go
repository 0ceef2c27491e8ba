package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterRejectsAfterBudget(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	h := rl.Middleware(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/collect", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodPost, "/api/v1/collect", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.allow("c"))
	require.False(t, rl.allow("c"))
	now = now.Add(time.Minute)
	assert.True(t, rl.allow("c"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()
	for i := 0; i < 10; i++ {
		assert.True(t, rl.allow("c"))
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:1234"
	assert.Equal(t, "192.168.1.5", ClientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientKey(req))
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(5)
	rl.Stop()
	rl.Stop()
}
