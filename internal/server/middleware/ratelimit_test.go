package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/pkg/api"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, discardLogger())
	defer rl.Stop()

	for i := range 3 {
		assert.True(t, rl.Allow("k"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"), "keys are limited independently")
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Second, discardLogger())
	defer rl.Stop()

	now := time.Now()
	assert.True(t, rl.allowAt("k", now))
	assert.False(t, rl.allowAt("k", now.Add(500*time.Millisecond)))
	assert.True(t, rl.allowAt("k", now.Add(time.Second)))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Second, discardLogger())
	defer rl.Stop()

	now := time.Now()
	rl.allowAt("old", now)
	rl.allowAt("fresh", now.Add(3*time.Second))

	rl.cleanupOldBuckets(now.Add(3 * time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.buckets, "old")
	assert.Contains(t, rl.buckets, "fresh")
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Second, discardLogger())
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, discardLogger())
	defer rl.Stop()

	router := mux.NewRouter()
	router.Handle("/api/v1/boards/{boardID}/operations",
		rl.Middleware(ClientBoardKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	send := func(board string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/boards/"+board+"/operations", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("a").Code)
	assert.Equal(t, http.StatusOK, send("a").Code)

	limited := send("a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))

	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&resp))
	assert.Equal(t, "rate limit exceeded", resp.Error)

	assert.Equal(t, http.StatusOK, send("b").Code, "another board has its own budget")
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		headers  map[string]string
		name     string
		remote   string
		expected string
	}{
		{name: "remote addr", remote: "192.168.1.1:1234", expected: "192.168.1.1:1234"},
		{name: "x-forwarded-for first entry", remote: "10.0.0.1:1", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 70.41.3.18"}, expected: "203.0.113.5"},
		{name: "x-real-ip", remote: "10.0.0.1:1", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, expected: "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, "1", retryAfter(100*time.Millisecond))
	assert.Equal(t, "30", retryAfter(30*time.Second))
}
