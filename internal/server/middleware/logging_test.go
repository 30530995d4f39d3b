package middleware

import (
	"bufio"
	"bytes"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		expectedLevel  string
		expectedStatus string
	}{
		{name: "ok is info", statusCode: http.StatusOK, expectedLevel: "level=INFO", expectedStatus: "status=200"},
		{name: "conflict is warn", statusCode: http.StatusConflict, expectedLevel: "level=WARN", expectedStatus: "status=409"},
		{name: "server error is error", statusCode: http.StatusInternalServerError, expectedLevel: "level=ERROR", expectedStatus: "status=500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			router := mux.NewRouter()
			router.Use(LoggingMiddleware(bufferLogger(&buf)))
			router.HandleFunc("/api/v1/boards/{boardID}/operations", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte("body"))
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/boards/team-7/operations", nil))

			out := buf.String()
			assert.Equal(t, tt.statusCode, w.Code)
			assert.Contains(t, out, tt.expectedLevel)
			assert.Contains(t, out, tt.expectedStatus)
			assert.Contains(t, out, "board_id=team-7")
			assert.Contains(t, out, "route=/api/v1/boards/{boardID}/operations")
			assert.Contains(t, out, "bytes_written=4")
		})
	}
}

func TestLoggingMiddleware_OutsideRouter(t *testing.T) {
	var buf bytes.Buffer
	handler := LoggingMiddleware(bufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/whatever", nil))

	out := buf.String()
	assert.Contains(t, out, "route=unmatched")
	assert.NotContains(t, out, "board_id")
}

func TestLoggingWithSkip(t *testing.T) {
	var buf bytes.Buffer
	handler := LoggingWithSkip(bufferLogger(&buf), []string{"/metrics"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Empty(t, buf.String())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Contains(t, buf.String(), "path=/api/v1/health")
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriter_Hijack(t *testing.T) {
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := wrap(rec)

	_, _, err := rw.Hijack()
	require.NoError(t, err)
	assert.True(t, rec.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, rw.statusCode)

	plain := wrap(httptest.NewRecorder())
	_, _, err = plain.Hijack()
	assert.Error(t, err)
}

func TestWrap_ReusesWrapper(t *testing.T) {
	rw := wrap(httptest.NewRecorder())
	assert.Same(t, rw, wrap(rw))
}
