package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	InitLogger(buf, false, level)
	t.Cleanup(func() { InitLogger(&bytes.Buffer{}, false, "info") })
	return buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestHelpers_WriteFields(t *testing.T) {
	req := require.New(t)
	buf := captureLogs(t, "debug")

	Info("User authenticated.", "user_id", "A")
	Error(errors.New("boom"), "Store failed", "message_id", "m1")

	lines := decodeLines(t, buf)
	req.Len(lines, 2)
	req.Equal("info", lines[0]["level"])
	req.Equal("A", lines[0]["user_id"])
	req.Equal("error", lines[1]["level"])
	req.Equal("boom", lines[1]["error"])
	req.Equal("m1", lines[1]["message_id"])
}

func TestHelpers_OddFieldsAreDropped(t *testing.T) {
	req := require.New(t)
	buf := captureLogs(t, "debug")

	Warn("Half a pair", "orphan")

	lines := decodeLines(t, buf)
	req.Len(lines, 2)
	req.Equal("warn", lines[1]["level"])
	req.NotContains(lines[1], "orphan")
}

func TestInitLogger_Level(t *testing.T) {
	buf := captureLogs(t, "warn")

	Info("hidden")
	Debug("hidden too")
	Warn("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	require.Equal(t, "shown", lines[0]["message"])
}

func TestComponent(t *testing.T) {
	buf := captureLogs(t, "info")

	logger := Component("Relay")
	logger.Info().Msg("hello")

	lines := decodeLines(t, buf)
	require.Equal(t, "Relay", lines[0]["component"])
}

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.77", "203.0.113.0"},
		{"203.0.113.77:5050", "203.0.113.0"},
		{"2001:db8:1:2:3:4:5:6", "2001:db8:1:2::"},
		{"[2001:db8:1:2:3:4:5:6]:443", "2001:db8:1:2::"},
		{"127.0.0.1", "127.0.0.1"},
		{"::1", "::1"},
		{"garbage", "unknown_ip"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, AnonymizeIP(tc.in), "input %q", tc.in)
	}
}

func TestRequestLogger(t *testing.T) {
	req := require.New(t)
	buf := captureLogs(t, "info")

	h := middleware.RequestID(RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})))

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "198.51.100.23:4444"
	h.ServeHTTP(httptest.NewRecorder(), r)

	lines := decodeLines(t, buf)
	req.Len(lines, 1)
	req.Equal("warn", lines[0]["level"])
	req.Equal(float64(http.StatusTooManyRequests), lines[0]["status"])
	req.Equal("198.51.100.0", lines[0]["remote_ip"])
	req.NotEmpty(lines[0]["request_id"])
}
