package log

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the server goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func decodeLines(t *testing.T, buf fmt.Stringer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestHTTPMiddlewareLogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Output: &buf})

	h := HTTPMiddleware(logger, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := Ctx(r.Context())
		l.Info().Msg("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set(headerRequestID, "req-1")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(headerRequestID))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
	assert.Equal(t, "request completed", lines[1]["message"])
	assert.Equal(t, float64(http.StatusTeapot), lines[1][FieldStatus])
	assert.Equal(t, "203.0.113.9", lines[1][FieldClientIP])
}

func TestHTTPMiddlewareQuietPath(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Output: &buf})

	h := HTTPMiddleware(logger, "/health")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, buf.String())
}

func TestHTTPMiddlewareRecordsUpgrade(t *testing.T) {
	var buf syncBuffer
	logger := New(Config{Level: "info", Output: &buf})

	h := HTTPMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, rw, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		rw.WriteString("HTTP/1.1 101 Switching Protocols\r\n\r\n")
		rw.Flush()
	}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, err := net.Dial("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /ws HTTP/1.1\r\nHost: relay\r\n\r\n"))
	require.NoError(t, err)

	status, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "101")

	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "connection upgraded") }, time.Second, 5*time.Millisecond)
	lines := decodeLines(t, &buf)
	assert.Equal(t, float64(http.StatusSwitchingProtocols), lines[len(lines)-1][FieldStatus])
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded for", header: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, remote: "10.0.0.1:5000", want: "198.51.100.1"},
		{name: "real ip", header: map[string]string{"X-Real-IP": " 198.51.100.2 "}, remote: "10.0.0.1:5000", want: "198.51.100.2"},
		{name: "remote addr", remote: "192.0.2.7:443", want: "192.0.2.7"},
		{name: "remote without port", remote: "192.0.2.8", want: "192.0.2.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}
