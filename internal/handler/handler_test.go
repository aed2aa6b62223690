package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylxai/Hafiportrait-sub001/internal/config"
	"github.com/ylxai/Hafiportrait-sub001/internal/domain"
	"github.com/ylxai/Hafiportrait-sub001/internal/relay"
	"github.com/ylxai/Hafiportrait-sub001/internal/service"
	pkglog "github.com/ylxai/Hafiportrait-sub001/pkg/log"
)

func TestMain(m *testing.M) {
	pkglog.SetGlobal(zerolog.Nop())
	os.Exit(m.Run())
}

type wireFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func testConfig(origins ...string) *config.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &config.Config{
		Server: config.ServerConfig{Version: "1.0.0", InstanceID: "relay-test"},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			PingInterval:   time.Second,
			PongWait:       2 * time.Second,
			WriteWait:      time.Second,
			MaxMessageSize: 1 << 16,
			SendBuffer:     16,
		},
		CORS: config.CORSConfig{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

type testServer struct {
	*httptest.Server
	wsURL string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()

	r := relay.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	svc := service.NewRelayService(r, nil, nil)
	router := NewRouter(cfg,
		NewWSHandler(svc, cfg.WebSocket, cfg.CORS.AllowedOrigins),
		NewHTTPHandler(svc, cfg.Server.Version, cfg.Server.InstanceID),
		zerolog.Nop(),
	)
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return &testServer{
		Server: srv,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.WebSocket.Path,
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (s *testServer) health(t *testing.T) HealthResponse {
	t.Helper()
	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	return h
}

func (s *testServer) stats(t *testing.T) StatsResponse {
	t.Helper()
	resp, err := http.Get(s.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	return stats
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, err := domain.EncodeFrame(msgType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func read(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var f wireFrame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, raw, err := conn.ReadMessage()
	assert.Error(t, err, "unexpected frame %s", raw)
}

func TestHealthCountsConnections(t *testing.T) {
	srv := newTestServer(t, testConfig())

	a := srv.dial(t)
	srv.dial(t)
	srv.dial(t)

	require.Eventually(t, func() bool { return srv.health(t).Connections == 3 }, 2*time.Second, 10*time.Millisecond)

	h := srv.health(t)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.0.0", h.Version)
	assert.NotEmpty(t, h.Timestamp)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	a.Close()

	assert.Eventually(t, func() bool { return srv.health(t).Connections == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestAdminSeesUploadFromLoneEventMember(t *testing.T) {
	srv := newTestServer(t, testConfig())
	a := srv.dial(t)
	b := srv.dial(t)

	send(t, a, domain.MsgTypeJoinEvent, 7)
	ack := read(t, a)
	assert.Equal(t, domain.MsgTypeJoinedEvent, ack.Type)
	assert.Equal(t, float64(7), ack.Data["eventId"])

	send(t, b, domain.MsgTypeJoinAdmin, nil)
	stats := read(t, b)
	assert.Equal(t, domain.MsgTypeAdminStats, stats.Type)
	assert.Equal(t, float64(2), stats.Data["totalConnections"])

	send(t, a, domain.MsgTypePhotoUploaded, map[string]any{"eventId": 7, "fileName": "x.jpg"})

	note := read(t, b)
	assert.Equal(t, domain.MsgTypeAdminNotification, note.Type)
	assert.Equal(t, float64(7), note.Data["eventId"])
	assert.Equal(t, "New photo uploaded: x.jpg", note.Data["message"])

	expectSilence(t, b)
	expectSilence(t, a)
}

func TestEventPeerReceivesNewPhoto(t *testing.T) {
	srv := newTestServer(t, testConfig())
	a := srv.dial(t)
	c := srv.dial(t)

	send(t, a, domain.MsgTypeJoinEvent, 7)
	read(t, a)
	send(t, c, domain.MsgTypeJoinEvent, 7)
	read(t, c)

	send(t, a, domain.MsgTypePhotoUploaded, map[string]any{"eventId": 7, "fileName": "y.jpg"})

	photo := read(t, c)
	assert.Equal(t, domain.MsgTypeNewPhoto, photo.Type)
	assert.Equal(t, "y.jpg", photo.Data["fileName"])
	ts, ok := photo.Data["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(domain.TimestampLayout, ts)
	assert.NoError(t, err)

	expectSilence(t, a)
}

func TestPingPong(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := srv.dial(t)

	send(t, conn, domain.MsgTypePing, nil)
	assert.Equal(t, domain.MsgTypePong, read(t, conn).Type)
}

func TestMalformedFrameClosesConnection(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := srv.dial(t)
	srv.dial(t)

	require.Eventually(t, func() bool { return srv.health(t).Connections == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Eventually(t, func() bool { return srv.health(t).Connections == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginCheck(t *testing.T) {
	srv := newTestServer(t, testConfig("https://hafiportrait.photography"))

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://hafiportrait.photography"}}
	conn, _, err := websocket.DefaultDialer.Dial(srv.wsURL, header)
	require.NoError(t, err)
	conn.Close()

	// Non-browser clients send no Origin.
	conn, _, err = websocket.DefaultDialer.Dial(srv.wsURL, nil)
	require.NoError(t, err)
	conn.Close()
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := srv.dial(t)
	send(t, conn, domain.MsgTypeJoinEvent, "wedding-12")
	read(t, conn)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, map[string]int{"event-wedding-12": 1}, stats.Rooms)
	assert.Equal(t, "relay-test", stats.InstanceID)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, testConfig("https://hafiportrait.photography"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://hafiportrait.photography")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://hafiportrait.photography", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig())
	srv.dial(t)

	require.Eventually(t, func() bool { return srv.health(t).Connections == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandshakeRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{HandshakeRequests: 1, Window: time.Minute}
	srv := newTestServer(t, cfg)

	srv.dial(t)

	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Plain HTTP endpoints are not limited.
	assert.Equal(t, "ok", srv.health(t).Status)
}

func TestSilentClientIsDroppedAfterPongWait(t *testing.T) {
	cfg := testConfig()
	srv := newTestServer(t, cfg)
	conn := srv.dial(t)

	// The dialer answers pings only while reading; this client never reads.
	send(t, conn, domain.MsgTypeJoinEvent, 7)

	require.Eventually(t, func() bool {
		return srv.stats(t).Rooms["event-7"] == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), srv.health(t).Connections)

	assert.Eventually(t, func() bool {
		return srv.health(t).Connections == 0
	}, cfg.WebSocket.PongWait+2*time.Second, 50*time.Millisecond)
	assert.Empty(t, srv.stats(t).Rooms)
}

func TestJoinAdminWithNonObjectData(t *testing.T) {
	srv := newTestServer(t, testConfig())
	conn := srv.dial(t)

	send(t, conn, domain.MsgTypeJoinAdmin, "not-an-object")

	stats := read(t, conn)
	assert.Equal(t, domain.MsgTypeAdminStats, stats.Type)
	assert.Equal(t, map[string]int{domain.AdminRoom: 1}, srv.stats(t).Rooms)
}
