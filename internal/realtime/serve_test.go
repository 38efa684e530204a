package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/config"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "realtime-test-secret"

func newServer(t *testing.T, origins []string) (*httptest.Server, *harness) {
	t.Helper()
	h := newHarness(t)
	cfg := &config.AppConfig{JWTSecret: testSecret, WSAllowedOrigins: origins}
	handler := NewHandler(h.hub, h.dispatcher, auth.NewTokenVerifier(cfg), cfg, zaptest.NewLogger(t))

	e := echo.New()
	e.GET("/ws", handler.Serve)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, h
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func token(t *testing.T, p auth.Principal) string {
	tok, err := auth.GenerateJWT(testSecret, p, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	srv, _ := newServer(t, []string{"*"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeRejectsUnknownOrigin(t *testing.T) {
	srv, _ := newServer(t, []string{"https://fly8.global"})

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, student))
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestJoinOverWebsocket(t *testing.T) {
	srv, h := newServer(t, []string{"*"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token(t, student), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": ClientJoin, "data": "s1"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var got frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventUserOnline, got.Event)
	assert.Eventually(t, func() bool { return h.hub.Online("s1") }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, EventError, got.Event)

	conn.Close()
	assert.Eventually(t, func() bool { return !h.hub.Online("s1") }, time.Second, 10*time.Millisecond)
}
