package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northlane/livechat-server/internal/model"
)

type staticAuth map[string]*model.AdminSession

func (a staticAuth) Authenticate(_ context.Context, token string) (*model.AdminSession, error) {
	return a[token], nil
}

func newTestServer(t *testing.T, cfg ServerConfig) (*httptest.Server, *harness) {
	t.Helper()
	h := newHarness()
	auth := staticAuth{"good-token": {ID: "a1", DisplayName: "Dana"}}
	srv := NewServer(h.handler, auth, cfg)

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return ts, h
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat?" + query
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if assert.ErrorAs(t, err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RejectsBeforeUpgrade(t *testing.T) {
	ts, _ := newTestServer(t, ServerConfig{})

	cases := []struct {
		name   string
		query  string
		header http.Header
		status int
	}{
		{"missing type", "visitorId=v1", nil, http.StatusBadRequest},
		{"unknown type", "type=robot", nil, http.StatusBadRequest},
		{"visitor without id", "type=visitor", nil, http.StatusBadRequest},
		{"visitor with bad id", "type=visitor&visitorId=a%20b", nil, http.StatusBadRequest},
		{"admin without token", "type=admin", nil, http.StatusUnauthorized},
		{"admin with bad token", "type=admin", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tc.query), tc.header)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestServer_CheckOrigin(t *testing.T) {
	ts, _ := newTestServer(t, ServerConfig{AllowedOrigins: []string{"https://agency.example"}})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "type=visitor&visitorId=v1"), http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, wsURL(ts, "type=visitor&visitorId=v1"), http.Header{"Origin": {"https://agency.example"}})
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing}))
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestServer_EndToEndScenario(t *testing.T) {
	ts, h := newTestServer(t, ServerConfig{})

	admin := dial(t, wsURL(ts, "type=admin"), http.Header{"Authorization": {"Bearer good-token"}})
	require.NoError(t, admin.WriteJSON(map[string]any{"type": TypeAdminJoin}))
	waitFor(t, func() bool { return h.registry.AdminCount() == 1 })

	visitor := dial(t, wsURL(ts, "type=visitor&visitorId=v1"), nil)
	require.NoError(t, visitor.WriteJSON(map[string]any{"type": TypeVisitorStart, "visitorName": "Ada"}))
	started := readFrame(t, visitor)
	require.Equal(t, TypeSessionStarted, started.Type)
	assert.Empty(t, started.Messages)
	s1 := started.Session.ID

	require.NoError(t, visitor.WriteJSON(map[string]any{"type": TypeVisitorMessage, "message": "hello", "tempId": "t1"}))
	sent := readFrame(t, visitor)
	assert.Equal(t, TypeMessageSent, sent.Type)
	assert.Equal(t, "t1", sent.TempID)

	incoming := readFrame(t, admin)
	assert.Equal(t, TypeNewMessage, incoming.Type)
	assert.Equal(t, s1, incoming.Message.SessionID)
	assert.Equal(t, "Ada", *incoming.Message.SenderName)

	require.NoError(t, admin.WriteJSON(map[string]any{"type": TypeAdminMessage, "sessionId": s1, "message": "hi there"}))
	assert.Equal(t, TypeMessageSent, readFrame(t, admin).Type)
	reply := readFrame(t, visitor)
	assert.Equal(t, TypeNewMessage, reply.Type)
	assert.Equal(t, "hi there", reply.Message.Message)
	assert.Equal(t, "Dana", *reply.Message.SenderName)

	require.NoError(t, admin.WriteJSON(map[string]any{"type": TypeCloseSession, "sessionId": s1}))
	assert.Equal(t, TypeSessionClosed, readFrame(t, admin).Type)
	assert.Equal(t, TypeSessionClosed, readFrame(t, visitor).Type)

	require.NoError(t, visitor.WriteJSON(map[string]any{"type": TypeVisitorMessage, "message": "still there?"}))
	expectSilence(t, visitor)
	expectSilence(t, admin)
}

func TestServer_DisconnectUnregisters(t *testing.T) {
	ts, h := newTestServer(t, ServerConfig{})

	visitor := dial(t, wsURL(ts, "type=visitor&visitorId=v1"), nil)
	require.NoError(t, visitor.WriteJSON(map[string]any{"type": TypeVisitorStart}))
	started := readFrame(t, visitor)

	_, ok := h.registry.LookupBySession(started.Session.ID)
	require.True(t, ok)

	visitor.Close()
	waitFor(t, func() bool {
		_, ok := h.registry.LookupBySession(started.Session.ID)
		return !ok
	})
}

func TestServer_MalformedFrameKeepsConnection(t *testing.T) {
	ts, _ := newTestServer(t, ServerConfig{})

	conn := dial(t, wsURL(ts, "type=visitor&visitorId=v1"), nil)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing}))

	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestServer_FrameRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, ServerConfig{FrameRate: 0.001, FrameBurst: 2})

	conn := dial(t, wsURL(ts, "type=visitor&visitorId=v1"), nil)
	for i := 0; i < 4; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing}))
	}

	assert.Equal(t, TypePong, readFrame(t, conn).Type)
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
	expectSilence(t, conn)
}

func TestServer_ShutdownClosesSockets(t *testing.T) {
	h := newHarness()
	srv := NewServer(h.handler, staticAuth{}, ServerConfig{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dial(t, wsURL(ts, "type=visitor&visitorId=v1"), nil)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing}))
	readFrame(t, conn)

	srv.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
