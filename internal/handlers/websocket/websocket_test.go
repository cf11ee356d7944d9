package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ses-portal/internal/domain/auth"
	wstypes "ses-portal/internal/domain/websocket"
	"ses-portal/internal/pkg/session"
	ws "ses-portal/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startServer(t *testing.T, appOrigin string, sess *session.SessionData) (*ws.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	h := NewWebSocketHandler(hub, appOrigin, zap.NewNop())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if sess != nil {
			c.Set("session", sess)
		}
		c.Next()
	}, h.HandleConnection)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) *wstypes.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := wstypes.ParseMessage(data)
	require.NoError(t, err)
	return msg
}

func userSession(trackingID string) *session.SessionData {
	return &session.SessionData{
		ID:         "secret-cookie-value",
		TrackingID: trackingID,
		UserID:     42,
		ActiveRole: &session.ActiveRole{RoleID: auth.RoleMunicipalManager},
	}
}

func TestConnectedMessageNeverLeaksCookie(t *testing.T) {
	_, url := startServer(t, "", userSession("01J0000000000000000000TRK1"))
	conn := dial(t, url)

	msg := read(t, conn)
	assert.Equal(t, wstypes.EventTypeConnected, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "01J0000000000000000000TRK1", data["tracking_id"])
	assert.EqualValues(t, 42, data["user_id"])
	assert.NotContains(t, data, "session_id")
}

func TestSessionEndedTargetsOneSession(t *testing.T) {
	hub, url := startServer(t, "", userSession("TRK-A"))
	conn := dial(t, url)
	read(t, conn)

	hub.SessionEnded(42, "TRK-OTHER", "logout")
	hub.SessionEnded(42, "TRK-A", "expired")

	msg := read(t, conn)
	assert.Equal(t, wstypes.EventTypeSessionEnded, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "TRK-A", data["tracking_id"])
	assert.Equal(t, "expired", data["reason"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Eventually(t, func() bool { return !hub.IsUserConnected(42) }, 2*time.Second, 10*time.Millisecond)
}

func TestForceLogoutReachesEveryConnection(t *testing.T) {
	hub, url := startServer(t, "", userSession("TRK-A"))
	first := dial(t, url)
	second := dial(t, url)
	read(t, first)
	read(t, second)
	require.Equal(t, 2, hub.GetConnectedClients(42))

	hub.ForceLogout(42, "force_logout")

	for _, conn := range []*websocket.Conn{first, second} {
		msg := read(t, conn)
		assert.Equal(t, wstypes.EventTypeForceLogout, msg.Type)
	}
	assert.Eventually(t, func() bool { return hub.TotalClients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPingAndSubscriptions(t *testing.T) {
	_, url := startServer(t, "", userSession("TRK-A"))
	conn := dial(t, url)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypePing, nil)))
	assert.Equal(t, wstypes.EventTypePong, read(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wstypes.NewMessage(wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelSystem, "audit"},
	})))
	msg := read(t, conn)
	assert.Equal(t, wstypes.EventTypeSubscribe, msg.Type)
	assert.Equal(t, []interface{}{"system"}, msg.Data.(map[string]interface{})["channels"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, wstypes.EventTypeError, read(t, conn).Type)
}

func TestUpgradeRequiresSession(t *testing.T) {
	_, url := startServer(t, "", nil)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpgradeChecksOrigin(t *testing.T) {
	_, url := startServer(t, "https://portal.saude.pe.gov.br", userSession("TRK-A"))

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://portal.saude.pe.gov.br"}})
	require.NoError(t, err)
	conn.Close()
}
