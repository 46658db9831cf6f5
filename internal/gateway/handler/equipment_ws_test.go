package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydrodiag/internal/diagnosis"
	llmclient "hydrodiag/internal/llmClient"
)

func equipmentWSURL(t *testing.T, h *EquipmentHandler) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialEquipmentWS(t *testing.T, h *EquipmentHandler) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(equipmentWSURL(t, h), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) equipmentWSOutbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out equipmentWSOutbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestEquipmentWS_Conversation(t *testing.T) {
	conn := dialEquipmentWS(t, newEquipmentHandler(llmclient.NewFakeClient()))

	assert.Equal(t, "ready", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "ping"}))
	assert.Equal(t, "pong", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "message", Message: "EC meter reads zero"}))
	first := readWS(t, conn)
	require.Equal(t, "turn", first.Type, first.Message)
	require.NotNil(t, first.Turn)
	assert.Equal(t, diagnosis.StageInProgress, first.Turn.Stage)
	sessionID := first.SessionID
	require.NotEmpty(t, sessionID)

	// Later messages continue the same session without naming it.
	var last equipmentWSOutbound
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "message", Message: "still zero"}))
		last = readWS(t, conn)
		require.Equal(t, "turn", last.Type, last.Message)
	}
	assert.Equal(t, sessionID, last.SessionID)
	assert.Equal(t, diagnosis.StageComplete, last.Turn.Stage)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "new"}))
	assert.Equal(t, "ready", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "message", Message: "new problem"}))
	fresh := readWS(t, conn)
	require.Equal(t, "turn", fresh.Type, fresh.Message)
	assert.NotEqual(t, sessionID, fresh.SessionID)
}

func TestEquipmentWS_Errors(t *testing.T) {
	conn := dialEquipmentWS(t, newEquipmentHandler(llmclient.NewFakeClient()))
	assert.Equal(t, "ready", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "dance"}))
	out := readWS(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "validation", out.Code)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "message", Message: "hi", SessionID: "missing"}))
	out = readWS(t, conn)
	assert.Equal(t, "error", out.Type)
	assert.Equal(t, "session_not_found", out.Code)

	require.NoError(t, conn.WriteJSON(equipmentWSInbound{Type: "message", Message: " "}))
	out = readWS(t, conn)
	assert.Equal(t, "validation", out.Code)
}

func TestEquipmentWS_Origin(t *testing.T) {
	url := equipmentWSURL(t, newEquipmentHandler(llmclient.NewFakeClient()))

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://app.example.com"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "ready", readWS(t, conn).Type)
}

func TestEquipmentWS_OversizedFrameClosesConnection(t *testing.T) {
	h := newEquipmentHandler(llmclient.NewFakeClient())
	h.wsReadLimit = 1024
	conn := dialEquipmentWS(t, h)
	assert.Equal(t, "ready", readWS(t, conn).Type)

	big := `{"type":"message","message":"` + strings.Repeat("a", 4096) + `"}`
	_ = conn.WriteMessage(websocket.TextMessage, []byte(big))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out equipmentWSOutbound
	err := conn.ReadJSON(&out)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseMessageTooBig) || !strings.Contains(err.Error(), "timeout"), err.Error())
}
