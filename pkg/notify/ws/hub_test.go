package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/promoflow/pkg/events"
	"github.com/dukex/promoflow/pkg/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server, workflowID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?workflow_id=" + workflowID

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestHub_BroadcastToRoom(t *testing.T) {
	hub := NewHub(log.Discard(), nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	first := dial(t, server, "wf-1")
	other := dial(t, server, "wf-2")

	require.Eventually(t, func() bool {
		return hub.RoomSize("wf-1") == 1 && hub.RoomSize("wf-2") == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Handle(context.Background(), events.NewProgress("wf-1", "analysis", 10, "Analyzing product")))

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := first.ReadMessage()
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "progress", payload["type"])
	assert.Equal(t, "wf-1", payload["workflow_id"])
	assert.InDelta(t, 10, payload["percentage"], 0)

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err, "clients of other rooms receive nothing")
}

func TestHub_LeavesRoomOnClose(t *testing.T) {
	hub := NewHub(log.Discard(), nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "wf-1")

	require.Eventually(t, func() bool { return hub.RoomSize("wf-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))

	assert.Eventually(t, func() bool { return hub.RoomSize("wf-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RequiresWorkflowID(t *testing.T) {
	hub := NewHub(log.Discard(), nil)

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHub_BroadcastWithoutRoom(t *testing.T) {
	hub := NewHub(log.Discard(), nil)

	assert.NoError(t, hub.Broadcast(context.Background(), events.NewThought("nobody", "plan", "x")))
}
