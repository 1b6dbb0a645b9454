package hub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"consultd/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger("hub-test", logging.ERROR, &bytes.Buffer{})
}

func TestRegisterUnregister_TracksClientCount(t *testing.T) {
	h := New(testLogger())
	require.Equal(t, 0, h.ClientCount())

	srv, client := dial(t, h, "secret", "secret", "webui")
	defer srv.Close()
	defer client.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	client.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestUpgradeHandler_RejectsBadToken(t *testing.T) {
	h := New(testLogger())
	srv := httptest.NewServer(h.UpgradeHandler("secret"))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=wrong"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestBroadcast_DeliversToConnectedClients(t *testing.T) {
	h := New(testLogger())
	srv, client := dial(t, h, "secret", "secret", "proxy")
	defer srv.Close()
	defer client.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Broadcast("conversation:created", map[string]string{"id": "conv-1"})

	_, data, err := readSkippingClientsCount(client)
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "conversation:created", ev.Type)
}

func TestRPC_DispatchesRegisteredHandler(t *testing.T) {
	h := New(testLogger())
	h.Handle("echo", func(c *Client, params json.RawMessage) (any, error) {
		var p map[string]string
		json.Unmarshal(params, &p)
		return p, nil
	})

	srv, client := dial(t, h, "secret", "secret", "webui")
	defer srv.Close()
	defer client.Close()

	require.NoError(t, client.WriteJSON(map[string]any{
		"id": "req-1", "op": "echo", "params": map[string]string{"hello": "world"},
	}))

	_, data, err := readSkippingClientsCount(client)
	require.NoError(t, err)

	var ack rpcAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.Equal(t, "req-1", ack.ID)
	require.True(t, ack.Success)
}

func TestRPC_UnknownOperation(t *testing.T) {
	h := New(testLogger())
	srv, client := dial(t, h, "secret", "secret", "webui")
	defer srv.Close()
	defer client.Close()

	require.NoError(t, client.WriteJSON(map[string]any{"id": "req-2", "op": "nope"}))

	_, data, err := readSkippingClientsCount(client)
	require.NoError(t, err)

	var ack rpcAck
	require.NoError(t, json.Unmarshal(data, &ack))
	require.False(t, ack.Success)
	require.Contains(t, ack.Error, "unknown operation")
}

// readSkippingClientsCount reads the next frame that is not a clients:count
// event; the hub broadcasts that count to every client on each connect.
func readSkippingClientsCount(conn *websocket.Conn) (int, []byte, error) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return mt, data, err
		}
		var ev Event
		if json.Unmarshal(data, &ev) == nil && ev.Type == "clients:count" {
			continue
		}
		return mt, data, nil
	}
}

func dial(t *testing.T, h *Hub, token, presented, kind string) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	srv := httptest.NewServer(h.UpgradeHandler(token))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + presented + "&kind=" + kind
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return srv, conn
}
