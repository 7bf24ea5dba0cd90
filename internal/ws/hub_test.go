package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewConn(ws, hub, "u-test")
		hub.Register(conn)
		go conn.WritePump()
		go conn.ReadPump()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func readMessage(t *testing.T, client *websocket.Conn) map[string]interface{} {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := client.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := dialTestHub(t, hub)

	require.NoError(t, client.WriteJSON(map[string]interface{}{
		"type":    "subscribe",
		"channel": "activity",
	}))

	ack := readMessage(t, client)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, "subscribed", ack["ack"])
	assert.Equal(t, "activity", ack["channel"])

	hub.Publish("activity", map[string]interface{}{"type": "request.created", "requestId": "r-1"})

	event := readMessage(t, client)
	assert.Equal(t, "event", event["type"])
	assert.Equal(t, "activity", event["channel"])
	data, ok := event["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "r-1", data["requestId"])
}

func TestHubUnsubscribedGetsNothing(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := dialTestHub(t, hub)

	// Subscribed to a different channel only
	require.NoError(t, client.WriteJSON(map[string]interface{}{
		"type":    "subscribe",
		"channel": "request:r-2",
	}))
	readMessage(t, client) // ack

	hub.Publish("activity", map[string]interface{}{"type": "request.created"})
	hub.Publish("request:r-2", map[string]interface{}{"type": "request.approved"})

	event := readMessage(t, client)
	assert.Equal(t, "request:r-2", event["channel"])
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	slow := NewConn(nil, hub, "u-slow")
	hub.Register(slow)
	hub.Subscribe(slow, "activity")

	// No pump draining: fill the buffer so the next publish overflows
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("backlog")
	}

	hub.Publish("activity", map[string]interface{}{"type": "request.created"})

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		_, registered := hub.conns[slow]
		return !registered
	}, 2*time.Second, 10*time.Millisecond)

	// The hub keeps serving healthy subscribers afterwards
	client := dialTestHub(t, hub)
	require.NoError(t, client.WriteJSON(map[string]interface{}{
		"type":    "subscribe",
		"channel": "activity",
	}))
	readMessage(t, client) // ack

	hub.Publish("activity", map[string]interface{}{"type": "request.approved"})
	event := readMessage(t, client)
	assert.Equal(t, "event", event["type"])
	assert.Equal(t, "activity", event["channel"])
}

func TestHubPing(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := dialTestHub(t, hub)

	require.NoError(t, client.WriteJSON(map[string]interface{}{"type": "ping"}))
	ack := readMessage(t, client)
	assert.Equal(t, "pong", ack["ack"])
}
