package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roasbeef/pulljoy/internal/gate"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()

	hub := NewHub()
	hub.Start()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeConnected, msg.Type)

	return conn
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg rawMessage
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func TestTransitionBroadcast(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	hub.NotifyTransition(context.Background(), gate.TransitionNotice{
		Repo: "acme/widgets", PRNum: 7,
		From: "untracked", To: "awaiting_manual_review", At: at,
	})

	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeTransition, msg.Type)
	require.JSONEq(t, `{
		"repo": "acme/widgets",
		"pr_num": 7,
		"from": "untracked",
		"to": "awaiting_manual_review",
		"at": "2024-05-01T12:00:00Z"
	}`, string(msg.Payload))
}

func TestRepoFilter(t *testing.T) {
	hub, url := startHub(t)
	filtered := dial(t, url+"?repo=acme/gadgets")

	hub.NotifyTransition(context.Background(), gate.TransitionNotice{
		Repo: "acme/widgets", PRNum: 1, From: "a", To: "b",
	})
	hub.NotifyTransition(context.Background(), gate.TransitionNotice{
		Repo: "acme/gadgets", PRNum: 2, From: "a", To: "b",
	})

	// Only the second notice reaches the filtered client.
	msg := readMessage(t, filtered)
	require.Equal(t, MsgTypeTransition, msg.Type)
	require.Contains(t, string(msg.Payload), `"pr_num":2`)
}

func TestClientMessages(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	require.Equal(t, MsgTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "subscribe",
		"data": map[string]string{"repo": "acme/widgets"},
	}))
	msg := readMessage(t, conn)
	require.Equal(t, MsgTypeSubscribed, msg.Type)
	require.JSONEq(t, `{"repo":"acme/widgets"}`, string(msg.Payload))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	msg = readMessage(t, conn)
	require.Equal(t, MsgTypeError, msg.Type)
	require.Contains(t, string(msg.Payload), "dance")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte("{")))
	require.Equal(t, MsgTypeError, readMessage(t, conn).Type)
}

func TestStopDisconnectsClients(t *testing.T) {
	hub := NewHub()
	hub.Start()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Equal(t, 1, hub.ClientCount())

	hub.Stop()
	require.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestCrossOriginRefused(t *testing.T) {
	_, url := startHub(t)

	header := map[string][]string{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.Equal(t, 403, resp.StatusCode)
}
