// Package notify streams pull request state transitions to websocket
// clients.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/roasbeef/pulljoy/internal/gate"
)

// Message types sent to clients.
const (
	MsgTypeTransition = "transition"
	MsgTypeConnected  = "connected"
	MsgTypeSubscribed = "subscribed"
	MsgTypePong       = "pong"
	MsgTypeError      = "error"
)

// broadcastBufferSize is the number of notices the hub queues before it
// starts dropping them.
const broadcastBufferSize = 256

// Message is a websocket message sent to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// TransitionPayload is the payload of a transition message.
type TransitionPayload struct {
	Repo  string    `json:"repo"`
	PRNum int64     `json:"pr_num"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
}

// repoMessage is a message for the clients watching repo, or all clients
// when they watch nothing in particular.
type repoMessage struct {
	repo    string
	message *Message
}

// Hub keeps the set of connected clients and fans transitions out to them.
// A client that set a repo filter only sees that repo's transitions.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *repoMessage

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	upgrader websocket.Upgrader
}

var _ gate.Notifier = (*Hub)(nil)

// NewHub returns a hub. allowedOrigins lists browser origins besides the
// server's own that may connect.
func NewHub(allowedOrigins ...string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *repoMessage, broadcastBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}

			return origin == "http://"+r.Host ||
				origin == "https://"+r.Host
		},
	}

	return h
}

// Start runs the hub's loop until Stop.
func (h *Hub) Start() {
	go h.run()
}

// Stop disconnects every client and ends the hub's loop.
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()

			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()

			log.DebugS(h.ctx, "Websocket client registered",
				"remote", client.remote, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()

			log.DebugS(h.ctx, "Websocket client unregistered",
				"remote", client.remote, "total", total)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.Watches(msg.repo) {
					client.Send(msg.message)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NotifyTransition implements gate.Notifier. Notices are dropped when the
// hub falls behind.
func (h *Hub) NotifyTransition(ctx context.Context,
	notice gate.TransitionNotice) {

	msg := &repoMessage{
		repo: notice.Repo,
		message: &Message{
			Type: MsgTypeTransition,
			Payload: TransitionPayload{
				Repo:  notice.Repo,
				PRNum: notice.PRNum,
				From:  notice.From,
				To:    notice.To,
				At:    notice.At.UTC(),
			},
		},
	}

	select {
	case h.broadcast <- msg:
	default:
		log.WarnS(ctx, "Broadcast buffer full, dropping transition",
			nil, "repo", notice.Repo, "pr", notice.PRNum)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket. The optional "repo" query
// parameter limits the client to one repository.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WarnS(r.Context(), "Websocket upgrade failed", err)
		return
	}

	client := newClient(h, conn, r.RemoteAddr, r.URL.Query().Get("repo"))

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	client.Send(&Message{
		Type: MsgTypeConnected,
		Payload: map[string]any{
			"repo": client.Repo(),
			"time": time.Now().UTC().Format(time.RFC3339),
		},
	})

	go client.writePump()
	go client.readPump()
}

// handleIncoming answers messages sent by clients.
func (h *Hub) handleIncoming(client *Client, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		client.Send(&Message{
			Type: MsgTypeError,
			Payload: map[string]any{
				"message": "Invalid message format",
			},
		})

		return
	}

	switch msg.Type {
	case "ping":
		client.Send(&Message{
			Type: MsgTypePong,
			Payload: map[string]any{
				"time": time.Now().UTC().Format(time.RFC3339),
			},
		})

	case "subscribe":
		var sub struct {
			Repo string `json:"repo"`
		}
		if err := json.Unmarshal(msg.Data, &sub); err != nil {
			client.Send(&Message{
				Type: MsgTypeError,
				Payload: map[string]any{
					"message": "Invalid subscription",
				},
			})

			return
		}

		client.SetRepo(sub.Repo)
		client.Send(&Message{
			Type:    MsgTypeSubscribed,
			Payload: map[string]any{"repo": sub.Repo},
		})

	default:
		client.Send(&Message{
			Type: MsgTypeError,
			Payload: map[string]any{
				"message": "Unknown message type: " + msg.Type,
			},
		})
	}
}
