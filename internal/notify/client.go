package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Size of the client send buffer.
	sendBufferSize = 64
)

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	remote string

	// repo filters broadcasts. Empty means every repo.
	repo string

	send chan *Message

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, remote, repo string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		remote: remote,
		repo:   repo,
		send:   make(chan *Message, sendBufferSize),
	}
}

// Repo returns the client's repo filter.
func (c *Client) Repo() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.repo
}

// SetRepo changes the client's repo filter.
func (c *Client) SetRepo(repo string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.repo = repo
}

// Watches reports whether the client wants transitions of repo.
func (c *Client) Watches(repo string) bool {
	filter := c.Repo()
	return filter == "" || filter == repo
}

// Send queues a message. Messages to a slow client are dropped.
func (c *Client) Send(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		log.DebugS(context.Background(), "Send buffer full, dropping "+
			"message", "remote", c.remote, "type", msg.Type)
	}
}

// Close closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
	c.conn.Close()
}

// readPump reads client messages until the connection fails.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {

				log.DebugS(context.Background(), "Websocket read "+
					"error", "remote", c.remote, "err", err)
			}

			return
		}

		c.hub.handleIncoming(c, messageType, data)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.WarnS(context.Background(), "Unable to encode "+
					"message", err, "type", msg.Type)

				continue
			}

			err = c.conn.WriteMessage(websocket.TextMessage, data)
			if err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
