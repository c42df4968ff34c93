package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Largest frame accepted from a client.
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Client is one websocket connection. Its identity is assigned by the server
// on connect and announced with player_joined, together with a resume token
// that lets a later connection take the same identity back.
type Client struct {
	id     string
	token  string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	server *Server
	logger zerolog.Logger

	mu       sync.Mutex
	room     *Room
	reserved bool
	gone     bool
}

func newClient(id string, conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     id,
		token:  uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		server: server,
		logger: server.logger.With().Str("player_id", id).Logger(),
	}
}

// ID returns the player id.
func (c *Client) ID() string { return c.id }

// Send queues a frame without blocking. Rooms call this from their own
// goroutine, so a slow client drops frames instead of stalling the game.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSendBufferFull
	}
}

// Room returns the client's current room, if any.
func (c *Client) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// reserve claims the client for a new game. It fails while the client is in
// an unfinished game or already being seated elsewhere.
func (c *Client) reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone || c.reserved || (c.room != nil && !c.room.Finished()) {
		return false
	}
	c.reserved = true
	return true
}

func (c *Client) release() {
	c.mu.Lock()
	c.reserved = false
	c.mu.Unlock()
}

// assign moves the client into room and returns the room it was in before.
// It reports false once the client has disconnected, leaving room unset.
func (c *Client) assign(room *Room) (*Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved = false
	if c.gone {
		return nil, false
	}
	prev := c.room
	c.room = room
	return prev, true
}

// detach marks the client disconnected and returns the room it was in.
// Later assignments are refused.
func (c *Client) detach() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gone = true
	c.reserved = false
	prev := c.room
	c.room = nil
	return prev
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump forwards parsed frames to the server until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error().Err(err).Msg("Unexpected WebSocket close error")
			}
			return
		}
		c.server.handleFrame(c, message)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
