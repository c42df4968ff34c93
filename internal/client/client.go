package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
)

var (
	// ErrNotConnected is returned when sending before Connect or after Disconnect.
	ErrNotConnected = errors.New("not connected")
	// ErrSendBufferFull is returned when the outgoing queue cannot take another frame.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client represents a WebSocket client for a Spades server
type Client struct {
	serverURL string
	conn      *websocket.Conn
	send      chan []byte
	receive   chan protocol.Envelope
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	connected bool
	playerID  string
	resume    string
	closeOnce sync.Once

	handlers map[protocol.MessageType][]Handler
}

// Handler handles one incoming message. Handlers run in arrival order on a
// single goroutine.
type Handler func(protocol.Envelope)

// New creates a client for the server at serverURL (http, https, ws or wss).
func New(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		serverURL: serverURL,
		send:      make(chan []byte, 256),
		receive:   make(chan protocol.Envelope, 256),
		logger:    logger.WithPrefix("client"),
		ctx:       ctx,
		cancel:    cancel,
		handlers:  make(map[protocol.MessageType][]Handler),
	}
	c.On(protocol.TypePlayerJoined, func(env protocol.Envelope) {
		var joined protocol.PlayerJoined
		if err := env.DecodePayload(&joined); err != nil {
			c.logger.Warn("Bad player_joined payload", "error", err)
			return
		}
		c.mu.Lock()
		c.playerID = joined.PlayerID
		c.resume = joined.ResumeToken
		c.mu.Unlock()
	})
	return c
}

// wsURL converts the server URL into the websocket endpoint, carrying the
// resume token when there is one.
func wsURL(serverURL, resume string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	if resume != "" {
		u.RawQuery = url.Values{"resume": {resume}}.Encode()
	}
	return u.String(), nil
}

// Connect dials the server and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	endpoint, err := wsURL(c.serverURL, c.ResumeToken())
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the connection. It is safe to call more than once.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.connected = false
		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the client has disconnected.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// PlayerID returns the identity assigned by the server, or "" before
// player_joined arrives.
func (c *Client) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// ResumeToken returns the token from the last player_joined, or the one set
// with ResumeWith before connecting.
func (c *Client) ResumeToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resume
}

// ResumeWith makes the next Connect reclaim the identity and game the token
// was issued for. Call it before Connect.
func (c *Client) ResumeWith(token string) {
	c.mu.Lock()
	c.resume = token
	c.mu.Unlock()
}

// Send queues a message for the server.
func (c *Client) Send(t protocol.MessageType, payload any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := protocol.Marshal(t, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// StartGame asks for a new room with the given seats.
func (c *Client) StartGame(mode deck.Mode, pointGoal int, seats []protocol.SeatSpec) error {
	return c.Send(protocol.TypeStartGame, protocol.StartGame{Mode: mode, PointGoal: pointGoal, Players: seats})
}

// PlaceBid bids for the player's seat; 0 is nil.
func (c *Client) PlaceBid(bid int) error {
	return c.Send(protocol.TypePlaceBid, protocol.PlaceBid{Bid: bid})
}

// PlayCard plays a card from the player's hand.
func (c *Client) PlayCard(cardID string) error {
	return c.Send(protocol.TypePlayCard, protocol.PlayCard{CardID: cardID})
}

// LeaveGame leaves the current room.
func (c *Client) LeaveGame() error {
	return c.Send(protocol.TypeLeaveLobby, protocol.LeaveLobby{})
}

// JoinQueue enters matchmaking.
func (c *Client) JoinQueue(mode deck.Mode, pointGoal int) error {
	return c.Send(protocol.TypeJoinQueue, protocol.JoinQueue{Mode: mode, PointGoal: pointGoal})
}

// LeaveQueue leaves matchmaking.
func (c *Client) LeaveQueue() error {
	return c.Send(protocol.TypeLeaveQueue, protocol.LeaveQueue{})
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		_ = c.Disconnect()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		c.logger.Debug("Received message", "type", env.Type)

		select {
		case c.receive <- env:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// eventProcessor processes incoming messages and dispatches to handlers
func (c *Client) eventProcessor() {
	for {
		select {
		case env := <-c.receive:
			c.dispatch(env)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) dispatch(env protocol.Envelope) {
	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[env.Type]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handler for message type", "type", env.Type)
		return
	}
	for _, h := range handlers {
		h(env)
	}
}

// On registers a handler for a message type.
func (c *Client) On(t protocol.MessageType, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

// WaitFor blocks until a message of type t arrives, the timeout passes or
// the client disconnects. Only messages received after the call are seen.
func (c *Client) WaitFor(t protocol.MessageType, timeout time.Duration) (protocol.Envelope, error) {
	ch := make(chan protocol.Envelope, 1)
	c.On(t, func(env protocol.Envelope) {
		select {
		case ch <- env:
		default:
		}
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-ch:
		return env, nil
	case <-timer.C:
		return protocol.Envelope{}, fmt.Errorf("timeout waiting for %s", t)
	case <-c.ctx.Done():
		return protocol.Envelope{}, ErrNotConnected
	}
}
