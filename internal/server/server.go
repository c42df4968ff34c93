// Package server hosts Spades games over websockets. Each game lives in a Room
// that serialises every action on its own goroutine; a matchmaking queue
// groups waiting players into new rooms.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/gameid"
	"github.com/lox/spades/internal/matchmaking"
	"github.com/lox/spades/internal/protocol"
	"github.com/lox/spades/internal/randutil"
	"github.com/lox/spades/internal/store"
	"github.com/lox/spades/internal/users"
	"github.com/rs/zerolog"
)

// Options configures a Server. Zero values get defaults; Store may stay nil.
type Options struct {
	Room        RoomConfig
	Matchmaking matchmaking.Config
	Users       users.Directory
	Store       store.Store
	Clock       quartz.Clock
	// Seed fixes deals and bot randomness when non-zero.
	Seed int64
}

// parkedSeat is a running game a disconnected player can resume.
type parkedSeat struct {
	playerID string
	room     *Room
}

// Server accepts websocket clients and routes their messages to rooms and the
// matchmaking queue.
type Server struct {
	opts     Options
	registry *Registry
	queue    *matchmaking.Queue
	upgrader websocket.Upgrader
	router   chi.Router
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	parked  map[string]parkedSeat

	seedMu sync.Mutex
	seeds  func() int64
}

// New creates a server.
func New(logger zerolog.Logger, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Users == nil {
		opts.Users = users.NewMemoryDirectory()
	}
	if opts.Room == (RoomConfig{}) {
		opts.Room = DefaultRoomConfig()
	}
	if opts.Matchmaking == (matchmaking.Config{}) {
		opts.Matchmaking = matchmaking.DefaultConfig()
	}

	s := &Server{
		opts:     opts,
		registry: NewRegistry(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger.With().Str("component", "server").Logger(),
		clients: make(map[string]*Client),
		parked:  make(map[string]parkedSeat),
		seeds:   randutil.NewSeed,
	}
	if opts.Seed != 0 {
		rng := randutil.New(opts.Seed)
		s.seeds = rng.Int64
	}

	bots := matchmaking.NewGeneratedBots(opts.Room.BotStrategy, opts.Matchmaking.BotRatingJitter, randutil.New(s.nextSeed()))
	s.queue = matchmaking.New(opts.Matchmaking, opts.Clock, s.startMatch, bots, logger)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/games", s.handleListGames)
		r.Get("/games/{gameID}", s.handleGetGame)
		r.Get("/queue", s.handleQueueSnapshot)
		r.Post("/queue", s.handleQueueJoin)
		r.Delete("/queue/{playerID}", s.handleQueueLeave)
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the room registry.
func (s *Server) Registry() *Registry { return s.registry }

// Queue returns the matchmaking queue.
func (s *Server) Queue() *matchmaking.Queue { return s.queue }

// Run drives matchmaking until ctx is cancelled, then closes every room and
// connection.
func (s *Server) Run(ctx context.Context) error {
	err := s.queue.Run(ctx)
	s.Shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown disposes rooms and drops clients.
func (s *Server) Shutdown() {
	s.registry.CloseAll()
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) nextSeed() int64 {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return s.seeds()
}

func (s *Server) client(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// handleWebSocket upgrades a connection. A resume query parameter carrying
// the token from an earlier player_joined restores that player's identity and
// returns them to the seat a bot kept warm.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	id, room := s.claim(r.URL.Query().Get("resume"))
	c := newClient(id, conn, s)
	s.mu.Lock()
	s.clients[c.id] = c
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Info().Str("player_id", c.id).Int("total", total).Bool("resumed", room != nil).Msg("Client connected")

	_ = c.Send(protocol.MustMarshal(protocol.TypePlayerJoined, protocol.PlayerJoined{
		PlayerID:    c.id,
		ResumeToken: c.token,
	}))
	if room != nil {
		c.assign(room)
		if err := room.Join(c); err != nil {
			c.assign(nil)
			c.logger.Warn().Err(err).Str("game_id", room.ID()).Msg("Failed to resume game")
		}
	}
	go c.writePump()
	go c.readPump()
}

// claim redeems a resume token. Unless the token names a parked seat in a
// running game, it returns a fresh id and no room.
func (s *Server) claim(token string) (string, *Room) {
	if token != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.parked[token]
		delete(s.parked, token)
		if _, connected := s.clients[p.playerID]; ok && !connected && !p.room.Finished() {
			return p.playerID, p.room
		}
	}
	return uuid.NewString(), nil
}

// park keeps a disconnected player's seat claimable under their resume token
// while the game runs on. Entries for finished games are pruned.
func (s *Server) park(c *Client, room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, p := range s.parked {
		if p.room.Finished() {
			delete(s.parked, token)
		}
	}
	if !room.Finished() {
		s.parked[c.token] = parkedSeat{playerID: c.id, room: room}
	}
}

// unregister removes a disconnected client from the queue and its room.
func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	total := len(s.clients)
	s.mu.Unlock()

	s.queue.Leave(c.id)
	if room := c.detach(); room != nil {
		_ = room.Leave(c.id)
		s.park(c, room)
	}
	s.logger.Info().Str("player_id", c.id).Int("total", total).Msg("Client disconnected")
}

// handleFrame decodes one client frame and replies with an error frame on
// failure. The connection stays open whatever the error.
func (s *Server) handleFrame(c *Client, data []byte) {
	if err := s.dispatch(c, data); err != nil {
		code, msg := errorCode(err)
		if code == protocol.CodeInternal {
			c.logger.Error().Err(err).Msg("Message handling failed")
		} else {
			c.logger.Debug().Err(err).Str("code", code).Msg("Message rejected")
		}
		_ = c.Send(protocol.ErrorMessage(code, msg))
	}
}

func (s *Server) dispatch(c *Client, data []byte) error {
	env, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	if !protocol.IsClientType(env.Type) {
		return fmt.Errorf("%w: %q", protocol.ErrUnknownMessageType, env.Type)
	}

	switch env.Type {
	case protocol.TypeStartGame:
		var req protocol.StartGame
		if err := env.DecodePayload(&req); err != nil {
			return err
		}
		return s.startGame(c, req)

	case protocol.TypePlaceBid:
		var req protocol.PlaceBid
		if err := env.DecodePayload(&req); err != nil {
			return err
		}
		room, err := s.roomOf(c)
		if err != nil {
			return err
		}
		return room.PlaceBid(c.id, req.Bid)

	case protocol.TypePlayCard:
		var req protocol.PlayCard
		if err := env.DecodePayload(&req); err != nil {
			return err
		}
		room, err := s.roomOf(c)
		if err != nil {
			return err
		}
		return room.PlayCard(c.id, req.CardID)

	case protocol.TypeLeaveLobby:
		if room, _ := c.assign(nil); room != nil {
			return room.Leave(c.id)
		}
		return nil

	case protocol.TypeJoinQueue:
		var req protocol.JoinQueue
		if err := env.DecodePayload(&req); err != nil {
			return err
		}
		return s.joinQueue(context.Background(), c, req.Mode, req.PointGoal)

	case protocol.TypeLeaveQueue:
		s.queue.Leave(c.id)
		return c.Send(protocol.MustMarshal(protocol.TypeQueueLeft, protocol.QueueLeft{}))
	}
	return fmt.Errorf("%w: %q", protocol.ErrUnknownMessageType, env.Type)
}

func (s *Server) roomOf(c *Client) (*Room, error) {
	room := c.Room()
	if room == nil {
		return nil, &game.NotFoundError{Kind: "game for player", ID: c.id}
	}
	return room, nil
}

// startGame opens a room from an explicit seating request. A human seat with
// no player id is the sender; other human seats must be connected players who
// are not already playing. Bot seats get generated ids.
func (s *Server) startGame(c *Client, req protocol.StartGame) error {
	if len(req.Players) != game.NumSeats {
		return invalidRequest("need %d players, got %d", game.NumSeats, len(req.Players))
	}
	if req.PointGoal == 0 {
		req.PointGoal = game.DefaultWinningScore
	}

	var reserved []*Client
	releaseAll := func() {
		for _, r := range reserved {
			r.release()
		}
	}

	specs := make([]game.PlayerSpec, game.NumSeats)
	senderSeated := false
	for i, seat := range req.Players {
		if seat.IsBot {
			id := botID(s.opts.Room.BotStrategy)
			name := seat.Name
			if name == "" {
				name = id
			}
			specs[i] = game.PlayerSpec{ID: id, Name: name, IsBot: true}
			continue
		}

		id := seat.PlayerID
		if id == "" {
			id = c.id
		}
		if id == c.id {
			if senderSeated {
				releaseAll()
				return invalidRequest("sender seated twice")
			}
			senderSeated = true
		}
		member, ok := s.client(id)
		if !ok {
			releaseAll()
			return &game.NotFoundError{Kind: "player", ID: id}
		}
		if !member.reserve() {
			releaseAll()
			return invalidRequest("player %s is already in a game", id)
		}
		reserved = append(reserved, member)
		specs[i] = game.PlayerSpec{ID: id, Name: seat.Name}
	}
	if !senderSeated {
		releaseAll()
		return invalidRequest("sender must take a seat")
	}

	state, err := game.New(game.Config{
		ID:           gameid.Generate(),
		Mode:         req.Mode,
		WinningScore: req.PointGoal,
		Players:      specs,
		Seed:         s.nextSeed(),
	})
	if err == nil {
		err = s.seat(state, reserved)
	}
	if err != nil {
		releaseAll()
		return err
	}
	return nil
}

// startMatch is the matchmaking handler. Matched players who disconnected or
// started another game meanwhile are replaced by bots.
func (s *Server) startMatch(_ context.Context, m matchmaking.Match) error {
	specs := make([]game.PlayerSpec, game.NumSeats)
	var members []*Client
	seats := make(map[string]int)
	for i, e := range m.Seats {
		if !e.IsBot {
			if c, ok := s.client(e.ID); ok && c.reserve() {
				specs[i] = game.PlayerSpec{ID: e.ID, Name: e.Name}
				members = append(members, c)
				seats[e.ID] = i
				continue
			}
			s.logger.Warn().Str("player_id", e.ID).Msg("Matched player unavailable, seating a bot")
		}
		id := e.ID
		if !e.IsBot {
			id = botID(s.opts.Room.BotStrategy)
		}
		specs[i] = game.PlayerSpec{ID: id, Name: id, IsBot: true}
	}
	if len(members) == 0 {
		s.logger.Info().Str("partition", m.Partition.String()).Msg("Match dropped, no players left")
		return nil
	}

	// Announce the seat before the first state arrives.
	gameID := gameid.Generate()
	for _, c := range members {
		seat := seats[c.id]
		_ = c.Send(protocol.MustMarshal(protocol.TypeMatchFound, protocol.MatchFound{
			GameID: gameID,
			Seat:   seat,
			Team:   game.TeamOf(seat),
		}))
	}

	state, err := game.New(game.Config{
		ID:           gameID,
		Mode:         m.Partition.Mode,
		WinningScore: m.Partition.PointGoal,
		Players:      specs,
		Seed:         s.nextSeed(),
	})
	if err == nil {
		err = s.seat(state, members)
	}
	if err != nil {
		for _, c := range members {
			c.release()
		}
		return err
	}
	s.logger.Info().
		Str("game_id", gameID).
		Str("partition", m.Partition.String()).
		Bool("bot_filled", m.BotFilled).
		Float64("team_a", m.TeamRatings[0]).
		Float64("team_b", m.TeamRatings[1]).
		Msg("Match started")
	return nil
}

// seat opens a room for state and moves the reserved members into it.
func (s *Server) seat(state *game.GameState, members []*Client) error {
	recipients := make([]Recipient, len(members))
	for i, m := range members {
		recipients[i] = m
	}
	room, err := s.registry.Open(state, recipients, s.opts.Room, RoomDeps{
		Clock:  s.opts.Clock,
		Users:  s.opts.Users,
		Store:  s.opts.Store,
		Logger: s.logger,
	})
	if err != nil {
		return err
	}
	for _, m := range members {
		s.queue.Leave(m.id)
		prev, ok := m.assign(room)
		if !ok {
			// Disconnected while the room was opening.
			_ = room.Leave(m.id)
			s.park(m, room)
			continue
		}
		if prev != nil && prev != room {
			_ = prev.Leave(m.id)
		}
	}
	return nil
}

// joinQueue enters a connected player into matchmaking at their stored rating.
func (s *Server) joinQueue(ctx context.Context, c *Client, mode deck.Mode, pointGoal int) error {
	if room := c.Room(); room != nil && !room.Finished() {
		return invalidRequest("already in a game")
	}
	if pointGoal == 0 {
		pointGoal = game.DefaultWinningScore
	}
	r, err := users.RatingOf(ctx, s.opts.Users, c.id)
	if err != nil {
		return err
	}
	name := c.id
	if u, err := s.opts.Users.GetUser(ctx, c.id); err == nil && u.Name != "" {
		name = u.Name
	}
	if err := s.queue.Join(matchmaking.Entry{
		ID:        c.id,
		Name:      name,
		Rating:    r,
		Mode:      mode,
		PointGoal: pointGoal,
	}); err != nil {
		if errors.Is(err, matchmaking.ErrAlreadyQueued) {
			return err
		}
		return invalidRequest("%v", err)
	}
	return c.Send(protocol.MustMarshal(protocol.TypeQueueJoined, protocol.QueueJoined{
		Mode:      mode,
		PointGoal: pointGoal,
		Rating:    r,
	}))
}

func botID(strategy string) string {
	if strategy == "" {
		strategy = "heuristic"
	}
	return fmt.Sprintf("bot-%s-%s", strategy, uuid.NewString()[:8])
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"games": s.registry.List()})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	room, ok := s.registry.Get(chi.URLParam(r, "gameID"))
	if !ok {
		writeError(w, http.StatusNotFound, protocol.CodeNotFound, "game not found")
		return
	}
	writeJSON(w, http.StatusOK, room.Summary())
}

func (s *Server) handleQueueSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"waiting":    s.queue.Len(),
		"partitions": s.queue.Snapshot(),
	})
}

type queueRequest struct {
	PlayerID  string    `json:"playerId"`
	Mode      deck.Mode `json:"mode"`
	PointGoal int       `json:"pointGoal"`
}

func (s *Server) handleQueueJoin(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeProtocol, "invalid request body")
		return
	}
	c, ok := s.client(req.PlayerID)
	if !ok {
		writeError(w, http.StatusNotFound, protocol.CodeNotFound, "player not connected")
		return
	}
	if err := s.joinQueue(r.Context(), c, req.Mode, req.PointGoal); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"queued": req.PlayerID})
}

func (s *Server) handleQueueLeave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playerID")
	s.queue.Leave(id)
	if c, ok := s.client(id); ok {
		_ = c.Send(protocol.MustMarshal(protocol.TypeQueueLeft, protocol.QueueLeft{}))
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, protocol.Error{Code: code, Message: msg})
}

// writeErr maps an error onto an HTTP status using the same codes as the
// websocket error frames.
func writeErr(w http.ResponseWriter, err error) {
	code, msg := errorCode(err)
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		status = http.StatusConflict
	case code == protocol.CodeNotFound:
		status = http.StatusNotFound
	case code == protocol.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, code, msg)
}
