package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/matchmaking"
	"github.com/lox/spades/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(testLogger(), Options{
		Room:        testRoomConfig(),
		Matchmaking: matchmaking.Config{TickInterval: time.Second, BotFillAfter: time.Minute, MaxRatingSpread: 300},
		Clock:       quartz.NewMock(t),
		Seed:        99,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown()
		ts.Close()
	})
	return s, ts
}

// wsClient is a test websocket peer.
type wsClient struct {
	t     *testing.T
	conn  *websocket.Conn
	id    string
	token string
}

func dial(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{t: t, conn: conn}
	env := c.expect(protocol.TypePlayerJoined)
	var joined protocol.PlayerJoined
	require.NoError(t, env.DecodePayload(&joined))
	require.NotEmpty(t, joined.PlayerID)
	c.id, c.token = joined.PlayerID, joined.ResumeToken
	return c
}

func (c *wsClient) send(t protocol.MessageType, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, protocol.MustMarshal(t, payload)))
}

// expect reads frames until one of type want arrives.
func (c *wsClient) expect(want protocol.MessageType) protocol.Envelope {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", want)
		env, err := protocol.Decode(data)
		require.NoError(c.t, err)
		if env.Type == want {
			return env
		}
	}
}

func (c *wsClient) expectError(code string) protocol.Error {
	c.t.Helper()
	var e protocol.Error
	require.NoError(c.t, c.expect(protocol.TypeError).DecodePayload(&e))
	assert.Equal(c.t, code, e.Code, e.Message)
	return e
}

func (c *wsClient) expectState() *game.GameState {
	c.t.Helper()
	var update protocol.GameStateUpdate
	require.NoError(c.t, c.expect(protocol.TypeGameStateUpdate).DecodePayload(&update))
	return update.State
}

func botSeats(n int) []protocol.SeatSpec {
	seats := []protocol.SeatSpec{{}}
	for range n {
		seats = append(seats, protocol.SeatSpec{IsBot: true})
	}
	return seats
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartGameOverWebSocket(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.TypeStartGame, protocol.StartGame{Mode: deck.ModeJJDD, PointGoal: 300, Players: botSeats(3)})
	state := c.expectState()

	assert.Equal(t, deck.ModeJJDD, state.Mode)
	assert.Equal(t, 300, state.WinningScore)
	assert.Equal(t, game.PhaseBidding, state.Phase)
	require.Len(t, state.Players, 4)
	assert.Equal(t, c.id, state.Players[0].ID)
	for seat, p := range state.Players {
		require.Len(t, p.Hand, 13)
		if seat == 0 {
			assert.False(t, p.Hand[0].IsHidden())
			continue
		}
		assert.True(t, p.IsBot)
		assert.True(t, p.Hand[0].IsHidden())
	}

	// Seat 1 is on the move, so north is rejected and told why.
	c.send(protocol.TypePlaceBid, protocol.PlaceBid{Bid: 3})
	e := c.expectError(protocol.CodeValidation)
	assert.Contains(t, e.Message, game.ErrNotYourTurn.Error())

	// A second game while this one runs is refused.
	c.send(protocol.TypeStartGame, protocol.StartGame{Mode: deck.ModeJJDD, Players: botSeats(3)})
	c.expectError(protocol.CodeValidation)

	assert.Equal(t, 1, s.Registry().Len())
	resp, err := http.Get(ts.URL + "/api/games")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Games []RoomSummary `json:"games"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Games, 1)
	assert.Equal(t, state.ID, body.Games[0].ID)

	resp2, err := http.Get(ts.URL + "/api/games/" + state.ID)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	// Leaving the only human disposes the room.
	c.send(protocol.TypeLeaveLobby, protocol.LeaveLobby{})
	waitForCondition(t, func() bool { return s.Registry().Len() == 0 }, 2*time.Second, "room not disposed")
}

func TestStartGameWithOtherPlayers(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)
	a, b := dial(t, ts), dial(t, ts)

	c := dial(t, ts)
	c.send(protocol.TypeStartGame, protocol.StartGame{
		Mode: deck.ModeAceHigh,
		Players: []protocol.SeatSpec{
			{}, {PlayerID: "nobody"}, {IsBot: true}, {IsBot: true},
		},
	})
	c.expectError(protocol.CodeNotFound)

	c.send(protocol.TypeStartGame, protocol.StartGame{
		Mode: deck.ModeAceHigh,
		Players: []protocol.SeatSpec{
			{PlayerID: a.id}, {PlayerID: b.id}, {IsBot: true}, {IsBot: true},
		},
	})
	c.expectError(protocol.CodeValidation)

	c.send(protocol.TypeStartGame, protocol.StartGame{
		Mode: deck.ModeAceHigh,
		Players: []protocol.SeatSpec{
			{Name: "carol"}, {PlayerID: a.id, Name: "alice"}, {IsBot: true}, {PlayerID: b.id},
		},
	})
	for _, peer := range []*wsClient{c, a, b} {
		state := peer.expectState()
		assert.Equal(t, []string{c.id, a.id, state.Players[2].ID, b.id}, []string{
			state.Players[0].ID, state.Players[1].ID, state.Players[2].ID, state.Players[3].ID,
		})
		assert.Equal(t, "alice", state.Players[1].Name)
		seat := state.PlayerIndex(peer.id)
		for i, p := range state.Players {
			assert.Equal(t, i != seat, p.Hand[0].IsHidden(), "%s viewing seat %d", peer.id, i)
		}
	}

	// Alice is seat 1 and on the move.
	a.send(protocol.TypePlaceBid, protocol.PlaceBid{Bid: 4})
	for _, peer := range []*wsClient{c, a, b} {
		state := peer.expectState()
		require.NotNil(t, state.Players[1].Bid)
		assert.Equal(t, 4, *state.Players[1].Bid)
	}
}

func TestProtocolErrorsKeepConnectionOpen(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)
	c := dial(t, ts)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	c.expectError(protocol.CodeProtocol)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"game_state_update"}`)))
	c.expectError(protocol.CodeProtocol)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"place_bid","payload":{"bid":"three"}}`)))
	c.expectError(protocol.CodeProtocol)

	c.send(protocol.TypePlayCard, protocol.PlayCard{CardID: "AS"})
	c.expectError(protocol.CodeNotFound)

	// Still usable.
	c.send(protocol.TypeStartGame, protocol.StartGame{Mode: deck.ModeAceHigh, Players: botSeats(3)})
	c.expectState()
}

func TestIncompletePayloadsDoNotMove(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.TypeStartGame, protocol.StartGame{
		Mode:    deck.ModeAceHigh,
		Players: []protocol.SeatSpec{{IsBot: true}, {}, {IsBot: true}, {IsBot: true}},
	})
	state := c.expectState()
	require.Equal(t, 1, state.PlayerIndex(c.id))
	require.Nil(t, state.Players[1].Bid)

	for _, raw := range []string{
		`{"type":"place_bid"}`,
		`{"type":"place_bid","payload":{}}`,
		`{"type":"place_bid","payload":{"bid":14}}`,
		`{"type":"play_card","payload":{}}`,
	} {
		require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		c.expectError(protocol.CodeProtocol)
	}

	// The seat is still on the move and its real bid is the one recorded.
	c.send(protocol.TypePlaceBid, protocol.PlaceBid{Bid: 4})
	state = c.expectState()
	require.NotNil(t, state.Players[1].Bid)
	assert.Equal(t, 4, *state.Players[1].Bid)
}

func TestQueueOverWebSocketAndHTTP(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t)

	clients := []*wsClient{dial(t, ts), dial(t, ts), dial(t, ts)}
	for _, c := range clients {
		c.send(protocol.TypeJoinQueue, protocol.JoinQueue{Mode: deck.ModeAceHigh, PointGoal: 250})
		var joined protocol.QueueJoined
		require.NoError(t, c.expect(protocol.TypeQueueJoined).DecodePayload(&joined))
		assert.Equal(t, 1500.0, joined.Rating)
	}
	clients[0].send(protocol.TypeJoinQueue, protocol.JoinQueue{Mode: deck.ModeAceHigh, PointGoal: 250})
	clients[0].expectError(protocol.CodeValidation)

	// The fourth player joins over HTTP.
	last := dial(t, ts)
	post := func(playerID string) *http.Response {
		body, _ := json.Marshal(queueRequest{PlayerID: playerID, Mode: deck.ModeAceHigh, PointGoal: 250})
		resp, err := http.Post(ts.URL+"/api/queue", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}
	assert.Equal(t, http.StatusNotFound, post("nobody").StatusCode)
	assert.Equal(t, http.StatusCreated, post(last.id).StatusCode)
	last.expect(protocol.TypeQueueJoined)
	assert.Equal(t, http.StatusConflict, post(last.id).StatusCode)
	clients = append(clients, last)

	resp, err := http.Get(ts.URL + "/api/queue")
	require.NoError(t, err)
	var snapshot struct {
		Waiting int `json:"waiting"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	resp.Body.Close()
	assert.Equal(t, 4, snapshot.Waiting)

	matches := s.Queue().Tick(context.Background())
	require.Len(t, matches, 1)
	assert.Equal(t, 0, s.Queue().Len())

	var gameID string
	teams := map[int]int{}
	for _, c := range clients {
		var found protocol.MatchFound
		require.NoError(t, c.expect(protocol.TypeMatchFound).DecodePayload(&found))
		if gameID == "" {
			gameID = found.GameID
		}
		assert.Equal(t, gameID, found.GameID)
		assert.Equal(t, game.TeamOf(found.Seat), found.Team)
		teams[found.Team]++

		state := c.expectState()
		assert.Equal(t, gameID, state.ID)
		assert.Equal(t, c.id, state.Players[found.Seat].ID)
		assert.Equal(t, 250, state.WinningScore)
	}
	assert.Equal(t, map[int]int{0: 2, 1: 2}, teams)
}

func TestQueueLeave(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.TypeJoinQueue, protocol.JoinQueue{Mode: deck.ModeJJDD})
	c.expect(protocol.TypeQueueJoined)
	assert.True(t, s.Queue().Contains(c.id))

	c.send(protocol.TypeLeaveQueue, protocol.LeaveQueue{})
	c.expect(protocol.TypeQueueLeft)
	assert.False(t, s.Queue().Contains(c.id))

	c.send(protocol.TypeJoinQueue, protocol.JoinQueue{Mode: deck.ModeJJDD})
	c.expect(protocol.TypeQueueJoined)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/queue/"+c.id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	c.expect(protocol.TypeQueueLeft)
	assert.False(t, s.Queue().Contains(c.id))
}

func TestDisconnectLeavesQueueAndRoom(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	a.send(protocol.TypeJoinQueue, protocol.JoinQueue{Mode: deck.ModeAceHigh})
	a.expect(protocol.TypeQueueJoined)
	b.send(protocol.TypeStartGame, protocol.StartGame{Mode: deck.ModeAceHigh, Players: botSeats(3)})
	b.expectState()

	require.NoError(t, a.conn.Close())
	require.NoError(t, b.conn.Close())
	waitForCondition(t, func() bool {
		return s.ClientCount() == 0 && s.Queue().Len() == 0 && s.Registry().Len() == 0
	}, 2*time.Second, "disconnect did not clean up")
}

func TestDisconnectWhileSeatingReleasesRoom(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	c := newClient("p1", nil, s)
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	require.True(t, c.reserve())

	// The connection drops after the player was reserved but before the
	// room opens.
	s.unregister(c)
	assert.False(t, c.reserve())

	state, err := game.New(game.Config{
		ID:   "g-seat-race",
		Mode: deck.ModeAceHigh,
		Players: []game.PlayerSpec{
			{ID: "p1"},
			{ID: "bot-1", IsBot: true},
			{ID: "bot-2", IsBot: true},
			{ID: "bot-3", IsBot: true},
		},
		Seed: 5,
	})
	require.NoError(t, err)
	require.NoError(t, s.seat(state, []*Client{c}))

	waitForCondition(t, func() bool { return s.Registry().Len() == 0 }, 2*time.Second, "room kept running without players")
	assert.Nil(t, c.Room())
}

func dialResume(t *testing.T, ts *httptest.Server, token string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?resume=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{t: t, conn: conn}
	var joined protocol.PlayerJoined
	require.NoError(t, c.expect(protocol.TypePlayerJoined).DecodePayload(&joined))
	c.id, c.token = joined.PlayerID, joined.ResumeToken
	return c
}

func parkedCount(s *Server) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parked)
}

func TestResumeReclaimsSeat(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t)
	host, guest := dial(t, ts), dial(t, ts)
	require.NotEmpty(t, guest.token)

	host.send(protocol.TypeStartGame, protocol.StartGame{
		Mode:    deck.ModeAceHigh,
		Players: []protocol.SeatSpec{{}, {PlayerID: guest.id}, {IsBot: true}, {IsBot: true}},
	})
	host.expectState()
	guest.expectState()

	require.NoError(t, guest.conn.Close())
	state := host.expectState()
	assert.True(t, state.Players[1].IsBot)
	waitForCondition(t, func() bool { return parkedCount(s) == 1 }, 2*time.Second, "seat not parked")

	back := dialResume(t, ts, guest.token)
	assert.Equal(t, guest.id, back.id)
	assert.NotEqual(t, guest.token, back.token)
	state = back.expectState()
	assert.False(t, state.Players[1].IsBot)
	assert.False(t, state.Players[1].Hand[0].IsHidden())
	state = host.expectState()
	assert.False(t, state.Players[1].IsBot)
	assert.Equal(t, 0, parkedCount(s))

	// The seat is on the move again and answers to the resumed connection.
	back.send(protocol.TypePlaceBid, protocol.PlaceBid{Bid: 2})
	state = host.expectState()
	require.NotNil(t, state.Players[1].Bid)
	assert.Equal(t, 2, *state.Players[1].Bid)

	// Tokens are single use.
	again := dialResume(t, ts, guest.token)
	assert.NotEqual(t, guest.id, again.id)
}

func TestResumeIgnoresFinishedGames(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t)
	c := dial(t, ts)

	c.send(protocol.TypeStartGame, protocol.StartGame{Mode: deck.ModeAceHigh, Players: botSeats(3)})
	c.expectState()

	// The only human leaving disposes the room, so there is nothing to resume.
	require.NoError(t, c.conn.Close())
	waitForCondition(t, func() bool { return s.Registry().Len() == 0 }, 2*time.Second, "room not disposed")
	assert.Equal(t, 0, parkedCount(s))

	back := dialResume(t, ts, c.token)
	assert.NotEqual(t, c.id, back.id)
}

func TestErrorCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		code string
	}{
		{&game.ValidationError{Err: game.ErrIllegalPlay}, protocol.CodeValidation},
		{game.ErrInvalidConfig, protocol.CodeValidation},
		{matchmaking.ErrAlreadyQueued, protocol.CodeValidation},
		{invalidRequest("bad seat"), protocol.CodeValidation},
		{&game.NotFoundError{Kind: "player", ID: "x"}, protocol.CodeNotFound},
		{ErrRoomClosed, protocol.CodeNotFound},
		{protocol.ErrMalformed, protocol.CodeProtocol},
		{protocol.ErrUnknownMessageType, protocol.CodeProtocol},
		{context.DeadlineExceeded, protocol.CodeInternal},
	}
	for _, tt := range tests {
		code, msg := errorCode(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		if code == protocol.CodeInternal {
			assert.Equal(t, "internal error", msg)
		}
	}
}
