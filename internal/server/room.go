package server

import (
	"context"
	"errors"
	rand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/spades/internal/bot"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/protocol"
	"github.com/lox/spades/internal/randutil"
	"github.com/lox/spades/internal/rating"
	"github.com/lox/spades/internal/store"
	"github.com/lox/spades/internal/users"
	"github.com/rs/zerolog"
)

// ErrRoomClosed is returned for operations on a disposed room.
var ErrRoomClosed = errors.New("room closed")

var nopLogger = zerolog.Nop()

// roomStream keeps the room's pacing and bot randomness apart from the
// per-round deal streams derived from the same seed.
const roomStream = 1 << 40

// ioTimeout bounds store and directory calls made from a room.
const ioTimeout = 5 * time.Second

// Recipient receives frames for one seated player.
type Recipient interface {
	ID() string
	Send(data []byte) error
}

// RoomConfig controls pacing and rating updates.
type RoomConfig struct {
	BotDelayMin       time.Duration
	BotDelayMax       time.Duration
	TrickDisplayDelay time.Duration
	BotStrategy       string
	EloK              float64
}

// DefaultRoomConfig returns production pacing.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		BotDelayMin:       500 * time.Millisecond,
		BotDelayMax:       1500 * time.Millisecond,
		TrickDisplayDelay: 2 * time.Second,
		BotStrategy:       "heuristic",
		EloK:              rating.DefaultK,
	}
}

// RoomDeps are the collaborators a room uses. Users and Store may be nil.
type RoomDeps struct {
	Clock   quartz.Clock
	Users   users.Directory
	Store   store.Store
	Logger  zerolog.Logger
	OnClose func(id string)
}

// RoomSummary is a lock-free snapshot of a room for listings.
type RoomSummary struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	PointGoal   int        `json:"pointGoal"`
	Phase       game.Phase `json:"phase"`
	RoundNumber int        `json:"roundNumber"`
	Scores      [2]int     `json:"scores"`
	Players     []string   `json:"players"`
	Members     int        `json:"members"`
	Closed      bool       `json:"closed"`
}

// Room owns one game. A single goroutine applies every command from the inbox,
// so transitions for a game never race. Timers only post commands tagged with
// the state version they were scheduled for; a command whose version is stale
// does nothing.
type Room struct {
	id     string
	config RoomConfig
	inbox  chan func()
	done   chan struct{}
	once   sync.Once

	// Owned by the run goroutine.
	state     *game.GameState
	version   uint64
	members   map[string]Recipient
	bots      map[int]bot.Strategy
	humans    map[string]bool
	takenOver map[int]bool
	timer     *quartz.Timer
	rng       *rand.Rand
	recorded  bool

	summary atomic.Pointer[RoomSummary]

	clock   quartz.Clock
	users   users.Directory
	store   store.Store
	onClose func(id string)
	logger  zerolog.Logger
}

func newRoom(state *game.GameState, config RoomConfig, deps RoomDeps) (*Room, error) {
	if state.Phase != game.PhaseWaiting {
		return nil, errors.New("room needs a game that has not started")
	}
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	logger := deps.Logger.With().Str("component", "room").Str("game_id", state.ID).Logger()
	r := &Room{
		id:        state.ID,
		config:    config,
		inbox:     make(chan func()),
		done:      make(chan struct{}),
		state:     state,
		members:   make(map[string]Recipient),
		bots:      make(map[int]bot.Strategy),
		humans:    make(map[string]bool),
		takenOver: make(map[int]bool),
		rng:       randutil.Derive(state.Seed, roomStream),
		clock:     deps.Clock,
		users:     deps.Users,
		store:     deps.Store,
		onClose:   deps.OnClose,
		logger:    logger,
	}
	for i, p := range state.Players {
		if !p.IsBot {
			r.humans[p.ID] = true
			continue
		}
		strategy, err := bot.Resolve(config.BotStrategy, r.rng, logger)
		if err != nil {
			return nil, err
		}
		r.bots[i] = strategy
	}
	r.publish()
	go r.run()
	return r, nil
}

// ID returns the game id.
func (r *Room) ID() string { return r.id }

// Summary returns the latest published snapshot.
func (r *Room) Summary() RoomSummary { return *r.summary.Load() }

// Finished reports whether the game is over or the room disposed.
func (r *Room) Finished() bool {
	s := r.summary.Load()
	return s.Closed || s.Phase == game.PhaseGameOver
}

// Done is closed when the room is disposed.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) run() {
	for {
		select {
		case fn := <-r.inbox:
			fn()
		case <-r.done:
			return
		}
	}
}

// do runs fn on the room goroutine and waits for its result.
func (r *Room) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- func() { reply <- fn() }:
	case <-r.done:
		return ErrRoomClosed
	}
	return <-reply
}

// post queues fn without waiting. Used by timer callbacks.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.done:
	}
}

// begin deals the first round and seats the initial members.
func (r *Room) begin(members []Recipient) error {
	return r.do(func() error {
		next, err := game.Start(r.state)
		if err != nil {
			return err
		}
		for _, m := range members {
			if r.state.PlayerIndex(m.ID()) < 0 {
				return &game.NotFoundError{Kind: "player", ID: m.ID()}
			}
			r.members[m.ID()] = m
		}
		r.logger.Info().
			Str("mode", string(next.Mode)).
			Int("point_goal", next.WinningScore).
			Int("members", len(r.members)).
			Msg("Game started")
		r.apply(next)
		return nil
	})
}

// Join adds a connection for a seated player and sends them the current view.
// A player rejoining a seat the bot took over gets it back.
func (r *Room) Join(m Recipient) error {
	return r.do(func() error {
		seat := r.state.PlayerIndex(m.ID())
		if seat < 0 {
			return &game.NotFoundError{Kind: "player", ID: m.ID()}
		}
		r.members[m.ID()] = m
		if r.takenOver[seat] && !r.state.IsOver() {
			delete(r.takenOver, seat)
			delete(r.bots, seat)
			next := r.state.Clone()
			next.Players[seat].IsBot = false
			r.logger.Info().Str("player_id", m.ID()).Int("seat", seat).Msg("Player reclaimed seat")
			r.apply(next)
			return nil
		}
		r.publish()
		r.sendState(m)
		return nil
	})
}

// Leave removes a player's connection. Their seat is handed to a bot so the
// others can finish. The room is disposed once nobody is connected. Leaving
// twice is a no-op.
func (r *Room) Leave(playerID string) error {
	err := r.do(func() error {
		if _, ok := r.members[playerID]; !ok {
			return nil
		}
		delete(r.members, playerID)
		r.logger.Info().Str("player_id", playerID).Int("remaining", len(r.members)).Msg("Player left room")

		if len(r.members) == 0 {
			r.dispose("empty")
			return nil
		}

		seat := r.state.PlayerIndex(playerID)
		if seat < 0 || r.state.IsOver() {
			r.publish()
			return nil
		}
		if _, ok := r.bots[seat]; ok {
			r.publish()
			return nil
		}
		strategy, err := bot.Resolve(r.config.BotStrategy, r.rng, r.logger)
		if err != nil {
			return err
		}
		r.bots[seat] = strategy
		r.takenOver[seat] = true
		next := r.state.Clone()
		next.Players[seat].IsBot = true
		r.apply(next)
		return nil
	})
	if errors.Is(err, ErrRoomClosed) {
		return nil
	}
	return err
}

// PlaceBid applies a bid from a connected player.
func (r *Room) PlaceBid(playerID string, bid int) error {
	return r.do(func() error {
		if err := r.checkHuman(playerID); err != nil {
			return err
		}
		next, err := game.PlaceBid(r.state, playerID, bid)
		if err != nil {
			return err
		}
		r.apply(next)
		return nil
	})
}

// PlayCard applies a card play from a connected player.
func (r *Room) PlayCard(playerID, cardID string) error {
	return r.do(func() error {
		if err := r.checkHuman(playerID); err != nil {
			return err
		}
		next, err := game.PlayCard(r.state, playerID, cardID)
		if err != nil {
			return err
		}
		r.apply(next)
		return nil
	})
}

func (r *Room) checkHuman(playerID string) error {
	if _, ok := r.members[playerID]; !ok {
		return &game.NotFoundError{Kind: "player", ID: playerID}
	}
	return nil
}

// State returns the game as seen by viewer.
func (r *Room) State(viewer string) (*game.GameState, error) {
	var view *game.GameState
	err := r.do(func() error {
		view = r.state.ViewFor(viewer)
		return nil
	})
	return view, err
}

// Close disposes the room. It is safe to call more than once.
func (r *Room) Close() {
	_ = r.do(func() error {
		r.dispose("closed")
		return nil
	})
}

func (r *Room) dispose(reason string) {
	r.once.Do(func() {
		r.stopTimer()
		r.members = map[string]Recipient{}
		close(r.done)
		r.publish()
		r.logger.Info().Str("reason", reason).Msg("Room disposed")
		if r.onClose != nil {
			r.onClose(r.id)
		}
	})
}

func (r *Room) closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// apply installs an accepted transition and fans it out.
func (r *Room) apply(next *game.GameState) {
	r.state = next
	r.version++
	r.publish()
	r.persist()
	for _, m := range r.members {
		r.sendState(m)
	}
	if next.IsOver() {
		r.recordResult()
	}
	r.schedule()
}

func (r *Room) sendState(m Recipient) {
	data, err := protocol.Marshal(protocol.TypeGameStateUpdate, protocol.GameStateUpdate{State: r.state.ViewFor(m.ID())})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to encode state")
		return
	}
	if err := m.Send(data); err != nil {
		r.logger.Warn().Err(err).Str("player_id", m.ID()).Msg("Failed to send state")
	}
}

func (r *Room) publish() {
	s := r.state
	summary := &RoomSummary{
		ID:          r.id,
		Mode:        string(s.Mode),
		PointGoal:   s.WinningScore,
		Phase:       s.Phase,
		RoundNumber: s.RoundNumber,
		Members:     len(r.members),
		Closed:      r.closed(),
	}
	for i := range summary.Scores {
		if i < len(s.Teams) {
			summary.Scores[i] = s.Teams[i].Score
		}
	}
	for _, p := range s.Players {
		summary.Players = append(summary.Players, p.Name)
	}
	r.summary.Store(summary)
}

func (r *Room) persist() {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := r.store.Save(ctx, r.state); err != nil {
		r.logger.Error().Err(err).Msg("Failed to save game")
	}
}

// schedule arms the timer for whatever the room must do next without a human:
// collect a finished trick, or let a bot act.
func (r *Room) schedule() {
	r.stopTimer()
	s := r.state
	version := r.version

	switch {
	case s.Phase == game.PhasePlaying && s.TrickComplete():
		r.timer = r.clock.AfterFunc(r.config.TrickDisplayDelay, func() {
			r.post(func() { r.collect(version) })
		}, "room", "collect")
	case s.AwaitingAction():
		if _, ok := r.bots[s.CurrentPlayerIndex]; !ok {
			return
		}
		r.timer = r.clock.AfterFunc(r.botDelay(), func() {
			r.post(func() { r.botTurn(version) })
		}, "room", "bot")
	}
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) botDelay() time.Duration {
	spread := r.config.BotDelayMax - r.config.BotDelayMin
	if spread <= 0 {
		return r.config.BotDelayMin
	}
	return r.config.BotDelayMin + time.Duration(r.rng.Int64N(int64(spread)+1))
}

// collect clears a completed trick if the state is still the one the timer
// was armed for.
func (r *Room) collect(version uint64) {
	if version != r.version || r.state.Phase != game.PhasePlaying || !r.state.TrickComplete() {
		r.logger.Debug().Uint64("version", version).Msg("Stale collect ignored")
		return
	}
	next, err := game.CollectTrick(r.state)
	if err != nil {
		r.logger.Error().Err(err).Msg("Collect trick failed")
		return
	}
	r.apply(next)
}

// botTurn lets the current bot act if nothing has changed since scheduling.
func (r *Room) botTurn(version uint64) {
	if version != r.version || !r.state.AwaitingAction() {
		r.logger.Debug().Uint64("version", version).Msg("Stale bot turn ignored")
		return
	}
	strategy, ok := r.bots[r.state.CurrentPlayerIndex]
	if !ok {
		return
	}
	next, err := bot.Act(r.state, strategy)
	if err != nil {
		r.logger.Error().Err(err).Str("strategy", strategy.Name()).Msg("Bot action rejected")
		return
	}
	r.apply(next)
}

// recordResult updates the human players' ratings once per game. Bots count
// at the default rating and are not stored.
func (r *Room) recordResult() {
	if r.recorded || r.state.WinningTeam == nil {
		return
	}
	r.recorded = true
	winner := *r.state.WinningTeam
	r.logger.Info().
		Int("winning_team", winner).
		Int("score_a", r.state.Teams[0].Score).
		Int("score_b", r.state.Teams[1].Score).
		Msg("Game over")

	if r.users == nil || len(r.humans) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()

	var teams [2][]float64
	var ids [2][]string
	for seat, p := range r.state.Players {
		t := game.TeamOf(seat)
		current := rating.Default
		if r.humans[p.ID] {
			var err error
			if current, err = users.RatingOf(ctx, r.users, p.ID); err != nil {
				r.logger.Error().Err(err).Str("player_id", p.ID).Msg("Rating lookup failed")
				return
			}
		}
		teams[t] = append(teams[t], current)
		ids[t] = append(ids[t], p.ID)
	}

	scoreA := 0.0
	if winner == 0 {
		scoreA = 1
	}
	newA, newB, delta := rating.UpdateTeams(teams[0], teams[1], scoreA, r.config.EloK)
	updated := [2][]float64{newA, newB}
	for t := range updated {
		for i, id := range ids[t] {
			if !r.humans[id] {
				continue
			}
			if err := r.users.UpdateRating(ctx, id, updated[t][i]); err != nil {
				r.logger.Error().Err(err).Str("player_id", id).Msg("Rating update failed")
			}
		}
	}
	r.logger.Info().Float64("delta", delta).Msg("Ratings updated")
}
