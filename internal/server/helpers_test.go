package server

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testLogger creates a logger that discards output for tests
func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, errMsg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error(errMsg)
}

// recorder is a Recipient that keeps every frame it is sent.
type recorder struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, data)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) raw() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

// states decodes every game_state_update the recorder received.
func (r *recorder) states(t *testing.T) []*game.GameState {
	t.Helper()
	var out []*game.GameState
	for _, frame := range r.raw() {
		env, err := protocol.Decode(frame)
		require.NoError(t, err)
		if env.Type != protocol.TypeGameStateUpdate {
			continue
		}
		var update protocol.GameStateUpdate
		require.NoError(t, env.DecodePayload(&update))
		out = append(out, update.State)
	}
	return out
}

func (r *recorder) last(t *testing.T) *game.GameState {
	t.Helper()
	states := r.states(t)
	require.NotEmpty(t, states, "no state received by %s", r.id)
	return states[len(states)-1]
}

// actual returns the unsanitised state from the room goroutine.
func actual(t *testing.T, room *Room) (*game.GameState, uint64) {
	t.Helper()
	var s *game.GameState
	var v uint64
	require.NoError(t, room.do(func() error {
		s, v = room.state.Clone(), room.version
		return nil
	}))
	return s, v
}

// step fires the next room timer and waits until the room has handled it.
func step(t *testing.T, clock *quartz.Mock, room *Room) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, w := clock.AdvanceNext()
	w.MustWait(ctx)
	_, _ = actual(t, room)
}
