package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/spades/internal/deck"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// recorder collects handled matches.
type recorder struct {
	mu      sync.Mutex
	matches []Match
}

func (r *recorder) handle(_ context.Context, m Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, m)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

type failingBots struct{ failMode deck.Mode }

func (f failingBots) Bots(ctx context.Context, p Partition, n int, around float64) ([]Entry, error) {
	if p.Mode == f.failMode {
		return nil, errors.New("bot service down")
	}
	return NewGeneratedBots("lowest", 0, rand.New(rand.NewPCG(1, 2))).Bots(ctx, p, n, around)
}

func testConfig() Config {
	return Config{TickInterval: time.Second, BotFillAfter: 30 * time.Second, MaxRatingSpread: 300}
}

// joinAll queues entries in order, one millisecond apart.
func joinAll(t *testing.T, q *Queue, clock quartz.Clock, mode deck.Mode, ratings ...float64) []string {
	t.Helper()
	base := clock.Now()
	ids := make([]string, len(ratings))
	for i, r := range ratings {
		ids[i] = fmt.Sprintf("%s-p%d-%d", mode, i, int(r))
		require.NoError(t, q.Join(Entry{
			ID:        ids[i],
			Rating:    r,
			Mode:      mode,
			PointGoal: 500,
			QueuedAt:  base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	return ids
}

func seatIDs(m Match) []string {
	ids := make([]string, len(m.Seats))
	for i, e := range m.Seats {
		ids[i] = e.ID
	}
	return ids
}

func TestJoinAndLeave(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	q := New(testConfig(), clock, nil, nil, testLogger())

	entry := Entry{ID: "alice", Mode: deck.ModeAceHigh, PointGoal: 500}
	require.NoError(t, q.Join(entry))
	assert.ErrorIs(t, q.Join(entry), ErrAlreadyQueued)
	assert.True(t, q.Contains("alice"))

	assert.Error(t, q.Join(Entry{ID: "bob", Mode: "hearts", PointGoal: 500}))
	assert.Error(t, q.Join(Entry{ID: "bob", Mode: deck.ModeJJDD}))
	assert.Error(t, q.Join(Entry{Mode: deck.ModeJJDD, PointGoal: 500}))

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, Partition{Mode: deck.ModeAceHigh, PointGoal: 500}, snap[0].Partition)
	assert.Equal(t, 1, snap[0].Waiting)

	assert.True(t, q.Leave("alice"))
	assert.False(t, q.Leave("alice"), "leaving twice is a no-op")
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Snapshot())

	// Rejoining after leaving is allowed.
	require.NoError(t, q.Join(entry))
}

func TestJoinDefaultsRating(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	rec := &recorder{}
	q := New(testConfig(), clock, rec.handle, nil, testLogger())

	for i := range 4 {
		require.NoError(t, q.Join(Entry{ID: fmt.Sprint(i), Mode: deck.ModeJJDD, PointGoal: 250}))
	}
	matches := q.Tick(context.Background())
	require.Len(t, matches, 1)
	for _, e := range matches[0].Seats {
		assert.Equal(t, 1500.0, e.Rating)
		assert.Equal(t, clock.Now(), e.QueuedAt)
	}
}

func TestTickInterleavesTeams(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	rec := &recorder{}
	cfg := testConfig()
	cfg.MaxRatingSpread = 1000
	q := New(cfg, clock, rec.handle, nil, testLogger())

	joinAll(t, q, clock, deck.ModeAceHigh, 1000, 1100, 1500, 1900)
	matches := q.Tick(context.Background())
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, []float64{1900, 1500, 1000, 1100},
		[]float64{m.Seats[0].Rating, m.Seats[1].Rating, m.Seats[2].Rating, m.Seats[3].Rating})
	assert.Equal(t, [2]float64{2900, 2600}, m.TeamRatings)
	assert.False(t, m.BotFilled)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 1, rec.count())
}

func TestTickPrefersTightRatingWindow(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	q := New(testConfig(), clock, nil, nil, testLogger())

	ids := joinAll(t, q, clock, deck.ModeAceHigh, 2000, 1000, 1010, 1020, 1030)
	matches := q.Tick(context.Background())
	require.Len(t, matches, 1)
	assert.ElementsMatch(t, ids[1:], seatIDs(matches[0]))
	assert.True(t, q.Contains(ids[0]), "outlier keeps waiting")
}

func TestTickFallsBackToLongestWaiting(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	cfg := testConfig()
	cfg.MaxRatingSpread = 10
	q := New(cfg, clock, nil, nil, testLogger())

	ids := joinAll(t, q, clock, deck.ModeAceHigh, 2000, 1000, 1010, 1020, 1030)
	matches := q.Tick(context.Background())
	require.Len(t, matches, 1)
	assert.ElementsMatch(t, ids[:4], seatIDs(matches[0]))
	assert.True(t, q.Contains(ids[4]))
}

func TestTickKeepsPartitionsApart(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	q := New(testConfig(), clock, nil, nil, testLogger())

	joinAll(t, q, clock, deck.ModeAceHigh, 1500, 1500)
	joinAll(t, q, clock, deck.ModeJJDD, 1500, 1500)
	assert.Empty(t, q.Tick(context.Background()))
	assert.Equal(t, 4, q.Len())
}

func TestTickMatchesEachPlayerOnce(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	rec := &recorder{}
	q := New(testConfig(), clock, rec.handle, nil, testLogger())

	ratings := make([]float64, 12)
	for i := range ratings {
		ratings[i] = 1400 + float64(i*10)
	}
	joinAll(t, q, clock, deck.ModeJJDD, ratings...)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Tick(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, 3, rec.count())
	seen := make(map[string]bool)
	for _, m := range rec.matches {
		for _, id := range seatIDs(m) {
			assert.False(t, seen[id], "player %s matched twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 12)
	assert.Equal(t, 0, q.Len())
}

func TestBotFillAfterWait(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)
	rec := &recorder{}
	bots := NewGeneratedBots("heuristic", 50, rand.New(rand.NewPCG(3, 4)))
	q := New(testConfig(), clock, rec.handle, bots, testLogger())

	ids := joinAll(t, q, clock, deck.ModeAceHigh, 1600)
	assert.Empty(t, q.Tick(ctx), "too early to fill")

	clock.Advance(29 * time.Second).MustWait(ctx)
	assert.Empty(t, q.Tick(ctx))

	clock.Advance(time.Second).MustWait(ctx)
	matches := q.Tick(ctx)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.True(t, m.BotFilled)
	humans := m.Humans()
	require.Len(t, humans, 1)
	assert.Equal(t, ids[0], humans[0].ID)
	for _, e := range m.Seats {
		if !e.IsBot {
			continue
		}
		assert.InDelta(t, 1600, e.Rating, 50)
		assert.Equal(t, deck.ModeAceHigh, e.Mode)
		assert.Contains(t, e.ID, "bot-heuristic-")
	}
	assert.Equal(t, 0, q.Len())
}

func TestBotFailureIsolatedToPartition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)
	rec := &recorder{}
	q := New(testConfig(), clock, rec.handle, failingBots{failMode: deck.ModeAceHigh}, testLogger())

	stuck := joinAll(t, q, clock, deck.ModeAceHigh, 1500, 1500)
	joinAll(t, q, clock, deck.ModeJJDD, 1500)
	clock.Advance(time.Minute).MustWait(ctx)

	matches := q.Tick(ctx)
	require.Len(t, matches, 1)
	assert.Equal(t, deck.ModeJJDD, matches[0].Partition.Mode)
	for _, id := range stuck {
		assert.True(t, q.Contains(id))
	}
}

// leavingBots removes a player while bots are being fetched.
type leavingBots struct {
	q     *Queue
	leave string
}

func (l *leavingBots) Bots(ctx context.Context, p Partition, n int, around float64) ([]Entry, error) {
	l.q.Leave(l.leave)
	return NewGeneratedBots("lowest", 0, rand.New(rand.NewPCG(1, 2))).Bots(ctx, p, n, around)
}

func TestBotFillAbandonedWhenPlayerLeaves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)
	rec := &recorder{}
	bots := &leavingBots{}
	q := New(testConfig(), clock, rec.handle, bots, testLogger())
	bots.q = q

	ids := joinAll(t, q, clock, deck.ModeAceHigh, 1500, 1500)
	bots.leave = ids[0]
	clock.Advance(time.Minute).MustWait(ctx)

	assert.Empty(t, q.Tick(ctx))
	assert.Equal(t, 0, rec.count())
	assert.False(t, q.Contains(ids[0]))
	assert.True(t, q.Contains(ids[1]), "remaining player keeps waiting")
}

func TestHandlerFailureRequeues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	handlers := map[string]MatchHandler{
		"error": func(context.Context, Match) error { return errors.New("no rooms") },
		"panic": func(context.Context, Match) error { panic("boom") },
	}
	for name, handler := range handlers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			clock := quartz.NewMock(t)
			q := New(testConfig(), clock, handler, nil, testLogger())

			ids := joinAll(t, q, clock, deck.ModeJJDD, 1500, 1510, 1520, 1530)
			before := q.Snapshot()

			assert.Empty(t, q.Tick(ctx))
			for _, id := range ids {
				assert.True(t, q.Contains(id))
			}
			assert.Equal(t, before, q.Snapshot(), "original queue times survive requeue")
		})
	}
}

func TestHandlerFailureRequeuesOnlyHumans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := quartz.NewMock(t)
	handler := func(context.Context, Match) error { return errors.New("no rooms") }
	q := New(testConfig(), clock, handler, failingBots{}, testLogger())

	ids := joinAll(t, q, clock, deck.ModeAceHigh, 1500)
	clock.Advance(time.Minute).MustWait(ctx)

	assert.Empty(t, q.Tick(ctx))
	assert.Equal(t, 1, q.Len())
	assert.True(t, q.Contains(ids[0]))
}

func TestRunMatchesOnJoin(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := quartz.NewMock(t)
	matched := make(chan Match, 1)
	q := New(testConfig(), clock, func(_ context.Context, m Match) error {
		matched <- m
		return nil
	}, nil, testLogger())

	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	joinAll(t, q, clock, deck.ModeAceHigh, 1500, 1500, 1500, 1500)

	select {
	case m := <-matched:
		assert.Equal(t, deck.ModeAceHigh, m.Partition.Mode)
	case <-time.After(2 * time.Second):
		t.Fatal("join did not trigger a match")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestGeneratedBots(t *testing.T) {
	t.Parallel()
	g := NewGeneratedBots("", 100, rand.New(rand.NewPCG(5, 6)))
	p := Partition{Mode: deck.ModeJJDD, PointGoal: 300}

	bots, err := g.Bots(context.Background(), p, 3, 1500)
	require.NoError(t, err)
	require.Len(t, bots, 3)
	ids := map[string]bool{}
	for _, b := range bots {
		assert.True(t, b.IsBot)
		assert.Equal(t, p, b.Partition())
		assert.InDelta(t, 1500, b.Rating, 100)
		ids[b.ID] = true
	}
	assert.Len(t, ids, 3)

	_, err = g.Bots(context.Background(), p, -1, 1500)
	assert.Error(t, err)
}
