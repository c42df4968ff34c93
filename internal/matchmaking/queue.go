// Package matchmaking groups waiting players into four-seat games.
//
// Players wait in partitions keyed by (mode, point goal). Each tick scans
// every partition: four or more waiting players are grouped by rating, and a
// partition whose oldest player has waited past BotFillAfter is completed with
// bots. Matched players leave the queue under the queue lock before the match
// handler runs, so nobody is matched twice.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/rating"
	"github.com/rs/zerolog"
)

// ErrAlreadyQueued is returned when joining with an id that is already waiting.
var ErrAlreadyQueued = errors.New("player already queued")

// Partition is the unit of matching: only players who want the same game are
// grouped together.
type Partition struct {
	Mode      deck.Mode `json:"mode"`
	PointGoal int       `json:"pointGoal"`
}

func (p Partition) String() string {
	return fmt.Sprintf("%s/%d", p.Mode, p.PointGoal)
}

// Entry is one waiting player.
type Entry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rating    float64   `json:"rating"`
	Mode      deck.Mode `json:"mode"`
	PointGoal int       `json:"pointGoal"`
	QueuedAt  time.Time `json:"queuedAt"`
	IsBot     bool      `json:"isBot"`
}

// Partition returns the partition the entry waits in.
func (e Entry) Partition() Partition {
	return Partition{Mode: e.Mode, PointGoal: e.PointGoal}
}

// Match is a formed game. Seats[i] sits at seat i, so seats 0 and 2 are
// team 0 and seats 1 and 3 are team 1.
type Match struct {
	Partition   Partition            `json:"partition"`
	Seats       [game.NumSeats]Entry `json:"seats"`
	TeamRatings [2]float64           `json:"teamRatings"`
	BotFilled   bool                 `json:"botFilled"`
}

// Humans returns the non-bot entries of the match.
func (m Match) Humans() []Entry {
	var out []Entry
	for _, e := range m.Seats {
		if !e.IsBot {
			out = append(out, e)
		}
	}
	return out
}

// MatchHandler starts a game for a match. An error or panic returns the
// match's human players to the queue.
type MatchHandler func(ctx context.Context, m Match) error

// BotSource supplies n bot entries for a partition, rated around the given
// average.
type BotSource interface {
	Bots(ctx context.Context, p Partition, n int, around float64) ([]Entry, error)
}

// Config controls matching.
type Config struct {
	TickInterval    time.Duration
	BotFillAfter    time.Duration
	MaxRatingSpread float64
	BotRatingJitter float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second,
		BotFillAfter:    30 * time.Second,
		MaxRatingSpread: 300,
		BotRatingJitter: 50,
	}
}

// PartitionStats summarises one partition for monitoring.
type PartitionStats struct {
	Partition  Partition     `json:"partition"`
	Waiting    int           `json:"waiting"`
	OldestWait time.Duration `json:"oldestWait"`
}

// Queue is the waiting pool. It is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	byID    map[string]Entry
	waiting map[Partition][]Entry // FIFO by QueuedAt

	tickMu  sync.Mutex
	trigger chan struct{}

	config  Config
	clock   quartz.Clock
	handler MatchHandler
	bots    BotSource
	logger  zerolog.Logger
}

// New creates a queue. bots may be nil, in which case partitions only match
// when four players are waiting.
func New(config Config, clock quartz.Clock, handler MatchHandler, bots BotSource, logger zerolog.Logger) *Queue {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultConfig().TickInterval
	}
	return &Queue{
		byID:    make(map[string]Entry),
		waiting: make(map[Partition][]Entry),
		trigger: make(chan struct{}, 1),
		config:  config,
		clock:   clock,
		handler: handler,
		bots:    bots,
		logger:  logger.With().Str("component", "matchmaking").Logger(),
	}
}

// Join adds a player. QueuedAt defaults to now.
func (q *Queue) Join(e Entry) error {
	if e.ID == "" {
		return errors.New("queue entry has no id")
	}
	if !e.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", e.Mode)
	}
	if e.PointGoal <= 0 {
		return fmt.Errorf("point goal must be positive, got %d", e.PointGoal)
	}
	if e.Rating == 0 {
		e.Rating = rating.Default
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = q.clock.Now()
	}

	q.mu.Lock()
	if _, ok := q.byID[e.ID]; ok {
		q.mu.Unlock()
		return ErrAlreadyQueued
	}
	q.insertLocked(e)
	q.mu.Unlock()

	q.logger.Info().
		Str("player_id", e.ID).
		Str("partition", e.Partition().String()).
		Float64("rating", e.Rating).
		Msg("Player queued")
	q.triggerMatch()
	return nil
}

// insertLocked adds e keeping its partition ordered by QueuedAt.
func (q *Queue) insertLocked(e Entry) {
	p := e.Partition()
	list := q.waiting[p]
	i := sort.Search(len(list), func(i int) bool { return list[i].QueuedAt.After(e.QueuedAt) })
	q.waiting[p] = slices.Insert(list, i, e)
	q.byID[e.ID] = e
}

// removeLocked deletes ids from the queue and reports whether all of them
// were present.
func (q *Queue) removeLocked(ids []string) bool {
	for _, id := range ids {
		if _, ok := q.byID[id]; !ok {
			return false
		}
	}
	for _, id := range ids {
		e := q.byID[id]
		delete(q.byID, id)
		p := e.Partition()
		q.waiting[p] = slices.DeleteFunc(q.waiting[p], func(w Entry) bool { return w.ID == id })
		if len(q.waiting[p]) == 0 {
			delete(q.waiting, p)
		}
	}
	return true
}

// Leave removes a player. It reports whether the player was queued; leaving
// twice is harmless.
func (q *Queue) Leave(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked([]string{id})
}

// Contains reports whether id is waiting.
func (q *Queue) Contains(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[id]
	return ok
}

// Len returns the number of waiting players.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// Snapshot returns per-partition counts ordered by partition.
func (q *Queue) Snapshot() []PartitionStats {
	now := q.clock.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := make([]PartitionStats, 0, len(q.waiting))
	for _, p := range q.partitionsLocked() {
		list := q.waiting[p]
		stats = append(stats, PartitionStats{
			Partition:  p,
			Waiting:    len(list),
			OldestWait: now.Sub(list[0].QueuedAt),
		})
	}
	return stats
}

func (q *Queue) partitionsLocked() []Partition {
	parts := make([]Partition, 0, len(q.waiting))
	for p := range q.waiting {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Mode != parts[j].Mode {
			return parts[i].Mode < parts[j].Mode
		}
		return parts[i].PointGoal < parts[j].PointGoal
	})
	return parts
}

func (q *Queue) triggerMatch() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled. Joins trigger an immediate tick.
func (q *Queue) Run(ctx context.Context) error {
	ticker := q.clock.NewTicker(q.config.TickInterval)
	defer ticker.Stop()

	q.logger.Info().Dur("interval", q.config.TickInterval).Msg("Matchmaking loop started")
	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("Matchmaking loop stopped")
			return ctx.Err()
		case <-ticker.C:
			q.Tick(ctx)
		case <-q.trigger:
			q.Tick(ctx)
		}
	}
}

// fill is a partition waiting on bots, captured under the lock.
type fill struct {
	partition Partition
	humans    []Entry
}

// Tick runs one matching pass over every partition and returns the matches
// that were handed off successfully.
func (q *Queue) Tick(ctx context.Context) []Match {
	q.tickMu.Lock()
	defer q.tickMu.Unlock()

	now := q.clock.Now()
	var ready []Match
	var fills []fill

	q.mu.Lock()
	for _, p := range q.partitionsLocked() {
		for len(q.waiting[p]) >= game.NumSeats {
			group := q.selectGroup(q.waiting[p])
			q.removeLocked(entryIDs(group))
			ready = append(ready, formMatch(p, group, false))
		}
		list := q.waiting[p]
		if len(list) > 0 && q.bots != nil && now.Sub(list[0].QueuedAt) >= q.config.BotFillAfter {
			fills = append(fills, fill{partition: p, humans: slices.Clone(list)})
		}
	}
	q.mu.Unlock()

	for _, f := range fills {
		if m, ok := q.fillWithBots(ctx, f); ok {
			ready = append(ready, m)
		}
	}

	var started []Match
	for _, m := range ready {
		if err := q.dispatch(ctx, m); err != nil {
			q.logger.Error().Err(err).
				Str("partition", m.Partition.String()).
				Msg("Match handler failed, returning players to queue")
			q.requeue(m.Humans())
			continue
		}
		started = append(started, m)
	}
	return started
}

// fillWithBots asks the bot source for the missing seats, then claims the
// humans if they are all still waiting.
func (q *Queue) fillWithBots(ctx context.Context, f fill) (Match, bool) {
	need := game.NumSeats - len(f.humans)
	ratings := make([]float64, len(f.humans))
	for i, e := range f.humans {
		ratings[i] = e.Rating
	}

	bots, err := q.bots.Bots(ctx, f.partition, need, rating.Average(ratings))
	if err == nil && len(bots) != need {
		err = fmt.Errorf("bot source returned %d bots, need %d", len(bots), need)
	}
	if err != nil {
		q.logger.Warn().Err(err).
			Str("partition", f.partition.String()).
			Int("waiting", len(f.humans)).
			Msg("Bot fill failed, players stay queued")
		return Match{}, false
	}

	q.mu.Lock()
	claimed := q.removeLocked(entryIDs(f.humans))
	q.mu.Unlock()
	if !claimed {
		// Someone left or was matched while bots were being fetched.
		return Match{}, false
	}

	group := append(slices.Clone(f.humans), bots...)
	for i := range group[len(f.humans):] {
		b := &group[len(f.humans)+i]
		b.IsBot = true
		b.Mode, b.PointGoal = f.partition.Mode, f.partition.PointGoal
	}
	return formMatch(f.partition, group, true), true
}

func (q *Queue) dispatch(ctx context.Context, m Match) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("match handler panic: %v", r)
		}
	}()
	if q.handler == nil {
		return nil
	}
	return q.handler(ctx, m)
}

// requeue puts players back with their original QueuedAt, skipping anyone
// who has rejoined in the meantime.
func (q *Queue) requeue(entries []Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range entries {
		if _, ok := q.byID[e.ID]; !ok {
			q.insertLocked(e)
		}
	}
}

// selectGroup picks four players from a partition with at least four waiting.
// The tightest rating window wins if its spread is within MaxRatingSpread,
// ties going to the window that has waited longest; otherwise the four
// longest-waiting players are taken.
func (q *Queue) selectGroup(list []Entry) []Entry {
	byRating := slices.Clone(list)
	sort.SliceStable(byRating, func(i, j int) bool { return byRating[i].Rating < byRating[j].Rating })

	best := -1
	var bestSpread float64
	var bestOldest time.Time
	for i := 0; i+game.NumSeats <= len(byRating); i++ {
		window := byRating[i : i+game.NumSeats]
		spread := window[len(window)-1].Rating - window[0].Rating
		oldest := window[0].QueuedAt
		for _, e := range window[1:] {
			if e.QueuedAt.Before(oldest) {
				oldest = e.QueuedAt
			}
		}
		if best < 0 || spread < bestSpread || (spread == bestSpread && oldest.Before(bestOldest)) {
			best, bestSpread, bestOldest = i, spread, oldest
		}
	}

	if bestSpread <= q.config.MaxRatingSpread {
		return slices.Clone(byRating[best : best+game.NumSeats])
	}
	return slices.Clone(list[:game.NumSeats])
}

// formMatch seats a group of four by interleaving ratings: the strongest and
// weakest players form team 0, the middle two team 1.
func formMatch(p Partition, group []Entry, botFilled bool) Match {
	sorted := slices.Clone(group)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

	m := Match{Partition: p, BotFilled: botFilled}
	m.Seats[0], m.Seats[2] = sorted[0], sorted[3]
	m.Seats[1], m.Seats[3] = sorted[1], sorted[2]
	for t := range m.TeamRatings {
		m.TeamRatings[t] = m.Seats[t].Rating + m.Seats[t+2].Rating
	}
	return m
}

func entryIDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
