package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lox/spades/cmd/spades/shared"
	"github.com/lox/spades/internal/bot"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/lox/spades/internal/randutil"
	"github.com/lox/spades/internal/statistics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SimulateCmd plays bot-only games straight on the engine.
type SimulateCmd struct {
	Games      int    `short:"n" default:"100" help:"Number of games to play"`
	Mode       string `default:"ace_high" help:"Deck mode: ace_high or jjdd"`
	PointGoal  int    `name:"point-goal" default:"500" help:"Score that ends a game"`
	Seed       int64  `help:"RNG seed (0 for random)"`
	Workers    int    `short:"w" default:"4" help:"Games played in parallel"`
	NorthSouth string `name:"north-south" default:"heuristic" help:"Strategy for north/south: heuristic or lowest"`
	EastWest   string `name:"east-west" default:"heuristic" help:"Strategy for east/west: heuristic or lowest"`
	MaxRounds  int    `name:"max-rounds" default:"200" help:"Abandon a game after this many rounds"`
	Debug      bool   `help:"Enable debug logging"`
	LogJSON    bool   `name:"log-json" help:"Log JSON instead of console output"`
}

type simOptions struct {
	Games      int
	Mode       deck.Mode
	PointGoal  int
	Seed       int64
	Workers    int
	Strategies [2]string
	MaxRounds  int
}

func (c *SimulateCmd) Run() error {
	level, err := shared.ParseLevel("", c.Debug)
	if err != nil {
		return err
	}
	logger := shared.NewLogger(level, c.LogJSON)

	mode, err := deck.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if c.Seed == 0 {
		c.Seed = randutil.NewSeed()
	}
	opts := simOptions{
		Games:      c.Games,
		Mode:       mode,
		PointGoal:  c.PointGoal,
		Seed:       c.Seed,
		Workers:    c.Workers,
		Strategies: [2]string{c.NorthSouth, c.EastWest},
		MaxRounds:  c.MaxRounds,
	}

	ctx := shared.SetupSignalHandlerWithLogger(logger)
	start := time.Now()
	stats, err := runSimulation(ctx, opts, logger)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := stats.Validate(); err != nil {
		return err
	}

	low, high := stats.ConfidenceInterval95()
	logger.Info().
		Int("games", stats.Games).
		Int("unfinished", stats.Unfinished).
		Int64("seed", opts.Seed).
		Dur("elapsed", elapsed).
		Msg("Simulation complete")

	fmt.Fprintf(os.Stdout, "%d games of %s to %d (seed %d) in %s\n", stats.Games, opts.Mode, opts.PointGoal, opts.Seed, elapsed.Round(time.Millisecond))
	for team, name := range []string{"North/South", "East/West"} {
		fmt.Fprintf(os.Stdout, "  %-12s %-10s wins %4d (%5.1f%%)  avg score %6.1f\n",
			name, opts.Strategies[team], stats.Wins[team], 100*stats.WinRate(team), stats.AvgScore(team))
	}
	fmt.Fprintf(os.Stdout, "  margin %.1f ± %.1f (95%% CI [%.1f, %.1f]), median %.1f\n",
		stats.Mean(), stats.StdError(), low, high, stats.Median())
	fmt.Fprintf(os.Stdout, "  avg rounds %.1f, unfinished %d\n", stats.AvgRounds(), stats.Unfinished)
	return nil
}

// runSimulation plays opts.Games games across opts.Workers goroutines. Each
// game derives its own seed and results are added in game order, so the
// summary does not depend on scheduling.
func runSimulation(ctx context.Context, opts simOptions, logger zerolog.Logger) (*statistics.Statistics, error) {
	if opts.Games <= 0 {
		return nil, fmt.Errorf("games must be positive, got %d", opts.Games)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 200
	}
	for _, name := range opts.Strategies {
		if _, err := bot.Resolve(name, randutil.New(0), logger); err != nil {
			return nil, err
		}
	}

	results := make([]statistics.GameResult, opts.Games)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i := range opts.Games {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := playGame(gctx, opts, i, logger)
			if err != nil {
				return fmt.Errorf("game %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &statistics.Statistics{}
	for _, r := range results {
		stats.Add(r)
	}
	return stats, nil
}

// playGame runs one game to completion or the round cap.
func playGame(ctx context.Context, opts simOptions, index int, logger zerolog.Logger) (statistics.GameResult, error) {
	seed := randutil.Derive(opts.Seed, uint64(index)).Int64()
	rng := randutil.New(seed)
	dealer := index % game.NumSeats
	res := statistics.GameResult{Seed: seed, Dealer: dealer, Winner: -1}

	var strategies [game.NumSeats]bot.Strategy
	players := make([]game.PlayerSpec, game.NumSeats)
	for seat := range game.NumSeats {
		s, err := bot.Resolve(opts.Strategies[game.TeamOf(seat)], rng, logger)
		if err != nil {
			return res, err
		}
		strategies[seat] = s
		players[seat] = game.PlayerSpec{
			ID:    fmt.Sprintf("bot-%d", seat),
			Name:  fmt.Sprintf("%s %s", s.Name(), game.Seat(seat)),
			IsBot: true,
		}
	}

	s, err := game.New(game.Config{
		ID:           fmt.Sprintf("sim-%d", index),
		Mode:         opts.Mode,
		WinningScore: opts.PointGoal,
		Players:      players,
		Seed:         seed,
		DealerIndex:  dealer,
	})
	if err != nil {
		return res, err
	}
	if s, err = game.Start(s); err != nil {
		return res, err
	}

	for !s.IsOver() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if s.RoundNumber > opts.MaxRounds {
			logger.Warn().Str("game_id", s.ID).Int("rounds", opts.MaxRounds).Msg("Round cap reached")
			break
		}
		if s.TrickComplete() {
			s, err = game.CollectTrick(s)
		} else {
			s, err = bot.Act(s, strategies[s.CurrentPlayerIndex])
		}
		if err != nil {
			return res, err
		}
	}
	logger.Debug().
		Str("game_id", s.ID).
		Int("rounds", s.RoundNumber).
		Int("ns", s.Teams[0].Score).
		Int("ew", s.Teams[1].Score).
		Msg("Game finished")

	res.Rounds = s.RoundNumber
	res.Scores = [2]int{s.Teams[0].Score, s.Teams[1].Score}
	if s.WinningTeam != nil {
		res.Winner = *s.WinningTeam
	}
	return res, nil
}

