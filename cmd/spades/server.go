package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lox/spades/cmd/spades/shared"
	"github.com/lox/spades/internal/server"
	"golang.org/x/sync/errgroup"
)

// ServerCmd runs the websocket server and the matchmaking loop.
type ServerCmd struct {
	Config  string `short:"c" default:"spades.hcl" help:"Path to HCL configuration file"`
	Addr    string `help:"Listen address host:port (overrides config)"`
	EnvFile string `name:"env-file" default:".env" help:"Environment file for secrets such as SPADES_POSTGRES_DSN"`
	Debug   bool   `help:"Enable debug logging"`
	LogJSON bool   `name:"log-json" help:"Log JSON instead of console output"`
	Seed    int64  `help:"Deterministic seed for deals and bots (0 for random)"`
}

// Environment variables that override secrets in the config file.
const (
	envPostgresDSN   = "SPADES_POSTGRES_DSN"
	envRedisPassword = "SPADES_REDIS_PASSWORD"
)

func (c *ServerCmd) Run() error {
	if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", c.EnvFile, err)
	}

	cfg, err := server.LoadFileConfig(c.Config)
	if err != nil {
		return err
	}
	if dsn := os.Getenv(envPostgresDSN); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
	if pw := os.Getenv(envRedisPassword); pw != "" {
		cfg.Storage.RedisPassword = pw
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	roomCfg, err := cfg.RoomConfig()
	if err != nil {
		return err
	}
	mmCfg, err := cfg.MatchmakingConfig()
	if err != nil {
		return err
	}

	level, err := shared.ParseLevel(cfg.Server.LogLevel, c.Debug)
	if err != nil {
		return err
	}
	logger := shared.NewLogger(level, c.LogJSON)

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	ctx := shared.SetupSignalHandlerWithLogger(logger)

	storage, err := server.OpenStorage(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	s := server.New(logger, server.Options{
		Room:        roomCfg,
		Matchmaking: mmCfg,
		Users:       storage.Users,
		Store:       storage.Games,
		Seed:        c.Seed,
	})

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("address", addr).
		Str("config", c.Config).
		Str("bot_strategy", roomCfg.BotStrategy).
		Dur("bot_fill_after", mmCfg.BotFillAfter).
		Float64("max_rating_spread", mmCfg.MaxRatingSpread).
		Str("games", cfg.Storage.Games).
		Str("users", cfg.Storage.Users).
		Msg("Starting Spades server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
