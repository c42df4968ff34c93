package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/spades/internal/bot"
	"github.com/lox/spades/internal/matchmaking"
	"github.com/lox/spades/internal/rating"
)

// FileConfig is the HCL server configuration file.
type FileConfig struct {
	Server      ServerSettings       `hcl:"server,block"`
	Room        *RoomSettings        `hcl:"room,block"`
	Matchmaking *MatchmakingSettings `hcl:"matchmaking,block"`
	Storage     *StorageSettings     `hcl:"storage,block"`
}

// ServerSettings contains listener and logging configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// RoomSettings controls bot pacing and rating updates inside rooms.
// Durations use Go syntax such as "750ms".
type RoomSettings struct {
	BotDelayMin       string  `hcl:"bot_delay_min,optional"`
	BotDelayMax       string  `hcl:"bot_delay_max,optional"`
	TrickDisplayDelay string  `hcl:"trick_display_delay,optional"`
	BotStrategy       string  `hcl:"bot_strategy,optional"`
	EloK              float64 `hcl:"elo_k,optional"`
}

// MatchmakingSettings controls the queue.
type MatchmakingSettings struct {
	TickInterval    string  `hcl:"tick_interval,optional"`
	BotFillAfter    string  `hcl:"bot_fill_after,optional"`
	MaxRatingSpread float64 `hcl:"max_rating_spread,optional"`
	BotRatingJitter float64 `hcl:"bot_rating_jitter,optional"`
}

// StorageSettings selects the game store and the user directory.
type StorageSettings struct {
	Games         string `hcl:"games,optional"` // memory, file, redis or none
	Dir           string `hcl:"dir,optional"`
	RedisAddr     string `hcl:"redis_addr,optional"`
	RedisPassword string `hcl:"redis_password,optional"`
	RedisDB       int    `hcl:"redis_db,optional"`
	RedisTTL      string `hcl:"redis_ttl,optional"`
	Users         string `hcl:"users,optional"` // memory or postgres
	PostgresDSN   string `hcl:"postgres_dsn,optional"`
	UserCacheSize int64  `hcl:"user_cache_size,optional"`
	UserCacheTTL  string `hcl:"user_cache_ttl,optional"`
}

// DefaultFileConfig returns the configuration used when no file is given.
func DefaultFileConfig() *FileConfig {
	c := &FileConfig{}
	c.applyDefaults()
	return c
}

// LoadFileConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadFileConfig(filename string) (*FileConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultFileConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config FileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	config.applyDefaults()
	return &config, nil
}

func (c *FileConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Room == nil {
		c.Room = &RoomSettings{}
	}
	if c.Room.BotDelayMin == "" {
		c.Room.BotDelayMin = "500ms"
	}
	if c.Room.BotDelayMax == "" {
		c.Room.BotDelayMax = "1500ms"
	}
	if c.Room.TrickDisplayDelay == "" {
		c.Room.TrickDisplayDelay = "2s"
	}
	if c.Room.BotStrategy == "" {
		c.Room.BotStrategy = "heuristic"
	}
	if c.Room.EloK == 0 {
		c.Room.EloK = rating.DefaultK
	}

	if c.Matchmaking == nil {
		c.Matchmaking = &MatchmakingSettings{}
	}
	mm := matchmaking.DefaultConfig()
	if c.Matchmaking.TickInterval == "" {
		c.Matchmaking.TickInterval = mm.TickInterval.String()
	}
	if c.Matchmaking.BotFillAfter == "" {
		c.Matchmaking.BotFillAfter = mm.BotFillAfter.String()
	}
	if c.Matchmaking.MaxRatingSpread == 0 {
		c.Matchmaking.MaxRatingSpread = mm.MaxRatingSpread
	}
	if c.Matchmaking.BotRatingJitter == 0 {
		c.Matchmaking.BotRatingJitter = mm.BotRatingJitter
	}

	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}
	if c.Storage.Games == "" {
		c.Storage.Games = "memory"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "games"
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "localhost:6379"
	}
	if c.Storage.Users == "" {
		c.Storage.Users = "memory"
	}
	if c.Storage.UserCacheSize == 0 {
		c.Storage.UserCacheSize = 10000
	}
	if c.Storage.UserCacheTTL == "" {
		c.Storage.UserCacheTTL = "5m"
	}
}

// Validate checks the configuration and that every duration parses.
func (c *FileConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if _, err := c.RoomConfig(); err != nil {
		return err
	}
	if _, err := c.MatchmakingConfig(); err != nil {
		return err
	}

	switch c.Storage.Games {
	case "memory", "file", "redis", "none":
	default:
		return fmt.Errorf("storage: unknown game store %q", c.Storage.Games)
	}
	switch c.Storage.Users {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage: postgres users need postgres_dsn")
		}
	default:
		return fmt.Errorf("storage: unknown user directory %q", c.Storage.Users)
	}
	if _, err := parseDuration("redis_ttl", c.Storage.RedisTTL); err != nil {
		return err
	}
	if _, err := parseDuration("user_cache_ttl", c.Storage.UserCacheTTL); err != nil {
		return err
	}
	return nil
}

// RoomConfig converts the room block.
func (c *FileConfig) RoomConfig() (RoomConfig, error) {
	var rc RoomConfig
	var err error
	if rc.BotDelayMin, err = parseDuration("bot_delay_min", c.Room.BotDelayMin); err != nil {
		return rc, err
	}
	if rc.BotDelayMax, err = parseDuration("bot_delay_max", c.Room.BotDelayMax); err != nil {
		return rc, err
	}
	if rc.TrickDisplayDelay, err = parseDuration("trick_display_delay", c.Room.TrickDisplayDelay); err != nil {
		return rc, err
	}
	if rc.BotDelayMax < rc.BotDelayMin {
		return rc, fmt.Errorf("room: bot_delay_max %s is below bot_delay_min %s", rc.BotDelayMax, rc.BotDelayMin)
	}
	if _, err := bot.Resolve(c.Room.BotStrategy, nil, nopLogger); err != nil {
		return rc, fmt.Errorf("room: %w", err)
	}
	rc.BotStrategy = c.Room.BotStrategy
	rc.EloK = c.Room.EloK
	return rc, nil
}

// MatchmakingConfig converts the matchmaking block.
func (c *FileConfig) MatchmakingConfig() (matchmaking.Config, error) {
	var mc matchmaking.Config
	var err error
	if mc.TickInterval, err = parseDuration("tick_interval", c.Matchmaking.TickInterval); err != nil {
		return mc, err
	}
	if mc.TickInterval <= 0 {
		return mc, errors.New("matchmaking: tick_interval must be positive")
	}
	if mc.BotFillAfter, err = parseDuration("bot_fill_after", c.Matchmaking.BotFillAfter); err != nil {
		return mc, err
	}
	if c.Matchmaking.MaxRatingSpread < 0 || c.Matchmaking.BotRatingJitter < 0 {
		return mc, errors.New("matchmaking: rating spread and jitter must not be negative")
	}
	mc.MaxRatingSpread = c.Matchmaking.MaxRatingSpread
	mc.BotRatingJitter = c.Matchmaking.BotRatingJitter
	return mc, nil
}

// GetServerAddress returns the full listen address.
func (c *FileConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

func parseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", name)
	}
	return d, nil
}
