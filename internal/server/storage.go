package server

import (
	"context"
	"fmt"

	"github.com/lox/spades/internal/store"
	"github.com/lox/spades/internal/users"
	"github.com/rs/zerolog"
)

// redisKeyPrefix namespaces game keys in a shared Redis.
const redisKeyPrefix = "spades:game:"

// Storage holds the backends selected by a storage block.
type Storage struct {
	Games   store.Store
	Users   users.Directory
	closers []func()
}

// Close releases every backend in reverse order of opening.
func (s *Storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStorage connects the game store and user directory named in settings.
// A "none" game store leaves Games nil so finished games are not kept.
func OpenStorage(ctx context.Context, settings *StorageSettings, logger zerolog.Logger) (*Storage, error) {
	logger = logger.With().Str("component", "storage").Logger()
	s := &Storage{}

	switch settings.Games {
	case "memory":
		s.Games = store.NewMemoryStore()
	case "none":
	case "file":
		fs, err := store.NewFileStore(settings.Dir)
		if err != nil {
			return nil, err
		}
		s.Games = fs
	case "redis":
		ttl, err := parseDuration("redis_ttl", settings.RedisTTL)
		if err != nil {
			return nil, err
		}
		client, err := store.DialRedis(ctx, settings.RedisAddr, settings.RedisPassword, settings.RedisDB)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.Games = store.NewRedisStore(client, redisKeyPrefix, ttl)
	default:
		return nil, fmt.Errorf("storage: unknown game store %q", settings.Games)
	}
	logger.Info().Str("games", settings.Games).Msg("Game store ready")

	switch settings.Users {
	case "memory":
		s.Users = users.NewMemoryDirectory()
	case "postgres":
		pg, err := users.OpenPostgres(ctx, settings.PostgresDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pg.Close)
		s.Users = pg
	default:
		s.Close()
		return nil, fmt.Errorf("storage: unknown user directory %q", settings.Users)
	}

	if settings.UserCacheSize > 0 && settings.Users != "memory" {
		ttl, err := parseDuration("user_cache_ttl", settings.UserCacheTTL)
		if err != nil {
			s.Close()
			return nil, err
		}
		cached, err := users.NewCachedDirectory(s.Users, settings.UserCacheSize, ttl)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, cached.Close)
		s.Users = cached
	}
	logger.Info().Str("users", settings.Users).Int64("cache_size", settings.UserCacheSize).Msg("User directory ready")
	return s, nil
}
