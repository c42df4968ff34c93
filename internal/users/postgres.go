package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lox/spades/internal/rating"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    rating     DOUBLE PRECISION NOT NULL DEFAULT 1500,
    games      INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresDirectory stores players in a Postgres table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the players table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	d := NewPostgresDirectory(pool)
	if err := d.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// NewPostgresDirectory wraps an existing pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Migrate creates the players table if needed.
func (d *PostgresDirectory) Migrate(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate players: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) GetUser(ctx context.Context, id string) (User, error) {
	u := User{ID: id}
	err := d.pool.QueryRow(ctx, `SELECT name, rating FROM players WHERE id = $1`, id).Scan(&u.Name, &u.Rating)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (d *PostgresDirectory) UpdateRating(ctx context.Context, id string, r float64) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO players (id, name, rating, games)
		VALUES ($1, $1, $2, 1)
		ON CONFLICT (id) DO UPDATE
		   SET rating = EXCLUDED.rating,
		       games = players.games + 1,
		       updated_at = now()
	`, id, r)
	if err != nil {
		return fmt.Errorf("update rating %s: %w", id, err)
	}
	return nil
}

// Upsert creates the user or renames an existing one, leaving the rating alone.
func (d *PostgresDirectory) Upsert(ctx context.Context, u User) error {
	if u.Rating == 0 {
		u.Rating = rating.Default
	}
	_, err := d.pool.Exec(ctx, `
		INSERT INTO players (id, name, rating)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		   SET name = EXCLUDED.name,
		       updated_at = now()
	`, u.ID, u.Name, u.Rating)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// Close releases the pool.
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}
