// Package users is the boundary to player accounts: looking a player up and
// recording a new rating after a game. Account storage itself lives behind
// the Directory interface.
package users

import (
	"context"
	"errors"
	"sync"

	"github.com/lox/spades/internal/rating"
)

// ErrUserNotFound is returned by GetUser for an unknown id.
var ErrUserNotFound = errors.New("user not found")

// User is the part of an account the game server needs.
type User struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// Directory looks up users and records rating changes. UpdateRating creates
// the user if it does not exist.
type Directory interface {
	GetUser(ctx context.Context, id string) (User, error)
	UpdateRating(ctx context.Context, id string, rating float64) error
}

// RatingOf returns the user's rating, or rating.Default when the directory
// does not know them.
func RatingOf(ctx context.Context, dir Directory, id string) (float64, error) {
	u, err := dir.GetUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return rating.Default, nil
	}
	if err != nil {
		return 0, err
	}
	return u.Rating, nil
}

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory returns a directory seeded with users.
func NewMemoryDirectory(seed ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(seed))}
	for _, u := range seed {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryDirectory) GetUser(_ context.Context, id string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (d *MemoryDirectory) UpdateRating(_ context.Context, id string, r float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		u = User{ID: id, Name: id}
	}
	u.Rating = r
	d.users[id] = u
	return nil
}
