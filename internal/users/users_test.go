package users

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lox/spades/internal/rating"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDirectory struct {
	Directory
	gets atomic.Int32
}

func (c *countingDirectory) GetUser(ctx context.Context, id string) (User, error) {
	c.gets.Add(1)
	return c.Directory.GetUser(ctx, id)
}

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d := NewMemoryDirectory(User{ID: "alice", Name: "Alice", Rating: 1620})

	u, err := d.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1620.0, u.Rating)

	_, err = d.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, d.UpdateRating(ctx, "bob", 1490))
	u, err = d.GetUser(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1490.0, u.Rating)
}

func TestRatingOf(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	d := NewMemoryDirectory(User{ID: "alice", Rating: 1700})
	r, err := RatingOf(ctx, d, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1700.0, r)

	r, err = RatingOf(ctx, d, "stranger")
	require.NoError(t, err)
	assert.Equal(t, rating.Default, r)
}

func TestCachedDirectory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backing := &countingDirectory{Directory: NewMemoryDirectory(User{ID: "alice", Rating: 1600})}
	d, err := NewCachedDirectory(backing, 100, time.Minute)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.GetUser(ctx, "alice")
	require.NoError(t, err)
	d.Wait()
	u, err := d.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1600.0, u.Rating)
	assert.Equal(t, int32(1), backing.gets.Load(), "second read is served from cache")

	require.NoError(t, d.UpdateRating(ctx, "alice", 1650))
	u, err = d.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1650.0, u.Rating, "update evicts the stale entry")

	_, err = d.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// gatedDirectory pauses the first read after it has fetched its value.
type gatedDirectory struct {
	Directory
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedDirectory) GetUser(ctx context.Context, id string) (User, error) {
	u, err := g.Directory.GetUser(ctx, id)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return u, err
}

func TestCachedDirectoryReadRacingUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backing := &gatedDirectory{
		Directory: NewMemoryDirectory(User{ID: "alice", Rating: 1500}),
		read:      make(chan struct{}),
		release:   make(chan struct{}),
	}
	d, err := NewCachedDirectory(backing, 100, time.Minute)
	require.NoError(t, err)
	defer d.Close()

	slow := make(chan User, 1)
	go func() {
		u, _ := d.GetUser(ctx, "alice")
		slow <- u
	}()
	<-backing.read

	require.NoError(t, d.UpdateRating(ctx, "alice", 1620))
	close(backing.release)
	assert.Equal(t, 1500.0, (<-slow).Rating)
	d.Wait()

	u, err := d.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1620.0, u.Rating, "read that overlapped the update was cached")
}

func TestPostgresDirectory(t *testing.T) {
	dsn := os.Getenv("SPADES_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPADES_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	d, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer d.Close()

	id := "test-" + uuid.NewString()
	_, err = d.GetUser(ctx, id)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, d.Upsert(ctx, User{ID: id, Name: "Tester"}))
	u, err := d.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Tester", u.Name)
	assert.Equal(t, rating.Default, u.Rating)

	require.NoError(t, d.UpdateRating(ctx, id, 1532.5))
	u, err = d.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1532.5, u.Rating)
	assert.Equal(t, "Tester", u.Name)
}
