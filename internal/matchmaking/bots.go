package matchmaking

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// GeneratedBots makes fresh bot entries on demand. Bot ratings are sampled
// uniformly within Jitter of the requested average.
type GeneratedBots struct {
	Strategy string
	Jitter   float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGeneratedBots creates a bot source using rng for rating jitter.
func NewGeneratedBots(strategy string, jitter float64, rng *rand.Rand) *GeneratedBots {
	if strategy == "" {
		strategy = "heuristic"
	}
	return &GeneratedBots{Strategy: strategy, Jitter: jitter, rng: rng}
}

func (g *GeneratedBots) Bots(_ context.Context, p Partition, n int, around float64) ([]Entry, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative bot count %d", n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	bots := make([]Entry, n)
	for i := range bots {
		id := fmt.Sprintf("bot-%s-%s", g.Strategy, uuid.NewString()[:8])
		r := around
		if g.Jitter > 0 {
			r += (g.rng.Float64()*2 - 1) * g.Jitter
		}
		bots[i] = Entry{
			ID:        id,
			Name:      id,
			Rating:    r,
			Mode:      p.Mode,
			PointGoal: p.PointGoal,
			IsBot:     true,
		}
	}
	return bots, nil
}
