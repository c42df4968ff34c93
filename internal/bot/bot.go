// Package bot chooses bids and card plays for computer-controlled seats.
package bot

import (
	"fmt"
	rand "math/rand/v2"
	"sort"
	"strings"

	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/rs/zerolog"
)

// Strategy decides for one seat. Play must return a member of
// game.LegalPlays for the seat.
type Strategy interface {
	Name() string
	Bid(s *game.GameState, seat int) int
	Play(s *game.GameState, seat int) deck.Card
}

// Act applies the strategy's decision for the current player and returns the
// next state.
func Act(s *game.GameState, strategy Strategy) (*game.GameState, error) {
	seat := s.CurrentPlayerIndex
	player := s.CurrentPlayer()
	if player == nil {
		return nil, fmt.Errorf("no current player at seat %d", seat)
	}
	switch s.Phase {
	case game.PhaseBidding:
		return game.PlaceBid(s, player.ID, strategy.Bid(s, seat))
	case game.PhasePlaying:
		card := strategy.Play(s, seat)
		return game.PlayCard(s, player.ID, card.ID)
	default:
		return nil, fmt.Errorf("%s cannot act in phase %s", strategy.Name(), s.Phase)
	}
}

// Resolve returns a strategy by name.
func Resolve(name string, rng *rand.Rand, logger zerolog.Logger) (Strategy, error) {
	switch strings.ToLower(name) {
	case "", "heuristic":
		return NewHeuristic(rng, logger), nil
	case "lowest":
		return Lowest{Bids: [game.NumSeats]int{3, 3, 3, 3}}, nil
	default:
		return nil, fmt.Errorf("unknown bot strategy %q", name)
	}
}

// byStrength returns a copy of cards ordered weakest first for the given lead.
// Cards that cannot win tie on power and fall back to rank, then suit.
func byStrength(cards []deck.Card, mode deck.Mode, lead deck.Suit) []deck.Card {
	sorted := make([]deck.Card, len(cards))
	copy(sorted, cards)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := deck.Power(sorted[i], mode, lead), deck.Power(sorted[j], mode, lead)
		if pi != pj {
			return pi < pj
		}
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank < sorted[j].Rank
		}
		return sorted[i].Suit < sorted[j].Suit
	})
	return sorted
}

func lowest(cards []deck.Card, mode deck.Mode, lead deck.Suit) deck.Card {
	if len(cards) == 0 {
		return deck.Card{}
	}
	return byStrength(cards, mode, lead)[0]
}
