package bot

import (
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
)

// Lowest is a scripted player: a fixed bid per seat and always the weakest
// legal card. It is deterministic, which makes whole games reproducible.
type Lowest struct {
	Bids [game.NumSeats]int
}

func (Lowest) Name() string { return "lowest" }

func (l Lowest) Bid(_ *game.GameState, seat int) int {
	if seat < 0 || seat >= game.NumSeats {
		return 1
	}
	return l.Bids[seat]
}

func (Lowest) Play(s *game.GameState, seat int) deck.Card {
	return lowest(game.LegalPlays(s, seat), s.Mode, s.CurrentTrick.LeadSuit)
}
