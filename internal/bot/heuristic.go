package bot

import (
	"math"
	rand "math/rand/v2"

	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
	"github.com/rs/zerolog"
)

const (
	minBid = 1
	// bidNoise is the width of the uniform jitter added to a hand's value.
	bidNoise = 1.0
	// trumpLengthValue is credited for each trump beyond the second.
	trumpLengthValue = 0.6
)

// Heuristic bids from a weighted count of likely tricks and plays with simple
// leading and following rules. It never bids nil.
type Heuristic struct {
	rng    *rand.Rand
	logger zerolog.Logger
}

// NewHeuristic creates a heuristic bot. The rng must not be shared across
// goroutines.
func NewHeuristic(rng *rand.Rand, logger zerolog.Logger) *Heuristic {
	return &Heuristic{
		rng:    rng,
		logger: logger.With().Str("component", "bot").Str("strategy", "heuristic").Logger(),
	}
}

func (h *Heuristic) Name() string { return "heuristic" }

// Bid returns a bid in [1, 13].
func (h *Heuristic) Bid(s *game.GameState, seat int) int {
	hand := s.Players[seat].Hand
	value := HandValue(hand, s.Mode)
	value += (h.rng.Float64() - 0.5) * bidNoise

	bid := int(math.Round(value))
	bid = max(minBid, min(game.MaxBid, bid))

	h.logger.Debug().
		Str("player_id", s.Players[seat].ID).
		Float64("value", value).
		Int("bid", bid).
		Msg("bot bid")
	return bid
}

// HandValue estimates how many tricks a hand takes.
func HandValue(hand []deck.Card, mode deck.Mode) float64 {
	suitLen := make(map[deck.Suit]int)
	trumps := 0
	for _, c := range hand {
		if deck.IsTrump(c, mode) {
			trumps++
			continue
		}
		suitLen[c.Suit]++
	}

	value := 0.0
	for _, c := range hand {
		if deck.IsTrump(c, mode) {
			value += trumpValue(c, mode)
		} else {
			value += sideValue(c, suitLen[c.Suit])
		}
	}
	if trumps > 2 {
		value += trumpLengthValue * float64(trumps-2)
	}
	return value
}

func trumpValue(c deck.Card, mode deck.Mode) float64 {
	ladder := deck.Power(c, mode, deck.TrumpSuit) - deck.Power(deck.NewCard(deck.Spades, deck.Ace), mode, deck.TrumpSuit)
	switch {
	case ladder > 0:
		// jjdd specials above the ace.
		return 1.0
	case ladder == 0:
		if mode == deck.ModeJJDD {
			return 0.8
		}
		return 1.0
	case ladder == -1:
		return 0.7
	case ladder == -2:
		return 0.4
	default:
		return 0
	}
}

// sideValue credits side-suit honors, discounted when the suit is too short
// to protect them.
func sideValue(c deck.Card, length int) float64 {
	switch c.Rank {
	case deck.Ace:
		if length > 6 {
			return 0.6
		}
		return 0.9
	case deck.King:
		if length >= 2 && length <= 5 {
			return 0.6
		}
		return 0.2
	case deck.Queen:
		if length >= 3 && length <= 4 {
			return 0.25
		}
		return 0
	default:
		return 0
	}
}

// Play picks a legal card for seat.
func (h *Heuristic) Play(s *game.GameState, seat int) deck.Card {
	legal := game.LegalPlays(s, seat)
	if len(legal) <= 1 {
		if len(legal) == 0 {
			return deck.Card{}
		}
		return legal[0]
	}

	var card deck.Card
	var reason string
	if len(s.CurrentTrick.Plays) == 0 {
		card, reason = lead(legal, s.Mode)
	} else {
		card, reason = follow(s, seat, legal)
	}

	h.logger.Debug().
		Str("player_id", s.Players[seat].ID).
		Str("card", card.ID).
		Str("reason", reason).
		Msg("bot play")
	return card
}

// lead prefers the longest side suit, playing its top honor or a middle card.
// With only trump available it plays the middle card by power.
func lead(legal []deck.Card, mode deck.Mode) (deck.Card, string) {
	bySuit := make(map[deck.Suit][]deck.Card)
	for _, c := range legal {
		if !deck.IsTrump(c, mode) {
			bySuit[c.Suit] = append(bySuit[c.Suit], c)
		}
	}

	var longest []deck.Card
	for _, suit := range deck.Suits {
		if cards := bySuit[suit]; len(cards) > len(longest) {
			longest = cards
		}
	}

	if len(longest) == 0 {
		sorted := byStrength(legal, mode, deck.NoSuit)
		return sorted[len(sorted)/2], "middle trump"
	}

	sorted := byStrength(longest, mode, longest[0].Suit)
	if top := sorted[len(sorted)-1]; top.IsHonor() {
		return top, "lead honor from longest suit"
	}
	return sorted[len(sorted)/2], "lead middle of longest suit"
}

// follow takes the trick as cheaply as possible unless the partner already
// has it won on the last play.
func follow(s *game.GameState, seat int, legal []deck.Card) (deck.Card, string) {
	trick := s.CurrentTrick
	winIdx := game.TrickWinner(trick.Plays, s.Mode, trick.LeadSuit)
	best := deck.Power(trick.Plays[winIdx].Card, s.Mode, trick.LeadSuit)
	partnerWinning := trick.Plays[winIdx].PlayerID == s.Players[game.PartnerOf(seat)].ID

	if partnerWinning && len(trick.Plays) == game.NumSeats-1 {
		return lowest(legal, s.Mode, trick.LeadSuit), "partner has it"
	}

	var winners []deck.Card
	for _, c := range legal {
		if deck.Power(c, s.Mode, trick.LeadSuit) > best {
			winners = append(winners, c)
		}
	}
	if len(winners) > 0 {
		return lowest(winners, s.Mode, trick.LeadSuit), "cheapest winner"
	}
	return lowest(legal, s.Mode, trick.LeadSuit), "cannot win"
}
