package deck

import (
	"fmt"
	rand "math/rand/v2"
)

// Mode selects the rule set for a game.
type Mode string

const (
	// ModeAceHigh is standard Spades: 52 cards, spades are trump, aces high.
	ModeAceHigh Mode = "ace_high"
	// ModeJJDD is joker-joker-deuce-deuce: the 2♥ and 2♣ are replaced by two
	// jokers, and the top of the trump ladder is ♦2, ♠2, little joker, big joker.
	ModeJJDD Mode = "jjdd"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAceHigh || m == ModeJJDD
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// HandSize is the number of cards dealt to each of the four players.
const HandSize = 13

// Build returns a fresh, ordered deck for the given mode.
func Build(mode Mode) []Card {
	cards := make([]Card, 0, 52)
	for _, suit := range Suits {
		for rank := Two; rank <= Ace; rank++ {
			if mode == ModeJJDD && rank == Two && (suit == Hearts || suit == Clubs) {
				continue
			}
			cards = append(cards, NewCard(suit, rank))
		}
	}
	if mode == ModeJJDD {
		cards = append(cards, NewCard(Joker, LittleJoker), NewCard(Joker, BigJoker))
	}
	return cards
}

// Shuffle randomizes the order of cards in place (Fisher–Yates).
func Shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// Deal splits a full deck into four hands of HandSize cards, each sorted
// for display.
func Deal(cards []Card, mode Mode) ([4][]Card, error) {
	var hands [4][]Card
	if len(cards) != 4*HandSize {
		return hands, fmt.Errorf("deck has %d cards, need %d", len(cards), 4*HandSize)
	}
	for i := range hands {
		hand := make([]Card, HandSize)
		copy(hand, cards[i*HandSize:(i+1)*HandSize])
		hands[i] = SortHand(hand, mode)
	}
	return hands, nil
}
