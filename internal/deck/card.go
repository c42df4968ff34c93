package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit. Joker is the trump-only marker used by the
// jokers in the jjdd mode; Hidden marks an opaque placeholder card.
type Suit uint8

const (
	NoSuit Suit = iota
	Spades
	Hearts
	Clubs
	Diamonds
	Joker
	Hidden
)

// Suits lists the four canonical suits in display order.
var Suits = [...]Suit{Spades, Hearts, Clubs, Diamonds}

// String returns the symbol for a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Hearts:
		return "♥"
	case Clubs:
		return "♣"
	case Diamonds:
		return "♦"
	case Joker:
		return "🃏"
	case Hidden:
		return "▒"
	default:
		return "?"
	}
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

func (s Suit) letter() string {
	switch s {
	case Spades:
		return "S"
	case Hearts:
		return "H"
	case Clubs:
		return "C"
	case Diamonds:
		return "D"
	default:
		return ""
	}
}

var suitNames = map[Suit]string{
	Spades:   "spades",
	Hearts:   "hearts",
	Clubs:    "clubs",
	Diamonds: "diamonds",
	Joker:    "joker",
	Hidden:   "hidden",
}

// MarshalText encodes the suit as its lowercase name.
func (s Suit) MarshalText() ([]byte, error) {
	return []byte(suitNames[s]), nil
}

// UnmarshalText decodes a lowercase suit name.
func (s *Suit) UnmarshalText(text []byte) error {
	name := string(text)
	if name == "" {
		*s = NoSuit
		return nil
	}
	for suit, n := range suitNames {
		if n == name {
			*s = suit
			return nil
		}
	}
	return fmt.Errorf("unknown suit %q", name)
}

// Rank represents a card rank. The two joker ranks only exist in the jjdd mode.
type Rank uint8

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
	LittleJoker
	BigJoker
)

var rankLabels = map[Rank]string{
	Two: "2", Three: "3", Four: "4", Five: "5", Six: "6", Seven: "7", Eight: "8",
	Nine: "9", Ten: "10", Jack: "J", Queen: "Q", King: "K", Ace: "A",
	LittleJoker: "LJ", BigJoker: "BJ",
}

// String returns the rank label
func (r Rank) String() string {
	if label, ok := rankLabels[r]; ok {
		return label
	}
	return "?"
}

// MarshalText encodes the rank label; the zero rank (hidden cards) encodes empty.
func (r Rank) MarshalText() ([]byte, error) {
	return []byte(rankLabels[r]), nil
}

// UnmarshalText decodes a rank label.
func (r *Rank) UnmarshalText(text []byte) error {
	label := string(text)
	if label == "" {
		*r = 0
		return nil
	}
	rank, ok := parseRank(label)
	if !ok {
		return fmt.Errorf("unknown rank %q", label)
	}
	*r = rank
	return nil
}

func parseRank(label string) (Rank, bool) {
	if label == "T" {
		return Ten, true
	}
	for rank, l := range rankLabels {
		if l == label {
			return rank, true
		}
	}
	return 0, false
}

// Card is an immutable playing card. ID is unique within a deck.
type Card struct {
	ID   string `json:"id"`
	Suit Suit   `json:"suit"`
	Rank Rank   `json:"value"`
}

// NewCard creates a card with its canonical ID (e.g. "AS", "10H", "BJ").
func NewCard(suit Suit, rank Rank) Card {
	return Card{ID: cardID(suit, rank), Suit: suit, Rank: rank}
}

// HiddenCard returns an opaque placeholder card. It carries no suit or rank.
func HiddenCard(i int) Card {
	return Card{ID: fmt.Sprintf("hidden-%d", i), Suit: Hidden}
}

func cardID(suit Suit, rank Rank) string {
	if suit == Joker {
		return rank.String()
	}
	return rank.String() + suit.letter()
}

// Parse converts a card ID back into a card.
func Parse(id string) (Card, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	switch id {
	case "LJ":
		return NewCard(Joker, LittleJoker), nil
	case "BJ":
		return NewCard(Joker, BigJoker), nil
	}
	if len(id) < 2 {
		return Card{}, fmt.Errorf("invalid card %q", id)
	}

	var suit Suit
	switch id[len(id)-1] {
	case 'S':
		suit = Spades
	case 'H':
		suit = Hearts
	case 'C':
		suit = Clubs
	case 'D':
		suit = Diamonds
	default:
		return Card{}, fmt.Errorf("invalid suit in card %q", id)
	}

	rank, ok := parseRank(id[:len(id)-1])
	if !ok || rank > Ace {
		return Card{}, fmt.Errorf("invalid rank in card %q", id)
	}
	return NewCard(suit, rank), nil
}

// MustParse is Parse for fixtures; it panics on malformed IDs.
func MustParse(ids ...string) []Card {
	cards := make([]Card, len(ids))
	for i, id := range ids {
		c, err := Parse(id)
		if err != nil {
			panic(err)
		}
		cards[i] = c
	}
	return cards
}

// String returns the display form of a card (e.g., "A♠")
func (c Card) String() string {
	switch c.Suit {
	case Hidden:
		return "▒▒"
	case Joker:
		if c.Rank == BigJoker {
			return "BJ🃏"
		}
		return "LJ🃏"
	}
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// IsHidden reports whether the card is an opaque placeholder.
func (c Card) IsHidden() bool {
	return c.Suit == Hidden
}

// IsHonor returns true for aces, kings and queens of a canonical suit.
func (c Card) IsHonor() bool {
	return c.Suit != Joker && c.Rank >= Queen && c.Rank <= Ace
}
