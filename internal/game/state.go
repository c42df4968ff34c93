package game

import (
	"github.com/lox/spades/internal/deck"
)

// Phase is the game lifecycle stage.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseBidding  Phase = "bidding"
	PhasePlaying  Phase = "playing"
	PhaseGameOver Phase = "game_over"
)

// Seat is a fixed compass position. Partners sit opposite each other.
type Seat int

const (
	North Seat = iota
	East
	South
	West
)

// NumSeats is the number of players in every game.
const NumSeats = 4

// MaxBid is the highest legal bid; 0 is nil.
const MaxBid = deck.HandSize

func (s Seat) String() string {
	switch s {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// TeamOf returns the partnership index for a seat: 0 for north/south, 1 for east/west.
func TeamOf(seat int) int { return seat % 2 }

// PartnerOf returns the seat opposite.
func PartnerOf(seat int) int { return (seat + 2) % NumSeats }

// Player is one seat at the table.
type Player struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	IsBot        bool        `json:"isBot"`
	SeatPosition Seat        `json:"seatPosition"`
	Hand         []deck.Card `json:"hand"`
	Bid          *int        `json:"bid"`
	TricksWon    int         `json:"tricksWon"`
	IsReady      bool        `json:"isReady"`
}

// Team is a partnership of two opposite seats.
type Team struct {
	Players   [2]string `json:"players"`
	Score     int       `json:"score"`
	Bags      int       `json:"bags"`
	TricksWon int       `json:"tricksWon"`
	TotalBid  *int      `json:"totalBid"`
}

// Play is a single card played into a trick.
type Play struct {
	PlayerID string    `json:"playerId"`
	Card     deck.Card `json:"card"`
}

// Trick is the ordered set of plays for one round of four cards.
type Trick struct {
	Plays    []Play    `json:"plays"`
	LeadSuit deck.Suit `json:"leadSuit,omitempty"`
	WinnerID string    `json:"winnerId,omitempty"`
}

// TeamResult is one team's scoring for a completed round.
type TeamResult struct {
	Points       int `json:"points"`
	NilBonus     int `json:"nilBonus"`
	BagsGained   int `json:"bagsGained"`
	BagPenalties int `json:"bagPenalties"`
	Bags         int `json:"bags"`
	Score        int `json:"score"`
}

// RoundSummary records how the last completed round was scored.
type RoundSummary struct {
	RoundNumber int           `json:"roundNumber"`
	Teams       [2]TeamResult `json:"teams"`
}

// GameState is the complete state of one game.
type GameState struct {
	ID                 string        `json:"id"`
	Mode               deck.Mode     `json:"mode"`
	WinningScore       int           `json:"winningScore"`
	Phase              Phase         `json:"phase"`
	Players            []Player      `json:"players"`
	Teams              []Team        `json:"teams"`
	CurrentTrick       Trick         `json:"currentTrick"`
	LastTrick          *Trick        `json:"lastTrick,omitempty"`
	CurrentPlayerIndex int           `json:"currentPlayerIndex"`
	DealerIndex        int           `json:"dealerIndex"`
	RoundNumber        int           `json:"roundNumber"`
	SpadesBroken       bool          `json:"spadesBroken"`
	LastRound          *RoundSummary `json:"lastRound,omitempty"`
	WinningTeam        *int          `json:"winningTeam,omitempty"`
	Seed               int64         `json:"seed,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.Hand = cloneCards(p.Hand)
		p.Bid = cloneInt(p.Bid)
		c.Players[i] = p
	}
	c.Teams = make([]Team, len(s.Teams))
	for i, t := range s.Teams {
		t.TotalBid = cloneInt(t.TotalBid)
		c.Teams[i] = t
	}
	c.CurrentTrick = s.CurrentTrick.clone()
	if s.LastTrick != nil {
		last := s.LastTrick.clone()
		c.LastTrick = &last
	}
	if s.LastRound != nil {
		summary := *s.LastRound
		c.LastRound = &summary
	}
	c.WinningTeam = cloneInt(s.WinningTeam)
	return &c
}

func (t Trick) clone() Trick {
	if t.Plays != nil {
		plays := make([]Play, len(t.Plays))
		copy(plays, t.Plays)
		t.Plays = plays
	}
	return t
}

func cloneCards(cards []deck.Card) []deck.Card {
	if cards == nil {
		return nil
	}
	out := make([]deck.Card, len(cards))
	copy(out, cards)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// ViewFor returns the state as seen by one player: their own hand in full,
// every other hand replaced by the same number of opaque placeholders. The
// deal seed is removed because it would reveal every hand.
func (s *GameState) ViewFor(playerID string) *GameState {
	v := s.Clone()
	v.Seed = 0
	for i := range v.Players {
		p := &v.Players[i]
		if p.ID == playerID {
			continue
		}
		hidden := make([]deck.Card, len(p.Hand))
		for j := range hidden {
			hidden[j] = deck.HiddenCard(j)
		}
		p.Hand = hidden
	}
	return v
}

// PlayerIndex returns the seat of a player, or -1.
func (s *GameState) PlayerIndex(playerID string) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// CurrentPlayer returns the player whose turn it is.
func (s *GameState) CurrentPlayer() *Player {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return nil
	}
	return &s.Players[s.CurrentPlayerIndex]
}

// TrickComplete reports whether the current trick has all four plays and is
// waiting to be collected.
func (s *GameState) TrickComplete() bool {
	return len(s.CurrentTrick.Plays) == NumSeats
}

// IsOver reports whether the game has finished.
func (s *GameState) IsOver() bool {
	return s.Phase == PhaseGameOver
}

// AwaitingAction reports whether a player is expected to bid or play.
func (s *GameState) AwaitingAction() bool {
	switch s.Phase {
	case PhaseBidding:
		return true
	case PhasePlaying:
		return !s.TrickComplete()
	default:
		return false
	}
}
