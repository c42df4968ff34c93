package game

import (
	"fmt"

	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/randutil"
)

// DefaultWinningScore is used when a config leaves WinningScore unset.
const DefaultWinningScore = 500

// PlayerSpec describes one seat when creating a game.
type PlayerSpec struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	IsBot bool   `json:"isBot"`
}

// Config holds the parameters of a new game. Players are seated in order
// north, east, south, west; north/south and east/west are partners.
type Config struct {
	ID           string
	Mode         deck.Mode
	WinningScore int
	Players      []PlayerSpec
	Seed         int64
	DealerIndex  int
}

// New creates a game in the waiting phase. No cards are dealt until Start.
func New(cfg Config) (*GameState, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
	if len(cfg.Players) != NumSeats {
		return nil, fmt.Errorf("%w: need %d players, got %d", ErrInvalidConfig, NumSeats, len(cfg.Players))
	}
	if cfg.DealerIndex < 0 || cfg.DealerIndex >= NumSeats {
		return nil, fmt.Errorf("%w: dealer index %d out of range", ErrInvalidConfig, cfg.DealerIndex)
	}
	if cfg.WinningScore < 0 {
		return nil, fmt.Errorf("%w: winning score must be positive", ErrInvalidConfig)
	}
	if cfg.WinningScore == 0 {
		cfg.WinningScore = DefaultWinningScore
	}

	seen := make(map[string]bool, NumSeats)
	players := make([]Player, NumSeats)
	for i, spec := range cfg.Players {
		if spec.ID == "" {
			return nil, fmt.Errorf("%w: seat %d has no player id", ErrInvalidConfig, i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("%w: duplicate player id %q", ErrInvalidConfig, spec.ID)
		}
		seen[spec.ID] = true
		name := spec.Name
		if name == "" {
			name = spec.ID
		}
		players[i] = Player{
			ID:           spec.ID,
			Name:         name,
			IsBot:        spec.IsBot,
			SeatPosition: Seat(i),
			IsReady:      spec.IsBot,
		}
	}

	return &GameState{
		ID:           cfg.ID,
		Mode:         cfg.Mode,
		WinningScore: cfg.WinningScore,
		Phase:        PhaseWaiting,
		Players:      players,
		Teams: []Team{
			{Players: [2]string{players[0].ID, players[2].ID}},
			{Players: [2]string{players[1].ID, players[3].ID}},
		},
		DealerIndex:        cfg.DealerIndex,
		CurrentPlayerIndex: (cfg.DealerIndex + 1) % NumSeats,
		Seed:               cfg.Seed,
	}, nil
}

// Start deals the first round from the game seed and opens bidding.
func Start(s *GameState) (*GameState, error) {
	return StartWithHands(s, dealRound(s.Mode, s.Seed, 1))
}

// StartWithHands opens bidding with the given hands instead of a seeded deal.
// The hands must partition the mode's deck exactly.
func StartWithHands(s *GameState, hands [NumSeats][]deck.Card) (*GameState, error) {
	if s.Phase != PhaseWaiting {
		return nil, invalid("", ErrWrongPhase, "game already started")
	}
	if err := checkHands(s.Mode, hands); err != nil {
		return nil, err
	}
	return startRound(s.Clone(), hands), nil
}

func checkHands(mode deck.Mode, hands [NumSeats][]deck.Card) error {
	remaining := make(map[string]bool)
	for _, c := range deck.Build(mode) {
		remaining[c.ID] = true
	}
	for i, hand := range hands {
		if len(hand) != deck.HandSize {
			return fmt.Errorf("%w: seat %d has %d cards", ErrInvalidConfig, i, len(hand))
		}
		for _, c := range hand {
			if !remaining[c.ID] {
				return fmt.Errorf("%w: card %s is duplicated or not in a %s deck", ErrInvalidConfig, c.ID, mode)
			}
			delete(remaining, c.ID)
		}
	}
	return nil
}

func dealRound(mode deck.Mode, seed int64, round int) [NumSeats][]deck.Card {
	cards := deck.Build(mode)
	deck.Shuffle(cards, randutil.Derive(seed, uint64(round)))
	hands, err := deck.Deal(cards, mode)
	if err != nil {
		// Build always yields a full deck for a valid mode.
		panic(err)
	}
	return hands
}

// startRound resets per-round fields on an already cloned state.
func startRound(next *GameState, hands [NumSeats][]deck.Card) *GameState {
	next.RoundNumber++
	for i := range next.Players {
		p := &next.Players[i]
		p.Hand = deck.SortHand(hands[i], next.Mode)
		p.Bid = nil
		p.TricksWon = 0
		p.IsReady = true
	}
	for i := range next.Teams {
		next.Teams[i].TricksWon = 0
		next.Teams[i].TotalBid = nil
	}
	next.CurrentTrick = Trick{}
	next.LastTrick = nil
	next.SpadesBroken = false
	next.Phase = PhaseBidding
	next.CurrentPlayerIndex = (next.DealerIndex + 1) % NumSeats
	return next
}

func (s *GameState) seatOf(playerID string) (int, error) {
	seat := s.PlayerIndex(playerID)
	if seat < 0 {
		return -1, &NotFoundError{Kind: "player", ID: playerID}
	}
	return seat, nil
}

// PlaceBid records a bid for the player whose turn it is. Once all four
// players have bid, team totals are set and play begins left of the dealer.
func PlaceBid(s *GameState, playerID string, bid int) (*GameState, error) {
	seat, err := s.seatOf(playerID)
	if err != nil {
		return nil, err
	}
	if s.Phase != PhaseBidding {
		return nil, invalid(playerID, ErrWrongPhase, "phase is %s", s.Phase)
	}
	if seat != s.CurrentPlayerIndex {
		return nil, invalid(playerID, ErrNotYourTurn, "waiting for %s", s.Players[s.CurrentPlayerIndex].Name)
	}
	if bid < 0 || bid > MaxBid {
		return nil, invalid(playerID, ErrInvalidBid, "got %d", bid)
	}

	next := s.Clone()
	next.Players[seat].Bid = &bid
	next.CurrentPlayerIndex = (seat + 1) % NumSeats

	for _, p := range next.Players {
		if p.Bid == nil {
			return next, nil
		}
	}

	for t := range next.Teams {
		total := *next.Players[t].Bid + *next.Players[t+2].Bid
		next.Teams[t].TotalBid = &total
	}
	next.Phase = PhasePlaying
	next.CurrentPlayerIndex = (next.DealerIndex + 1) % NumSeats
	return next, nil
}

// PlayCard plays a card for the player whose turn it is. The fourth card of a
// trick resolves it: the winner is credited and becomes the next to act, and
// the trick stays visible until CollectTrick.
func PlayCard(s *GameState, playerID, cardID string) (*GameState, error) {
	seat, err := s.seatOf(playerID)
	if err != nil {
		return nil, err
	}
	if s.Phase != PhasePlaying {
		return nil, invalid(playerID, ErrWrongPhase, "phase is %s", s.Phase)
	}
	if s.TrickComplete() {
		return nil, invalid(playerID, ErrTrickPending, "")
	}
	if seat != s.CurrentPlayerIndex {
		return nil, invalid(playerID, ErrNotYourTurn, "waiting for %s", s.Players[s.CurrentPlayerIndex].Name)
	}

	handIdx := -1
	for i, c := range s.Players[seat].Hand {
		if c.ID == cardID {
			handIdx = i
			break
		}
	}
	if handIdx < 0 {
		return nil, invalid(playerID, ErrCardNotInHand, "%s", cardID)
	}
	if !containsCard(LegalPlays(s, seat), cardID) {
		return nil, invalid(playerID, ErrIllegalPlay, "%s", cardID)
	}

	next := s.Clone()
	player := &next.Players[seat]
	card := player.Hand[handIdx]
	player.Hand = append(player.Hand[:handIdx], player.Hand[handIdx+1:]...)

	trick := &next.CurrentTrick
	if len(trick.Plays) == 0 {
		trick.LeadSuit = deck.LeadSuitOf(card, next.Mode)
	}
	if deck.IsTrump(card, next.Mode) {
		next.SpadesBroken = true
	}
	trick.Plays = append(trick.Plays, Play{PlayerID: playerID, Card: card})

	if len(trick.Plays) < NumSeats {
		next.CurrentPlayerIndex = (seat + 1) % NumSeats
		return next, nil
	}

	winner := trick.Plays[TrickWinner(trick.Plays, next.Mode, trick.LeadSuit)].PlayerID
	winnerSeat := next.PlayerIndex(winner)
	trick.WinnerID = winner
	next.Players[winnerSeat].TricksWon++
	next.Teams[TeamOf(winnerSeat)].TricksWon++
	next.CurrentPlayerIndex = winnerSeat
	return next, nil
}

// CollectTrick clears a completed trick. When every hand is empty the round
// is scored and the game either ends or deals the next round.
func CollectTrick(s *GameState) (*GameState, error) {
	if s.Phase != PhasePlaying {
		return nil, invalid("", ErrWrongPhase, "phase is %s", s.Phase)
	}
	if !s.TrickComplete() {
		return nil, invalid("", ErrTrickIncomplete, "%d of %d cards played", len(s.CurrentTrick.Plays), NumSeats)
	}

	next := s.Clone()
	last := next.CurrentTrick
	next.LastTrick = &last
	next.CurrentTrick = Trick{}

	for _, p := range next.Players {
		if len(p.Hand) > 0 {
			return next, nil
		}
	}
	return completeRound(next), nil
}

// completeRound scores both teams and checks for a winner. Teams are checked
// in index order, so if both cross the winning score in the same round team 0
// wins.
func completeRound(next *GameState) *GameState {
	summary := &RoundSummary{RoundNumber: next.RoundNumber}
	for t := range next.Teams {
		res := ScoreTeam(next.Teams[t], [2]Player{next.Players[t], next.Players[t+2]})
		next.Teams[t].Score = res.Score
		next.Teams[t].Bags = res.Bags
		summary.Teams[t] = res
	}
	next.LastRound = summary

	for t := range next.Teams {
		if next.Teams[t].Score >= next.WinningScore {
			winner := t
			next.WinningTeam = &winner
			next.Phase = PhaseGameOver
			return next
		}
	}

	next.DealerIndex = (next.DealerIndex + 1) % NumSeats
	return startRound(next, dealRound(next.Mode, next.Seed, next.RoundNumber+1))
}

// LegalPlays returns the cards the player in seat may play right now.
//
// Leading: trump-equivalent cards are excluded until trump is broken, unless
// the hand holds nothing else. Following: the player must follow the led suit
// (a trump lead requires any trump-equivalent card; the jjdd ♦2 never counts
// as a diamond) and may play anything when unable to.
func LegalPlays(s *GameState, seat int) []deck.Card {
	if seat < 0 || seat >= len(s.Players) || s.Phase != PhasePlaying || s.TrickComplete() {
		return nil
	}
	hand := s.Players[seat].Hand

	if len(s.CurrentTrick.Plays) == 0 {
		if s.SpadesBroken {
			return cloneCards(hand)
		}
		nonTrump := filterCards(hand, func(c deck.Card) bool { return !deck.IsTrump(c, s.Mode) })
		if len(nonTrump) == 0 {
			return cloneCards(hand)
		}
		return nonTrump
	}

	lead := s.CurrentTrick.LeadSuit
	following := filterCards(hand, func(c deck.Card) bool { return deck.FollowsSuit(c, lead, s.Mode) })
	if len(following) == 0 {
		return cloneCards(hand)
	}
	return following
}

// TrickWinner returns the index of the winning play: the highest Power for
// the trick's mode and lead suit.
func TrickWinner(plays []Play, mode deck.Mode, leadSuit deck.Suit) int {
	best, bestPower := -1, -1
	for i, p := range plays {
		if power := deck.Power(p.Card, mode, leadSuit); power > bestPower {
			best, bestPower = i, power
		}
	}
	return best
}

func filterCards(cards []deck.Card, keep func(deck.Card) bool) []deck.Card {
	var out []deck.Card
	for _, c := range cards {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func containsCard(cards []deck.Card, id string) bool {
	for _, c := range cards {
		if c.ID == id {
			return true
		}
	}
	return false
}
