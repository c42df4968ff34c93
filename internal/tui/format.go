package tui

import (
	"fmt"
	"strings"

	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/game"
)

// formatCard renders one card in its suit colour.
func formatCard(c deck.Card) string {
	switch {
	case c.Suit == deck.Joker:
		return JokerCardStyle.Render(c.String())
	case c.IsHidden():
		return DimCardStyle.Render(c.String())
	case c.Suit.IsRed():
		return RedCardStyle.Render(c.String())
	default:
		return BlackCardStyle.Render(c.String())
	}
}

// formatHand renders a hand, dimming cards that are not in legal. A nil
// legal set renders every card normally.
func formatHand(cards []deck.Card, legal []deck.Card) string {
	if len(cards) == 0 {
		return ""
	}
	var allowed map[string]bool
	if legal != nil {
		allowed = make(map[string]bool, len(legal))
		for _, c := range legal {
			allowed[c.ID] = true
		}
	}

	formatted := make([]string, 0, len(cards))
	for _, c := range cards {
		if allowed != nil && !allowed[c.ID] {
			formatted = append(formatted, DimCardStyle.Render(c.String()))
			continue
		}
		formatted = append(formatted, formatCard(c))
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

// playerName is how a seat is shown to the viewer.
func playerName(s *game.GameState, id, viewer string) string {
	if id == viewer {
		return "You"
	}
	if i := s.PlayerIndex(id); i >= 0 {
		p := s.Players[i]
		if p.Name != "" {
			return p.Name
		}
	}
	return id
}

func formatBid(bid int) string {
	if bid == 0 {
		return "nil"
	}
	return fmt.Sprintf("%d", bid)
}

// teamLabel names a partnership by its seats.
func teamLabel(team int) string {
	if team == 0 {
		return "North/South"
	}
	return "East/West"
}

// describeTransition lists the log lines for what changed between two views
// of a game. prev may be nil when the viewer first sees the game.
func describeTransition(prev, next *game.GameState, viewer string) []string {
	if next == nil {
		return nil
	}
	var lines []string
	if prev == nil || prev.ID != next.ID {
		lines = append(lines, fmt.Sprintf("Game %s started: %s, playing to %d", next.ID, next.Mode, next.WinningScore))
		if seat := next.PlayerIndex(viewer); seat >= 0 {
			partner := next.Players[game.PartnerOf(seat)]
			lines = append(lines, fmt.Sprintf("You sit %s, partnered with %s", game.Seat(seat), playerName(next, partner.ID, viewer)))
		}
		prev = nil
	}

	// A collected trick is reported before the new round it may have started.
	if prev != nil && prev.TrickComplete() && len(next.CurrentTrick.Plays) == 0 {
		plays := prev.CurrentTrick.Plays
		winner := plays[game.TrickWinner(plays, prev.Mode, prev.CurrentTrick.LeadSuit)]
		lines = append(lines, fmt.Sprintf("%s won the trick", playerName(next, winner.PlayerID, viewer)))
	}
	if prev != nil && next.LastRound != nil && (prev.LastRound == nil || prev.LastRound.RoundNumber != next.LastRound.RoundNumber) {
		lines = append(lines, describeRound(next.LastRound))
	}

	newRound := prev == nil || prev.RoundNumber != next.RoundNumber
	if newRound && next.Phase == game.PhaseBidding {
		lines = append(lines, fmt.Sprintf("--- Round %d ---", next.RoundNumber))
		if seat := next.PlayerIndex(viewer); seat >= 0 {
			lines = append(lines, "Your hand: "+formatHand(next.Players[seat].Hand, nil))
		}
	}

	for i, p := range next.Players {
		if p.Bid == nil || (!newRound && prev.Players[i].Bid != nil) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s bid %s", playerName(next, p.ID, viewer), formatBid(*p.Bid)))
	}

	if !newRound {
		if next.Phase == game.PhasePlaying && prev.Phase == game.PhaseBidding {
			lines = append(lines, fmt.Sprintf("Bidding closed: %s %d, %s %d",
				teamLabel(0), intOr(next.Teams[0].TotalBid), teamLabel(1), intOr(next.Teams[1].TotalBid)))
		}
		seen := len(prev.CurrentTrick.Plays)
		if len(next.CurrentTrick.Plays) < seen {
			seen = 0
		}
		for _, play := range next.CurrentTrick.Plays[seen:] {
			lines = append(lines, fmt.Sprintf("%s played %s", playerName(next, play.PlayerID, viewer), formatCard(play.Card)))
		}
		if next.SpadesBroken && !prev.SpadesBroken {
			lines = append(lines, "Spades are broken")
		}
		for i, p := range next.Players {
			if p.IsBot != prev.Players[i].IsBot {
				if p.IsBot {
					lines = append(lines, fmt.Sprintf("%s left; a bot takes the seat", playerName(next, p.ID, viewer)))
				} else {
					lines = append(lines, fmt.Sprintf("%s is back", playerName(next, p.ID, viewer)))
				}
			}
		}
	}

	if next.IsOver() && (prev == nil || !prev.IsOver()) && next.WinningTeam != nil {
		lines = append(lines, fmt.Sprintf("Game over: %s wins %d to %d",
			teamLabel(*next.WinningTeam), next.Teams[*next.WinningTeam].Score, next.Teams[1-*next.WinningTeam].Score))
	}
	return lines
}

func describeRound(r *game.RoundSummary) string {
	parts := make([]string, 0, 2)
	for team, res := range r.Teams {
		part := fmt.Sprintf("%s %+d (score %d, bags %d)", teamLabel(team), res.Points+res.NilBonus-res.BagPenalties*game.BagPenalty, res.Score, res.Bags)
		parts = append(parts, part)
	}
	return fmt.Sprintf("Round %d scored: %s", r.RoundNumber, strings.Join(parts, "; "))
}

func intOr(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
