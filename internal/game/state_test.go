package game

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lox/spades/internal/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewForHidesOtherHands(t *testing.T) {
	t.Parallel()

	for _, mode := range []deck.Mode{deck.ModeAceHigh, deck.ModeJJDD} {
		s, err := Start(newTestGame(t, mode, 0))
		require.NoError(t, err)
		s = bidAll(t, s, map[string]int{"n": 3, "e": 3, "s": 3, "w": 3})
		s, err = PlayCard(s, s.CurrentPlayer().ID, LegalPlays(s, s.CurrentPlayerIndex)[0].ID)
		require.NoError(t, err)

		for _, viewer := range seatIDs {
			v := s.ViewFor(viewer)
			assert.Zero(t, v.Seed)
			for i, p := range v.Players {
				orig := s.Players[i]
				require.Len(t, p.Hand, len(orig.Hand))
				if p.ID == viewer {
					assert.Equal(t, orig.Hand, p.Hand)
					continue
				}
				for j, c := range p.Hand {
					assert.True(t, c.IsHidden())
					assert.Equal(t, deck.HiddenCard(j), c, "placeholders depend only on position")
				}
			}

			// Nothing about opponents' cards survives serialisation.
			raw, err := json.Marshal(v)
			require.NoError(t, err)
			for i, p := range s.Players {
				if p.ID == viewer {
					continue
				}
				for _, c := range s.Players[i].Hand {
					assert.False(t, strings.Contains(string(raw), `"id":"`+c.ID+`"`), "%s leaks %s to %s", p.ID, c.ID, viewer)
				}
			}
		}

		// Cards already on the table are public.
		v := s.ViewFor("s")
		assert.Equal(t, s.CurrentTrick, v.CurrentTrick)
		assert.NotEqual(t, s.Seed, v.Seed)
	}
}

func TestViewForUnknownViewerSeesNoHands(t *testing.T) {
	t.Parallel()

	s, err := Start(newTestGame(t, deck.ModeAceHigh, 0))
	require.NoError(t, err)
	v := s.ViewFor("spectator")
	for _, p := range v.Players {
		assert.Len(t, p.Hand, deck.HandSize)
		for _, c := range p.Hand {
			assert.True(t, c.IsHidden())
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	s, err := StartWithHands(newTestGame(t, deck.ModeAceHigh, 3), mixedHands())
	require.NoError(t, err)
	s = bidAll(t, s, map[string]int{"n": 2, "e": 6, "s": 1, "w": 1})
	s, err = PlayCard(s, "n", "2H")
	require.NoError(t, err)

	c := s.Clone()
	require.Equal(t, s, c)

	c.Players[0].Hand[0] = deck.MustParse("AS")[0]
	*c.Players[1].Bid = 9
	*c.Teams[0].TotalBid = 9
	c.CurrentTrick.Plays[0].PlayerID = "x"

	assert.NotEqual(t, "AS", s.Players[0].Hand[0].ID)
	assert.Equal(t, 6, *s.Players[1].Bid)
	assert.Equal(t, 3, *s.Teams[0].TotalBid)
	assert.Equal(t, "n", s.CurrentTrick.Plays[0].PlayerID)
}
