package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTrump(t *testing.T) {
	t.Parallel()

	tests := []struct {
		card string
		mode Mode
		want bool
	}{
		{"2S", ModeAceHigh, true},
		{"AS", ModeAceHigh, true},
		{"2D", ModeAceHigh, false},
		{"AH", ModeAceHigh, false},
		{"2D", ModeJJDD, true},
		{"3D", ModeJJDD, false},
		{"LJ", ModeJJDD, true},
		{"BJ", ModeJJDD, true},
		{"KC", ModeJJDD, false},
	}
	for _, tt := range tests {
		c := MustParse(tt.card)[0]
		assert.Equal(t, tt.want, IsTrump(c, tt.mode), "%s in %s", tt.card, tt.mode)
	}
}

func TestJJDDTrumpLadder(t *testing.T) {
	t.Parallel()

	ladder := MustParse("3S", "4S", "5S", "6S", "7S", "8S", "9S", "10S", "JS", "QS", "KS", "AS", "2D", "2S", "LJ", "BJ")
	for _, lead := range []Suit{Spades, Hearts, Diamonds, Clubs} {
		for i := 1; i < len(ladder); i++ {
			lo := Power(ladder[i-1], ModeJJDD, lead)
			hi := Power(ladder[i], ModeJJDD, lead)
			assert.Less(t, lo, hi, "%s should rank below %s (lead %s)", ladder[i-1], ladder[i], lead)
		}
	}
}

func TestPowerOrdering(t *testing.T) {
	t.Parallel()

	// Lowest trump beats the highest card of the led suit.
	assert.Greater(t, Power(MustParse("2S")[0], ModeAceHigh, Hearts), Power(MustParse("AH")[0], ModeAceHigh, Hearts))
	// Led suit beats off-suit.
	assert.Greater(t, Power(MustParse("2H")[0], ModeAceHigh, Hearts), Power(MustParse("AD")[0], ModeAceHigh, Hearts))
	// Off-suit never wins.
	assert.Zero(t, Power(MustParse("AC")[0], ModeAceHigh, Hearts))
	// The jjdd ♦2 is trump, not a diamond.
	assert.Greater(t, Power(MustParse("2D")[0], ModeJJDD, Diamonds), Power(MustParse("AD")[0], ModeJJDD, Diamonds))
	assert.Greater(t, Power(MustParse("2D")[0], ModeJJDD, Diamonds), Power(MustParse("AS")[0], ModeJJDD, Diamonds))
}

func TestPowerIsStrictForWinners(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeAceHigh, ModeJJDD} {
		for _, lead := range []Suit{Spades, Hearts, Clubs, Diamonds} {
			seen := make(map[int]string)
			for _, c := range Build(mode) {
				p := Power(c, mode, lead)
				if p == 0 {
					continue
				}
				if other, dup := seen[p]; dup {
					t.Errorf("mode %s lead %s: %s and %s share power %d", mode, lead, c, other, p)
				}
				seen[p] = c.ID
			}
		}
	}
}

func TestFollowsSuit(t *testing.T) {
	t.Parallel()

	twoD := MustParse("2D")[0]
	assert.True(t, FollowsSuit(twoD, Diamonds, ModeAceHigh))
	assert.False(t, FollowsSuit(twoD, Diamonds, ModeJJDD))
	assert.True(t, FollowsSuit(twoD, Spades, ModeJJDD))
	assert.True(t, FollowsSuit(MustParse("BJ")[0], Spades, ModeJJDD))
}

func TestSortHand(t *testing.T) {
	t.Parallel()

	hand := MustParse("KD", "3S", "2D", "AH", "BJ", "5C", "2S")
	ids := func(cards []Card) []string {
		out := make([]string, len(cards))
		for i, c := range cards {
			out[i] = c.ID
		}
		return out
	}

	standard := MustParse("KD", "3S", "2D", "AH", "5C", "2S")
	assert.Equal(t, []string{"2S", "3S", "AH", "5C", "2D", "KD"}, ids(SortHand(standard, ModeAceHigh)))
	assert.Equal(t, []string{"3S", "2D", "2S", "BJ", "AH", "5C", "KD"}, ids(SortHand(hand, ModeJJDD)))
	// Input is not modified.
	assert.Equal(t, "KD", hand[0].ID)
}
