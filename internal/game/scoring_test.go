package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func member(bid, tricks int) Player {
	return Player{Bid: &bid, TricksWon: tricks}
}

func TestScoreTeam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		team      Team
		members   [2]Player
		wantDelta int
		wantBags  int
		penalties int
	}{
		{"made exactly", Team{}, [2]Player{member(2, 3), member(2, 1)}, 40, 0, 0},
		{"overtricks become bags", Team{}, [2]Player{member(3, 4), member(1, 2)}, 42, 2, 0},
		{"set", Team{Bags: 5}, [2]Player{member(3, 1), member(1, 1)}, -40, 5, 0},
		{"nil made", Team{}, [2]Player{member(0, 0), member(3, 3)}, 100 + 30, 0, 0},
		{"nil failed counts bags", Team{}, [2]Player{member(0, 3), member(4, 4)}, -100 + 40, 3, 0},
		{"bag overflow applies once", Team{Bags: 8}, [2]Player{member(2, 4), member(2, 3)}, 43 - 100, 1, 1},
		{"double nil both made", Team{}, [2]Player{member(0, 0), member(0, 0)}, 200, 0, 0},
		{"bag overflow twice", Team{Bags: 9}, [2]Player{member(0, 5), member(1, 8)}, -100 + 17 - 200, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.team.Score = 120
			res := ScoreTeam(tt.team, tt.members)
			assert.Equal(t, 120+tt.wantDelta, res.Score)
			assert.Equal(t, tt.wantBags, res.Bags)
			assert.Equal(t, tt.penalties, res.BagPenalties)
		})
	}
}

func TestScoreTeamBreakdown(t *testing.T) {
	t.Parallel()

	res := ScoreTeam(Team{Bags: 8}, [2]Player{member(0, 1), member(4, 6)})
	assert.Equal(t, 42, res.Points)
	assert.Equal(t, -100, res.NilBonus)
	assert.Equal(t, 3, res.BagsGained)
	assert.Equal(t, 1, res.BagPenalties)
	assert.Equal(t, 1, res.Bags)
	assert.Equal(t, 42-100-100, res.Score)
}
