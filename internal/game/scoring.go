package game

// BagLimit is the number of accumulated overtricks that costs a team
// BagPenalty points.
const (
	BagLimit   = 10
	BagPenalty = 100
	NilValue   = 100
)

// ScoreTeam scores one team's round from its members' bids and tricks and
// returns the result including the new cumulative score and bag count.
//
// Each nil bidder is scored on their own: +NilValue for taking no tricks,
// otherwise -NilValue with their tricks counted as bags. The remaining bids
// are summed and compared against the tricks taken by those same players.
func ScoreTeam(team Team, members [2]Player) TeamResult {
	var res TeamResult
	bid, tricks := 0, 0
	for _, p := range members {
		if p.Bid == nil {
			continue
		}
		if *p.Bid == 0 {
			if p.TricksWon == 0 {
				res.NilBonus += NilValue
			} else {
				res.NilBonus -= NilValue
				res.BagsGained += p.TricksWon
			}
			continue
		}
		bid += *p.Bid
		tricks += p.TricksWon
	}

	if tricks >= bid {
		over := tricks - bid
		res.Points = bid*10 + over
		res.BagsGained += over
	} else {
		res.Points = -bid * 10
	}

	bags := team.Bags + res.BagsGained
	for bags >= BagLimit {
		bags -= BagLimit
		res.BagPenalties++
	}
	res.Bags = bags
	res.Score = team.Score + res.Points + res.NilBonus - res.BagPenalties*BagPenalty
	return res
}
