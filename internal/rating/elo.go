// Package rating implements Elo ratings for two-player teams.
package rating

import "math"

const (
	// Default is the rating given to a player with no history.
	Default = 1500.0
	// DefaultK is the base K factor.
	DefaultK = 32.0
)

// Expected returns the expected score of a player rated a against b.
func Expected(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// Average returns the mean of ratings, or Default for an empty team.
func Average(ratings []float64) float64 {
	if len(ratings) == 0 {
		return Default
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r
	}
	return sum / float64(len(ratings))
}

// UpdateTeams applies one result between two teams. scoreA is 1 when team A
// wins, 0 when it loses and 0.5 for a draw. Every member of a team moves by
// the same delta, computed from the team averages; team B moves by -delta.
func UpdateTeams(teamA, teamB []float64, scoreA, k float64) (newA, newB []float64, delta float64) {
	expected := Expected(Average(teamA), Average(teamB))
	delta = k * (scoreA - expected)

	newA = make([]float64, len(teamA))
	for i, r := range teamA {
		newA[i] = r + delta
	}
	newB = make([]float64, len(teamB))
	for i, r := range teamB {
		newB[i] = r - delta
	}
	return newA, newB, delta
}
