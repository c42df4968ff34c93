// Package statistics summarises batches of simulated games.
package statistics

import (
	"fmt"
	"math"
	"sort"
)

// GameResult is the outcome of one simulated game.
type GameResult struct {
	Seed   int64
	Dealer int // seat that dealt the first round
	Rounds int
	Scores [2]int
	Winner int // winning team, or -1 when the game hit the round cap
}

// Margin is the north/south score minus the east/west score.
func (r GameResult) Margin() float64 {
	return float64(r.Scores[0] - r.Scores[1])
}

// DealerStats tracks margins for games opened by one dealer seat.
type DealerStats struct {
	Games   int
	SumMgn  float64
	SumMgn2 float64
}

// Statistics accumulates north/south margins over many games.
type Statistics struct {
	Games      int
	SumMgn     float64
	SumMgn2    float64   // sum of squares for variance
	Values     []float64 // every margin, for median and percentiles
	Wins       [2]int
	Unfinished int
	Rounds     int
	Points     [2]int

	DealerResults [4]DealerStats
}

// Mean returns the average margin per game.
func (s *Statistics) Mean() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.SumMgn / float64(s.Games)
}

// Variance returns the sample variance of the margins.
func (s *Statistics) Variance() float64 {
	if s.Games < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumMgn2 - float64(s.Games)*mean*mean) / float64(s.Games-1)
}

func (s *Statistics) StdDev() float64 {
	return math.Sqrt(s.Variance())
}

// StdError returns the standard error of the mean margin.
func (s *Statistics) StdError() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Games))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean margin.
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// Add records one game.
func (s *Statistics) Add(result GameResult) {
	m := result.Margin()
	s.Games++
	s.SumMgn += m
	s.SumMgn2 += m * m
	s.Values = append(s.Values, m)
	s.Rounds += result.Rounds
	s.Points[0] += result.Scores[0]
	s.Points[1] += result.Scores[1]

	switch result.Winner {
	case 0, 1:
		s.Wins[result.Winner]++
	default:
		s.Unfinished++
	}

	if d := result.Dealer; d >= 0 && d < len(s.DealerResults) {
		s.DealerResults[d].Games++
		s.DealerResults[d].SumMgn += m
		s.DealerResults[d].SumMgn2 += m * m
	}
}

// WinRate returns the share of games a team won, finished or not.
func (s *Statistics) WinRate(team int) float64 {
	if s.Games == 0 || team < 0 || team > 1 {
		return 0
	}
	return float64(s.Wins[team]) / float64(s.Games)
}

// AvgRounds returns the mean number of rounds per game.
func (s *Statistics) AvgRounds() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Rounds) / float64(s.Games)
}

// AvgScore returns a team's mean final score.
func (s *Statistics) AvgScore(team int) float64 {
	if s.Games == 0 || team < 0 || team > 1 {
		return 0
	}
	return float64(s.Points[team]) / float64(s.Games)
}

func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the margin at p (0.0 to 1.0), interpolating between
// neighbouring values.
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// DealerMean returns the mean margin for games where seat dealt first.
func (s *Statistics) DealerMean(seat int) float64 {
	if seat < 0 || seat >= len(s.DealerResults) {
		return 0
	}
	ds := s.DealerResults[seat]
	if ds.Games == 0 {
		return 0
	}
	return ds.SumMgn / float64(ds.Games)
}

// Validate checks the counters agree with each other.
func (s *Statistics) Validate() error {
	if s.Games <= 0 {
		return fmt.Errorf("invalid games count: %d", s.Games)
	}
	if len(s.Values) != s.Games {
		return fmt.Errorf("values length (%d) does not match games (%d)", len(s.Values), s.Games)
	}
	if got := s.Wins[0] + s.Wins[1] + s.Unfinished; got != s.Games {
		return fmt.Errorf("wins plus unfinished (%d) does not match games (%d)", got, s.Games)
	}
	dealt := 0
	for _, d := range s.DealerResults {
		dealt += d.Games
	}
	if dealt != s.Games {
		return fmt.Errorf("dealer games total (%d) does not match games (%d)", dealt, s.Games)
	}
	if math.Abs(float64(s.Points[0]-s.Points[1])-s.SumMgn) > 1e-6 {
		return fmt.Errorf("margin sum %.1f does not match points %v", s.SumMgn, s.Points)
	}
	return nil
}
