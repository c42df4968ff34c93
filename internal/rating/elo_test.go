package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpected(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, Expected(1500, 1500), 1e-9)
	assert.InDelta(t, 1.0, Expected(1900, 1500)+Expected(1500, 1900), 1e-9)
	assert.InDelta(t, 0.909, Expected(1900, 1500), 1e-3)
	assert.Less(t, Expected(1400, 1600), 0.5)
}

func TestUpdateTeams(t *testing.T) {
	t.Parallel()

	a, b, delta := UpdateTeams([]float64{1500, 1500}, []float64{1500, 1500}, 1, DefaultK)
	assert.InDelta(t, 16, delta, 1e-9)
	assert.Equal(t, []float64{1516, 1516}, a)
	assert.Equal(t, []float64{1484, 1484}, b)

	// An upset moves ratings further than an expected win.
	_, _, upset := UpdateTeams([]float64{1300, 1400}, []float64{1700, 1600}, 1, DefaultK)
	_, _, expected := UpdateTeams([]float64{1700, 1600}, []float64{1300, 1400}, 1, DefaultK)
	assert.Greater(t, upset, expected)

	// Ratings are conserved across both teams.
	a, b, _ = UpdateTeams([]float64{1620, 1480}, []float64{1510, 1555}, 0, DefaultK)
	assert.InDelta(t, 1620+1480+1510+1555, a[0]+a[1]+b[0]+b[1], 1e-9)

	_, _, draw := UpdateTeams([]float64{1500}, []float64{1500}, 0.5, DefaultK)
	assert.Zero(t, draw)
}

func TestAverage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Default, Average(nil))
	assert.Equal(t, 1550.0, Average([]float64{1500, 1600}))
}
