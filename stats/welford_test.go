package stats

import (
	"sensorstats/utils"
	"testing"
)

func TestWelford(t *testing.T) {
	welford := NewWelford()

	utils.AssertNaN(t, welford.GetMean())
	utils.AssertNaN(t, welford.GetVariance())
	utils.AssertNaN(t, welford.GetSampleVariance())

	for i := 1; i < 100; i++ {
		welford.Update(float64(i), float64(i), 1)
	}

	utils.AssertEqual(t, welford.GetCount(), uint64(99))
	utils.AssertClose(t, welford.GetMean(), 50.0, 1e-12)
	utils.AssertClose(t, welford.GetVariance(), 816.666667, 1e-6)
	utils.AssertClose(t, welford.GetSampleVariance(), 825.0000, 1e-6)
	utils.AssertClose(t, welford.GetTrend(), 1.0, 1e-12)
}

func TestWelfordWeighted(t *testing.T) {
	welford := NewWelford()

	// A weight of 3 is the same as observing the value three times.
	welford.Update(2, 0, 3)
	welford.Update(8, 10, 1)

	reference := NewWelford()
	for i := 0; i < 3; i++ {
		reference.Update(2, 0, 1)
	}
	reference.Update(8, 10, 1)

	utils.AssertClose(t, welford.GetMean(), reference.GetMean(), 1e-12)
	utils.AssertClose(t, welford.GetM2(), reference.GetM2(), 1e-12)
	utils.AssertClose(t, welford.GetC2(), reference.GetC2(), 1e-12)
	utils.AssertClose(t, welford.GetTimestampM2(), reference.GetTimestampM2(), 1e-12)
}
