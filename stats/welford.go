package stats

import "math"

// Welford is the sequential weighted form of Welford's algorithm, tracking
// the moments of values, of their timestamps, and their co-moment. It is the
// one-sample-at-a-time reference that the parallel combine in package monoid
// must agree with.
type Welford struct {
	count         uint64
	weight        float64
	mean          float64
	m2            float64
	timestampMean float64
	timestampM2   float64
	c2            float64
}

func NewWelford() *Welford {
	return &Welford{}
}

// Update adds value observed at timestamp (in ms from any fixed origin)
// with the given weight.
func (welford *Welford) Update(value, timestamp, weight float64) {
	welford.count++
	welford.weight += weight
	if welford.weight == 0 {
		return
	}

	delta := value - welford.mean
	welford.mean += delta * weight / welford.weight
	welford.m2 += weight * delta * (value - welford.mean)

	timestampDelta := timestamp - welford.timestampMean
	welford.timestampMean += timestampDelta * weight / welford.weight
	welford.timestampM2 += weight * timestampDelta * (timestamp - welford.timestampMean)

	welford.c2 += weight * delta * (timestamp - welford.timestampMean)
}

func (welford *Welford) GetCount() uint64 {
	return welford.count
}

func (welford *Welford) GetMean() float64 {
	if welford.count == 0 {
		return math.NaN()
	}
	return welford.mean
}

func (welford *Welford) GetM2() float64 {
	return welford.m2
}

func (welford *Welford) GetTimestampMean() float64 {
	return welford.timestampMean
}

func (welford *Welford) GetTimestampM2() float64 {
	return welford.timestampM2
}

func (welford *Welford) GetC2() float64 {
	return welford.c2
}

func (welford *Welford) GetVariance() float64 {
	if welford.count < 1 {
		return math.NaN()
	}
	return welford.m2 / welford.weight
}

func (welford *Welford) GetSampleVariance() float64 {
	if welford.count < 2 {
		return math.NaN()
	}
	return welford.m2 / (welford.weight - 1)
}

func (welford *Welford) GetSD() float64 {
	return math.Sqrt(welford.GetSampleVariance())
}

func (welford *Welford) GetTrend() float64 {
	if welford.count < 2 || welford.timestampM2 == 0 {
		return math.NaN()
	}
	return welford.c2 / welford.timestampM2
}
