package monoid

import "math"

// Aggregate carries every moment tracked for a (possibly empty) set of
// samples. The zero value is not the identity; use Identity.
type Aggregate struct {
	Count           uint64
	Duration        uint64
	DurationSquared uint64

	Min  float64
	Max  float64
	Mean float64
	M2   float64

	// TimestampMean is relative to TimestampReference, in ms.
	TimestampReference uint32
	TimestampMean      float64
	TimestampM2        float64

	C2 float64
}

func Identity() Aggregate {
	return Aggregate{
		Min:           math.Inf(1),
		Max:           math.Inf(-1),
		Mean:          math.NaN(),
		M2:            math.NaN(),
		TimestampMean: math.NaN(),
		TimestampM2:   math.NaN(),
		C2:            math.NaN(),
	}
}

// FromSample lifts one reading that was active for durationMs and observed
// at timestampMs. NaN values lift to the identity.
func FromSample(value float64, durationMs uint32, timestampMs uint32) Aggregate {
	if math.IsNaN(value) {
		return Identity()
	}
	duration := uint64(durationMs)
	return Aggregate{
		Count:              1,
		Duration:           duration,
		DurationSquared:    duration * duration,
		Min:                value,
		Max:                value,
		Mean:               value,
		M2:                 0,
		TimestampReference: timestampMs,
		TimestampMean:      0,
		TimestampM2:        0,
		C2:                 0,
	}
}

func (aggregate Aggregate) IsEmpty() bool {
	return aggregate.Count == 0
}

func (aggregate Aggregate) weight(timeWeighted bool) float64 {
	if timeWeighted {
		return float64(aggregate.Duration)
	}
	return float64(aggregate.Count)
}

// Combine merges b (the more recent operand) into a. Combining with an empty
// aggregate returns the other operand unchanged.
func Combine(a, b Aggregate, timeWeighted bool) Aggregate {
	if b.IsEmpty() {
		return a
	}
	if a.IsEmpty() {
		return b
	}

	c := Aggregate{
		Count:           a.Count + b.Count,
		Duration:        a.Duration + b.Duration,
		DurationSquared: a.DurationSquared + b.DurationSquared,
		Min:             math.Min(a.Min, b.Min),
		Max:             math.Max(a.Max, b.Max),
	}

	c.TimestampReference = normalizeTimestamps(&a, &b)

	wA := a.weight(timeWeighted)
	wB := b.weight(timeWeighted)

	switch {
	case wA == 0 && wB == 0:
		c.Mean = math.NaN()
		c.M2 = math.NaN()
		c.TimestampMean = math.NaN()
		c.TimestampM2 = math.NaN()
		c.C2 = math.NaN()
	case wA == 0:
		c.Mean, c.M2 = b.Mean, b.M2
		c.TimestampMean, c.TimestampM2 = b.TimestampMean, b.TimestampM2
		c.C2 = b.C2
	case wB == 0:
		c.Mean, c.M2 = a.Mean, a.M2
		c.TimestampMean, c.TimestampM2 = a.TimestampMean, a.TimestampM2
		c.C2 = a.C2
	default:
		total := wA + wB

		delta := b.Mean - a.Mean
		deltaPrime := delta * wB / total
		c.Mean = a.Mean + deltaPrime
		c.M2 = a.M2 + b.M2 + wA*delta*deltaPrime

		timestampDelta := b.TimestampMean - a.TimestampMean
		timestampDeltaPrime := timestampDelta * wB / total
		c.TimestampMean = a.TimestampMean + timestampDeltaPrime
		c.TimestampM2 = a.TimestampM2 + b.TimestampM2 + wA*timestampDelta*timestampDeltaPrime

		c.C2 = a.C2 + b.C2 + wA*delta*timestampDeltaPrime
	}

	return c
}

func (aggregate *Aggregate) CombineWith(other Aggregate, timeWeighted bool) {
	*aggregate = Combine(*aggregate, other, timeWeighted)
}
