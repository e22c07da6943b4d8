package monoid

import "math"

// Denominator returns the normalizing weight for second moments, or NaN when
// it is not positive.
//
// Simple averages use the count, time-weighted averages the duration. The
// sample estimators apply Bessel's correction (w-1) or, for time-weighted
// averages, the reliability weight correction w - sum(d^2)/w.
func Denominator(aggregate Aggregate, timeWeighted, population bool) float64 {
	w := aggregate.weight(timeWeighted)

	denominator := w
	if !population {
		if timeWeighted {
			if w == 0 {
				return math.NaN()
			}
			denominator = w - float64(aggregate.DurationSquared)/w
		} else {
			denominator = w - 1
		}
	}

	if denominator <= 0 {
		return math.NaN()
	}
	return denominator
}

func Variance(aggregate Aggregate, timeWeighted, population bool) float64 {
	if aggregate.IsEmpty() {
		return math.NaN()
	}
	return aggregate.M2 / Denominator(aggregate, timeWeighted, population)
}

func StdDev(aggregate Aggregate, timeWeighted, population bool) float64 {
	return math.Sqrt(Variance(aggregate, timeWeighted, population))
}

// Covariance between the values and their timestamps, in value*ms.
func Covariance(aggregate Aggregate, timeWeighted, population bool) float64 {
	if aggregate.IsEmpty() {
		return math.NaN()
	}
	return aggregate.C2 / Denominator(aggregate, timeWeighted, population)
}

// Trend is the slope of the least squares line through (timestamp, value),
// in value per ms.
func Trend(aggregate Aggregate) float64 {
	if aggregate.Count < 2 || aggregate.TimestampM2 == 0 {
		return math.NaN()
	}
	return aggregate.C2 / aggregate.TimestampM2
}

// CoefficientOfDetermination is r^2 of the least squares trend line.
func CoefficientOfDetermination(aggregate Aggregate) float64 {
	if aggregate.Count < 2 || aggregate.M2 == 0 || aggregate.TimestampM2 == 0 {
		return math.NaN()
	}
	return aggregate.C2 * aggregate.C2 / (aggregate.M2 * aggregate.TimestampM2)
}

func PublishedMin(aggregate Aggregate) float64 {
	return finiteOrNaN(aggregate.Min)
}

func PublishedMax(aggregate Aggregate) float64 {
	return finiteOrNaN(aggregate.Max)
}

func PublishedMean(aggregate Aggregate) float64 {
	if aggregate.IsEmpty() {
		return math.NaN()
	}
	return aggregate.Mean
}

func finiteOrNaN(value float64) float64 {
	if math.IsInf(value, 0) {
		return math.NaN()
	}
	return value
}
