package digest

import (
	"cmp"
	"math"
	"slices"
)

const (
	DefaultCompression = 100
	DefaultBufferSize  = 10
)

type Centroid struct {
	Mean   float64
	Weight uint64
}

func (centroid *Centroid) merge(other Centroid) {
	weight := centroid.Weight + other.Weight
	centroid.Mean += (other.Mean - centroid.Mean) * float64(other.Weight) / float64(weight)
	centroid.Weight = weight
}

// MergingDigest is Dunning's merging t-digest: incoming points wait in a
// small buffer and are folded into the sorted centroid list in one pass
// whenever the buffer fills or a query needs an up-to-date view.
type MergingDigest struct {
	compression float64
	scale       Scale
	bufferSize  int

	centroids []Centroid
	buffer    []Centroid
	scratch   []Centroid

	mergedWeight   uint64
	unmergedWeight uint64
	min            float64
	max            float64
}

// New returns an empty digest. A nil scale selects K3 and a non-positive
// buffer size selects DefaultBufferSize.
func New(compression float64, scale Scale, bufferSize int) (*MergingDigest, error) {
	if !(compression > 0) || math.IsInf(compression, 0) {
		return nil, ErrInvalidCompression
	}
	if scale == nil {
		scale = K3
	}
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}

	capacity := bufferSize + 2*int(math.Ceil(compression)) + 8
	digest := &MergingDigest{
		compression: compression,
		scale:       scale,
		bufferSize:  bufferSize,
		centroids:   make([]Centroid, 0, capacity),
		buffer:      make([]Centroid, 0, capacity),
		scratch:     make([]Centroid, 0, capacity),
	}
	digest.Clear()
	return digest, nil
}

func (digest *MergingDigest) Compression() float64 {
	return digest.compression
}

func (digest *MergingDigest) Scale() Scale {
	return digest.scale
}

// Add records x with weight w. NaN values and zero weights are dropped.
func (digest *MergingDigest) Add(x float64, w uint64) {
	if math.IsNaN(x) || w == 0 {
		return
	}

	digest.buffer = append(digest.buffer, Centroid{Mean: x, Weight: w})
	digest.unmergedWeight += w
	if x < digest.min {
		digest.min = x
	}
	if x > digest.max {
		digest.max = x
	}

	if len(digest.buffer) >= digest.bufferSize {
		digest.merge()
	}
}

func (digest *MergingDigest) Clear() {
	digest.centroids = digest.centroids[:0]
	digest.buffer = digest.buffer[:0]
	digest.mergedWeight = 0
	digest.unmergedWeight = 0
	digest.min = math.Inf(1)
	digest.max = math.Inf(-1)
}

func (digest *MergingDigest) TotalWeight() uint64 {
	return digest.mergedWeight + digest.unmergedWeight
}

func (digest *MergingDigest) Min() float64 {
	return digest.min
}

func (digest *MergingDigest) Max() float64 {
	return digest.max
}

// Centroids returns a copy of the merged centroids in ascending mean order.
func (digest *MergingDigest) Centroids() []Centroid {
	digest.merge()
	return append([]Centroid(nil), digest.centroids...)
}

func (digest *MergingDigest) merge() {
	if len(digest.buffer) == 0 {
		return
	}

	incoming := append(digest.buffer, digest.centroids...)
	slices.SortStableFunc(incoming, func(a, b Centroid) int {
		return cmp.Compare(a.Mean, b.Mean)
	})

	total := digest.mergedWeight + digest.unmergedWeight
	merged := compress(incoming, float64(total), digest.compression, digest.scale, digest.scratch[:0])

	digest.scratch = digest.centroids[:0]
	digest.centroids = merged
	digest.buffer = incoming[:0]
	digest.mergedWeight = total
	digest.unmergedWeight = 0
}

// compress walks sorted centroids and greedily grows each output centroid
// while the scale function allows it. The second and last inputs always
// start a new output centroid, so the extremes are never absorbed.
func compress(sorted []Centroid, total, compression float64, scale Scale, out []Centroid) []Centroid {
	if len(sorted) == 0 {
		return out
	}

	normalizer := scale.Normalizer(compression, total)
	out = append(out, sorted[0])
	weightSoFar := 0.0
	last := len(sorted) - 1

	for i := 1; i < len(sorted); i++ {
		current := &out[len(out)-1]
		proposed := float64(current.Weight + sorted[i].Weight)

		add := false
		if i != 1 && i != last {
			q0 := weightSoFar / total
			q2 := (weightSoFar + proposed) / total
			budget := math.Min(scale.QMax(q0, normalizer), scale.QMax(q2, normalizer))
			add = proposed <= total*budget
		}

		if add {
			current.merge(sorted[i])
		} else {
			weightSoFar += float64(current.Weight)
			out = append(out, sorted[i])
		}
	}
	return out
}

// Quantile estimates the value below which a fraction q of the weight lies.
func (digest *MergingDigest) Quantile(q float64) float64 {
	digest.merge()

	n := len(digest.centroids)
	if n == 0 || math.IsNaN(q) {
		return math.NaN()
	}
	q = math.Max(0, math.Min(1, q))
	if n == 1 {
		return digest.centroids[0].Mean
	}

	total := float64(digest.mergedWeight)
	index := q * total
	if index < 1 {
		return digest.min
	}

	first := digest.centroids[0]
	if first.Weight > 1 && index < float64(first.Weight)/2 {
		return digest.min + (index-1)/(float64(first.Weight)/2-1)*(first.Mean-digest.min)
	}

	if index > total-1 {
		return digest.max
	}

	last := digest.centroids[n-1]
	if last.Weight > 1 && total-index <= float64(last.Weight)/2 {
		shoulder := float64(last.Weight)/2 - 1
		if shoulder <= 0 {
			return digest.max
		}
		return digest.max - (total-index-1)/shoulder*(digest.max-last.Mean)
	}

	weightSoFar := float64(first.Weight) / 2
	for i := 0; i < n-1; i++ {
		left := digest.centroids[i]
		right := digest.centroids[i+1]
		dw := float64(left.Weight+right.Weight) / 2

		if weightSoFar+dw > index {
			leftUnit := 0.0
			if left.Weight == 1 {
				if index-weightSoFar < 0.5 {
					return left.Mean
				}
				leftUnit = 0.5
			}
			rightUnit := 0.0
			if right.Weight == 1 {
				if weightSoFar+dw-index <= 0.5 {
					return right.Mean
				}
				rightUnit = 0.5
			}
			z1 := index - weightSoFar - leftUnit
			z2 := weightSoFar + dw - index - rightUnit
			return weightedAverage(left.Mean, z2, right.Mean, z1)
		}
		weightSoFar += dw
	}
	return last.Mean
}

// CDF estimates the fraction of weight at or below x.
func (digest *MergingDigest) CDF(x float64) float64 {
	digest.merge()

	n := len(digest.centroids)
	if n == 0 || math.IsNaN(x) {
		return math.NaN()
	}
	if x <= digest.min {
		return 0
	}
	if x >= digest.max {
		return 1
	}
	if n == 1 {
		return 0.5
	}

	total := float64(digest.mergedWeight)

	first := digest.centroids[0]
	if x < first.Mean {
		if first.Mean-digest.min > 0 {
			return (1 + (x-digest.min)/(first.Mean-digest.min)*(float64(first.Weight)/2-1)) / total
		}
		return 0
	}

	last := digest.centroids[n-1]
	if x > last.Mean {
		if digest.max-last.Mean > 0 {
			return 1 - (1+(digest.max-x)/(digest.max-last.Mean)*(float64(last.Weight)/2-1))/total
		}
		return 1
	}

	weightSoFar := 0.0
	for i := 0; i < n-1; i++ {
		left := digest.centroids[i]
		right := digest.centroids[i+1]

		if left.Mean == x {
			dw := 0.0
			for j := i; j < n && digest.centroids[j].Mean == x; j++ {
				dw += float64(digest.centroids[j].Weight)
			}
			return (weightSoFar + dw/2) / total
		}

		if left.Mean <= x && x < right.Mean {
			dw := float64(left.Weight+right.Weight) / 2
			if right.Mean-left.Mean <= 0 {
				return (weightSoFar + dw) / total
			}

			leftExcluded := 0.0
			rightExcluded := 0.0
			if left.Weight == 1 {
				if right.Weight == 1 {
					return (weightSoFar + 1) / total
				}
				leftExcluded = 0.5
			} else if right.Weight == 1 {
				rightExcluded = 0.5
			}

			base := weightSoFar + float64(left.Weight)/2 + leftExcluded
			span := dw - leftExcluded - rightExcluded
			return (base + span*(x-left.Mean)/(right.Mean-left.Mean)) / total
		}

		weightSoFar += float64(left.Weight)
	}

	// x equals the last centroid's mean.
	return 1 - 0.5/total
}

// weightedAverage interpolates between x1 and x2 and keeps the result
// within them despite rounding.
func weightedAverage(x1, w1, x2, w2 float64) float64 {
	if x1 > x2 {
		x1, w1, x2, w2 = x2, w2, x1, w1
	}
	x := (x1*w1 + x2*w2) / (w1 + w2)
	return math.Max(x1, math.Min(x, x2))
}
