package digest

import (
	"fmt"
	"math"
	"strings"
)

// Scale bounds how much weight a centroid at quantile q may hold. QMax is
// expressed as a fraction of the total weight.
type Scale interface {
	Normalizer(compression, totalWeight float64) float64
	QMax(q, normalizer float64) float64
	String() string
}

type k1 struct{}

func (k1) Normalizer(compression, _ float64) float64 {
	return compression / math.Pi
}

func (k1) QMax(q, normalizer float64) float64 {
	return 2 * math.Sin(0.5/normalizer) * math.Sqrt(q*(1-q))
}

func (k1) String() string { return "K1" }

type k2 struct{}

func (k2) Normalizer(compression, totalWeight float64) float64 {
	return compression / (4*math.Log(totalWeight/compression) + 24)
}

func (k2) QMax(q, normalizer float64) float64 {
	return q * (1 - q) / normalizer
}

func (k2) String() string { return "K2" }

type k3 struct{}

func (k3) Normalizer(compression, totalWeight float64) float64 {
	return compression / (4*math.Log(totalWeight/compression) + 21)
}

func (k3) QMax(q, normalizer float64) float64 {
	return math.Min(q, 1-q) / normalizer
}

func (k3) String() string { return "K3" }

var (
	// K1 is the arcsine scale of the original t-digest.
	K1 Scale = k1{}
	// K2 bounds centroid weight by q(1-q).
	K2 Scale = k2{}
	// K3 bounds centroid weight by the distance to the nearest tail.
	K3 Scale = k3{}
)

func ParseScale(name string) (Scale, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "K1":
		return K1, nil
	case "K2":
		return K2, nil
	case "K3", "":
		return K3, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidScaleFunction, name)
}
