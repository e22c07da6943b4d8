package core

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Deferrer runs a callback once at the end of the current event loop turn,
// coalescing registrations that share a key.
type Deferrer interface {
	Defer(key string, task func())
}

// SampleSink consumes a sample stream. Statistics and Distribution both
// implement it.
type SampleSink interface {
	Sample(value float32, nowMs uint32)
}

type DerivedOp int

const (
	DerivedSum DerivedOp = iota
	DerivedDifference
	DerivedProduct
	DerivedRatio
	DerivedMean
)

var derivedOpNames = map[DerivedOp]string{
	DerivedSum:        "sum",
	DerivedDifference: "difference",
	DerivedProduct:    "product",
	DerivedRatio:      "ratio",
	DerivedMean:       "mean",
}

func (op DerivedOp) String() string {
	if name, ok := derivedOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("DerivedOp(%d)", int(op))
}

func ParseDerivedOp(name string) (DerivedOp, error) {
	normalized := normalize(name)
	for op, opName := range derivedOpNames {
		if opName == normalized {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDerivedOp, name)
}

func (op DerivedOp) apply(a, b float64) float64 {
	switch op {
	case DerivedSum:
		return a + b
	case DerivedDifference:
		return a - b
	case DerivedProduct:
		return a * b
	case DerivedRatio:
		if b == 0 {
			return math.NaN()
		}
		return a / b
	case DerivedMean:
		return (a + b) / 2
	}
	return math.NaN()
}

// Derived combines the latest readings of two sources into a new sample
// stream. When both inputs change in the same turn it recomputes once, with
// both new values.
type Derived struct {
	id       string
	op       DerivedOp
	deferrer Deferrer
	logger   *zap.Logger

	a, b      float64
	timestamp uint32
	sinks     []SampleSink
	recompute func()
}

func NewDerived(id string, op DerivedOp, deferrer Deferrer, logger *zap.Logger) (*Derived, error) {
	if _, ok := derivedOpNames[op]; !ok {
		return nil, fmt.Errorf("derived '%s': %w: %d", id, ErrInvalidDerivedOp, int(op))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	derived := &Derived{
		id:       id,
		op:       op,
		deferrer: deferrer,
		logger:   logger.Named("derived").With(zap.String("component", id)),
		a:        math.NaN(),
		b:        math.NaN(),
	}
	derived.recompute = derived.publish
	return derived, nil
}

func (d *Derived) ID() string {
	return d.id
}

func (d *Derived) Subscribe(target SampleSink) {
	d.sinks = append(d.sinks, target)
}

func (d *Derived) SetA(value float32, nowMs uint32) {
	d.a = float64(value)
	d.schedule(nowMs)
}

func (d *Derived) SetB(value float32, nowMs uint32) {
	d.b = float64(value)
	d.schedule(nowMs)
}

func (d *Derived) schedule(nowMs uint32) {
	d.timestamp = nowMs
	d.deferrer.Defer(d.id, d.recompute)
}

// Value is the result for the latest inputs; NaN until both have arrived.
func (d *Derived) Value() float64 {
	if math.IsNaN(d.a) || math.IsNaN(d.b) {
		return math.NaN()
	}
	return d.op.apply(d.a, d.b)
}

func (d *Derived) publish() {
	value := float32(d.Value())
	for _, target := range d.sinks {
		target.Sample(value, d.timestamp)
	}
}
