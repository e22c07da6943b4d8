package source

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sample is one reading of a named upstream source. Without a timestamp the
// host stamps it on arrival.
type Sample struct {
	Source       string
	Value        float32
	TimestampMs  uint32
	HasTimestamp bool
}

// Source delivers samples to out until ctx is done or the input ends.
type Source interface {
	Run(ctx context.Context, out chan<- Sample) error
}

// ParseLine reads "<source> <value> [timestamp_ms]". The value may be nan;
// timestamps wrap to 32 bits.
func ParseLine(line string) (Sample, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return Sample{}, fmt.Errorf("%w: expected 2 or 3 fields, got %d", ErrMalformedLine, len(fields))
	}

	value, err := strconv.ParseFloat(fields[1], 32)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: value %q: %w", ErrMalformedLine, fields[1], err)
	}
	sample := Sample{Source: fields[0], Value: float32(value)}

	if len(fields) == 3 {
		timestamp, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: timestamp %q: %w", ErrMalformedLine, fields[2], err)
		}
		sample.TimestampMs = uint32(timestamp)
		sample.HasTimestamp = true
	}
	return sample, nil
}

func nanIfNil(value *float64) float32 {
	if value == nil {
		return float32(math.NaN())
	}
	return float32(*value)
}

func send(ctx context.Context, out chan<- Sample, sample Sample) error {
	select {
	case out <- sample:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
