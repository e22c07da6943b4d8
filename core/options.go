package core

import (
	"fmt"
	"strings"
)

type StatisticsType int

const (
	SlidingWindow StatisticsType = iota
	ChunkedSlidingWindow
	Continuous
	ChunkedContinuous
)

var statisticsTypeNames = map[StatisticsType]string{
	SlidingWindow:        "sliding_window",
	ChunkedSlidingWindow: "chunked_sliding_window",
	Continuous:           "continuous",
	ChunkedContinuous:    "chunked_continuous",
}

func (st StatisticsType) String() string {
	if name, ok := statisticsTypeNames[st]; ok {
		return name
	}
	return fmt.Sprintf("StatisticsType(%d)", int(st))
}

// Sliding reports whether old chunks leave the window one at a time.
func (st StatisticsType) Sliding() bool {
	return st == SlidingWindow || st == ChunkedSlidingWindow
}

// Chunked reports whether samples are grouped into multi-sample chunks.
func (st StatisticsType) Chunked() bool {
	return st == ChunkedSlidingWindow || st == ChunkedContinuous
}

func ParseStatisticsType(name string) (StatisticsType, error) {
	normalized := normalize(name)
	for st, stName := range statisticsTypeNames {
		if stName == normalized {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatisticsType, name)
}

type AverageType int

const (
	SimpleAverage AverageType = iota
	TimeWeightedAverage
)

func (at AverageType) String() string {
	if at == TimeWeightedAverage {
		return "time_weighted"
	}
	return "simple"
}

func ParseAverageType(name string) (AverageType, error) {
	switch normalize(name) {
	case "simple", "":
		return SimpleAverage, nil
	case "time_weighted":
		return TimeWeightedAverage, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidAverageType, name)
}

type GroupType int

const (
	SampleGroup GroupType = iota
	PopulationGroup
)

func (gt GroupType) String() string {
	if gt == PopulationGroup {
		return "population"
	}
	return "sample"
}

func ParseGroupType(name string) (GroupType, error) {
	switch normalize(name) {
	case "sample", "":
		return SampleGroup, nil
	case "population":
		return PopulationGroup, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidGroupType, name)
}

// TimeUnit scales published covariance (divided) and trend (multiplied),
// which are computed per millisecond.
type TimeUnit int

const (
	Milliseconds TimeUnit = iota
	Seconds
	Minutes
	Hours
	Days
)

var timeUnitFactors = map[TimeUnit]float64{
	Milliseconds: 1,
	Seconds:      1000,
	Minutes:      60 * 1000,
	Hours:        60 * 60 * 1000,
	Days:         24 * 60 * 60 * 1000,
}

func (tu TimeUnit) Factor() float64 {
	if factor, ok := timeUnitFactors[tu]; ok {
		return factor
	}
	return 1
}

func (tu TimeUnit) String() string {
	switch tu {
	case Milliseconds:
		return "ms"
	case Seconds:
		return "s"
	case Minutes:
		return "min"
	case Hours:
		return "h"
	case Days:
		return "d"
	}
	return fmt.Sprintf("TimeUnit(%d)", int(tu))
}

func ParseTimeUnit(name string) (TimeUnit, error) {
	switch normalize(name) {
	case "ms", "millisecond", "milliseconds":
		return Milliseconds, nil
	case "s", "second", "seconds", "":
		return Seconds, nil
	case "min", "minute", "minutes":
		return Minutes, nil
	case "h", "hour", "hours":
		return Hours, nil
	case "d", "day", "days":
		return Days, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimeUnit, name)
}

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}
