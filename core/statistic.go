package core

import (
	"fmt"

	"sensorstats/monoid"
)

// Statistic is one value a statistics component can publish.
type Statistic int

const (
	StatCount Statistic = iota
	StatDuration
	StatMin
	StatMax
	StatMean
	StatVariance
	StatStdDev
	StatCovariance
	StatTrend
	StatCoefficientOfDetermination

	numStatistics
)

var statisticNames = [numStatistics]string{
	StatCount:                      "count",
	StatDuration:                   "duration",
	StatMin:                        "min",
	StatMax:                        "max",
	StatMean:                       "mean",
	StatVariance:                   "variance",
	StatStdDev:                     "std_dev",
	StatCovariance:                 "covariance",
	StatTrend:                      "trend",
	StatCoefficientOfDetermination: "coefficient_of_determination",
}

// statisticFields lists the members each statistic reads.
var statisticFields = [numStatistics]monoid.Fields{
	StatCount:    0,
	StatDuration: monoid.FieldDuration,
	StatMin:      monoid.FieldMin,
	StatMax:      monoid.FieldMax,
	StatMean:     monoid.FieldMean,
	StatVariance: monoid.FieldM2 | monoid.FieldMean,
	StatStdDev:   monoid.FieldM2 | monoid.FieldMean,
	StatCovariance: monoid.FieldC2 | monoid.FieldMean |
		monoid.FieldTimestampMean | monoid.FieldTimestampReference,
	StatTrend: monoid.FieldC2 | monoid.FieldM2 | monoid.FieldMean |
		monoid.FieldTimestampM2 | monoid.FieldTimestampMean | monoid.FieldTimestampReference,
	StatCoefficientOfDetermination: monoid.FieldC2 | monoid.FieldM2 | monoid.FieldMean |
		monoid.FieldTimestampM2 | monoid.FieldTimestampMean | monoid.FieldTimestampReference,
}

func (stat Statistic) Valid() bool {
	return stat >= 0 && stat < numStatistics
}

func (stat Statistic) String() string {
	if !stat.Valid() {
		return fmt.Sprintf("Statistic(%d)", int(stat))
	}
	return statisticNames[stat]
}

func ParseStatistic(name string) (Statistic, error) {
	normalized := normalize(name)
	if normalized == "standard_deviation" {
		return StatStdDev, nil
	}
	for stat, statName := range statisticNames {
		if statName == normalized {
			return Statistic(stat), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatistic, name)
}

// AllStatistics returns every publishable statistic in declaration order.
func AllStatistics() []Statistic {
	all := make([]Statistic, 0, numStatistics)
	for stat := Statistic(0); stat < numStatistics; stat++ {
		all = append(all, stat)
	}
	return all
}

// EnabledFields is the smallest set of aggregate members a queue has to
// store to publish the given statistics. Count is always kept because it
// decides whether a slot is empty; time-weighted averages also need the
// durations that serve as weights.
func EnabledFields(statistics []Statistic, average AverageType) monoid.Fields {
	fields := monoid.FieldCount
	for _, stat := range statistics {
		if stat.Valid() {
			fields |= statisticFields[stat]
		}
	}
	if average == TimeWeightedAverage {
		fields |= monoid.FieldDuration | monoid.FieldDurationSquared
	}
	return fields
}

// Derive computes stat from an aggregate. Per-millisecond quantities are
// converted to unit: covariance is divided by its factor, trend multiplied.
func Derive(stat Statistic, aggregate monoid.Aggregate, average AverageType, group GroupType, unit TimeUnit) float64 {
	timeWeighted := average == TimeWeightedAverage
	population := group == PopulationGroup

	switch stat {
	case StatCount:
		return float64(aggregate.Count)
	case StatDuration:
		return float64(aggregate.Duration)
	case StatMin:
		return monoid.PublishedMin(aggregate)
	case StatMax:
		return monoid.PublishedMax(aggregate)
	case StatMean:
		return monoid.PublishedMean(aggregate)
	case StatVariance:
		return monoid.Variance(aggregate, timeWeighted, population)
	case StatStdDev:
		return monoid.StdDev(aggregate, timeWeighted, population)
	case StatCovariance:
		return monoid.Covariance(aggregate, timeWeighted, population) / unit.Factor()
	case StatTrend:
		return monoid.Trend(aggregate) * unit.Factor()
	case StatCoefficientOfDetermination:
		return monoid.CoefficientOfDetermination(aggregate)
	}
	panic(fmt.Sprintf("unknown statistic %d", int(stat)))
}
