package monoid

import "strings"

// Fields is a set of Aggregate members. A store only keeps the members in
// its set; the rest read back as their identity value.
type Fields uint16

const (
	FieldC2 Fields = 1 << iota
	FieldCount
	FieldDuration
	FieldDurationSquared
	FieldM2
	FieldMax
	FieldMean
	FieldMin
	FieldTimestampM2
	FieldTimestampMean
	FieldTimestampReference
)

const AllFields = FieldC2 | FieldCount | FieldDuration | FieldDurationSquared |
	FieldM2 | FieldMax | FieldMean | FieldMin |
	FieldTimestampM2 | FieldTimestampMean | FieldTimestampReference

var fieldNames = []struct {
	field Fields
	name  string
}{
	{FieldC2, "c2"},
	{FieldCount, "count"},
	{FieldDuration, "duration"},
	{FieldDurationSquared, "duration_squared"},
	{FieldM2, "m2"},
	{FieldMax, "max"},
	{FieldMean, "mean"},
	{FieldMin, "min"},
	{FieldTimestampM2, "timestamp_m2"},
	{FieldTimestampMean, "timestamp_mean"},
	{FieldTimestampReference, "timestamp_reference"},
}

func (fields Fields) Has(field Fields) bool {
	return fields&field == field
}

func (fields Fields) String() string {
	names := make([]string, 0, len(fieldNames))
	for _, entry := range fieldNames {
		if fields.Has(entry.field) {
			names = append(names, entry.name)
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}
