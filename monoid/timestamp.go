package monoid

const signBit uint32 = 0x80000000

// normalizeTimestamps rebases the timestamp means of both operands onto the
// more recent of their two references and returns that reference. Both
// operands must be non-empty.
//
// References are compared by the sign of their uint32 difference, so a
// rollover between them is handled as long as they are less than 2^31 ms
// apart. Beyond that the older reference is taken as the newer one and the
// offset is applied with the wrong sign.
func normalizeTimestamps(a, b *Aggregate) uint32 {
	refA := a.TimestampReference
	refB := b.TimestampReference

	if (refA-refB)&signBit != 0 {
		a.TimestampMean -= float64(refB - refA)
		a.TimestampReference = refB
		return refB
	}

	b.TimestampMean -= float64(refA - refB)
	b.TimestampReference = refA
	return refA
}
