package utils

import (
	"math"
	"testing"
)

func AssertTrue(t *testing.T, a bool) {
	t.Helper()
	if !a {
		t.Fatalf("Expected true, got false")
	}
}

func AssertEqual(t *testing.T, a interface{}, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("Expected equal: %v != %v\n", a, b)
	}
}

// AssertClose fails unless a and b are within eps of each other, relative to
// their magnitude once it exceeds one.
func AssertClose(t *testing.T, a, b, eps float64) {
	t.Helper()
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	if math.IsNaN(a) || math.IsNaN(b) || math.Abs(a-b) > eps*scale {
		t.Fatalf("Expected close: %v != %v (eps %v)\n", a, b, eps)
	}
}

func AssertNaN(t *testing.T, a float64) {
	t.Helper()
	if !math.IsNaN(a) {
		t.Fatalf("Expected NaN, got %v\n", a)
	}
}
