// Package facematch decides which enrolled user, if any, a probe face
// encoding belongs to.
package facematch

import (
	"errors"
	"fmt"
	"math"
)

// Dim is the encoding dimensionality produced by the face service.
const Dim = 128

// DefaultTolerance is the maximum distance at which two encodings are
// considered the same person.
const DefaultTolerance = 0.6

// ErrDimensionMismatch indicates a probe or reference encoding with the
// wrong length. This is a contract violation by the caller, not a match
// outcome.
var ErrDimensionMismatch = errors.New("facematch: encoding dimension mismatch")

// Encoding is a fixed-length face feature vector.
type Encoding []float32

// Candidate pairs a user with their reference encodings. A user matches
// when any one of their encodings is within tolerance.
type Candidate struct {
	UserID    string
	Encodings []Encoding
}

// Result reports the outcome of a match scan.
type Result struct {
	Matched  bool
	UserID   string
	Distance float64
}

// Metric computes the distance between two equal-length encodings.
type Metric func(a, b Encoding) float64

// EuclideanDistance is the default metric.
func EuclideanDistance(a, b Encoding) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Policy selects how ties between multiple matching users are resolved.
type Policy string

const (
	// PolicyFirst accepts the first candidate in iteration order whose
	// encoding set contains a match. Candidate ordering must be stable
	// (callers order ascending by user id) so the outcome is reproducible.
	PolicyFirst Policy = "first"
	// PolicyNearest scans all candidates and accepts the one with the
	// globally smallest distance under tolerance.
	PolicyNearest Policy = "nearest"
)

// ParsePolicy maps a config string to a Policy, defaulting to PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyFirst, "":
		return PolicyFirst, nil
	case PolicyNearest:
		return PolicyNearest, nil
	}
	return "", fmt.Errorf("facematch: unknown policy %q", s)
}

// Matcher runs probe-vs-reference comparisons under a tolerance.
type Matcher struct {
	Tolerance float64
	Metric    Metric
	Policy    Policy
}

// New creates a matcher with the given tolerance and policy, falling back
// to defaults for zero values.
func New(tolerance float64, policy Policy) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if policy == "" {
		policy = PolicyFirst
	}
	return &Matcher{Tolerance: tolerance, Metric: EuclideanDistance, Policy: policy}
}

// Find scans candidates for a user whose encoding set matches the probe.
// A no-match is a Result with Matched=false and a nil error; errors are
// reserved for contract violations.
func (m *Matcher) Find(probe Encoding, candidates []Candidate) (Result, error) {
	if len(probe) != Dim {
		return Result{}, fmt.Errorf("%w: probe has %d values, want %d", ErrDimensionMismatch, len(probe), Dim)
	}
	metric := m.Metric
	if metric == nil {
		metric = EuclideanDistance
	}

	best := Result{Distance: math.Inf(1)}
	for _, cand := range candidates {
		d, ok, err := m.userDistance(metric, probe, cand)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		if m.Policy == PolicyFirst {
			return Result{Matched: true, UserID: cand.UserID, Distance: d}, nil
		}
		if d < best.Distance {
			best = Result{Matched: true, UserID: cand.UserID, Distance: d}
		}
	}
	if best.Matched {
		return best, nil
	}
	return Result{}, nil
}

// userDistance returns the smallest in-tolerance distance across the
// candidate's encoding set, or ok=false when none qualifies.
func (m *Matcher) userDistance(metric Metric, probe Encoding, cand Candidate) (float64, bool, error) {
	best := math.Inf(1)
	found := false
	for _, ref := range cand.Encodings {
		if len(ref) != len(probe) {
			return 0, false, fmt.Errorf("%w: user %s reference has %d values, want %d",
				ErrDimensionMismatch, cand.UserID, len(ref), len(probe))
		}
		d := metric(probe, ref)
		if d <= m.Tolerance && d < best {
			best = d
			found = true
		}
	}
	return best, found, nil
}

// Verify checks a probe against a single user's encoding set (1:1).
func (m *Matcher) Verify(probe Encoding, refs []Encoding) (Result, error) {
	return m.Find(probe, []Candidate{{Encodings: refs}})
}
