package facematch

import (
	"errors"
	"math"
	"testing"
)

// enc builds a Dim-length encoding whose first value is v and the rest zero.
// Euclidean distance between two such encodings is |a-b|.
func enc(v float32) Encoding {
	e := make(Encoding, Dim)
	e[0] = v
	return e
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Encoding
		expected float64
	}{
		{"identical", enc(0.5), enc(0.5), 0},
		{"single axis", enc(0), enc(3), 3},
		{"negative direction", enc(2), enc(-1), 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := EuclideanDistance(tc.a, tc.b)
			if math.Abs(got-tc.expected) > 1e-9 {
				t.Errorf("EuclideanDistance = %f; want %f", got, tc.expected)
			}
		})
	}
}

func TestFindFirstMatchPolicy(t *testing.T) {
	m := New(0.6, PolicyFirst)
	probe := enc(0)

	// Second candidate is strictly closer, but the first in iteration
	// order satisfies the tolerance and must win.
	candidates := []Candidate{
		{UserID: "alice", Encodings: []Encoding{enc(0.5)}},
		{UserID: "bob", Encodings: []Encoding{enc(0.1)}},
	}

	res, err := m.Find(probe, candidates)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if res.UserID != "alice" {
		t.Errorf("first-match policy returned %q; want alice", res.UserID)
	}
}

func TestFindNearestPolicy(t *testing.T) {
	m := New(0.6, PolicyNearest)
	probe := enc(0)

	candidates := []Candidate{
		{UserID: "alice", Encodings: []Encoding{enc(0.5)}},
		{UserID: "bob", Encodings: []Encoding{enc(0.1)}},
	}

	res, err := m.Find(probe, candidates)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if res.UserID != "bob" {
		t.Errorf("nearest policy returned %q; want bob", res.UserID)
	}
	if math.Abs(res.Distance-0.1) > 1e-6 {
		t.Errorf("distance = %f; want 0.1", res.Distance)
	}
}

func TestFindToleranceBoundary(t *testing.T) {
	m := New(0.6, PolicyFirst)

	tests := []struct {
		name    string
		ref     Encoding
		matched bool
	}{
		{"inside tolerance", enc(0.59), true},
		{"exactly at tolerance", enc(0.6), true},
		{"outside tolerance", enc(0.61), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := m.Find(enc(0), []Candidate{{UserID: "u", Encodings: []Encoding{tc.ref}}})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if res.Matched != tc.matched {
				t.Errorf("Matched = %v; want %v", res.Matched, tc.matched)
			}
		})
	}
}

func TestFindAnyEncodingMatches(t *testing.T) {
	// A user matches when any one of their reference encodings is within
	// tolerance, even if the others are far away.
	m := New(0.6, PolicyFirst)
	res, err := m.Find(enc(0), []Candidate{{
		UserID:    "carol",
		Encodings: []Encoding{enc(5), enc(3), enc(0.2)},
	}})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !res.Matched || res.UserID != "carol" {
		t.Fatalf("expected carol to match, got %+v", res)
	}
}

func TestFindNoMatch(t *testing.T) {
	m := New(0.6, PolicyFirst)
	res, err := m.Find(enc(0), []Candidate{
		{UserID: "alice", Encodings: []Encoding{enc(2)}},
		{UserID: "bob", Encodings: []Encoding{enc(3)}},
	})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if res.Matched {
		t.Errorf("expected no match, got %+v", res)
	}
}

func TestFindNeverReturnsBeyondTolerance(t *testing.T) {
	for _, policy := range []Policy{PolicyFirst, PolicyNearest} {
		t.Run(string(policy), func(t *testing.T) {
			m := New(0.3, policy)
			res, err := m.Find(enc(0), []Candidate{
				{UserID: "far", Encodings: []Encoding{enc(0.31), enc(1)}},
			})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if res.Matched {
				t.Errorf("candidate beyond tolerance returned: %+v", res)
			}
		})
	}
}

func TestFindDimensionMismatch(t *testing.T) {
	m := New(0.6, PolicyFirst)

	if _, err := m.Find(make(Encoding, 12), nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short probe: err = %v; want ErrDimensionMismatch", err)
	}

	_, err := m.Find(enc(0), []Candidate{{UserID: "u", Encodings: []Encoding{make(Encoding, 64)}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short reference: err = %v; want ErrDimensionMismatch", err)
	}
}

func TestVerify(t *testing.T) {
	m := New(0.6, PolicyFirst)

	res, err := m.Verify(enc(0), []Encoding{enc(2), enc(0.4)})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.Matched {
		t.Error("expected probe to verify against second reference")
	}

	res, err = m.Verify(enc(0), []Encoding{enc(2)})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Matched {
		t.Error("expected verification to fail")
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyFirst, false},
		{"first", PolicyFirst, false},
		{"nearest", PolicyNearest, false},
		{"best", "", true},
	}

	for _, tc := range tests {
		got, err := ParsePolicy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePolicy(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParsePolicy(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}
