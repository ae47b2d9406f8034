package httpmiddleware

import "testing"

func TestAllowWithinCapacity(t *testing.T) {
	l := NewTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Error("request beyond capacity should be rejected")
	}
}

func TestAllowPerKeyIsolation(t *testing.T) {
	l := NewTokenBucket(1, 1)
	if !l.allow("a") {
		t.Fatal("first key should be allowed")
	}
	if !l.allow("b") {
		t.Error("separate keys have separate buckets")
	}
	if l.allow("a") {
		t.Error("exhausted key should be rejected")
	}
}
