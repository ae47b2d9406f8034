package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.MatchTolerance != 0.6 {
		t.Errorf("MatchTolerance = %g; want 0.6", cfg.MatchTolerance)
	}
	if cfg.CooldownWindow != 5*time.Minute {
		t.Errorf("CooldownWindow = %s; want 5m", cfg.CooldownWindow)
	}
	if cfg.MatchPolicy != "first" {
		t.Errorf("MatchPolicy = %q; want first", cfg.MatchPolicy)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_TOLERANCE", "0.45")
	t.Setenv("COOLDOWN_WINDOW", "10m")
	t.Setenv("FACE_SKIP", "true")
	t.Setenv("FACE_POOL_SIZE", "8")

	cfg := Load()
	if cfg.MatchTolerance != 0.45 {
		t.Errorf("MatchTolerance = %g; want 0.45", cfg.MatchTolerance)
	}
	if cfg.CooldownWindow != 10*time.Minute {
		t.Errorf("CooldownWindow = %s; want 10m", cfg.CooldownWindow)
	}
	if !cfg.FaceSkip {
		t.Error("FaceSkip should be true")
	}
	if cfg.FacePoolSize != 8 {
		t.Errorf("FacePoolSize = %d; want 8", cfg.FacePoolSize)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MATCH_TOLERANCE", "not-a-number")
	t.Setenv("COOLDOWN_WINDOW", "soon")
	t.Setenv("FACE_SKIP", "maybe")

	cfg := Load()
	if cfg.MatchTolerance != 0.6 {
		t.Errorf("MatchTolerance = %g; want fallback 0.6", cfg.MatchTolerance)
	}
	if cfg.CooldownWindow != 5*time.Minute {
		t.Errorf("CooldownWindow = %s; want fallback 5m", cfg.CooldownWindow)
	}
	if cfg.FaceSkip {
		t.Error("FaceSkip should fall back to false")
	}
}
