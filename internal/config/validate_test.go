package config

import (
	"strings"
	"testing"
)

func TestValidateClampsTargetFPS(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{5, 15},
		{15, 15},
		{30, 30},
		{60, 60},
		{999, 60},
		{-1, 15},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.TargetFPS = tc.in
		cfg.Validate()
		if cfg.TargetFPS != tc.want {
			t.Errorf("TargetFPS %d clamped to %d, want %d", tc.in, cfg.TargetFPS, tc.want)
		}
	}
}

func TestValidateClampsMicVolume(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{0, 0},
		{1.5, 1.5},
		{10, 10},
		{50, 10},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.MicVolume = tc.in
		cfg.Validate()
		if cfg.MicVolume != tc.want {
			t.Errorf("MicVolume %g clamped to %g, want %g", tc.in, cfg.MicVolume, tc.want)
		}
	}
}

func TestValidateClampsCaptureScale(t *testing.T) {
	cfg := Default()
	cfg.CaptureScale = 0.1
	cfg.Validate()
	if cfg.CaptureScale != 0.25 {
		t.Fatalf("CaptureScale = %g, want 0.25", cfg.CaptureScale)
	}

	cfg.CaptureScale = 2.0
	cfg.Validate()
	if cfg.CaptureScale != 1.0 {
		t.Fatalf("CaptureScale = %g, want 1.0", cfg.CaptureScale)
	}
}

func TestValidateClampsMaxDuration(t *testing.T) {
	cfg := Default()
	cfg.MaxDurationMinutes = 0
	cfg.Validate()
	if cfg.MaxDurationMinutes != 1 {
		t.Fatalf("MaxDurationMinutes = %d, want 1", cfg.MaxDurationMinutes)
	}

	cfg.MaxDurationMinutes = 720
	cfg.Validate()
	if cfg.MaxDurationMinutes != 120 {
		t.Fatalf("MaxDurationMinutes = %d, want 120", cfg.MaxDurationMinutes)
	}
}

func TestValidateUnknownQualityFallsBack(t *testing.T) {
	cfg := Default()
	cfg.VideoQuality = "ultra"
	errs := cfg.Validate()
	if cfg.VideoQuality != "medium" {
		t.Fatalf("VideoQuality = %q, want medium", cfg.VideoQuality)
	}
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "video_quality") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a video_quality correction error")
	}
}

func TestValidateDefaultIsClean(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config produced corrections: %v", errs)
	}
}

func TestTierKnownAndFallback(t *testing.T) {
	cfg := Default()
	cfg.VideoQuality = "high"
	if tier := cfg.Tier(); tier.CRF != 18 {
		t.Fatalf("high tier CRF = %d, want 18", tier.CRF)
	}
	cfg.VideoQuality = "nonsense" // bypassing Validate on purpose
	if tier := cfg.Tier(); tier.CRF != 23 {
		t.Fatalf("fallback tier CRF = %d, want 23", tier.CRF)
	}
}
