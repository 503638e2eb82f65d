package gateway

import (
	"math"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestSnapStability(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0}, {0.1, 0}, {0.2499, 0},
		{0.25, 0.5}, {0.5, 0.5}, {0.7499, 0.5},
		{0.75, 1}, {0.9, 1}, {1, 1},
	}
	for _, tc := range tests {
		if got := SnapStability(tc.in); got != tc.want {
			t.Errorf("SnapStability(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSnapStability_ExhaustiveGrid(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		v := float64(i) / 1000
		got := SnapStability(v)
		if got != 0 && got != 0.5 && got != 1 {
			t.Fatalf("SnapStability(%v) = %v, not in {0, 0.5, 1}", v, got)
		}
	}
}

func TestForModel(t *testing.T) {
	s := DefaultSettings(false) // stability 0.45
	if got := ForModel(s, "eleven_v3").Stability; got != 0.5 {
		t.Errorf("eleven_v3 stability = %v, want 0.5", got)
	}
	if got := ForModel(s, "eleven_flash_v2_5").Stability; got != 0.45 {
		t.Errorf("flash stability = %v, want 0.45 (unchanged)", got)
	}
	if s.Stability != 0.45 {
		t.Error("ForModel mutated its input")
	}
}

func TestDefaultSettings(t *testing.T) {
	im := DefaultSettings(true)
	live := DefaultSettings(false)
	if im.Stability <= live.Stability || im.SimilarityBoost <= live.SimilarityBoost {
		t.Errorf("immersive defaults should be higher: %+v vs %+v", im, live)
	}
	if !im.UseSpeakerBoost || !live.UseSpeakerBoost {
		t.Error("speaker boost should default to true")
	}
}

func TestResolveSettings_ClampsOverrides(t *testing.T) {
	s := ResolveSettings(&SettingsOverride{
		Stability:       ptr(1.7),
		SimilarityBoost: ptr(-0.3),
		Style:           ptr(math.NaN()),
		UseSpeakerBoost: ptr(false),
	}, false)
	if s.Stability != 1 || s.SimilarityBoost != 0 || s.Style != 0 || s.UseSpeakerBoost {
		t.Errorf("resolved = %+v", s)
	}
}

func TestResolveSettings_PartialOverride(t *testing.T) {
	s := ResolveSettings(&SettingsOverride{Style: ptr(0.9)}, true)
	want := DefaultSettings(true)
	want.Style = 0.9
	if s != want {
		t.Errorf("resolved = %+v, want %+v", s, want)
	}
	if got := ResolveSettings(nil, true); got != DefaultSettings(true) {
		t.Errorf("nil override = %+v", got)
	}
}
