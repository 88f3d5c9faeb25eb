package scenario

import (
	"math"
	"path/filepath"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	g := New(300, 4, 42)
	samples := g.Generate()

	if len(samples) != 300 {
		t.Fatalf("expected 300 samples, got %d", len(samples))
	}
	for i, s := range samples {
		if s.Step != i {
			t.Fatalf("sample %d has step %d", i, s.Step)
		}
		if s.Load <= 0 || s.Load > 1.0 {
			t.Fatalf("sample %d has load %f outside (0, 1]", i, s.Load)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a := New(200, 3, 7).Generate()
	b := New(200, 3, 7).Generate()

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at step %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestGenerateInjectsFaults(t *testing.T) {
	// With enough glitches at least one sample must deviate from clean
	// jitter by a lot or carry a reduced load.
	samples := New(400, 8, 1).Generate()

	faulty := false
	for _, s := range samples {
		if math.Abs(s.Noise) > 0.3 || s.Load < 1.0 {
			faulty = true
			break
		}
	}
	if !faulty {
		t.Error("expected at least one injected fault")
	}
}

func TestWindupProfile(t *testing.T) {
	samples := Windup(350, 42)

	if len(samples) != 350 {
		t.Fatalf("expected 350 samples, got %d", len(samples))
	}
	for i, s := range samples {
		blocked := i >= 100 && i <= 200
		if blocked && s.Load != 0.15 {
			t.Fatalf("step %d should be blocked, load=%f", i, s.Load)
		}
		if !blocked && s.Load != 1.0 {
			t.Fatalf("step %d should be clear, load=%f", i, s.Load)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.csv")
	orig := New(150, 3, 9).Generate()

	if err := Save(path, orig); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(loaded) != len(orig) {
		t.Fatalf("expected %d samples, got %d", len(orig), len(loaded))
	}
	for i := range orig {
		if loaded[i].Step != orig[i].Step {
			t.Fatalf("step mismatch at %d", i)
		}
		if math.Abs(loaded[i].Noise-orig[i].Noise) > 1e-5 {
			t.Fatalf("noise mismatch at %d: %f vs %f", i, loaded[i].Noise, orig[i].Noise)
		}
		if math.Abs(loaded[i].Load-orig[i].Load) > 1e-5 {
			t.Fatalf("load mismatch at %d", i)
		}
	}
}

func TestLoadRejectsUnordered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	samples := New(100, 0, 1).Generate()
	samples[50].Step = 99

	if err := Save(path, samples); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unordered profile")
	}
}
