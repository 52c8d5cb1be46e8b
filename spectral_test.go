package latent

import (
	"context"
	"errors"
	"testing"
)

func TestSpectral_ConstantModeExcluded(t *testing.T) {
	ev := mustEvaluator(t, planeCage(8, 2))
	lens := NewSpectralLens(DefaultSpectralParams(), nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res.Regions {
		if r.Mode < 1 {
			t.Errorf("region %s carries mode %d; mode 0 is the constant eigenfunction", r.ID, r.Mode)
		}
		if r.Coherence <= 0 || r.Coherence > 1 {
			t.Errorf("region %s score = %g, want (0, 1]", r.ID, r.Coherence)
		}
		if r.Lens != "spectral" {
			t.Errorf("lens tag = %q", r.Lens)
		}
	}
}

// On an elongated strip the first nonconstant eigenfunction varies along
// the long axis, so its nodal domains split the strip in two.
func TestSpectral_FirstModeSplitsStrip(t *testing.T) {
	ev := mustEvaluator(t, planeCage(8, 2))
	params := DefaultSpectralParams()
	params.NumModes = 2
	lens := NewSpectralLens(params, nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	var mode1 []*Region
	for _, r := range res.Regions {
		if r.Mode == 1 {
			mode1 = append(mode1, r)
		}
	}
	if len(mode1) != 2 {
		t.Fatalf("mode 1 produced %d regions, want 2", len(mode1))
	}
	total := 0
	owner := make(map[int]bool)
	for _, r := range mode1 {
		total += len(r.Faces)
		for _, f := range r.Faces {
			if owner[f] {
				t.Fatalf("face %d in two mode-1 regions", f)
			}
			owner[f] = true
		}
		if len(r.Boundary) == 0 {
			t.Errorf("region %s has no boundary loops", r.ID)
		}
	}
	if total != ev.ControlFaceCount() {
		t.Errorf("mode 1 covers %d faces, want %d", total, ev.ControlFaceCount())
	}
}

func TestSpectral_ScoresDecreaseWithMode(t *testing.T) {
	ev := mustEvaluator(t, planeCage(8, 2))
	params := DefaultSpectralParams()
	params.NumModes = 4
	lens := NewSpectralLens(params, nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	best := make(map[int]float64)
	for _, r := range res.Regions {
		best[r.Mode] = r.Coherence
	}
	for mode := 2; mode < params.NumModes; mode++ {
		lo, okLo := best[mode]
		hi, okHi := best[mode-1]
		if okLo && okHi && lo > hi+1e-12 {
			t.Errorf("mode %d score %g exceeds mode %d score %g", mode, lo, mode-1, hi)
		}
	}
}

func TestSpectral_PerModePartition(t *testing.T) {
	ev := mustEvaluator(t, sphereCage(t, 1))
	lens := NewSpectralLens(DefaultSpectralParams(), nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	owner := make(map[int]map[int]bool)
	for _, r := range res.Regions {
		if owner[r.Mode] == nil {
			owner[r.Mode] = make(map[int]bool)
		}
		for _, f := range r.Faces {
			if owner[r.Mode][f] {
				t.Fatalf("face %d twice in mode %d", f, r.Mode)
			}
			owner[r.Mode][f] = true
		}
	}
}

func TestSpectral_Cancelled(t *testing.T) {
	ev := mustEvaluator(t, planeCage(4, 4))
	lens := NewSpectralLens(DefaultSpectralParams(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lens.DiscoverRegions(ctx, ev, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestSpectral_NotInitialized(t *testing.T) {
	lens := NewSpectralLens(DefaultSpectralParams(), nil)
	var ev Evaluator
	if _, err := lens.DiscoverRegions(context.Background(), &ev, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
}
