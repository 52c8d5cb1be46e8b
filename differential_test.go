package latent

import (
	"context"
	"errors"
	"testing"
)

func TestDifferential_PlaneIsOneRegion(t *testing.T) {
	ev := mustEvaluator(t, planeCage(6, 6))
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Regions) != 1 {
		t.Fatalf("regions = %d, want 1", len(res.Regions))
	}
	r := res.Regions[0]
	if len(r.Faces) != ev.ControlFaceCount() {
		t.Errorf("region has %d faces, want %d", len(r.Faces), ev.ControlFaceCount())
	}
	if r.Coherence < 0.99 {
		t.Errorf("planar coherence = %g, want ~1", r.Coherence)
	}
	if r.Lens != "differential" {
		t.Errorf("lens tag = %q", r.Lens)
	}
	if len(r.Boundary) == 0 {
		t.Error("region has no boundary loops")
	}
	if res.SkippedFaces != 0 {
		t.Errorf("skipped %d faces on a clean plane", res.SkippedFaces)
	}
}

func TestDifferential_SphereIsCoherent(t *testing.T) {
	ev := mustEvaluator(t, sphereCage(t, 2))
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Regions) == 0 {
		t.Fatal("no regions on a sphere")
	}
	for _, r := range res.Regions {
		if r.Coherence <= 0 || r.Coherence > 1 {
			t.Errorf("coherence %g outside (0, 1]", r.Coherence)
		}
		if len(r.Faces) < DefaultDifferentialParams().MinRegionSize {
			t.Errorf("region with %d faces below minimum", len(r.Faces))
		}
	}
}

func TestDifferential_PartitionInvariant(t *testing.T) {
	ev := mustEvaluator(t, sphereCage(t, 2))
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)

	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	owner := make(map[int]string)
	for _, r := range res.Regions {
		for _, f := range r.Faces {
			if prev, taken := owner[f]; taken {
				t.Fatalf("face %d in regions %s and %s", f, prev, r.ID)
			}
			owner[f] = r.ID
		}
	}
}

func TestDifferential_ExcludedFacesStayOut(t *testing.T) {
	ev := mustEvaluator(t, planeCage(6, 6))
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)

	excluded := map[int]bool{0: true, 1: true, 7: true}
	res, err := lens.DiscoverRegions(context.Background(), ev, excluded)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res.Regions {
		for _, f := range r.Faces {
			if excluded[f] {
				t.Errorf("excluded face %d assigned to region %s", f, r.ID)
			}
		}
	}
}

func TestDifferential_Deterministic(t *testing.T) {
	ev := mustEvaluator(t, sphereCage(t, 2))
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)

	a, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Regions) != len(b.Regions) {
		t.Fatalf("region counts differ: %d vs %d", len(a.Regions), len(b.Regions))
	}
	for i := range a.Regions {
		diff(t, a.Regions[i].Faces, b.Regions[i].Faces)
	}
}

func TestDifferential_Cancelled(t *testing.T) {
	ev := mustEvaluator(t, planeCage(4, 4))
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lens.DiscoverRegions(ctx, ev, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestDifferential_NotInitialized(t *testing.T) {
	lens := NewDifferentialLens(DefaultDifferentialParams(), nil)
	var ev Evaluator
	if _, err := lens.DiscoverRegions(context.Background(), &ev, nil); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
}
