package latent

import (
	"errors"
	"math"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestEvaluator_NotInitialized(t *testing.T) {
	var ev Evaluator
	if ev.IsInitialized() {
		t.Fatal("zero evaluator reports initialized")
	}
	if _, err := ev.Evaluate(0, 0.5, 0.5); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Evaluate() = %v, want ErrNotInitialized", err)
	}
	if _, err := ev.Tessellate(1, false); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Tessellate() = %v, want ErrNotInitialized", err)
	}
}

func TestEvaluator_InvalidCage(t *testing.T) {
	_, err := NewEvaluator(&ControlCage{})
	if !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("NewEvaluator(empty) = %v, want ErrInvalidGeometry", err)
	}
}

func TestEvaluator_EvaluateOutOfRange(t *testing.T) {
	ev := mustEvaluator(t, cubeCage())
	cases := []struct {
		face int
		u, v float64
	}{
		{0, 1.5, 0.5},
		{0, -0.1, 0.5},
		{0, 0.5, 2},
		{-1, 0.5, 0.5},
		{6, 0.5, 0.5},
		{0, math.NaN(), 0.5},
	}
	for _, c := range cases {
		if _, err := ev.Evaluate(c.face, c.u, c.v); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Evaluate(%d, %g, %g) = %v, want ErrOutOfRange", c.face, c.u, c.v, err)
		}
	}
}

func TestEvaluator_PlanarGrid(t *testing.T) {
	ev := mustEvaluator(t, planeCage(5, 5))
	for face := 0; face < ev.ControlFaceCount(); face += 3 {
		for _, uv := range []UV{{0.5, 0.5}, {0.1, 0.8}, {0, 0}, {1, 1}} {
			s, err := ev.Evaluate(face, uv.U, uv.V)
			if err != nil {
				t.Fatalf("Evaluate(%d, %v): %v", face, uv, err)
			}
			if math.Abs(s.Position.Z) > 1e-9 {
				t.Errorf("face %d %v: z = %g, want 0", face, uv, s.Position.Z)
			}
			if r3.Norm(r3.Sub(s.Normal, r3.Vec{Z: 1})) > 1e-9 {
				t.Errorf("face %d %v: normal = %v, want +z", face, uv, s.Normal)
			}
			if math.Abs(s.DUU.Z) > 1e-9 || math.Abs(s.DVV.Z) > 1e-9 {
				t.Errorf("face %d %v: nonzero curvature terms on a plane", face, uv)
			}
		}
	}
}

// The limit surface interpolates the interior of a planar grid exactly, so
// the sample at an interior corner must land on the control vertex.
func TestEvaluator_PlanarCornerInterpolation(t *testing.T) {
	ev := mustEvaluator(t, planeCage(4, 4))
	// Face (1,1) spans [1,2]×[1,2]; its (0,0) corner is control vertex (1,1).
	face := 1*4 + 1
	s, err := ev.Evaluate(face, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := r3.Vec{X: 1, Y: 1}
	if r3.Norm(r3.Sub(s.Position, want)) > 1e-9 {
		t.Errorf("corner sample = %v, want %v", s.Position, want)
	}
}

func TestEvaluator_CubeAccessors(t *testing.T) {
	ev := mustEvaluator(t, cubeCage())
	if got, want := ev.ControlVertexCount(), 8; got != want {
		t.Errorf("ControlVertexCount() = %d, want %d", got, want)
	}
	if got, want := ev.ControlFaceCount(), 6; got != want {
		t.Errorf("ControlFaceCount() = %d, want %d", got, want)
	}
	ns, err := ev.FaceNeighbors(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ns) != 4 {
		t.Errorf("FaceNeighbors(0) = %v, want 4 neighbors", ns)
	}
}

func TestEvaluator_TessellateDeterministic(t *testing.T) {
	ev := mustEvaluator(t, cubeCage())
	a, err := ev.Tessellate(2, false)
	if err != nil {
		t.Fatal(err)
	}
	ev2 := mustEvaluator(t, cubeCage())
	b, err := ev2.Tessellate(2, false)
	if err != nil {
		t.Fatal(err)
	}
	diff(t, a, b)
}

func TestEvaluator_TessellateProvenance(t *testing.T) {
	ev := mustEvaluator(t, cubeCage())
	tm, err := ev.Tessellate(1, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(tm.FaceOfTriangle) != tm.TriangleCount() {
		t.Fatalf("provenance length %d, triangles %d", len(tm.FaceOfTriangle), tm.TriangleCount())
	}
	seen := make(map[int]bool)
	for i := 0; i < tm.TriangleCount(); i++ {
		f := tm.ParentFace(i)
		if f < 0 || f >= ev.ControlFaceCount() {
			t.Fatalf("triangle %d parent face %d out of range", i, f)
		}
		seen[f] = true
	}
	if len(seen) != ev.ControlFaceCount() {
		t.Errorf("tessellation covers %d faces, want %d", len(seen), ev.ControlFaceCount())
	}
}

func TestEvaluator_TessellateOutOfRange(t *testing.T) {
	ev := mustEvaluator(t, cubeCage())
	if _, err := ev.Tessellate(-1, false); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Tessellate(-1) = %v, want ErrOutOfRange", err)
	}
	if _, err := ev.Tessellate(MaxTessellationLevel+1, false); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Tessellate(max+1) = %v, want ErrOutOfRange", err)
	}
}

func TestEvaluator_Reinitialize(t *testing.T) {
	ev := mustEvaluator(t, cubeCage())
	h0 := ev.TopologyHash()

	moved := cubeCage()
	for i := range moved.Vertices {
		moved.Vertices[i] = r3.Scale(2, moved.Vertices[i])
	}
	if err := ev.Reinitialize(moved); err != nil {
		t.Fatal(err)
	}
	if ev.TopologyHash() == h0 {
		t.Error("hash unchanged after reinitialization with moved vertices")
	}
	s, err := ev.Evaluate(0, 0.5, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Norm(s.Position) < 1 {
		t.Errorf("scaled cube limit point %v suspiciously close to origin", s.Position)
	}
}

func TestEvaluator_ConcurrentReads(t *testing.T) {
	ev := mustEvaluator(t, sphereCage(t, 1))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for face := 0; face < ev.ControlFaceCount(); face++ {
				if _, err := ev.Evaluate(face, 0.3, 0.7); err != nil {
					t.Errorf("Evaluate(%d): %v", face, err)
					return
				}
			}
			if _, err := ev.Tessellate(1, true); err != nil {
				t.Errorf("Tessellate: %v", err)
			}
		}()
	}
	wg.Wait()
}
