package latent

import (
	"fmt"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/spatial/r3"
)

// tessCacheSize bounds the number of retained tessellations per evaluator.
// Entries never outlive the evaluator and are purged wholesale on
// re-initialization.
const tessCacheSize = 16

// LimitSample is an exact evaluation of the limit surface at one parameter
// point: position, unit normal, and parametric derivatives up to second
// order. Samples are value objects; callers cache them if needed.
type LimitSample struct {
	Face     int
	UV       UV
	Position r3.Vec
	Normal   r3.Vec
	DU, DV   r3.Vec
	DUU      r3.Vec
	DUV      r3.Vec
	DVV      r3.Vec
}

// Evaluator owns the refined topology derived from one control cage and
// answers exact limit-surface queries against it. Evaluate and Tessellate
// are safe for concurrent use; Reinitialize takes exclusive ownership and
// invalidates every cache derived from the previous topology.
//
// The zero value is unusable until [Evaluator.Reinitialize]; use
// [NewEvaluator].
type Evaluator struct {
	mu    sync.RWMutex
	cage  *ControlCage
	hash  [32]byte
	base  *mesh
	ref0  *refinement
	quads *mesh

	tessCache *lru.Cache[tessKey, *TriMesh]
}

type tessKey struct {
	hash     [32]byte
	level    int
	adaptive bool
}

// NewEvaluator validates the cage and builds its refined topology: one
// Catmull–Clark step applied to the base topology, after which every face
// is a quad and exact evaluation proceeds by B-spline stencils.
func NewEvaluator(cage *ControlCage) (*Evaluator, error) {
	ev := &Evaluator{}
	if err := ev.Reinitialize(cage); err != nil {
		return nil, err
	}
	return ev, nil
}

// Reinitialize rebuilds the evaluator for a new cage. It requires exclusive
// access: no evaluation may run concurrently, and all cached tessellations
// are dropped.
func (ev *Evaluator) Reinitialize(cage *ControlCage) error {
	if cage == nil {
		return &GeometryError{Face: -1, Detail: "nil control cage"}
	}
	if err := cage.Validate(); err != nil {
		return err
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.cage = cage.clone()
	ev.hash = ev.cage.contentHash()
	ev.base = newMesh(ev.cage.Vertices, ev.cage.Faces, ev.cage.Creases)
	ev.ref0 = ev.base.catmullClark()
	ev.quads = ev.ref0.child
	if ev.tessCache == nil {
		ev.tessCache, _ = lru.New[tessKey, *TriMesh](tessCacheSize)
	} else {
		ev.tessCache.Purge()
	}
	return nil
}

// IsInitialized reports whether the evaluator holds a control cage.
func (ev *Evaluator) IsInitialized() bool {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return ev.quads != nil
}

// TopologyHash is a digest of the cage content; external caches key derived
// results by it.
func (ev *Evaluator) TopologyHash() [32]byte {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return ev.hash
}

// ControlVertexCount returns the number of control cage vertices.
func (ev *Evaluator) ControlVertexCount() int {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.base == nil {
		return 0
	}
	return len(ev.base.verts)
}

// ControlFaceCount returns the number of control cage faces.
func (ev *Evaluator) ControlFaceCount() int {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.base == nil {
		return 0
	}
	return len(ev.base.faces)
}

// FaceNeighbors returns the control faces sharing an edge with face, in
// ascending order.
func (ev *Evaluator) FaceNeighbors(face int) ([]int, error) {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.base == nil {
		return nil, ErrNotInitialized
	}
	if face < 0 || face >= len(ev.base.faces) {
		return nil, fmt.Errorf("face %d: %w", face, ErrOutOfRange)
	}
	var out []int
	for _, g := range ev.base.faceAdj[face] {
		if g >= 0 {
			out = append(out, g)
		}
	}
	return out, nil
}

// baseMesh returns the current base topology. The mesh is immutable once
// built; Reinitialize swaps the pointer, so a returned snapshot stays
// internally consistent.
func (ev *Evaluator) baseMesh() (*mesh, error) {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.base == nil {
		return nil, ErrNotInitialized
	}
	return ev.base, nil
}

// facesAdjacent reports whether control faces a and b share an edge.
func (ev *Evaluator) facesAdjacent(a, b int) bool {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.base == nil || a < 0 || a >= len(ev.base.faces) {
		return false
	}
	for _, g := range ev.base.faceAdj[a] {
		if g == b {
			return true
		}
	}
	return false
}

// Evaluate returns the exact limit sample of control face at (u, v).
// Parameters outside [0, 1] or an invalid face index fail with
// [ErrOutOfRange]; an uninitialized evaluator fails with
// [ErrNotInitialized]. Quads carry the natural unit-square
// parametrization; n-gon faces are covered by vertical strips over their
// quadrised children.
func (ev *Evaluator) Evaluate(face int, u, v float64) (LimitSample, error) {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.quads == nil {
		return LimitSample{}, ErrNotInitialized
	}
	if face < 0 || face >= len(ev.base.faces) {
		return LimitSample{}, fmt.Errorf("face %d: %w", face, ErrOutOfRange)
	}
	if u < 0 || u > 1 || v < 0 || v > 1 || math.IsNaN(u) || math.IsNaN(v) {
		return LimitSample{}, fmt.Errorf("parameter (%g, %g): %w", u, v, ErrOutOfRange)
	}
	s := ev.evalBaseFace(face, u, v)
	return LimitSample{
		Face:     face,
		UV:       Param(u, v),
		Position: s.p,
		Normal:   surfaceNormal(s.du, s.dv),
		DU:       s.du,
		DV:       s.dv,
		DUU:      s.duu,
		DUV:      s.duv,
		DVV:      s.dvv,
	}, nil
}

// evalBaseFace maps base-face parameters through the initial refinement and
// evaluates the owning child quad. Callers hold at least a read lock.
func (ev *Evaluator) evalBaseFace(face int, u, v float64) patchSample {
	n := len(ev.base.faces[face])
	var (
		k    int
		s, t float64
		j    jacobian2
	)
	if n == 4 {
		k = quadrantOf(u, v)
		s, t = quadrantCoords(k, u, v)
		j = quadrantTransforms[k]
	} else {
		k = min(int(u*float64(n)), n-1)
		s = u*float64(n) - float64(k)
		t = v
		j = jacobian2{a00: float64(n), a11: 1}
	}
	qf := ev.ref0.childFaces[face][k]
	return evalPatch(ev.quads, qf, s, t).remap(j)
}

// surfaceNormal is the unit normal du×dv, with the conventional +z
// fallback when the cross product degenerates.
func surfaceNormal(du, dv r3.Vec) r3.Vec {
	n := r3.Cross(du, dv)
	if r3.Norm(n) < 1e-12 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(n)
}

// faceIrregular reports whether a base face needs denser display sampling:
// non-quad, an extraordinary corner, or a crease in its support.
func (ev *Evaluator) faceIrregular(face int) bool {
	f := ev.base.faces[face]
	if len(f) != 4 {
		return true
	}
	for _, v := range f {
		if ev.base.interiorVertex(v) {
			if ev.base.valence(v) != 4 {
				return true
			}
		}
		for _, ei := range ev.base.vertEdges[v] {
			if ev.base.sharp[ei] > 0 {
				return true
			}
		}
	}
	return false
}
