package latent

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// NegotiationParams configure pressure-based boundary negotiation. The
// relaxation factor and pass count are deliberate configuration rather
// than derived values.
type NegotiationParams struct {
	Relaxation float64
	Passes     int
}

func DefaultNegotiationParams() NegotiationParams {
	return NegotiationParams{Relaxation: 0.5, Passes: 1}
}

// Manipulator applies region lifecycle operations to one region set.
// Operations serialize on an internal lock: a negotiation completes before
// the next split or merge is admitted.
type Manipulator struct {
	mu       sync.Mutex
	ev       *Evaluator
	set      *RegionSet
	analyzer *CurvatureAnalyzer
	log      *zap.Logger
}

func NewManipulator(ev *Evaluator, set *RegionSet, log *zap.Logger) *Manipulator {
	return &Manipulator{
		ev:       ev,
		set:      set,
		analyzer: NewCurvatureAnalyzer(0),
		log:      logOrNop(log),
	}
}

// Split divides a region in two along a parametric cut polyline. The cut
// is lifted to 3D through exact evaluation and every face is classified by
// the side of the cut's mean plane its limit centroid falls on; when the
// polyline does not span a usable plane, faces alternate by index parity
// so the result is still deterministic. The operand leaves the set, the
// two products join it.
func (mp *Manipulator) Split(id string, cut []FaceUV) (*Region, *Region, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	r, ok := mp.set.Get(id)
	if !ok {
		return nil, nil, fmt.Errorf("region %s: %w", id, ErrOutOfRange)
	}
	if r.Pinned {
		return nil, nil, fmt.Errorf("region %s: %w", id, ErrPinnedRegionImmutable)
	}
	if len(r.Faces) < 2 {
		return nil, nil, fmt.Errorf("region %s has %d face(s): %w", id, len(r.Faces), ErrOutOfRange)
	}

	sideOf, err := mp.cutSideTest(cut)
	if err != nil {
		return nil, nil, err
	}

	var a, b []int
	for i, f := range r.Faces {
		left, err := sideOf(f, i)
		if err != nil {
			return nil, nil, err
		}
		if left {
			a = append(a, f)
		} else {
			b = append(b, f)
		}
	}
	// A one-sided cut still splits, by parity, rather than failing.
	if len(a) == 0 || len(b) == 0 {
		a, b = a[:0], b[:0]
		for i, f := range r.Faces {
			if i%2 == 0 {
				a = append(a, f)
			} else {
				b = append(b, f)
			}
		}
	}

	ra, err := mp.buildRegion(r, a)
	if err != nil {
		return nil, nil, err
	}
	rb, err := mp.buildRegion(r, b)
	if err != nil {
		return nil, nil, err
	}
	mp.set.Remove(r.ID)
	mp.set.Add(ra, rb)
	mp.log.Info("split region",
		zap.String("region", r.ID),
		zap.Int("facesA", len(ra.Faces)),
		zap.Int("facesB", len(rb.Faces)))
	return ra, rb, nil
}

// cutSideTest lifts the cut into 3D and returns a face classifier against
// the cut's mean plane. The fallback classifier alternates by the face's
// position in the region's sorted face list.
func (mp *Manipulator) cutSideTest(cut []FaceUV) (func(face, ord int) (bool, error), error) {
	parity := func(_, ord int) (bool, error) { return ord%2 == 0, nil }
	if len(cut) < 2 {
		return parity, nil
	}

	pts := make([]r3.Vec, len(cut))
	for i, c := range cut {
		s, err := mp.ev.Evaluate(c.Face, c.UV.U, c.UV.V)
		if err != nil {
			return nil, fmt.Errorf("cut point %d: %w", i, err)
		}
		pts[i] = s.Position
	}

	var origin r3.Vec
	for _, p := range pts {
		origin = r3.Add(origin, p)
	}
	origin = r3.Scale(1/float64(len(pts)), origin)

	// Newell plane of the lifted polyline.
	var normal r3.Vec
	for i := 0; i < len(pts); i++ {
		p, q := pts[i], pts[(i+1)%len(pts)]
		normal.X += (p.Y - q.Y) * (p.Z + q.Z)
		normal.Y += (p.Z - q.Z) * (p.X + q.X)
		normal.Z += (p.X - q.X) * (p.Y + q.Y)
	}
	if r3.Norm(normal) < 1e-9 {
		return parity, nil
	}
	normal = r3.Unit(normal)

	return func(face, ord int) (bool, error) {
		c, err := mp.faceLimitCentroid(face)
		if err != nil {
			return false, err
		}
		d := r3.Dot(r3.Sub(c, origin), normal)
		if d == 0 {
			return ord%2 == 0, nil
		}
		return d > 0, nil
	}, nil
}

func (mp *Manipulator) faceLimitCentroid(face int) (r3.Vec, error) {
	s, err := mp.ev.Evaluate(face, 0.5, 0.5)
	if err != nil {
		return r3.Vec{}, err
	}
	return s.Position, nil
}

// buildRegion derives a split/merge product from a parent: parent
// physical parameters, fresh id, recomputed boundary and coherence.
func (mp *Manipulator) buildRegion(parent *Region, faces []int) (*Region, error) {
	r := newRegion(parent.Lens, faces)
	r.Mode = parent.Mode
	r.Physical = parent.Physical
	loops, err := mp.ev.BoundaryLoops(r.Faces)
	if err != nil {
		return nil, err
	}
	r.Boundary = loops
	r.Coherence = mp.regionCoherence(r.Faces)
	return r, nil
}

// Merge joins two regions sharing at least one control edge. The result
// inherits the physical parameters of the larger operand (ties to the
// lexicographically lower id) and a recomputed coherence score; both
// operands leave the set.
func (mp *Manipulator) Merge(idA, idB string) (*Region, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	ra, ok := mp.set.Get(idA)
	if !ok {
		return nil, fmt.Errorf("region %s: %w", idA, ErrOutOfRange)
	}
	rb, ok := mp.set.Get(idB)
	if !ok {
		return nil, fmt.Errorf("region %s: %w", idB, ErrOutOfRange)
	}
	if ra.ID == rb.ID {
		return nil, fmt.Errorf("region %s merged with itself: %w", idA, ErrNonAdjacentRegions)
	}
	if ra.Pinned || rb.Pinned {
		return nil, fmt.Errorf("merge %s + %s: %w", idA, idB, ErrPinnedRegionImmutable)
	}
	if !mp.regionsAdjacent(ra, rb) {
		return nil, fmt.Errorf("merge %s + %s: %w", idA, idB, ErrNonAdjacentRegions)
	}

	larger := ra
	if len(rb.Faces) > len(ra.Faces) ||
		(len(rb.Faces) == len(ra.Faces) && rb.ID < ra.ID) {
		larger = rb
	}

	faces := append(append([]int(nil), ra.Faces...), rb.Faces...)
	r, err := mp.buildRegion(larger, faces)
	if err != nil {
		return nil, err
	}
	mp.set.Remove(ra.ID)
	mp.set.Remove(rb.ID)
	mp.set.Add(r)
	mp.log.Info("merged regions",
		zap.String("into", r.ID),
		zap.Strings("operands", []string{ra.ID, rb.ID}))
	return r, nil
}

func (mp *Manipulator) regionsAdjacent(a, b *Region) bool {
	for _, f := range a.Faces {
		for _, g := range b.Faces {
			if mp.ev.facesAdjacent(f, g) {
				return true
			}
		}
	}
	return false
}

// Pin marks a region immutable under discovery, split, merge, and
// negotiation, stamping the pin time.
func (mp *Manipulator) Pin(id string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	r, ok := mp.set.Get(id)
	if !ok {
		return fmt.Errorf("region %s: %w", id, ErrOutOfRange)
	}
	r.Pinned = true
	r.PinnedAt = time.Now()
	return nil
}

func (mp *Manipulator) Unpin(id string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	r, ok := mp.set.Get(id)
	if !ok {
		return fmt.Errorf("region %s: %w", id, ErrOutOfRange)
	}
	r.Pinned = false
	r.PinnedAt = time.Time{}
	return nil
}

// NegotiateEdit replaces one unpinned region's boundary and propagates a
// pressure-diffusion smoothing to the boundaries of adjacent unpinned
// regions, holding pinned boundaries fixed. New boundaries are computed as
// pure values first and committed in one step; pinned regions are
// bit-identical before and after.
func (mp *Manipulator) NegotiateEdit(id string, newBoundary [][]FaceUV, params NegotiationParams) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	edited, ok := mp.set.Get(id)
	if !ok {
		return fmt.Errorf("region %s: %w", id, ErrOutOfRange)
	}
	if edited.Pinned {
		return fmt.Errorf("region %s: %w", id, ErrPinnedRegionImmutable)
	}

	pressure := boundaryDisplacement(edited.Boundary, newBoundary)

	updated := map[string][][]FaceUV{edited.ID: cloneBoundary(newBoundary)}
	for _, other := range mp.set.Regions() {
		if other.ID == edited.ID || other.Pinned || !mp.regionsAdjacent(edited, other) {
			continue
		}
		updated[other.ID] = relaxBoundary(other.Boundary, pressure, params)
	}

	for rid, loops := range updated {
		r, ok := mp.set.Get(rid)
		if !ok {
			continue
		}
		r.Boundary = loops
	}
	mp.log.Info("negotiated boundary edit",
		zap.String("region", id),
		zap.Float64("pressure", pressure),
		zap.Int("adjusted", len(updated)-1))
	return nil
}

// boundaryDisplacement measures an edit as the mean parameter-space
// distance between corresponding points of the old and new boundaries.
func boundaryDisplacement(old, edited [][]FaceUV) float64 {
	var sum float64
	var n int
	for i := 0; i < len(old) && i < len(edited); i++ {
		a, b := old[i], edited[i]
		for j := 0; j < len(a) && j < len(b); j++ {
			sum += b[j].UV.Sub(a[j].UV).Hypot()
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// relaxBoundary runs Jacobi passes of discrete pressure diffusion along
// each loop: every point moves toward the midpoint of its loop neighbors,
// scaled by the relaxation factor and the edit pressure. Points never
// leave their face's parameter square.
func relaxBoundary(loops [][]FaceUV, pressure float64, params NegotiationParams) [][]FaceUV {
	w := params.Relaxation * math.Min(pressure, 1)
	out := cloneBoundary(loops)
	if w <= 0 {
		return out
	}
	for pass := 0; pass < params.Passes; pass++ {
		for li, loop := range out {
			if len(loop) < 3 {
				continue
			}
			next := make([]FaceUV, len(loop))
			for i, p := range loop {
				prev := loop[(i+len(loop)-1)%len(loop)]
				succ := loop[(i+1)%len(loop)]
				mid := prev.UV.Lerp(succ.UV, 0.5)
				q := p.UV.Lerp(mid, w)
				next[i] = FaceUV{Face: p.Face, UV: clampUnit(q)}
			}
			out[li] = next
		}
	}
	return out
}

func clampUnit(p UV) UV {
	return UV{
		U: math.Max(0, math.Min(1, p.U)),
		V: math.Max(0, math.Min(1, p.V)),
	}
}

func cloneBoundary(loops [][]FaceUV) [][]FaceUV {
	out := make([][]FaceUV, len(loops))
	for i, loop := range loops {
		out[i] = append([]FaceUV(nil), loop...)
	}
	return out
}

// regionCoherence rescores a face set from fresh curvature samples at
// face centers, skipping degenerate faces.
func (mp *Manipulator) regionCoherence(faces []int) float64 {
	vals := make(map[int]float64, len(faces))
	var kept []int
	for _, f := range faces {
		s, err := mp.analyzer.Compute(mp.ev, f, 0.5, 0.5)
		if err != nil {
			if errors.Is(err, ErrDegenerateParametrization) {
				mp.log.Warn("skipping degenerate face", zap.Int("face", f))
				continue
			}
			return 0
		}
		vals[f] = math.Abs(s.Kappa1)
		kept = append(kept, f)
	}
	sort.Ints(kept)
	return coherenceOf(kept, func(f int) float64 { return vals[f] })
}
