package latent

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
)

// PhysicalParams are the manufacturing parameters attached to a region:
// the target mold draft angle in degrees, the minimum acceptable wall
// thickness in model units, and the direction the cast part is pulled.
type PhysicalParams struct {
	DraftAngle       float64
	MinWallThickness float64
	DemoldDirection  r3.Vec
}

// DefaultPhysicalParams returns the slip-casting defaults: 2° draft, a
// 3-unit minimum wall, demolding along +Z.
func DefaultPhysicalParams() PhysicalParams {
	return PhysicalParams{
		DraftAngle:       2,
		MinWallThickness: 3,
		DemoldDirection:  r3.Vec{Z: 1},
	}
}

// Region is a named subset of control faces plus metadata. The face set is
// topological; boundary polylines are derived from it and carried for the
// display collaborator. Regions are created by a lens run or by
// [Manipulator.Split] and [Manipulator.Merge], and mutated only through a
// [Manipulator].
type Region struct {
	ID string

	// Faces is the sorted set of control-face indices.
	Faces []int

	// Boundary holds closed (face, u, v) polylines tracing the region's
	// border edges, one per loop.
	Boundary [][]FaceUV

	// Lens names the producer ("differential", "spectral", or "manual"
	// for split/merge products). Mode is the eigenfunction index for
	// spectral regions and -1 otherwise. Coherence is the resonance
	// score in [0, 1].
	Lens      string
	Mode      int
	Coherence float64

	Physical PhysicalParams

	Pinned   bool
	PinnedAt time.Time
}

func newRegion(lens string, faces []int) *Region {
	sorted := append([]int(nil), faces...)
	sort.Ints(sorted)
	return &Region{
		ID:       uuid.NewString(),
		Faces:    sorted,
		Lens:     lens,
		Mode:     -1,
		Physical: DefaultPhysicalParams(),
	}
}

// HasFace reports whether face belongs to the region.
func (r *Region) HasFace(face int) bool {
	i := sort.SearchInts(r.Faces, face)
	return i < len(r.Faces) && r.Faces[i] == face
}

func (r *Region) clone() *Region {
	c := *r
	c.Faces = append([]int(nil), r.Faces...)
	c.Boundary = make([][]FaceUV, len(r.Boundary))
	for i, loop := range r.Boundary {
		c.Boundary[i] = append([]FaceUV(nil), loop...)
	}
	return &c
}

// RegionSet is an explicit, lock-serialized collection of regions. All
// manipulator operations act on one set; nothing in the package holds a
// global instance.
type RegionSet struct {
	mu      sync.Mutex
	regions map[string]*Region
}

func NewRegionSet() *RegionSet {
	return &RegionSet{regions: make(map[string]*Region)}
}

// Add inserts or replaces regions by id.
func (s *RegionSet) Add(regions ...*Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range regions {
		s.regions[r.ID] = r
	}
}

// Remove deletes a region by id, reporting whether it was present.
func (s *RegionSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.regions[id]
	delete(s.regions, id)
	return ok
}

// Get returns a region by id.
func (s *RegionSet) Get(id string) (*Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[id]
	return r, ok
}

// Regions returns the members ordered by id.
func (s *RegionSet) Regions() []*Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PinnedFaces collects the face indices of every pinned region, in the
// form lens discovery takes as its exclusion set.
func (s *RegionSet) PinnedFaces() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]bool)
	for _, r := range s.regions {
		if !r.Pinned {
			continue
		}
		for _, f := range r.Faces {
			out[f] = true
		}
	}
	return out
}

// BoundaryLoops traces the border of a control-face set into closed
// (face, u, v) polylines, one per loop.
func (ev *Evaluator) BoundaryLoops(faces []int) ([][]FaceUV, error) {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.base == nil {
		return nil, ErrNotInitialized
	}
	for _, f := range faces {
		if f < 0 || f >= len(ev.base.faces) {
			return nil, fmt.Errorf("face %d: %w", f, ErrOutOfRange)
		}
	}
	return boundaryLoops(ev.base, faces), nil
}

// boundaryLoops traces the border edges of a face set into closed
// parameter-space polylines. A border edge has exactly one incident face
// inside the set. Each loop lists one corner point per border vertex,
// expressed on the inside face of the border edge leaving that vertex;
// consecutive points share a control vertex and the last point's edge
// returns to the first. Loop and point order are deterministic: loops
// start at their lowest-index border edge and walk toward the
// lowest-index continuation.
func boundaryLoops(m *mesh, faces []int) [][]FaceUV {
	in := make(map[int]bool, len(faces))
	for _, f := range faces {
		in[f] = true
	}

	// inFace[ei] is the set member incident to border edge ei.
	inFace := make(map[int]int)
	var border []int
	for ei, e := range m.edges {
		a, b := in[e.f0], e.f1 >= 0 && in[e.f1]
		switch {
		case a && !b:
			inFace[ei] = e.f0
			border = append(border, ei)
		case b && !a:
			inFace[ei] = e.f1
			border = append(border, ei)
		}
	}
	sort.Ints(border)

	// nextAt[v] lists unused border edges at vertex v, ascending.
	nextAt := make(map[int][]int)
	for _, ei := range border {
		e := m.edges[ei]
		nextAt[e.v0] = append(nextAt[e.v0], ei)
		nextAt[e.v1] = append(nextAt[e.v1], ei)
	}

	used := make(map[int]bool)
	take := func(v, skip int) int {
		for _, ei := range nextAt[v] {
			if !used[ei] && ei != skip {
				return ei
			}
		}
		return -1
	}

	var loops [][]FaceUV
	for _, start := range border {
		if used[start] {
			continue
		}
		var loop []FaceUV
		ei := start
		v := m.edges[ei].v0
		for {
			used[ei] = true
			f := inFace[ei]
			loop = append(loop, FaceUV{Face: f, UV: faceCornerUV(m, f, v)})
			v = m.edgeOtherEnd(ei, v)
			next := take(v, ei)
			if next < 0 {
				break
			}
			ei = next
		}
		loops = append(loops, loop)
	}
	return loops
}

// faceCornerUV returns the parameter point of control vertex v on face f.
// The vertex must be a corner of the face.
func faceCornerUV(m *mesh, f, v int) UV {
	face := m.faces[f]
	for k, fv := range face {
		if fv == v {
			if len(face) == 4 {
				return quadCornerUV(k)
			}
			return cornerUV(k, len(face))
		}
	}
	panic("latent: vertex is not a corner of face")
}
