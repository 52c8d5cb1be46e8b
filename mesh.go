package latent

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// meshEdge is a unique undirected edge of a mesh. f1 is -1 for boundary
// edges.
type meshEdge struct {
	v0, v1 int
	f0, f1 int
}

// mesh is the refined-topology arena owned by an evaluator: faces and
// vertices with explicit index-based adjacency, never pointer-linked, so
// that cyclic face graphs carry no ownership cycles.
type mesh struct {
	verts []r3.Vec
	faces [][]int

	edges     []meshEdge
	faceEdges [][]int // per face, edge index for the side (corner k, corner k+1)
	faceAdj   [][]int // per face, neighbor face per side, -1 at boundary
	vertFaces [][]int // sorted faces incident to each vertex
	vertEdges [][]int // sorted edges incident to each vertex
	sharp     []float64
}

func newMesh(verts []r3.Vec, faces [][]int, creases []Crease) *mesh {
	m := &mesh{verts: verts, faces: faces}
	m.buildTopology()
	if len(creases) > 0 {
		idx := make(map[[2]int]int, len(m.edges))
		for ei, e := range m.edges {
			idx[[2]int{e.v0, e.v1}] = ei
		}
		for _, cr := range creases {
			key := [2]int{cr.V0, cr.V1}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if ei, ok := idx[key]; ok {
				m.sharp[ei] = min(max(cr.Sharpness, 0), MaxCreaseSharpness)
			}
		}
	}
	return m
}

func (m *mesh) buildTopology() {
	type edgeKey = [2]int
	index := make(map[edgeKey]int)
	m.faceEdges = make([][]int, len(m.faces))
	for fi, face := range m.faces {
		m.faceEdges[fi] = make([]int, len(face))
		for k := range face {
			a, b := face[k], face[(k+1)%len(face)]
			key := edgeKey{a, b}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			ei, ok := index[key]
			if !ok {
				ei = len(m.edges)
				index[key] = ei
				m.edges = append(m.edges, meshEdge{v0: key[0], v1: key[1], f0: fi, f1: -1})
			} else {
				m.edges[ei].f1 = fi
			}
			m.faceEdges[fi][k] = ei
		}
	}
	m.sharp = make([]float64, len(m.edges))

	m.faceAdj = make([][]int, len(m.faces))
	for fi, fe := range m.faceEdges {
		m.faceAdj[fi] = make([]int, len(fe))
		for k, ei := range fe {
			e := m.edges[ei]
			switch fi {
			case e.f0:
				m.faceAdj[fi][k] = e.f1
			default:
				m.faceAdj[fi][k] = e.f0
			}
		}
	}

	m.vertFaces = make([][]int, len(m.verts))
	for fi, face := range m.faces {
		for _, v := range face {
			m.vertFaces[v] = append(m.vertFaces[v], fi)
		}
	}
	m.vertEdges = make([][]int, len(m.verts))
	for ei, e := range m.edges {
		m.vertEdges[e.v0] = append(m.vertEdges[e.v0], ei)
		m.vertEdges[e.v1] = append(m.vertEdges[e.v1], ei)
	}
	for v := range m.vertFaces {
		slices.Sort(m.vertFaces[v])
		slices.Sort(m.vertEdges[v])
	}
}

// interiorVertex reports whether every edge incident to v has two incident
// faces.
func (m *mesh) interiorVertex(v int) bool {
	for _, ei := range m.vertEdges[v] {
		if m.edges[ei].f1 < 0 {
			return false
		}
	}
	return true
}

// valence is the number of edges incident to v.
func (m *mesh) valence(v int) int {
	return len(m.vertEdges[v])
}

// edgeBetween returns the edge joining a and b, or -1.
func (m *mesh) edgeBetween(a, b int) int {
	for _, ei := range m.vertEdges[a] {
		e := m.edges[ei]
		if e.v0 == b || e.v1 == b {
			return ei
		}
	}
	return -1
}

// edgeMidpoint returns the midpoint of edge ei.
func (m *mesh) edgeMidpoint(ei int) r3.Vec {
	e := m.edges[ei]
	return r3.Scale(0.5, r3.Add(m.verts[e.v0], m.verts[e.v1]))
}

func (m *mesh) faceCentroid(fi int) r3.Vec {
	var c r3.Vec
	for _, v := range m.faces[fi] {
		c = r3.Add(c, m.verts[v])
	}
	return r3.Scale(1/float64(len(m.faces[fi])), c)
}

// refinement is the result of one Catmull–Clark step. Child face k of
// parent face f sits at parent corner k, ordered
// [vertex point, edge point k, face point, edge point k−1], so the child's
// parameter origin is the parent corner.
type refinement struct {
	child *mesh
	// childFaces[f][k] is the child face at corner k of parent face f.
	childFaces [][]int
	// vertChild[v] is the child index of parent vertex v; edgeChild and
	// faceChild likewise for edge and face points.
	vertChild []int
	edgeChild []int
	faceChild []int
}

// catmullClark refines the mesh one level. After one step every face is a
// quad. Semi-sharp creases follow the usual rules: sharpness at or above
// one pins edge points to midpoints and vertex points to crease or corner
// stencils, fractional sharpness blends, and each level consumes one unit.
// Boundary edges behave as infinitely sharp.
func (m *mesh) catmullClark() *refinement {
	nf, ne, nv := len(m.faces), len(m.edges), len(m.verts)
	verts := make([]r3.Vec, 0, nf+ne+nv)

	faceChild := make([]int, nf)
	for fi := range m.faces {
		faceChild[fi] = len(verts)
		verts = append(verts, m.faceCentroid(fi))
	}

	edgeChild := make([]int, ne)
	for ei, e := range m.edges {
		edgeChild[ei] = len(verts)
		mid := m.edgeMidpoint(ei)
		if e.f1 < 0 || m.sharp[ei] >= 1 {
			verts = append(verts, mid)
			continue
		}
		smooth := r3.Scale(0.25, r3.Add(
			r3.Add(m.verts[e.v0], m.verts[e.v1]),
			r3.Add(verts[faceChild[e.f0]], verts[faceChild[e.f1]]),
		))
		if s := m.sharp[ei]; s > 0 {
			verts = append(verts, lerpVec(smooth, mid, s))
		} else {
			verts = append(verts, smooth)
		}
	}

	vertChild := make([]int, nv)
	for v := range m.verts {
		vertChild[v] = len(verts)
		verts = append(verts, m.vertexPoint(v, verts, faceChild))
	}

	faces := make([][]int, 0, 4*nf)
	childFaces := make([][]int, nf)
	var creases []Crease
	for fi, face := range m.faces {
		n := len(face)
		childFaces[fi] = make([]int, n)
		for k := range face {
			ek := m.faceEdges[fi][k]
			ekPrev := m.faceEdges[fi][(k+n-1)%n]
			childFaces[fi][k] = len(faces)
			faces = append(faces, []int{
				vertChild[face[k]],
				edgeChild[ek],
				faceChild[fi],
				edgeChild[ekPrev],
			})
		}
	}
	for ei, e := range m.edges {
		if s := m.sharp[ei] - 1; s > 0 {
			creases = append(creases,
				Crease{V0: vertChild[e.v0], V1: edgeChild[ei], Sharpness: s},
				Crease{V0: edgeChild[ei], V1: vertChild[e.v1], Sharpness: s},
			)
		}
	}

	return &refinement{
		child:      newMesh(verts, faces, creases),
		childFaces: childFaces,
		vertChild:  vertChild,
		edgeChild:  edgeChild,
		faceChild:  faceChild,
	}
}

// vertexPoint computes the refined position of parent vertex v. facePts
// holds the already-appended face points of the child vertex buffer.
func (m *mesh) vertexPoint(v int, facePts []r3.Vec, faceChild []int) r3.Vec {
	pos := m.verts[v]

	// Edges at or above sharpness one, and boundary edges, pin the vertex
	// toward crease and corner stencils.
	var pinned []int
	var s1, s2 float64 // two largest sharpness values
	for _, ei := range m.vertEdges[v] {
		s := m.sharp[ei]
		if m.edges[ei].f1 < 0 {
			s = MaxCreaseSharpness
		}
		if s > 0 {
			pinned = append(pinned, ei)
		}
		if s > s1 {
			s1, s2 = s, s1
		} else if s > s2 {
			s2 = s
		}
	}

	var sharpPos r3.Vec
	switch {
	case len(pinned) >= 3:
		sharpPos = pos
	case len(pinned) == 2:
		a := m.edgeOtherEnd(pinned[0], v)
		b := m.edgeOtherEnd(pinned[1], v)
		sharpPos = r3.Scale(1.0/8.0, r3.Add(
			r3.Add(m.verts[a], m.verts[b]),
			r3.Scale(6, pos),
		))
	default:
		sharpPos = pos
	}

	if !m.interiorVertex(v) {
		// Boundary vertices always take the crease/corner position.
		return sharpPos
	}

	n := float64(m.valence(v))
	var fAvg, eAvg r3.Vec
	for _, fi := range m.vertFaces[v] {
		fAvg = r3.Add(fAvg, facePts[faceChild[fi]])
	}
	fAvg = r3.Scale(1/float64(len(m.vertFaces[v])), fAvg)
	for _, ei := range m.vertEdges[v] {
		eAvg = r3.Add(eAvg, m.edgeMidpoint(ei))
	}
	eAvg = r3.Scale(1/n, eAvg)
	smooth := r3.Scale(1/n, r3.Add(
		r3.Add(fAvg, r3.Scale(2, eAvg)),
		r3.Scale(n-3, pos),
	))

	if len(pinned) < 2 {
		return smooth
	}
	w := min(max((s1+s2)/2, 0), 1)
	return lerpVec(smooth, sharpPos, w)
}

func (m *mesh) edgeOtherEnd(ei, v int) int {
	e := m.edges[ei]
	if e.v0 == v {
		return e.v1
	}
	return e.v0
}

func lerpVec(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}
