package latent

import (
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxEvalDepth bounds the local subdivision descent. Parameters closer than
// 2^-maxEvalDepth to an extraordinary corner evaluate on the deepest
// sub-patch with a best-effort control net; at that scale the positional
// error is far below double-precision noise on any practical cage.
const maxEvalDepth = 40

// jacobian2 is the linear part of a parameter-space reparametrization,
// accumulated through the descent so that derivatives can be mapped back to
// the caller's (u, v) frame.
type jacobian2 struct {
	a00, a01, a10, a11 float64
}

var identityJacobian = jacobian2{a00: 1, a11: 1}

// compose returns j∘p: first apply p, then j.
func (j jacobian2) compose(p jacobian2) jacobian2 {
	return jacobian2{
		a00: j.a00*p.a00 + j.a01*p.a10,
		a01: j.a00*p.a01 + j.a01*p.a11,
		a10: j.a10*p.a00 + j.a11*p.a10,
		a11: j.a10*p.a01 + j.a11*p.a11,
	}
}

// patchSample carries position and parametric derivatives up to second
// order in the local frame of the evaluated sub-patch.
type patchSample struct {
	p, du, dv, duu, duv, dvv r3.Vec
}

// remap expresses the sample's derivatives in the ancestor frame related by
// leaf = P·ancestor.
func (s patchSample) remap(p jacobian2) patchSample {
	out := patchSample{p: s.p}
	out.du = r3.Add(r3.Scale(p.a00, s.du), r3.Scale(p.a10, s.dv))
	out.dv = r3.Add(r3.Scale(p.a01, s.du), r3.Scale(p.a11, s.dv))
	out.duu = r3.Add(r3.Add(
		r3.Scale(p.a00*p.a00, s.duu),
		r3.Scale(2*p.a00*p.a10, s.duv)),
		r3.Scale(p.a10*p.a10, s.dvv))
	out.duv = r3.Add(r3.Add(
		r3.Scale(p.a00*p.a01, s.duu),
		r3.Scale(p.a00*p.a11+p.a10*p.a01, s.duv)),
		r3.Scale(p.a10*p.a11, s.dvv))
	out.dvv = r3.Add(r3.Add(
		r3.Scale(p.a01*p.a01, s.duu),
		r3.Scale(2*p.a01*p.a11, s.duv)),
		r3.Scale(p.a11*p.a11, s.dvv))
	return out
}

// bsplineBasis returns the four uniform cubic B-spline basis values and
// their first and second derivatives at t in [0, 1].
func bsplineBasis(t float64) (b, db, d2b [4]float64) {
	s := 1 - t
	b[0] = s * s * s / 6
	b[1] = (3*t*t*t - 6*t*t + 4) / 6
	b[2] = (-3*t*t*t + 3*t*t + 3*t + 1) / 6
	b[3] = t * t * t / 6
	db[0] = -s * s / 2
	db[1] = (3*t*t - 4*t) / 2
	db[2] = (-3*t*t + 2*t + 1) / 2
	db[3] = t * t / 2
	d2b[0] = s
	d2b[1] = 3*t - 2
	d2b[2] = -3*t + 1
	d2b[3] = t
	return b, db, d2b
}

// evalBicubic evaluates the bicubic B-spline patch of a 4×4 control net.
// net[i][j] runs i along u, j along v; the patch interior corresponds to
// the central net quad.
func evalBicubic(net *[4][4]r3.Vec, u, v float64) patchSample {
	bu, dbu, d2bu := bsplineBasis(u)
	bv, dbv, d2bv := bsplineBasis(v)
	var out patchSample
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			p := net[i][j]
			out.p = r3.Add(out.p, r3.Scale(bu[i]*bv[j], p))
			out.du = r3.Add(out.du, r3.Scale(dbu[i]*bv[j], p))
			out.dv = r3.Add(out.dv, r3.Scale(bu[i]*dbv[j], p))
			out.duu = r3.Add(out.duu, r3.Scale(d2bu[i]*bv[j], p))
			out.duv = r3.Add(out.duv, r3.Scale(dbu[i]*dbv[j], p))
			out.dvv = r3.Add(out.dvv, r3.Scale(bu[i]*d2bv[j], p))
		}
	}
	return out
}

// patchRegular reports whether quad face f of m supports direct B-spline
// evaluation: every corner is either an interior valence-4 vertex or a
// plain boundary vertex, and no semi-sharp crease touches the patch
// support.
func patchRegular(m *mesh, f int) bool {
	for _, v := range m.faces[f] {
		if m.interiorVertex(v) {
			if m.valence(v) != 4 {
				return false
			}
		} else if len(m.vertFaces[v]) > 2 {
			return false
		}
		for _, ei := range m.vertEdges[v] {
			if m.sharp[ei] > 0 {
				return false
			}
		}
	}
	// Far edges of the one-ring must be smooth as well.
	for _, v := range m.faces[f] {
		for _, g := range m.vertFaces[v] {
			for _, ei := range m.faceEdges[g] {
				if m.sharp[ei] > 0 {
					return false
				}
			}
		}
	}
	return true
}

// outerNeighbor returns, within quad g sharing an edge with the patch, the
// vertex adjacent to c that is not excl.
func outerNeighbor(m *mesh, g, c, excl int) int {
	face := m.faces[g]
	for k, v := range face {
		if v == c {
			n := len(face)
			prev, next := face[(k+n-1)%n], face[(k+1)%n]
			if prev == excl {
				return next
			}
			return prev
		}
	}
	return -1
}

// oppositeVertex returns the vertex diagonal from c in quad g.
func oppositeVertex(m *mesh, g, c int) int {
	face := m.faces[g]
	for k, v := range face {
		if v == c {
			return face[(k+2)%len(face)]
		}
	}
	return -1
}

// diagonalFace returns the face at corner vertex c that is neither f nor
// one of its two side neighbors. At an extraordinary corner more than one
// candidate exists; the lowest index is chosen so forced gathering stays
// deterministic.
func diagonalFace(m *mesh, f, c, side1, side2 int) int {
	for _, g := range m.vertFaces[c] {
		if g != f && g != side1 && g != side2 {
			return g
		}
	}
	return -1
}

// gatherNet assembles the 4×4 B-spline control net around quad face f.
// Net slots that cannot be reached (open boundary, or the leftover slots of
// a forced gather at an extraordinary corner) are completed by phantom
// reflection.
func gatherNet(m *mesh, f int) [4][4]r3.Vec {
	var net [4][4]r3.Vec
	var have [4][4]bool
	set := func(i, j, v int) {
		if v >= 0 {
			net[i][j] = m.verts[v]
			have[i][j] = true
		}
	}

	c := m.faces[f] // corners c[0..3]
	set(1, 1, c[0])
	set(2, 1, c[1])
	set(2, 2, c[2])
	set(1, 2, c[3])

	adj := m.faceAdj[f]
	// Side k joins corner k and corner k+1.
	type sideSlot struct{ i0, j0, i1, j1 int }
	slots := [4]sideSlot{
		{1, 0, 2, 0}, // below c0, c1
		{3, 1, 3, 2}, // right of c1, c2
		{2, 3, 1, 3}, // above c2, c3
		{0, 2, 0, 1}, // left of c3, c0
	}
	for k := 0; k < 4; k++ {
		g := adj[k]
		if g < 0 {
			continue
		}
		a, b := c[k], c[(k+1)%4]
		sl := slots[k]
		set(sl.i0, sl.j0, outerNeighbor(m, g, a, b))
		set(sl.i1, sl.j1, outerNeighbor(m, g, b, a))
	}

	type cornerSlot struct{ i, j int }
	cslots := [4]cornerSlot{{0, 0}, {3, 0}, {3, 3}, {0, 3}}
	for k := 0; k < 4; k++ {
		g := diagonalFace(m, f, c[k], adj[k], adj[(k+3)%4])
		if g >= 0 && len(m.faces[g]) == 4 {
			set(cslots[k].i, cslots[k].j, oppositeVertex(m, g, c[k]))
		}
	}

	// Phantom reflection for anything unreachable: edge slots first, then
	// corners by parallelogram completion.
	reflect := func(i, j, mi, mj, fi, fj int) {
		if !have[i][j] {
			net[i][j] = r3.Sub(r3.Scale(2, net[mi][mj]), net[fi][fj])
			have[i][j] = true
		}
	}
	for x := 1; x <= 2; x++ {
		reflect(x, 0, x, 1, x, 2)
		reflect(x, 3, x, 2, x, 1)
		reflect(0, x, 1, x, 2, x)
		reflect(3, x, 2, x, 1, x)
	}
	para := func(i, j, ai, aj, bi, bj, di, dj int) {
		if !have[i][j] {
			net[i][j] = r3.Sub(r3.Add(net[ai][aj], net[bi][bj]), net[di][dj])
			have[i][j] = true
		}
	}
	para(0, 0, 1, 0, 0, 1, 1, 1)
	para(3, 0, 2, 0, 3, 1, 2, 1)
	para(3, 3, 3, 2, 2, 3, 2, 2)
	para(0, 3, 0, 2, 1, 3, 1, 2)
	return net
}

// quadrantTransforms maps a parent quad parameter point into the child
// sub-face at corner k; children are ordered
// [vertex point, edge point k, face point, edge point k−1].
var quadrantTransforms = [4]jacobian2{
	{a00: 2, a11: 2},
	{a01: 2, a10: -2},
	{a00: -2, a11: -2},
	{a01: -2, a10: 2},
}

func quadrantOf(s, t float64) int {
	switch {
	case s >= 0.5 && t < 0.5:
		return 1
	case s >= 0.5 && t >= 0.5:
		return 2
	case s < 0.5 && t >= 0.5:
		return 3
	default:
		return 0
	}
}

func quadrantCoords(k int, s, t float64) (float64, float64) {
	switch k {
	case 1:
		return 2 * t, 2 - 2*s
	case 2:
		return 2 - 2*s, 2 - 2*t
	case 3:
		return 2 - 2*t, 2 * s
	default:
		return 2 * s, 2 * t
	}
}

// submeshAround extracts the faces incident to the corners of f into a
// standalone mesh. Positions on the star of f's corners are exact; the
// open rim of the extraction is never consulted by patch gathering.
func submeshAround(m *mesh, f int) (*mesh, int) {
	var faces []int
	for _, v := range m.faces[f] {
		faces = append(faces, m.vertFaces[v]...)
	}
	slices.Sort(faces)
	faces = slices.Compact(faces)

	vmap := make(map[int]int)
	var verts []r3.Vec
	newFaces := make([][]int, len(faces))
	target := -1
	for i, fi := range faces {
		if fi == f {
			target = i
		}
		nf := make([]int, len(m.faces[fi]))
		for k, v := range m.faces[fi] {
			nv, ok := vmap[v]
			if !ok {
				nv = len(verts)
				vmap[v] = nv
				verts = append(verts, m.verts[v])
			}
			nf[k] = nv
		}
		newFaces[i] = nf
	}

	var creases []Crease
	for _, fi := range faces {
		for _, ei := range m.faceEdges[fi] {
			if m.sharp[ei] > 0 {
				e := m.edges[ei]
				a, aok := vmap[e.v0]
				b, bok := vmap[e.v1]
				if aok && bok {
					creases = append(creases, Crease{V0: a, V1: b, Sharpness: m.sharp[ei]})
				}
			}
		}
	}
	return newMesh(verts, newFaces, creases), target
}

// evalPatch evaluates quad face f of m at local coordinates (s, t),
// descending through local subdivision until a regular B-spline sub-patch
// covers the parameter point. The returned derivatives are in the (s, t)
// frame of f.
func evalPatch(m *mesh, f int, s, t float64) patchSample {
	if patchRegular(m, f) {
		return evalBicubic(ptr(gatherNet(m, f)), s, t)
	}

	local, target := submeshAround(m, f)
	acc := identityJacobian
	for depth := 0; depth < maxEvalDepth; depth++ {
		if patchRegular(local, target) {
			return evalBicubic(ptr(gatherNet(local, target)), s, t).remap(acc)
		}
		ref := local.catmullClark()
		k := quadrantOf(s, t)
		s, t = quadrantCoords(k, s, t)
		acc = quadrantTransforms[k].compose(acc)
		local, target = submeshAround(ref.child, ref.childFaces[target][k])
	}
	// Parameter is within 2^-maxEvalDepth of an extraordinary corner; a
	// forced net is indistinguishable from the limit at this scale.
	return evalBicubic(ptr(gatherNet(local, target)), s, t).remap(acc)
}

func ptr[T any](v T) *T { return &v }
