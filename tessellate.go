package latent

import (
	"fmt"
)

// MaxTessellationLevel bounds display tessellation density; level L places
// 2^L sample segments along each quad parameter axis.
const MaxTessellationLevel = 8

// TriMesh is a display triangulation of the limit surface. Positions and
// normals are exact limit samples; FaceOfTriangle maps every triangle back
// to its originating control face. Tessellation is display-only output and
// never feeds back into analysis.
type TriMesh struct {
	Positions [][3]float64
	Normals   [][3]float64
	Triangles [][3]int
	// FaceOfTriangle is parallel to Triangles.
	FaceOfTriangle []int
}

// TriangleCount returns the number of triangles.
func (m *TriMesh) TriangleCount() int { return len(m.Triangles) }

// ParentFace returns the control face a tessellated triangle originated
// from, or -1 for an invalid index.
func (m *TriMesh) ParentFace(triangle int) int {
	if triangle < 0 || triangle >= len(m.FaceOfTriangle) {
		return -1
	}
	return m.FaceOfTriangle[triangle]
}

// Tessellate samples the exact limit surface into a triangle mesh for
// display. Level selects grid density (2^level segments per quad axis);
// adaptive doubles the density on irregular faces (n-gons, extraordinary
// corners, creases). Output is deterministic: repeated calls with an
// unchanged cage return bit-identical arrays, and results are cached by
// (topology hash, level, adaptive).
func (ev *Evaluator) Tessellate(level int, adaptive bool) (*TriMesh, error) {
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	if ev.quads == nil {
		return nil, ErrNotInitialized
	}
	if level < 0 || level > MaxTessellationLevel {
		return nil, fmt.Errorf("tessellation level %d: %w", level, ErrOutOfRange)
	}

	key := tessKey{hash: ev.hash, level: level, adaptive: adaptive}
	if cached, ok := ev.tessCache.Get(key); ok {
		return cached, nil
	}

	out := &TriMesh{}
	for face := range ev.base.faces {
		res := 1 << level
		if res < 1 {
			res = 1
		}
		if adaptive && ev.faceIrregular(face) {
			res *= 2
		}
		if n := len(ev.base.faces[face]); n == 4 {
			ev.tessellateQuadDomain(out, face, ev.ref0.childFaces[face], true, res)
		} else {
			// Each quadrised child of an n-gon carries its own grid so that
			// neighboring strips share their geometric seam.
			ev.tessellateQuadDomain(out, face, ev.ref0.childFaces[face], false, res)
		}
	}

	ev.tessCache.Add(key, out)
	return out, nil
}

// tessellateQuadDomain appends grids for one base face. For quad faces the
// grid spans the face's own (u, v) square; otherwise one grid is emitted
// per child quad.
func (ev *Evaluator) tessellateQuadDomain(out *TriMesh, face int, children []int, wholeFace bool, res int) {
	if wholeFace {
		ev.appendGrid(out, face, res, func(u, v float64) patchSample {
			return ev.evalBaseFace(face, u, v)
		})
		return
	}
	for _, qf := range children {
		ev.appendGrid(out, face, res, func(u, v float64) patchSample {
			return evalPatch(ev.quads, qf, u, v)
		})
	}
}

func (ev *Evaluator) appendGrid(out *TriMesh, face, res int, eval func(u, v float64) patchSample) {
	start := len(out.Positions)
	for i := 0; i <= res; i++ {
		u := float64(i) / float64(res)
		for j := 0; j <= res; j++ {
			v := float64(j) / float64(res)
			s := eval(u, v)
			n := surfaceNormal(s.du, s.dv)
			out.Positions = append(out.Positions, [3]float64{s.p.X, s.p.Y, s.p.Z})
			out.Normals = append(out.Normals, [3]float64{n.X, n.Y, n.Z})
		}
	}
	stride := res + 1
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			a := start + i*stride + j
			b := start + (i+1)*stride + j
			out.Triangles = append(out.Triangles,
				[3]int{a, b, b + 1},
				[3]int{a, b + 1, a + 1},
			)
			out.FaceOfTriangle = append(out.FaceOfTriangle, face, face)
		}
	}
}
