package latent

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func cubeCage() *ControlCage {
	return &ControlCage{
		Vertices: []r3.Vec{
			{X: -1, Y: -1, Z: -1},
			{X: 1, Y: -1, Z: -1},
			{X: 1, Y: 1, Z: -1},
			{X: -1, Y: 1, Z: -1},
			{X: -1, Y: -1, Z: 1},
			{X: 1, Y: -1, Z: 1},
			{X: 1, Y: 1, Z: 1},
			{X: -1, Y: 1, Z: 1},
		},
		Faces: [][]int{
			{0, 3, 2, 1},
			{4, 5, 6, 7},
			{0, 1, 5, 4},
			{1, 2, 6, 5},
			{2, 3, 7, 6},
			{3, 0, 4, 7},
		},
	}
}

// planeCage is an (nx+1)×(ny+1) vertex grid on z=0 with unit spacing,
// quads oriented so normals point along +z.
func planeCage(nx, ny int) *ControlCage {
	cage := &ControlCage{}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			cage.Vertices = append(cage.Vertices, r3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	at := func(i, j int) int { return j*(nx+1) + i }
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			cage.Faces = append(cage.Faces, []int{at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1)})
		}
	}
	return cage
}

// sphereCage subdivides a cube cage levels times and projects every
// vertex onto the unit sphere. Its limit surface is a close sphere
// approximation away from the eight valence-3 corners.
func sphereCage(t *testing.T, levels int) *ControlCage {
	t.Helper()
	cage := cubeCage()
	m := newMesh(cage.Vertices, cage.Faces, nil)
	for i := 0; i < levels; i++ {
		m = m.catmullClark().child
	}
	verts := make([]r3.Vec, len(m.verts))
	for i, v := range m.verts {
		verts[i] = r3.Unit(v)
	}
	return &ControlCage{Vertices: verts, Faces: m.faces}
}

func mustEvaluator(t *testing.T, cage *ControlCage) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(cage)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}
