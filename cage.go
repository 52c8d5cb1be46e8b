package latent

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxCreaseSharpness caps crease sharpness. Values above the cap behave as
// infinitely sharp for all practical subdivision depths.
const MaxCreaseSharpness = 16.0

// Crease marks a control cage edge, identified by its endpoint vertices, as
// semi-sharp. Sharpness 0 is smooth; each subdivision level consumes one
// unit of sharpness.
type Crease struct {
	V0, V1    int
	Sharpness float64
}

// ControlCage is the immutable input to an [Evaluator]: a coarse polygon
// mesh of quads and n-gons whose Catmull–Clark limit surface is the object
// of analysis. The caller owns the cage; the evaluator only reads it during
// initialization.
type ControlCage struct {
	Vertices []r3.Vec
	// Faces are ordered vertex index lists, quads or n-gons.
	Faces   [][]int
	Creases []Crease
}

// Validate reports whether the cage can initialize an evaluator. It returns
// an error wrapping [ErrInvalidGeometry] for an empty cage, a face with
// fewer than three vertices, an out-of-range or repeated vertex reference,
// or a crease naming a nonexistent vertex.
func (c *ControlCage) Validate() error {
	if len(c.Vertices) == 0 {
		return &GeometryError{Face: -1, Detail: "cage has no vertices"}
	}
	if len(c.Faces) == 0 {
		return &GeometryError{Face: -1, Detail: "cage has no faces"}
	}
	for fi, face := range c.Faces {
		if len(face) < 3 {
			return &GeometryError{Face: fi, Detail: "face has fewer than 3 vertices"}
		}
		seen := make(map[int]bool, len(face))
		for _, v := range face {
			if v < 0 || v >= len(c.Vertices) {
				return &GeometryError{Face: fi, Detail: "vertex index out of range"}
			}
			if seen[v] {
				return &GeometryError{Face: fi, Detail: "face repeats a vertex"}
			}
			seen[v] = true
		}
	}
	for _, cr := range c.Creases {
		if cr.V0 < 0 || cr.V0 >= len(c.Vertices) || cr.V1 < 0 || cr.V1 >= len(c.Vertices) {
			return &GeometryError{Face: -1, Detail: "crease vertex index out of range"}
		}
		if cr.V0 == cr.V1 {
			return &GeometryError{Face: -1, Detail: "crease endpoints coincide"}
		}
	}
	return nil
}

// clone deep-copies the cage so later caller edits cannot alias evaluator
// state.
func (c *ControlCage) clone() *ControlCage {
	out := &ControlCage{
		Vertices: append([]r3.Vec(nil), c.Vertices...),
		Faces:    make([][]int, len(c.Faces)),
		Creases:  append([]Crease(nil), c.Creases...),
	}
	for i, f := range c.Faces {
		out.Faces[i] = append([]int(nil), f...)
	}
	return out
}

// contentHash returns a digest of the cage's full content. Tessellation and
// curvature caches are keyed by this hash so that results are reused only
// for bit-identical topology and geometry.
func (c *ControlCage) contentHash() [32]byte {
	h := sha256.New()
	var buf [8]byte
	writeF := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	writeI := func(i int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(i)))
		h.Write(buf[:])
	}
	writeI(len(c.Vertices))
	for _, v := range c.Vertices {
		writeF(v.X)
		writeF(v.Y)
		writeF(v.Z)
	}
	writeI(len(c.Faces))
	for _, f := range c.Faces {
		writeI(len(f))
		for _, v := range f {
			writeI(v)
		}
	}
	writeI(len(c.Creases))
	for _, cr := range c.Creases {
		writeI(cr.V0)
		writeI(cr.V1)
		writeF(cr.Sharpness)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
