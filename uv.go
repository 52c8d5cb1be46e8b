package latent

import (
	"fmt"
	"math"
)

// UV is a point in the parameter square of a single control face.
type UV struct {
	U float64
	V float64
}

// Param returns the parameter point (u, v).
func Param(u, v float64) UV {
	return UV{U: u, V: v}
}

func (p UV) String() string {
	return fmt.Sprintf("(%g, %g)", p.U, p.V)
}

// Sub computes p−o as a parameter-space displacement.
func (p UV) Sub(o UV) UV {
	return UV{U: p.U - o.U, V: p.V - o.V}
}

// Add translates p by the displacement o.
func (p UV) Add(o UV) UV {
	return UV{U: p.U + o.U, V: p.V + o.V}
}

// Scale multiplies both coordinates by s.
func (p UV) Scale(s float64) UV {
	return UV{U: p.U * s, V: p.V * s}
}

// Lerp linearly interpolates between two parameter points.
func (p UV) Lerp(o UV, t float64) UV {
	return UV{
		U: p.U + t*(o.U-p.U),
		V: p.V + t*(o.V-p.V),
	}
}

// Hypot returns the magnitude of p interpreted as a displacement.
func (p UV) Hypot() float64 {
	return math.Hypot(p.U, p.V)
}

// Cross returns the 2D cross product of p and o interpreted as
// displacements. Its sign is the side test used to classify points against
// directed parameter-space segments.
func (p UV) Cross(o UV) float64 {
	return p.U*o.V - p.V*o.U
}

// InUnitSquare reports whether p lies in [0, 1]².
func (p UV) InUnitSquare() bool {
	return p.U >= 0 && p.U <= 1 && p.V >= 0 && p.V <= 1
}

// FaceUV addresses an exact point on the limit surface: a control face and
// a parameter point in its unit square. Region boundary polylines and cut
// curves are sequences of FaceUV.
type FaceUV struct {
	Face int
	UV   UV
}

func (f FaceUV) String() string {
	return fmt.Sprintf("face %d %s", f.Face, f.UV)
}

// quadCornerUV returns the parameter point of quad corner k, in the
// conventional order (0,0), (1,0), (1,1), (0,1).
func quadCornerUV(k int) UV {
	switch k & 3 {
	case 0:
		return UV{0, 0}
	case 1:
		return UV{1, 0}
	case 2:
		return UV{1, 1}
	default:
		return UV{0, 1}
	}
}

// cornerUV returns the parameter point of corner k of a face with n sides.
// Quads use the four unit-square corners; n-gons are parametrized by
// vertical strips over their quadrised children, so corner k sits at the
// base of strip k.
func cornerUV(k, n int) UV {
	if n == 4 {
		return quadCornerUV(k)
	}
	return UV{U: float64(k) / float64(n), V: 0}
}
