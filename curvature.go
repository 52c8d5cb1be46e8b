package latent

import (
	"context"
	"fmt"
	"math"
	"runtime"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// CurvatureSample is the differential-geometry state of the limit surface
// at one parameter point, derived from an exact [LimitSample].
type CurvatureSample struct {
	Face int
	UV   UV

	// Principal curvatures, ordered Kappa1 >= Kappa2, with the
	// corresponding unit tangent directions in 3D.
	Kappa1, Kappa2 float64
	Dir1, Dir2     r3.Vec

	// Gaussian K = κ1·κ2 and mean H = (κ1+κ2)/2, with |H| and the RMS
	// curvature sqrt((κ1²+κ2²)/2) of the original analyzer.
	Gaussian float64
	Mean     float64
	AbsMean  float64
	RMS      float64

	// Fundamental form coefficients and the unit normal.
	E, F, G float64
	L, M, N float64
	Normal  r3.Vec
}

type curvKey struct {
	hash [32]byte
	face int
	u, v float64
}

// CurvatureAnalyzer computes curvature samples from an evaluator's exact
// derivatives. It keeps an LRU of samples keyed by (topology hash, face,
// u, v); entries for stale topology simply stop matching.
type CurvatureAnalyzer struct {
	cache *lru.Cache[curvKey, CurvatureSample]
}

// NewCurvatureAnalyzer returns an analyzer with a sample cache of the given
// capacity (a default capacity of 4096 is used when size is zero or
// negative).
func NewCurvatureAnalyzer(size int) *CurvatureAnalyzer {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[curvKey, CurvatureSample](size)
	return &CurvatureAnalyzer{cache: c}
}

// Compute evaluates the surface at (face, u, v) and derives the fundamental
// forms, the shape operator, and its eigensystem. A numerically singular
// first fundamental form fails with [ErrDegenerateParametrization].
func (ca *CurvatureAnalyzer) Compute(ev *Evaluator, face int, u, v float64) (CurvatureSample, error) {
	key := curvKey{hash: ev.TopologyHash(), face: face, u: u, v: v}
	if ca != nil && ca.cache != nil {
		if s, ok := ca.cache.Get(key); ok {
			return s, nil
		}
	}

	ls, err := ev.Evaluate(face, u, v)
	if err != nil {
		return CurvatureSample{}, err
	}
	s, err := curvatureFromSample(ls)
	if err != nil {
		return CurvatureSample{}, err
	}
	if ca != nil && ca.cache != nil {
		ca.cache.Add(key, s)
	}
	return s, nil
}

// BatchCompute computes samples for every point, in order, semantically
// identical to repeated [CurvatureAnalyzer.Compute] calls. Work is spread
// across GOMAXPROCS goroutines; the evaluator is only read. The first error
// cancels the batch.
func (ca *CurvatureAnalyzer) BatchCompute(ctx context.Context, ev *Evaluator, pts []FaceUV) ([]CurvatureSample, error) {
	out := make([]CurvatureSample, len(pts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pt := range pts {
		i, pt := i, pt
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := ca.Compute(ev, pt.Face, pt.UV.U, pt.UV.V)
			if err != nil {
				return fmt.Errorf("sample %d (%v): %w", i, pt, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// curvatureFromSample builds fundamental forms from exact derivatives and
// extracts principal curvatures as the eigenvalues of the shape operator
// S = I⁻¹·II.
func curvatureFromSample(ls LimitSample) (CurvatureSample, error) {
	e := r3.Dot(ls.DU, ls.DU)
	f := r3.Dot(ls.DU, ls.DV)
	g := r3.Dot(ls.DV, ls.DV)

	det := e*g - f*f
	if det <= 1e-12*math.Max(e, g)*math.Max(e, g) || det <= 0 {
		return CurvatureSample{}, fmt.Errorf("face %d at %v: %w", ls.Face, ls.UV, ErrDegenerateParametrization)
	}

	n := ls.Normal
	l := r3.Dot(ls.DUU, n)
	m := r3.Dot(ls.DUV, n)
	nn := r3.Dot(ls.DVV, n)

	// S = I⁻¹·II in the (du, dv) basis.
	inv := 1 / det
	s00 := (g*l - f*m) * inv
	s01 := (g*m - f*nn) * inv
	s10 := (e*m - f*l) * inv
	s11 := (e*nn - f*m) * inv

	k1, k2, v1, v2 := eigen2(s00, s01, s10, s11)

	sample := CurvatureSample{
		Face:     ls.Face,
		UV:       ls.UV,
		Kappa1:   k1,
		Kappa2:   k2,
		Dir1:     tangentDirection(v1, ls.DU, ls.DV),
		Dir2:     tangentDirection(v2, ls.DU, ls.DV),
		Gaussian: k1 * k2,
		Mean:     (k1 + k2) / 2,
		E:        e, F: f, G: g,
		L: l, M: m, N: nn,
		Normal: n,
	}
	sample.AbsMean = math.Abs(sample.Mean)
	sample.RMS = math.Sqrt((k1*k1 + k2*k2) / 2)
	return sample, nil
}

// eigen2 solves the 2×2 eigenproblem of the shape operator, returning
// eigenvalues ordered λ1 >= λ2 with unit eigenvectors in parameter space.
func eigen2(a, b, c, d float64) (l1, l2 float64, v1, v2 UV) {
	tr := a + d
	det := a*d - b*c
	disc := tr*tr - 4*det
	if disc < 0 {
		disc = 0
	}
	sq := math.Sqrt(disc)
	l1 = (tr + sq) / 2
	l2 = (tr - sq) / 2

	vecFor := func(l float64) UV {
		switch {
		case math.Abs(b) > 1e-12:
			return normalizeUV(UV{U: b, V: l - a})
		case math.Abs(c) > 1e-12:
			return normalizeUV(UV{U: l - d, V: c})
		case math.Abs(l-a) < math.Abs(l-d):
			return UV{U: 1, V: 0}
		default:
			return UV{U: 0, V: 1}
		}
	}
	return l1, l2, vecFor(l1), vecFor(l2)
}

func normalizeUV(p UV) UV {
	h := p.Hypot()
	if h < 1e-12 {
		return UV{U: 1, V: 0}
	}
	return p.Scale(1 / h)
}

// tangentDirection maps a parameter-space eigenvector into the 3D tangent
// plane via the first derivatives.
func tangentDirection(p UV, du, dv r3.Vec) r3.Vec {
	d := r3.Add(r3.Scale(p.U, du), r3.Scale(p.V, dv))
	if r3.Norm(d) < 1e-12 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(d)
}
