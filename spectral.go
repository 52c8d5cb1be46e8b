package latent

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// SpectralParams configure the Laplace–Beltrami lens.
type SpectralParams struct {
	// NumModes is how many eigenpairs to solve for, including the
	// constant mode 0.
	NumModes int

	// MinRegionSize is the face count below which a nodal domain is
	// merged into its largest same-sign neighbor, or dropped.
	MinRegionSize int

	// CotanClamp bounds individual cotangent weights, guarding against
	// near-degenerate triangles.
	CotanClamp float64
}

func DefaultSpectralParams() SpectralParams {
	return SpectralParams{
		NumModes:      6,
		MinRegionSize: 3,
		CotanClamp:    100,
	}
}

// SpectralLens discovers regions as nodal domains of Laplace–Beltrami
// eigenfunctions. The operator is a cotangent Laplacian over the control
// vertices, built from exact limit-surface positions rather than the
// display tessellation, with a barycentric mass matrix.
type SpectralLens struct {
	params SpectralParams
	log    *zap.Logger
}

func NewSpectralLens(params SpectralParams, log *zap.Logger) *SpectralLens {
	if params.NumModes < 2 {
		params.NumModes = 2
	}
	return &SpectralLens{params: params, log: logOrNop(log)}
}

func (sl *SpectralLens) Name() string { return "spectral" }

// DiscoverRegions solves L v = λ M v for the smallest eigenvalues and
// extracts, for each mode past the constant one, the nodal domains of the
// eigenfunction by corner-sum sign flood fill over face adjacency. Regions
// of different modes are alternative decompositions; the at-most-one-region
// face invariant holds within a single mode.
func (sl *SpectralLens) DiscoverRegions(ctx context.Context, ev *Evaluator, excluded map[int]bool) (*DiscoveryResult, error) {
	m, err := ev.baseMesh()
	if err != nil {
		return nil, err
	}

	pos, err := controlLimitPositions(ev, m)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vals, funcs, err := sl.solve(m, pos)
	if err != nil {
		return nil, err
	}

	res := &DiscoveryResult{Lens: sl.Name()}
	modes := sl.params.NumModes
	if modes > len(vals) {
		modes = len(vals)
	}
	for mode := 1; mode < modes; mode++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := 1 / (1 + math.Max(vals[mode], 0))
		for _, domain := range sl.nodalDomains(m, funcs[mode], excluded) {
			r := newRegion(sl.Name(), domain)
			r.Mode = mode
			r.Coherence = score
			loops, err := ev.BoundaryLoops(r.Faces)
			if err != nil {
				return nil, err
			}
			r.Boundary = loops
			res.Regions = append(res.Regions, r)
		}
	}
	return res, nil
}

// controlLimitPositions evaluates each control vertex's exact limit
// position at its corner on the lowest incident face.
func controlLimitPositions(ev *Evaluator, m *mesh) ([]r3.Vec, error) {
	pos := make([]r3.Vec, len(m.verts))
	for v := range m.verts {
		if len(m.vertFaces[v]) == 0 {
			return nil, fmt.Errorf("vertex %d belongs to no face: %w", v, ErrInvalidGeometry)
		}
		f := m.vertFaces[v][0]
		uv := faceCornerUV(m, f, v)
		s, err := ev.Evaluate(f, uv.U, uv.V)
		if err != nil {
			return nil, err
		}
		pos[v] = s.Position
	}
	return pos, nil
}

// solve builds the mass-normalized Laplacian and factorizes it densely.
// Returned eigenfunctions are per-vertex values of v = M^(-1/2)·y.
func (sl *SpectralLens) solve(m *mesh, pos []r3.Vec) (vals []float64, funcs [][]float64, err error) {
	n := len(pos)
	lap := mat.NewSymDense(n, nil)
	mass := make([]float64, n)

	for _, face := range m.faces {
		for k := 2; k < len(face); k++ {
			i, j, l := face[0], face[k-1], face[k]
			sl.accumulateTriangle(lap, mass, pos, i, j, l)
		}
	}

	d := make([]float64, n)
	for i, mi := range mass {
		if mi <= 0 {
			mi = 1e-12
		}
		d[i] = 1 / math.Sqrt(mi)
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, d[i]*lap.At(i, j)*d[j])
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		return nil, nil, ErrSpectralSolveDidNotConverge
	}
	all := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	modes := sl.params.NumModes
	if modes > n {
		modes = n
	}
	vals = all[:modes]
	funcs = make([][]float64, modes)
	for k := 0; k < modes; k++ {
		fn := make([]float64, n)
		for i := 0; i < n; i++ {
			fn[i] = d[i] * vecs.At(i, k)
		}
		funcs[k] = fn
	}
	return vals, funcs, nil
}

// accumulateTriangle adds one triangle's cotangent weights and its
// barycentric area share to the operator.
func (sl *SpectralLens) accumulateTriangle(lap *mat.SymDense, mass []float64, pos []r3.Vec, i, j, k int) {
	area := 0.5 * r3.Norm(r3.Cross(r3.Sub(pos[j], pos[i]), r3.Sub(pos[k], pos[i])))
	share := area / 3
	mass[i] += share
	mass[j] += share
	mass[k] += share

	add := func(a, b, opp int) {
		w := 0.5 * sl.cotanAt(pos[opp], pos[a], pos[b])
		lap.SetSym(a, b, lap.At(a, b)-w)
		lap.SetSym(a, a, lap.At(a, a)+w)
		lap.SetSym(b, b, lap.At(b, b)+w)
	}
	add(i, j, k)
	add(j, k, i)
	add(k, i, j)
}

// cotanAt returns the clamped cotangent of the angle at apex spanning a
// and b.
func (sl *SpectralLens) cotanAt(apex, a, b r3.Vec) float64 {
	u := r3.Sub(a, apex)
	v := r3.Sub(b, apex)
	cross := r3.Norm(r3.Cross(u, v))
	if cross < 1e-12 {
		return sl.params.CotanClamp
	}
	c := r3.Dot(u, v) / cross
	return math.Max(-sl.params.CotanClamp, math.Min(sl.params.CotanClamp, c))
}

// nodalDomains flood-fills faces through adjacency using the sign of the
// eigenfunction summed over face corners as the separating predicate.
// Undersized domains merge into their largest same-sign neighbor.
func (sl *SpectralLens) nodalDomains(m *mesh, fn []float64, excluded map[int]bool) [][]int {
	nf := len(m.faces)
	sign := make([]int, nf)
	for f, face := range m.faces {
		var sum float64
		for _, v := range face {
			sum += fn[v]
		}
		if sum >= 0 {
			sign[f] = 1
		} else {
			sign[f] = -1
		}
	}

	assigned := make([]int, nf)
	for i := range assigned {
		assigned[i] = -1
	}
	var domains [][]int
	for seed := 0; seed < nf; seed++ {
		if assigned[seed] >= 0 || excluded[seed] {
			continue
		}
		id := len(domains)
		domain := []int{seed}
		assigned[seed] = id
		queue := []int{seed}
		for len(queue) > 0 {
			f := queue[0]
			queue = queue[1:]
			for _, g := range m.faceAdj[f] {
				if g < 0 || assigned[g] >= 0 || excluded[g] || sign[g] != sign[seed] {
					continue
				}
				assigned[g] = id
				domain = append(domain, g)
				queue = append(queue, g)
			}
		}
		sort.Ints(domain)
		domains = append(domains, domain)
	}

	// Fold undersized domains into the largest neighbor, preferring one
	// of the same sign (same-sign neighbors only arise across exclusion
	// gaps).
	for di, domain := range domains {
		if len(domain) >= sl.params.MinRegionSize {
			continue
		}
		best, bestSame := -1, false
		for _, f := range domain {
			for _, g := range m.faceAdj[f] {
				if g < 0 {
					continue
				}
				gi := assigned[g]
				if gi < 0 || gi == di || len(domains[gi]) < sl.params.MinRegionSize {
					continue
				}
				same := sign[g] == sign[f]
				better := best < 0 ||
					(same && !bestSame) ||
					(same == bestSame && len(domains[gi]) > len(domains[best])) ||
					(same == bestSame && len(domains[gi]) == len(domains[best]) && gi < best)
				if better {
					best, bestSame = gi, same
				}
			}
		}
		if best >= 0 {
			for _, f := range domain {
				assigned[f] = best
			}
			domains[best] = append(domains[best], domain...)
			sort.Ints(domains[best])
		}
		domains[di] = nil
	}

	out := domains[:0]
	for _, domain := range domains {
		if len(domain) >= sl.params.MinRegionSize {
			out = append(out, domain)
		}
	}
	return out
}
