package latent

import (
	"context"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"
)

// SurfaceClass is the local shape classification by the signs and
// magnitudes of Gaussian and mean curvature.
type SurfaceClass uint8

const (
	ClassPlanar SurfaceClass = iota
	ClassElliptic
	ClassHyperbolic
	ClassParabolic
)

func (c SurfaceClass) String() string {
	switch c {
	case ClassPlanar:
		return "planar"
	case ClassElliptic:
		return "elliptic"
	case ClassHyperbolic:
		return "hyperbolic"
	case ClassParabolic:
		return "parabolic"
	default:
		return "unknown"
	}
}

type faceFeature uint8

const (
	featureNone faceFeature = iota
	featureRidge
	featureValley
)

// DifferentialParams configure the curvature-classification lens.
type DifferentialParams struct {
	// GridRes is the per-face sample grid resolution (GridRes² interior
	// points, spread over [0.1, 0.9]²).
	GridRes int

	// GaussianThreshold and MeanThreshold separate planar and parabolic
	// faces from curved ones.
	GaussianThreshold float64
	MeanThreshold     float64

	// Tolerance is the relative |κ1| difference allowed between a region
	// and a face joining it.
	Tolerance float64

	// MinRegionSize is the face count below which a discovered component
	// is merged into its largest assigned neighbor, or dropped.
	MinRegionSize int

	// RidgeQuantile and ValleyQuantile bound the |κ1| deciles used for
	// ridge and valley detection.
	RidgeQuantile  float64
	ValleyQuantile float64
}

func DefaultDifferentialParams() DifferentialParams {
	return DifferentialParams{
		GridRes:           3,
		GaussianThreshold: 0.01,
		MeanThreshold:     0.01,
		Tolerance:         0.3,
		MinRegionSize:     3,
		RidgeQuantile:     0.9,
		ValleyQuantile:    0.1,
	}
}

// DifferentialLens discovers regions by classifying faces from curvature
// samples and growing connected components of matching classification.
type DifferentialLens struct {
	params   DifferentialParams
	analyzer *CurvatureAnalyzer
	log      *zap.Logger
}

func NewDifferentialLens(params DifferentialParams, log *zap.Logger) *DifferentialLens {
	if params.GridRes < 1 {
		params.GridRes = 1
	}
	return &DifferentialLens{
		params:   params,
		analyzer: NewCurvatureAnalyzer(0),
		log:      logOrNop(log),
	}
}

func (dl *DifferentialLens) Name() string { return "differential" }

// faceStats aggregates a face's grid samples.
type faceStats struct {
	ok        bool
	class     SurfaceClass
	feature   faceFeature
	meanAbsK1 float64
	maxAbsK1  float64
}

func (dl *DifferentialLens) DiscoverRegions(ctx context.Context, ev *Evaluator, excluded map[int]bool) (*DiscoveryResult, error) {
	if !ev.IsInitialized() {
		return nil, ErrNotInitialized
	}
	nf := ev.ControlFaceCount()
	stats := make([]faceStats, nf)
	skipped := 0

	for f := 0; f < nf; f++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if excluded[f] {
			continue
		}
		st, err := dl.sampleFace(ev, f)
		if err != nil {
			if errors.Is(err, ErrDegenerateParametrization) {
				dl.log.Warn("skipping degenerate face", zap.Int("face", f))
				skipped++
				continue
			}
			return nil, err
		}
		stats[f] = st
	}

	adj := make([][]int, nf)
	for f := 0; f < nf; f++ {
		ns, err := ev.FaceNeighbors(f)
		if err != nil {
			return nil, err
		}
		sort.Ints(ns)
		adj[f] = ns
	}
	dl.markFeatures(stats, adj)

	// Seed from highest |κ1|, ties to the lowest face index.
	seeds := make([]int, 0, nf)
	for f := range stats {
		if stats[f].ok {
			seeds = append(seeds, f)
		}
	}
	sort.Slice(seeds, func(i, j int) bool {
		a, b := seeds[i], seeds[j]
		if stats[a].maxAbsK1 != stats[b].maxAbsK1 {
			return stats[a].maxAbsK1 > stats[b].maxAbsK1
		}
		return a < b
	})

	assigned := make([]int, nf)
	for i := range assigned {
		assigned[i] = -1
	}
	var components [][]int
	for _, seed := range seeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if assigned[seed] >= 0 {
			continue
		}
		comp := dl.grow(seed, stats, adj, assigned, excluded, len(components))
		components = append(components, comp)
	}

	components = dl.mergeSmall(components, adj, assigned)

	res := &DiscoveryResult{Lens: dl.Name(), SkippedFaces: skipped}
	for _, comp := range components {
		if len(comp) == 0 {
			continue
		}
		r := newRegion(dl.Name(), comp)
		r.Coherence = coherenceOf(comp, func(f int) float64 { return stats[f].meanAbsK1 })
		loops, err := ev.BoundaryLoops(r.Faces)
		if err != nil {
			return nil, err
		}
		r.Boundary = loops
		res.Regions = append(res.Regions, r)
	}
	return res, nil
}

func (dl *DifferentialLens) sampleFace(ev *Evaluator, face int) (faceStats, error) {
	res := dl.params.GridRes
	var (
		sumK, sumH, sumAbsK1 float64
		maxAbsK1             float64
		n                    int
	)
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			u, v := 0.5, 0.5
			if res > 1 {
				u = 0.1 + 0.8*float64(i)/float64(res-1)
				v = 0.1 + 0.8*float64(j)/float64(res-1)
			}
			s, err := dl.analyzer.Compute(ev, face, u, v)
			if err != nil {
				if errors.Is(err, ErrDegenerateParametrization) {
					continue
				}
				return faceStats{}, err
			}
			sumK += s.Gaussian
			sumH += s.Mean
			a := math.Abs(s.Kappa1)
			sumAbsK1 += a
			maxAbsK1 = math.Max(maxAbsK1, a)
			n++
		}
	}
	if n == 0 {
		return faceStats{}, ErrDegenerateParametrization
	}
	k, h := sumK/float64(n), sumH/float64(n)
	st := faceStats{
		ok:        true,
		meanAbsK1: sumAbsK1 / float64(n),
		maxAbsK1:  maxAbsK1,
	}
	switch {
	case math.Abs(k) < dl.params.GaussianThreshold && math.Abs(h) < dl.params.MeanThreshold:
		st.class = ClassPlanar
	case k > dl.params.GaussianThreshold:
		st.class = ClassElliptic
	case k < -dl.params.GaussianThreshold:
		st.class = ClassHyperbolic
	default:
		st.class = ClassParabolic
	}
	return st, nil
}

// markFeatures flags ridge faces (top-quantile |κ1| local maxima against
// their neighbors) and valley faces (bottom-quantile local minima).
func (dl *DifferentialLens) markFeatures(stats []faceStats, adj [][]int) {
	var vals []float64
	for f := range stats {
		if stats[f].ok {
			vals = append(vals, stats[f].maxAbsK1)
		}
	}
	if len(vals) == 0 {
		return
	}
	sort.Float64s(vals)
	hi := quantile(vals, dl.params.RidgeQuantile)
	lo := quantile(vals, dl.params.ValleyQuantile)

	for f := range stats {
		if !stats[f].ok {
			continue
		}
		localMax, localMin := true, true
		for _, g := range adj[f] {
			if !stats[g].ok {
				continue
			}
			if stats[g].maxAbsK1 > stats[f].maxAbsK1 {
				localMax = false
			}
			if stats[g].maxAbsK1 < stats[f].maxAbsK1 {
				localMin = false
			}
		}
		switch {
		case localMax && stats[f].maxAbsK1 >= hi:
			stats[f].feature = featureRidge
		case localMin && stats[f].maxAbsK1 <= lo:
			stats[f].feature = featureValley
		}
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	i := int(q * float64(len(sorted)-1))
	return sorted[i]
}

func (dl *DifferentialLens) grow(seed int, stats []faceStats, adj [][]int, assigned []int, excluded map[int]bool, id int) []int {
	comp := []int{seed}
	assigned[seed] = id
	queue := []int{seed}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		for _, g := range adj[f] {
			if assigned[g] >= 0 || excluded[g] || !stats[g].ok {
				continue
			}
			if !dl.compatible(stats[seed], stats[g]) {
				continue
			}
			assigned[g] = id
			comp = append(comp, g)
			queue = append(queue, g)
		}
	}
	sort.Ints(comp)
	return comp
}

func (dl *DifferentialLens) compatible(a, b faceStats) bool {
	if a.class != b.class || a.feature != b.feature {
		return false
	}
	hi := math.Max(math.Max(a.meanAbsK1, b.meanAbsK1), 1e-9)
	return math.Abs(a.meanAbsK1-b.meanAbsK1) <= dl.params.Tolerance*hi
}

// mergeSmall folds components below the minimum size into their largest
// assigned neighbor component; components with no assigned neighbor are
// dropped.
func (dl *DifferentialLens) mergeSmall(components [][]int, adj [][]int, assigned []int) [][]int {
	for ci, comp := range components {
		if len(comp) >= dl.params.MinRegionSize {
			continue
		}
		best := -1
		for _, f := range comp {
			for _, g := range adj[f] {
				gi := assigned[g]
				if gi < 0 || gi == ci || len(components[gi]) < dl.params.MinRegionSize {
					continue
				}
				if best < 0 || len(components[gi]) > len(components[best]) ||
					(len(components[gi]) == len(components[best]) && gi < best) {
					best = gi
				}
			}
		}
		if best >= 0 {
			for _, f := range comp {
				assigned[f] = best
			}
			components[best] = append(components[best], comp...)
			sort.Ints(components[best])
		} else {
			for _, f := range comp {
				assigned[f] = -1
			}
		}
		components[ci] = nil
	}
	out := components[:0]
	for _, comp := range components {
		if len(comp) >= dl.params.MinRegionSize {
			out = append(out, comp)
		}
	}
	return out
}

// coherenceOf scores how uniformly a scalar is shared across a face set:
// 1/(1+cv) of val(face), where cv is the coefficient of variation. A set
// whose mean vanishes is uniformly flat and scores 1.
func coherenceOf(faces []int, val func(int) float64) float64 {
	if len(faces) == 0 {
		return 0
	}
	var mean float64
	for _, f := range faces {
		mean += val(f)
	}
	mean /= float64(len(faces))
	if math.Abs(mean) < 1e-12 {
		return 1
	}
	var ss float64
	for _, f := range faces {
		d := val(f) - mean
		ss += d * d
	}
	cv := math.Sqrt(ss/float64(len(faces))) / math.Abs(mean)
	return 1 / (1 + cv)
}
