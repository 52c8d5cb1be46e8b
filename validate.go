package latent

import (
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Tier grades a constraint finding: ERROR findings are physical
// impossibilities that gate fabrication, WARNING findings are
// manufacturing difficulties, FEATURE findings are mathematical tension
// recorded but never blocking.
type Tier uint8

const (
	TierError Tier = iota
	TierWarning
	TierFeature
)

func (t Tier) String() string {
	switch t {
	case TierError:
		return "ERROR"
	case TierWarning:
		return "WARNING"
	case TierFeature:
		return "FEATURE"
	default:
		return "unknown"
	}
}

// Finding is one constraint violation: the check that raised it, the
// offending faces, and a severity scalar whose scale is check-specific
// (hit depth for undercuts, 1−θ/180° for draft, 1−d/min for thin walls).
type Finding struct {
	Tier     Tier
	Check    string
	Faces    []int
	Severity float64
}

// Report is the complete validation outcome for one region. Findings are
// ordered by tier, then check name, then first face. Constraint
// violations are data, never errors: ERROR-tier findings still come back
// in a complete report.
type Report struct {
	RegionID     string
	Findings     []Finding
	HasErrors    bool
	SkippedFaces int
}

const (
	draftErrorDeg   = 0.5
	draftWarningDeg = 2.0

	// undercut rays start a small step off the surface so they do not
	// re-hit their own sample point.
	rayLift = 1e-6

	validatorGridRes = 4
)

// Validator runs the three-tier manufacturing checks over a region,
// consuming the evaluator for exact normals and samples. Single bad faces
// are skipped and counted; the report is always complete.
type Validator struct {
	ev       *Evaluator
	analyzer *CurvatureAnalyzer
	log      *zap.Logger
}

func NewValidator(ev *Evaluator, log *zap.Logger) *Validator {
	return &Validator{
		ev:       ev,
		analyzer: NewCurvatureAnalyzer(0),
		log:      logOrNop(log),
	}
}

// Validate checks the region against its own physical parameters: the
// demold direction for undercut and draft, the minimum wall thickness for
// thin faces. Only structural failures (uninitialized evaluator) return
// an error.
func (val *Validator) Validate(region *Region) (*Report, error) {
	if !val.ev.IsInitialized() {
		return nil, ErrNotInitialized
	}
	dir := region.Physical.DemoldDirection
	if r3.Norm(dir) < 1e-12 {
		dir = r3.Vec{Z: 1}
	}
	dir = r3.Unit(dir)

	rep := &Report{RegionID: region.ID}
	soup := val.buildSoup(region, rep)

	for _, face := range region.Faces {
		s, err := val.ev.Evaluate(face, 0.5, 0.5)
		if err != nil {
			val.skipFace(rep, face, err)
			continue
		}
		val.checkUndercut(rep, soup, face, s, dir)
		val.checkDraft(rep, face, s.Normal, dir)
		val.checkWall(rep, soup, face, s, region.Physical.MinWallThickness)
		val.checkTension(rep, face)
	}

	sort.SliceStable(rep.Findings, func(i, j int) bool {
		a, b := rep.Findings[i], rep.Findings[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Check != b.Check {
			return a.Check < b.Check
		}
		return a.Faces[0] < b.Faces[0]
	})
	for _, f := range rep.Findings {
		if f.Tier == TierError {
			rep.HasErrors = true
			break
		}
	}
	return rep, nil
}

func (val *Validator) skipFace(rep *Report, face int, err error) {
	rep.SkippedFaces++
	val.log.Warn("skipping face during validation", zap.Int("face", face), zap.Error(err))
}

// soupTri is one triangle of the exact-sample surface used for ray
// queries, with control-face provenance.
type soupTri struct {
	a, b, c r3.Vec
	face    int
}

// buildSoup samples the region's own faces on an exact grid and
// triangulates them. Analysis rays never consult the display
// tessellation.
func (val *Validator) buildSoup(region *Region, rep *Report) []soupTri {
	var soup []soupTri
	for _, face := range region.Faces {
		grid, err := val.sampleFaceGrid(face, validatorGridRes)
		if err != nil {
			val.skipFace(rep, face, err)
			continue
		}
		for i := 0; i < validatorGridRes; i++ {
			for j := 0; j < validatorGridRes; j++ {
				p00 := grid[i][j]
				p10 := grid[i+1][j]
				p01 := grid[i][j+1]
				p11 := grid[i+1][j+1]
				soup = append(soup,
					soupTri{p00, p10, p11, face},
					soupTri{p00, p11, p01, face})
			}
		}
	}
	return soup
}

func (val *Validator) sampleFaceGrid(face, res int) ([][]r3.Vec, error) {
	grid := make([][]r3.Vec, res+1)
	for i := 0; i <= res; i++ {
		grid[i] = make([]r3.Vec, res+1)
		for j := 0; j <= res; j++ {
			s, err := val.ev.Evaluate(face, float64(i)/float64(res), float64(j)/float64(res))
			if err != nil {
				return nil, err
			}
			grid[i][j] = s.Position
		}
	}
	return grid, nil
}

// checkUndercut casts a ray from the face's sample point along the demold
// direction; any re-intersection with the region's surface traps the cast
// part, an ERROR with severity equal to the hit depth.
func (val *Validator) checkUndercut(rep *Report, soup []soupTri, face int, s LimitSample, dir r3.Vec) {
	origin := r3.Add(s.Position, r3.Scale(rayLift, dir))
	depth, hit := nearestHit(soup, origin, dir, face)
	if !hit {
		return
	}
	rep.Findings = append(rep.Findings, Finding{
		Tier:     TierError,
		Check:    "undercut",
		Faces:    []int{face},
		Severity: depth,
	})
}

// checkDraft grades the angle θ between the face normal and the demold
// direction. The effective draft is min(θ, 180°−θ), so an antiparallel
// normal is still "no draft"; severity 1−θ/180° is monotonically
// non-increasing in θ.
func (val *Validator) checkDraft(rep *Report, face int, normal, dir r3.Vec) {
	cosT := math.Max(-1, math.Min(1, r3.Dot(normal, dir)))
	theta := math.Acos(cosT) * 180 / math.Pi
	effective := math.Min(theta, 180-theta)
	severity := 1 - theta/180

	var tier Tier
	switch {
	case effective < draftErrorDeg:
		tier = TierError
	case effective < draftWarningDeg:
		tier = TierWarning
	default:
		return
	}
	rep.Findings = append(rep.Findings, Finding{
		Tier:     tier,
		Check:    "draft-angle",
		Faces:    []int{face},
		Severity: severity,
	})
}

// checkWall casts an inward ray and flags the face when the opposing
// surface is closer than the minimum wall thickness.
func (val *Validator) checkWall(rep *Report, soup []soupTri, face int, s LimitSample, minThickness float64) {
	if minThickness <= 0 {
		return
	}
	inward := r3.Scale(-1, s.Normal)
	origin := r3.Add(s.Position, r3.Scale(rayLift, inward))
	d, hit := nearestHit(soup, origin, inward, face)
	if !hit || d >= minThickness {
		return
	}
	rep.Findings = append(rep.Findings, Finding{
		Tier:     TierWarning,
		Check:    "wall-thickness",
		Faces:    []int{face},
		Severity: 1 - d/minThickness,
	})
}

// checkTension records near-minimal saddle faces (κ1 ≈ −κ2) as FEATURE
// findings; mathematical tension is surfaced, never blocking.
func (val *Validator) checkTension(rep *Report, face int) {
	s, err := val.analyzer.Compute(val.ev, face, 0.5, 0.5)
	if err != nil {
		if !errors.Is(err, ErrDegenerateParametrization) {
			val.skipFace(rep, face, err)
		}
		return
	}
	mag := math.Max(math.Abs(s.Kappa1), math.Abs(s.Kappa2))
	if mag < 1e-6 {
		return
	}
	if math.Abs(s.Kappa1+s.Kappa2) > 0.05*mag {
		return
	}
	rep.Findings = append(rep.Findings, Finding{
		Tier:     TierFeature,
		Check:    "minimal-saddle",
		Faces:    []int{face},
		Severity: mag / (1 + mag),
	})
}

// nearestHit intersects a ray with the soup, ignoring triangles of the
// originating face, and returns the nearest hit distance.
func nearestHit(soup []soupTri, origin, dir r3.Vec, skipFace int) (float64, bool) {
	best := math.Inf(1)
	for _, tri := range soup {
		if tri.face == skipFace {
			continue
		}
		t, ok := rayTriangle(origin, dir, tri.a, tri.b, tri.c)
		if ok && t < best {
			best = t
		}
	}
	return best, !math.IsInf(best, 1)
}

// rayTriangle is the Möller–Trumbore intersection test, returning the ray
// parameter of the hit.
func rayTriangle(origin, dir, a, b, c r3.Vec) (float64, bool) {
	const eps = 1e-12
	e1 := r3.Sub(b, a)
	e2 := r3.Sub(c, a)
	p := r3.Cross(dir, e2)
	det := r3.Dot(e1, p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	tv := r3.Sub(origin, a)
	u := r3.Dot(tv, p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := r3.Cross(tv, e1)
	v := r3.Dot(dir, q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := r3.Dot(e2, q) * inv
	if t <= eps {
		return 0, false
	}
	return t, true
}
