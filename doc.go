// Package latent discovers manufacturable, mathematically coherent
// decompositions of subdivision surfaces, for generating slip-casting
// mold pieces whose seams trace natural mathematical structure.
//
// # Pipeline
//
// The package is organized leaf-first around an exact limit-surface
// evaluator:
//
//   - [Evaluator] turns a [ControlCage] into exact position, normal, and
//     derivative queries on the Catmull–Clark limit surface, and into a
//     deterministic display tessellation with triangle provenance
//     (see [Evaluator.Evaluate] and [Evaluator.Tessellate]).
//   - [CurvatureAnalyzer] derives fundamental forms and principal
//     curvatures from the evaluator's derivatives.
//   - Two lenses propose regions: [DifferentialLens] grows connected
//     components of matching curvature classification, and
//     [SpectralLens] extracts nodal domains of Laplace–Beltrami
//     eigenfunctions. Both implement [Lens] and are reached through the
//     registry (see [NewLens]) and the cancellable [Discovery] runner.
//   - [Manipulator] edits a [RegionSet]: split along a parametric cut,
//     merge adjacent regions, pin, and pressure-negotiated boundary
//     edits that hold pinned regions fixed.
//   - [Validator] grades each region against manufacturing constraints
//     in three tiers: undercuts are errors, inadequate draft and thin
//     walls range from error to warning, and mathematical tension is
//     recorded as a feature and never blocks.
//
// Analysis data flows one way, evaluator to lenses to regions to
// validator. Tessellation exists for display only and never feeds back
// into analysis; every analytic query goes through exact evaluation.
//
// # Exactness
//
// Limit samples are evaluated in closed form, not by subdividing to a
// fine mesh: regular patches through uniform bicubic B-spline stencils,
// irregular patches by local refinement descent with accumulated
// parameter Jacobians. Repeated tessellation of unchanged topology is
// bit-identical, which makes the content-hash caches sound.
//
// # Concurrency
//
// An initialized [Evaluator] is safe for concurrent reads;
// [Evaluator.Reinitialize] takes an exclusive lock and invalidates every
// cache keyed by the old topology. Lens runs are CPU-bound and
// cancellable; starting a run through a [Discovery] cancels the previous
// one. Region-set operations serialize on the manipulator's lock.
package latent
