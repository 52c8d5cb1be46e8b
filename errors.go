package latent

import (
	"errors"
	"fmt"
)

// Errors returned by the engine. Structural failures (uninitialized
// evaluator, invalid cage, operating on a pinned region) are usage errors
// and surface immediately; per-sample failures are caught and skipped at
// the lens level.
var (
	// ErrNotInitialized is returned when an evaluator is queried before a
	// control cage has been loaded.
	ErrNotInitialized = errors.New("evaluator not initialized")

	// ErrInvalidGeometry is returned when a control cage is empty or
	// references vertices that do not exist.
	ErrInvalidGeometry = errors.New("invalid control cage geometry")

	// ErrOutOfRange is returned for face indices outside the cage or
	// parameters outside [0, 1].
	ErrOutOfRange = errors.New("face index or parameter out of range")

	// ErrDegenerateParametrization is returned when the first fundamental
	// form is numerically singular at the requested parameter.
	ErrDegenerateParametrization = errors.New("degenerate surface parametrization")

	// ErrSpectralSolveDidNotConverge is returned when the eigensolver fails
	// to factorize the Laplacian. Only the spectral lens is affected.
	ErrSpectralSolveDidNotConverge = errors.New("spectral eigensolve did not converge")

	// ErrPinnedRegionImmutable is returned by operations that would modify
	// a pinned region.
	ErrPinnedRegionImmutable = errors.New("pinned region is immutable")

	// ErrNonAdjacentRegions is returned when merging regions whose face
	// sets share no adjacent face pair.
	ErrNonAdjacentRegions = errors.New("regions are not adjacent")
)

// GeometryError wraps ErrInvalidGeometry with the location of the defect.
type GeometryError struct {
	// Face is the offending face index, or -1 when the defect is not tied
	// to a single face.
	Face   int
	Detail string
}

func (e *GeometryError) Error() string {
	if e.Face < 0 {
		return fmt.Sprintf("invalid control cage geometry: %s", e.Detail)
	}
	return fmt.Sprintf("invalid control cage geometry: face %d: %s", e.Face, e.Detail)
}

func (e *GeometryError) Unwrap() error { return ErrInvalidGeometry }
