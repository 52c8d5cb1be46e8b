package latent

import "fmt"

// FaceGrid is a dense (res+1)×(res+1) grid of exact limit samples over
// one control face, row-major in u.
type FaceGrid struct {
	Face    int
	Res     int
	Samples [][]LimitSample
}

// RegionSamples is the hand-off to the solid-modeling collaborator: exact
// sample grids for every face of a region plus the physical parameters
// the mold body is built with. The collaborator fits and booleans; this
// package only supplies samples.
type RegionSamples struct {
	RegionID string
	Physical PhysicalParams
	Grids    []FaceGrid
}

// SampleGrid evaluates a dense grid of res segments per face over the
// region. res must be at least 1.
func SampleGrid(ev *Evaluator, region *Region, res int) (*RegionSamples, error) {
	if res < 1 {
		return nil, fmt.Errorf("grid resolution %d: %w", res, ErrOutOfRange)
	}
	out := &RegionSamples{
		RegionID: region.ID,
		Physical: region.Physical,
		Grids:    make([]FaceGrid, 0, len(region.Faces)),
	}
	for _, face := range region.Faces {
		grid := FaceGrid{Face: face, Res: res, Samples: make([][]LimitSample, res+1)}
		for i := 0; i <= res; i++ {
			grid.Samples[i] = make([]LimitSample, res+1)
			for j := 0; j <= res; j++ {
				s, err := ev.Evaluate(face, float64(i)/float64(res), float64(j)/float64(res))
				if err != nil {
					return nil, err
				}
				grid.Samples[i][j] = s
			}
		}
		out.Grids = append(out.Grids, grid)
	}
	return out, nil
}
