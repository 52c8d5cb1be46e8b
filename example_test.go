package latent_test

import (
	"context"
	"fmt"

	"github.com/ND-AAD/latent"
	"gonum.org/v1/gonum/spatial/r3"
)

func ExampleEvaluator_Evaluate() {
	cage := &latent.ControlCage{
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
	ev, err := latent.NewEvaluator(cage)
	if err != nil {
		panic(err)
	}
	s, err := ev.Evaluate(1, 0.5, 0.5)
	if err != nil {
		panic(err)
	}
	// The center of the top face pulls inward toward the limit surface.
	fmt.Printf("inside cage: %v\n", s.Position.Z > 0 && s.Position.Z < 1)
	fmt.Printf("normal·z = %.2f\n", r3.Dot(s.Normal, r3.Vec{Z: 1}))
	// Output:
	// inside cage: true
	// normal·z = 1.00
}

func ExampleLens() {
	cage := &latent.ControlCage{}
	for j := 0; j <= 4; j++ {
		for i := 0; i <= 4; i++ {
			cage.Vertices = append(cage.Vertices, r3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	for j := 0; j < 4; j++ {
		for i := 0; i < 4; i++ {
			v := j*5 + i
			cage.Faces = append(cage.Faces, []int{v, v + 1, v + 6, v + 5})
		}
	}
	ev, err := latent.NewEvaluator(cage)
	if err != nil {
		panic(err)
	}
	lens, _ := latent.NewLens("differential", nil)
	res, err := lens.DiscoverRegions(context.Background(), ev, nil)
	if err != nil {
		panic(err)
	}
	for _, r := range res.Regions {
		fmt.Printf("%s region: %d faces, coherence %.2f\n", r.Lens, len(r.Faces), r.Coherence)
	}
	// Output:
	// differential region: 16 faces, coherence 1.00
}
