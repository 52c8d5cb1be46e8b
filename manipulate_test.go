package latent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupManipulator(t *testing.T) (*Evaluator, *RegionSet, *Manipulator) {
	t.Helper()
	ev := mustEvaluator(t, planeCage(4, 4))
	set := NewRegionSet()
	return ev, set, NewManipulator(ev, set, nil)
}

func regionOfAllFaces(t *testing.T, ev *Evaluator) *Region {
	t.Helper()
	faces := make([]int, ev.ControlFaceCount())
	for i := range faces {
		faces[i] = i
	}
	r := newRegion("differential", faces)
	loops, err := ev.BoundaryLoops(faces)
	require.NoError(t, err)
	r.Boundary = loops
	return r
}

func TestManipulator_SplitMergeRoundTrip(t *testing.T) {
	ev, set, mp := setupManipulator(t)
	r := regionOfAllFaces(t, ev)
	set.Add(r)

	cut := []FaceUV{
		{Face: 5, UV: UV{U: 0.5, V: 0.2}},
		{Face: 6, UV: UV{U: 0.5, V: 0.5}},
		{Face: 9, UV: UV{U: 0.5, V: 0.8}},
	}
	a, b, err := mp.Split(r.ID, cut)
	require.NoError(t, err)
	require.NotEmpty(t, a.Faces)
	require.NotEmpty(t, b.Faces)
	require.Len(t, append(append([]int(nil), a.Faces...), b.Faces...), len(r.Faces))

	if _, ok := set.Get(r.ID); ok {
		t.Fatal("split operand still in set")
	}

	merged, err := mp.Merge(a.ID, b.ID)
	require.NoError(t, err)
	diff(t, r.Faces, merged.Faces)

	if _, ok := set.Get(a.ID); ok {
		t.Fatal("merge operand still in set")
	}
}

func TestManipulator_SplitPinned(t *testing.T) {
	ev, set, mp := setupManipulator(t)
	r := regionOfAllFaces(t, ev)
	set.Add(r)
	require.NoError(t, mp.Pin(r.ID))

	_, _, err := mp.Split(r.ID, nil)
	require.ErrorIs(t, err, ErrPinnedRegionImmutable)
}

func TestManipulator_MergeNonAdjacent(t *testing.T) {
	_, set, mp := setupManipulator(t)
	// Opposite corners of the 4×4 grid share no edge.
	a := newRegion("differential", []int{0})
	b := newRegion("differential", []int{15})
	set.Add(a, b)

	_, err := mp.Merge(a.ID, b.ID)
	require.ErrorIs(t, err, ErrNonAdjacentRegions)
}

func TestManipulator_MergeInheritsLargerParams(t *testing.T) {
	_, set, mp := setupManipulator(t)
	a := newRegion("differential", []int{0, 1, 2, 3})
	a.Physical.DraftAngle = 7
	b := newRegion("differential", []int{4, 5})
	b.Physical.DraftAngle = 3
	set.Add(a, b)

	merged, err := mp.Merge(b.ID, a.ID)
	require.NoError(t, err)
	require.Equal(t, 7.0, merged.Physical.DraftAngle)
	diff(t, []int{0, 1, 2, 3, 4, 5}, merged.Faces)
}

func TestManipulator_PinUnpin(t *testing.T) {
	ev, set, mp := setupManipulator(t)
	r := regionOfAllFaces(t, ev)
	set.Add(r)

	require.NoError(t, mp.Pin(r.ID))
	require.True(t, r.Pinned)
	require.False(t, r.PinnedAt.IsZero())

	require.NoError(t, mp.Unpin(r.ID))
	require.False(t, r.Pinned)
	require.True(t, r.PinnedAt.IsZero())
}

func TestManipulator_NegotiatePreservesPinned(t *testing.T) {
	ev, set, mp := setupManipulator(t)

	// Left and right halves of the grid.
	var left, right []int
	for f := 0; f < ev.ControlFaceCount(); f++ {
		if f%4 < 2 {
			left = append(left, f)
		} else {
			right = append(right, f)
		}
	}
	a := newRegion("differential", left)
	b := newRegion("differential", right)
	for _, r := range []*Region{a, b} {
		loops, err := ev.BoundaryLoops(r.Faces)
		require.NoError(t, err)
		r.Boundary = loops
	}
	set.Add(a, b)
	require.NoError(t, mp.Pin(b.ID))
	pinnedBefore := b.clone()

	edit := cloneBoundary(a.Boundary)
	for i := range edit[0] {
		edit[0][i].UV = clampUnit(edit[0][i].UV.Add(UV{U: 0.1, V: 0.05}))
	}
	require.NoError(t, mp.NegotiateEdit(a.ID, edit, DefaultNegotiationParams()))

	diff(t, edit, a.Boundary)
	diff(t, pinnedBefore.Faces, b.Faces)
	diff(t, pinnedBefore.Boundary, b.Boundary)
	require.True(t, b.Pinned)
}

func TestManipulator_NegotiateAdjustsUnpinnedNeighbor(t *testing.T) {
	ev, set, mp := setupManipulator(t)
	var left, right []int
	for f := 0; f < ev.ControlFaceCount(); f++ {
		if f%4 < 2 {
			left = append(left, f)
		} else {
			right = append(right, f)
		}
	}
	a := newRegion("differential", left)
	b := newRegion("differential", right)
	for _, r := range []*Region{a, b} {
		loops, err := ev.BoundaryLoops(r.Faces)
		require.NoError(t, err)
		r.Boundary = loops
	}
	set.Add(a, b)
	before := b.clone()

	edit := cloneBoundary(a.Boundary)
	for i := range edit[0] {
		edit[0][i].UV = clampUnit(edit[0][i].UV.Add(UV{U: 0.2}))
	}
	require.NoError(t, mp.NegotiateEdit(a.ID, edit, DefaultNegotiationParams()))

	moved := false
	for li := range b.Boundary {
		for pi := range b.Boundary[li] {
			if b.Boundary[li][pi].UV != before.Boundary[li][pi].UV {
				moved = true
			}
			if !b.Boundary[li][pi].UV.InUnitSquare() {
				t.Errorf("negotiated point %v left the unit square", b.Boundary[li][pi])
			}
		}
	}
	require.True(t, moved, "neighbor boundary unchanged by negotiation")

	// Face sets are never touched by negotiation.
	diff(t, before.Faces, b.Faces)
}

func TestManipulator_NegotiateEditedPinned(t *testing.T) {
	ev, set, mp := setupManipulator(t)
	r := regionOfAllFaces(t, ev)
	set.Add(r)
	require.NoError(t, mp.Pin(r.ID))

	err := mp.NegotiateEdit(r.ID, cloneBoundary(r.Boundary), DefaultNegotiationParams())
	require.ErrorIs(t, err, ErrPinnedRegionImmutable)
}

func TestManipulator_UnknownRegion(t *testing.T) {
	_, _, mp := setupManipulator(t)
	if _, _, err := mp.Split("nope", nil); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Split(unknown) = %v, want ErrOutOfRange", err)
	}
	if _, err := mp.Merge("nope", "also-nope"); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Merge(unknown) = %v, want ErrOutOfRange", err)
	}
}
