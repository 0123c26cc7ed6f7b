package rfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChangeTracker_AddChangedUnions(t *testing.T) {
	var tr ChangeTracker
	tr.AddChanged(NewRegion(NewRect(0, 0, 10, 10)))
	tr.AddChanged(NewRegion(NewRect(20, 20, 5, 5)))

	require.False(t, tr.IsEmpty())
	info := tr.GetUpdateInfo(NewRect(0, 0, 100, 100))
	require.Len(t, info.Changed.Rects(), 2)
	require.True(t, info.Copied.IsEmpty())
}

func TestChangeTracker_AddCopiedSameDeltaAccumulates(t *testing.T) {
	var tr ChangeTracker
	tr.AddCopied(NewRegion(NewRect(0, 0, 10, 10)), Point{5, 0})
	tr.AddCopied(NewRegion(NewRect(10, 0, 10, 10)), Point{5, 0})

	info := tr.GetUpdateInfo(NewRect(0, 0, 100, 100))
	require.Len(t, info.Copied.Rects(), 2)
	require.Equal(t, Point{5, 0}, info.CopyDelta)
	require.True(t, info.Changed.IsEmpty())
}

func TestChangeTracker_AddCopiedDifferentDeltaFoldsIntoChanged(t *testing.T) {
	var tr ChangeTracker
	tr.AddCopied(NewRegion(NewRect(0, 0, 10, 10)), Point{5, 0})
	tr.AddCopied(NewRegion(NewRect(20, 20, 10, 10)), Point{0, 5})

	info := tr.GetUpdateInfo(NewRect(0, 0, 100, 100))
	require.Len(t, info.Copied.Rects(), 1)
	require.Equal(t, Point{0, 5}, info.CopyDelta)
	require.Len(t, info.Changed.Rects(), 1)
}

func TestChangeTracker_ClearResetsEverything(t *testing.T) {
	var tr ChangeTracker
	tr.AddChanged(NewRegion(NewRect(0, 0, 10, 10)))
	tr.AddCopied(NewRegion(NewRect(0, 0, 10, 10)), Point{1, 1})

	tr.Clear()

	require.True(t, tr.IsEmpty())
	info := tr.GetUpdateInfo(NewRect(0, 0, 100, 100))
	require.Equal(t, Point{}, info.CopyDelta)
}

func TestChangeTracker_GetUpdateInfoClipsToRect(t *testing.T) {
	var tr ChangeTracker
	tr.AddChanged(NewRegion(NewRect(-10, -10, 30, 30)))

	info := tr.GetUpdateInfo(NewRect(0, 0, 10, 10))
	require.Len(t, info.Changed.Rects(), 1)
	require.Equal(t, NewRect(0, 0, 10, 10), info.Changed.Rects()[0])
}

func TestChangeTracker_AddCopiedIgnoresEmptyRegion(t *testing.T) {
	var tr ChangeTracker
	tr.AddCopied(Region{}, Point{1, 1})
	require.True(t, tr.IsEmpty())
}
