package rfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComparingTracker_DisabledNeverDrops(t *testing.T) {
	pb := newFakePixelBuffer(16, 16)
	tr := NewComparingTracker(pb)
	tr.AddChanged(NewRegion(pb.Rect()))

	dropped := tr.Compare()
	require.False(t, dropped)
	info := tr.GetUpdateInfo(pb.Rect())
	require.Len(t, info.Changed.Rects(), 1)
}

func TestComparingTracker_FirstCompareNeverSuppresses(t *testing.T) {
	pb := newFakePixelBuffer(16, 16)
	tr := NewComparingTracker(pb)
	tr.Enable()
	tr.AddChanged(NewRegion(pb.Rect()))

	dropped := tr.Compare()
	require.False(t, dropped, "an empty snapshot can never be identical to real pixels")
	info := tr.GetUpdateInfo(pb.Rect())
	require.Len(t, info.Changed.Rects(), 1)
}

func TestComparingTracker_SuppressesUnchangedRect(t *testing.T) {
	pb := newFakePixelBuffer(16, 16)
	tr := NewComparingTracker(pb)
	tr.Enable()

	rect := NewRect(0, 0, 8, 8)
	tr.AddChanged(NewRegion(rect))
	tr.Compare() // primes the snapshot for rect
	tr.Clear()

	tr.AddChanged(NewRegion(rect))
	dropped := tr.Compare()
	require.True(t, dropped)

	info := tr.GetUpdateInfo(pb.Rect())
	require.True(t, info.Changed.IsEmpty())
}

func TestComparingTracker_DoesNotSuppressChangedPixels(t *testing.T) {
	pb := newFakePixelBuffer(16, 16)
	tr := NewComparingTracker(pb)
	tr.Enable()

	rect := NewRect(0, 0, 8, 8)
	tr.AddChanged(NewRegion(rect))
	tr.Compare()
	tr.Clear()

	pb.plane[0] = 0xFF // mutate a pixel inside rect

	tr.AddChanged(NewRegion(rect))
	dropped := tr.Compare()
	require.False(t, dropped)

	info := tr.GetUpdateInfo(pb.Rect())
	require.Len(t, info.Changed.Rects(), 1)
}

func TestComparingTracker_StatsTrackExaminedAndSaved(t *testing.T) {
	pb := newFakePixelBuffer(16, 16)
	tr := NewComparingTracker(pb)
	tr.Enable()

	rect := NewRect(0, 0, 8, 8)
	tr.AddChanged(NewRegion(rect))
	tr.Compare()
	tr.Clear()

	tr.AddChanged(NewRegion(rect))
	tr.Compare()

	examined, saved := tr.Stats()
	require.Equal(t, uint64(64*2), examined)
	require.Equal(t, uint64(64), saved)

	tr.ResetStats()
	examined, saved = tr.Stats()
	require.Zero(t, examined)
	require.Zero(t, saved)
}

func TestComparingTracker_ReallocatesSnapshotOnResize(t *testing.T) {
	pb := newFakePixelBuffer(16, 16)
	tr := NewComparingTracker(pb)
	tr.Enable()
	tr.AddChanged(NewRegion(NewRect(0, 0, 8, 8)))
	tr.Compare()
	tr.Clear()

	pb.width, pb.height = 32, 32
	pb.plane = make([]byte, 32*32*pb.format.BytesPerPixel())

	tr.AddChanged(NewRegion(NewRect(0, 0, 8, 8)))
	dropped := tr.Compare()
	require.False(t, dropped, "a resized buffer must not compare against the stale snapshot")
}
