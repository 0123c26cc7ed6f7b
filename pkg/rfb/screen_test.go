package rfb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScreenSet_ValidateRejectsEmptySet(t *testing.T) {
	var s ScreenSet
	require.Error(t, s.Validate(1920, 1080))
}

func TestScreenSet_ValidateRejectsScreenOutsideFramebuffer(t *testing.T) {
	s := NewScreenSet(Screen{ID: 0, X: 1900, Y: 0, Width: 100, Height: 100})
	require.Error(t, s.Validate(1920, 1080))
}

func TestScreenSet_ValidateAcceptsEnclosedScreens(t *testing.T) {
	s := NewScreenSet(
		Screen{ID: 0, X: 0, Y: 0, Width: 960, Height: 1080},
		Screen{ID: 1, X: 960, Y: 0, Width: 960, Height: 1080},
	)
	require.NoError(t, s.Validate(1920, 1080))
}

func TestScreenSet_AddScreenReplacesByID(t *testing.T) {
	var s ScreenSet
	s.AddScreen(Screen{ID: 5, Width: 100, Height: 100})
	s.AddScreen(Screen{ID: 5, Width: 200, Height: 200})

	require.Equal(t, 1, s.NumScreens())
	require.Equal(t, 200, s.Screens()[0].Width)
}

func TestScreenSet_RemoveScreen(t *testing.T) {
	s := NewScreenSet(Screen{ID: 0}, Screen{ID: 1})
	s.RemoveScreen(0)

	require.Equal(t, 1, s.NumScreens())
	require.Equal(t, uint32(1), s.Screens()[0].ID)
}

func TestScreenSet_EqualIsOrderIndependent(t *testing.T) {
	a := NewScreenSet(Screen{ID: 0, Width: 10, Height: 10}, Screen{ID: 1, Width: 20, Height: 20})
	b := NewScreenSet(Screen{ID: 1, Width: 20, Height: 20}, Screen{ID: 0, Width: 10, Height: 10})
	require.True(t, a.Equal(b))
}

func TestScreenSet_IntersectFramebufferDropsEmptyScreens(t *testing.T) {
	s := NewScreenSet(
		Screen{ID: 0, X: 0, Y: 0, Width: 1920, Height: 1080},
		Screen{ID: 1, X: 1920, Y: 0, Width: 1920, Height: 1080},
	)
	clipped := s.IntersectFramebuffer(1920, 1080)

	require.Equal(t, 1, clipped.NumScreens())
	require.Equal(t, uint32(0), clipped.Screens()[0].ID)
}

func TestScreenSet_IntersectFramebufferClipsOverhang(t *testing.T) {
	s := NewScreenSet(Screen{ID: 0, X: 0, Y: 0, Width: 2000, Height: 1200})
	clipped := s.IntersectFramebuffer(1920, 1080)

	require.Equal(t, 1, clipped.NumScreens())
	require.Equal(t, 1920, clipped.Screens()[0].Width)
	require.Equal(t, 1080, clipped.Screens()[0].Height)
}
