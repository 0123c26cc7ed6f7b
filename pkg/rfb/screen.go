package rfb

import "fmt"

// ScreenFlags is a bitset of per-screen flags carried in the RFB
// ExtendedDesktopSize / LayoutChange messages. The coordinator treats
// these opaquely; it only needs to round-trip them.
type ScreenFlags uint32

// Screen is a named subregion of the framebuffer, used to describe a
// possibly multi-monitor virtual display.
type Screen struct {
	ID     uint32
	X, Y   int
	Width  int
	Height int
	Flags  ScreenFlags
}

// Rect returns the screen's rectangle in framebuffer coordinates.
func (s Screen) Rect() Rect {
	return NewRect(s.X, s.Y, s.Width, s.Height)
}

// ScreenSet is the set of Screens describing a virtual display. Screen
// order is not significant; identity is by ID.
type ScreenSet struct {
	screens []Screen
}

// NewScreenSet builds a ScreenSet from the given screens.
func NewScreenSet(screens ...Screen) ScreenSet {
	return ScreenSet{screens: append([]Screen(nil), screens...)}
}

// Screens returns the screens in the set. The returned slice must not be
// mutated by the caller.
func (s ScreenSet) Screens() []Screen {
	return s.screens
}

// NumScreens returns the number of screens in the set.
func (s ScreenSet) NumScreens() int {
	return len(s.screens)
}

// AddScreen appends a screen to the set, replacing any existing screen
// with the same ID.
func (s *ScreenSet) AddScreen(screen Screen) {
	for i, existing := range s.screens {
		if existing.ID == screen.ID {
			s.screens[i] = screen
			return
		}
	}
	s.screens = append(s.screens, screen)
}

// RemoveScreen deletes the screen with the given ID, if present.
func (s *ScreenSet) RemoveScreen(id uint32) {
	for i, existing := range s.screens {
		if existing.ID == id {
			s.screens = append(s.screens[:i], s.screens[i+1:]...)
			return
		}
	}
}

// Equal reports whether s and o contain the same screens (by value,
// order-independent).
func (s ScreenSet) Equal(o ScreenSet) bool {
	if len(s.screens) != len(o.screens) {
		return false
	}
	for _, a := range s.screens {
		found := false
		for _, b := range o.screens {
			if a == b {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Validate reports an error unless the set is non-empty and every screen
// lies entirely within a 0,0,w,h framebuffer rectangle.
func (s ScreenSet) Validate(w, h int) error {
	if len(s.screens) == 0 {
		return fmt.Errorf("screen set must contain at least one screen")
	}
	fbRect := NewRect(0, 0, w, h)
	for _, screen := range s.screens {
		if screen.Rect().IsEmpty() {
			return fmt.Errorf("screen %d (%#x) has empty dimensions", screen.ID, screen.ID)
		}
		if !screen.Rect().EnclosedBy(fbRect) {
			return fmt.Errorf("screen %d (%#x) is not enclosed by the framebuffer", screen.ID, screen.ID)
		}
	}
	return nil
}

// IntersectFramebuffer clips every screen against a 0,0,w,h framebuffer
// rectangle, dropping screens that become empty, and returns the result.
// It does not guarantee the result is non-empty.
func (s ScreenSet) IntersectFramebuffer(w, h int) ScreenSet {
	fbRect := NewRect(0, 0, w, h)
	var out ScreenSet
	for _, screen := range s.screens {
		clipped := screen.Rect().Intersect(fbRect)
		if clipped.IsEmpty() {
			continue
		}
		out.AddScreen(Screen{
			ID:     screen.ID,
			X:      clipped.Left,
			Y:      clipped.Top,
			Width:  clipped.Width(),
			Height: clipped.Height(),
			Flags:  screen.Flags,
		})
	}
	return out
}
