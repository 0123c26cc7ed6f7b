package rfb

// UpdateInfo is a snapshot of everything a ChangeTracker has accumulated:
// an arbitrary changed region plus a single scrolled (copied) region and
// the delta it was copied by. Only one copy delta is tracked per update
// cycle in this design.
type UpdateInfo struct {
	Changed   Region
	Copied    Region
	CopyDelta Point
}

// ChangeTracker accumulates "changed" regions and a "copied" (scrolled)
// region with its delta, and can emit a consolidated UpdateInfo. It is
// the base tracker C1 that ComparingTracker wraps with pixel comparison.
type ChangeTracker struct {
	changed   Region
	copied    Region
	copyDelta Point
	haveCopy  bool
}

// AddChanged folds region into the accumulated changed set.
func (t *ChangeTracker) AddChanged(region Region) {
	t.changed = t.changed.Union(region)
}

// AddCopied records that dest was populated by copying from dest-delta.
// Only one copy delta is tracked at a time; if a second, different delta
// arrives, the previous copied region is folded into changed instead
// (it can no longer be expressed as a single CopyRect).
func (t *ChangeTracker) AddCopied(dest Region, delta Point) {
	if dest.IsEmpty() {
		return
	}
	if t.haveCopy && delta != t.copyDelta {
		t.changed = t.changed.Union(t.copied)
		t.copied = Region{}
	}
	t.copyDelta = delta
	t.haveCopy = true
	t.copied = t.copied.Union(dest)
}

// IsEmpty reports whether nothing has been accumulated.
func (t *ChangeTracker) IsEmpty() bool {
	return t.changed.IsEmpty() && t.copied.IsEmpty()
}

// GetUpdateInfo returns the accumulated changes, clipped to clip.
func (t *ChangeTracker) GetUpdateInfo(clip Rect) UpdateInfo {
	return UpdateInfo{
		Changed:   t.changed.Intersect(clip),
		Copied:    t.copied.Intersect(clip),
		CopyDelta: t.copyDelta,
	}
}

// Clear discards all accumulated state.
func (t *ChangeTracker) Clear() {
	t.changed = Region{}
	t.copied = Region{}
	t.copyDelta = Point{}
	t.haveCopy = false
}
