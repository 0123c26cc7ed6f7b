package rfb

// ComparingTracker wraps a ChangeTracker: before the accumulated update
// is handed to clients, it reads the current pixel content of every
// candidate rectangle and drops any whose bytes are identical to a
// retained snapshot, at the cost of keeping that snapshot around. This
// trades memory for bandwidth when the backend over-reports dirty
// regions (a common case for screen-scrape capture backends).
type ComparingTracker struct {
	ChangeTracker

	pb      PixelBuffer
	enabled bool

	snapshot                  []byte
	snapWidth, snapHeight     int
	snapBpp                   int

	examinedPixels, savedPixels uint64
}

// NewComparingTracker builds a ComparingTracker bound to pb. Comparison
// starts disabled; call Enable to turn it on.
func NewComparingTracker(pb PixelBuffer) *ComparingTracker {
	return &ComparingTracker{pb: pb}
}

// Enable turns pixel comparison on.
func (t *ComparingTracker) Enable() { t.enabled = true }

// Disable turns pixel comparison off; Compare becomes a no-op.
func (t *ComparingTracker) Disable() { t.enabled = false }

// Enabled reports the current comparison state.
func (t *ComparingTracker) Enabled() bool { return t.enabled }

// Compare reads the current pixels for every accumulated rectangle and
// drops those that are byte-identical to the retained snapshot, updating
// the snapshot for the rest. When the snapshot has just been allocated
// (first call, or the buffer's size or format changed) it holds no real
// pixels yet, so that call drops nothing and only fills the snapshot in.
// It reports whether anything was dropped, which tells the caller it
// should re-fetch GetUpdateInfo.
func (t *ComparingTracker) Compare() bool {
	if !t.enabled {
		return false
	}

	fresh := t.ensureSnapshot()

	removedAny := false
	t.changed = Region{rects: t.filterRegion(t.changed.Rects(), fresh, &removedAny)}
	t.copied = Region{rects: t.filterRegion(t.copied.Rects(), fresh, &removedAny)}
	if t.copied.IsEmpty() {
		t.haveCopy = false
	}

	return removedAny
}

func (t *ComparingTracker) filterRegion(rects []Rect, fresh bool, removedAny *bool) []Rect {
	var survivors []Rect
	for _, r := range rects {
		clipped := r.Intersect(t.pb.Rect())
		if clipped.IsEmpty() {
			continue
		}

		t.examinedPixels += uint64(clipped.Width() * clipped.Height())

		if !fresh && t.regionIdentical(clipped) {
			*removedAny = true
			t.savedPixels += uint64(clipped.Width() * clipped.Height())
			continue
		}

		t.updateSnapshot(clipped)
		survivors = append(survivors, clipped)
	}
	return survivors
}

// ensureSnapshot (re)allocates the snapshot to match the buffer and
// reports whether it did so.
func (t *ComparingTracker) ensureSnapshot() bool {
	bpp := t.pb.Format().BytesPerPixel()
	w, h := t.pb.Width(), t.pb.Height()
	if w == t.snapWidth && h == t.snapHeight && bpp == t.snapBpp && t.snapshot != nil {
		return false
	}
	t.snapWidth, t.snapHeight, t.snapBpp = w, h, bpp
	t.snapshot = make([]byte, w*h*bpp)
	return true
}

func (t *ComparingTracker) regionIdentical(rect Rect) bool {
	pixels, stride := t.pb.GetImage(rect)
	bpp := t.snapBpp
	rowBytes := rect.Width() * bpp
	for y := 0; y < rect.Height(); y++ {
		srcOff := y * stride
		if srcOff+rowBytes > len(pixels) {
			return false
		}
		dstOff := ((rect.Top+y)*t.snapWidth + rect.Left) * bpp
		if dstOff+rowBytes > len(t.snapshot) {
			return false
		}
		for i := 0; i < rowBytes; i++ {
			if pixels[srcOff+i] != t.snapshot[dstOff+i] {
				return false
			}
		}
	}
	return true
}

func (t *ComparingTracker) updateSnapshot(rect Rect) {
	pixels, stride := t.pb.GetImage(rect)
	bpp := t.snapBpp
	rowBytes := rect.Width() * bpp
	for y := 0; y < rect.Height(); y++ {
		srcOff := y * stride
		if srcOff+rowBytes > len(pixels) {
			return
		}
		dstOff := ((rect.Top+y)*t.snapWidth + rect.Left) * bpp
		if dstOff+rowBytes > len(t.snapshot) {
			return
		}
		copy(t.snapshot[dstOff:dstOff+rowBytes], pixels[srcOff:srcOff+rowBytes])
	}
}

// Stats reports the cumulative number of pixels examined and the number
// that were suppressed because they hadn't actually changed, since the
// last call to ResetStats.
func (t *ComparingTracker) Stats() (examined, saved uint64) {
	return t.examinedPixels, t.savedPixels
}

// ResetStats zeroes the cumulative counters returned by Stats.
func (t *ComparingTracker) ResetStats() {
	t.examinedPixels, t.savedPixels = 0, 0
}
