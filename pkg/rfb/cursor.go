package rfb

// Cursor holds a server-side cursor shape: its dimensions, hotspot (the
// pixel within the shape that tracks the pointer position) and RGBA
// pixel data, row-major, 4 bytes per pixel.
type Cursor struct {
	width, height int
	hotspot       Point
	data          []byte
}

// NewCursor builds a Cursor from the given dimensions, hotspot and RGBA
// pixel data. data is copied.
func NewCursor(width, height int, hotspot Point, data []byte) *Cursor {
	c := &Cursor{width: width, height: height, hotspot: hotspot}
	if len(data) > 0 {
		c.data = append([]byte(nil), data...)
	}
	return c
}

// Width and Height report the cursor shape's dimensions.
func (c *Cursor) Width() int  { return c.width }
func (c *Cursor) Height() int { return c.height }

// Hotspot returns the pixel offset within the shape that tracks the
// pointer position.
func (c *Cursor) Hotspot() Point { return c.hotspot }

// Data returns the cursor's RGBA pixel bytes. The caller must not
// mutate the returned slice.
func (c *Cursor) Data() []byte { return c.data }

// Rect returns the cursor shape's bounding rectangle at the origin.
func (c *Cursor) Rect() Rect {
	return NewRect(0, 0, c.width, c.height)
}

// crop trims fully-transparent border rows/columns from the cursor,
// shrinking width/height and adjusting the hotspot to match. Called
// whenever a new cursor shape is installed.
func (c *Cursor) crop() {
	if c.width == 0 || c.height == 0 || len(c.data) == 0 {
		return
	}

	minX, minY, maxX, maxY := c.width, c.height, -1, -1
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			alpha := c.data[(y*c.width+x)*4+3]
			if alpha == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX < 0 {
		// Fully transparent cursor; nothing to crop to, keep as-is.
		return
	}

	newW := maxX - minX + 1
	newH := maxY - minY + 1
	if newW == c.width && newH == c.height {
		return
	}

	cropped := make([]byte, newW*newH*4)
	for y := 0; y < newH; y++ {
		srcOff := ((y+minY)*c.width + minX) * 4
		dstOff := y * newW * 4
		copy(cropped[dstOff:dstOff+newW*4], c.data[srcOff:srcOff+newW*4])
	}

	c.hotspot = c.hotspot.Subtract(Point{minX, minY})
	c.width, c.height = newW, newH
	c.data = cropped
}

// RenderedCursor is a memoized composite of a PixelBuffer and a Cursor
// at a given position, for clients that cannot draw the cursor
// client-side. It holds its own backing store so it survives the
// underlying PixelBuffer being grabbed again.
type RenderedCursor struct {
	width, height int
	data          []byte
	rect          Rect
}

// Update recomposites pb+cursor at pos into the RenderedCursor.
func (r *RenderedCursor) Update(pb PixelBuffer, cursor *Cursor, pos Point) {
	clipped := cursor.Rect().Translate(pos.Subtract(cursor.Hotspot())).Intersect(pb.Rect())
	r.rect = clipped
	if clipped.IsEmpty() {
		r.width, r.height = 0, 0
		r.data = nil
		return
	}

	r.width, r.height = clipped.Width(), clipped.Height()
	r.data = make([]byte, r.width*r.height*4)

	base, stride := pb.GetImage(clipped)
	bpp := pb.Format().BytesPerPixel()

	cursorOrigin := clipped.Translate(Point{}.Subtract(pos.Subtract(cursor.Hotspot())))
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			cx := cursorOrigin.Left + x
			cy := cursorOrigin.Top + y
			srcOff := (cy*cursor.Width() + cx) * 4
			if srcOff < 0 || srcOff+4 > len(cursor.Data()) {
				continue
			}
			alpha := cursor.Data()[srcOff+3]
			dstOff := (y*r.width + x) * 4
			if alpha == 0 {
				if stride > 0 && bpp > 0 {
					fbOff := y*stride + x*bpp
					if fbOff+4 <= len(base) {
						copy(r.data[dstOff:dstOff+4], base[fbOff:fbOff+4])
					}
				}
				continue
			}
			copy(r.data[dstOff:dstOff+4], cursor.Data()[srcOff:srcOff+4])
		}
	}
}

// Rect returns the region of the framebuffer the last Update covered.
func (r *RenderedCursor) Rect() Rect { return r.rect }

// Data returns the composited RGBA pixels from the last Update.
func (r *RenderedCursor) Data() []byte { return r.data }
