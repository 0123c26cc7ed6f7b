package rfb

// Point is a location in framebuffer coordinates.
type Point struct {
	X, Y int
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

// Subtract returns p-q.
func (p Point) Subtract(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

// Rect is an axis-aligned rectangle, left/top inclusive, right/bottom exclusive.
type Rect struct {
	Left, Top, Right, Bottom int
}

// NewRect builds a Rect from an origin and dimensions.
func NewRect(x, y, w, h int) Rect {
	return Rect{Left: x, Top: y, Right: x + w, Bottom: y + h}
}

// IsEmpty reports whether the rectangle encloses no pixels.
func (r Rect) IsEmpty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Width returns the rectangle's width in pixels.
func (r Rect) Width() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Right - r.Left
}

// Height returns the rectangle's height in pixels.
func (r Rect) Height() int {
	if r.IsEmpty() {
		return 0
	}
	return r.Bottom - r.Top
}

// Translate shifts the rectangle by delta.
func (r Rect) Translate(delta Point) Rect {
	return Rect{r.Left + delta.X, r.Top + delta.Y, r.Right + delta.X, r.Bottom + delta.Y}
}

// Intersect returns the overlap of r and o, which is empty if they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		Left:   max(r.Left, o.Left),
		Top:    max(r.Top, o.Top),
		Right:  min(r.Right, o.Right),
		Bottom: min(r.Bottom, o.Bottom),
	}
	if out.IsEmpty() {
		return Rect{}
	}
	return out
}

// EnclosedBy reports whether r lies entirely within o.
func (r Rect) EnclosedBy(o Rect) bool {
	if r.IsEmpty() {
		return true
	}
	return r.Left >= o.Left && r.Top >= o.Top && r.Right <= o.Right && r.Bottom <= o.Bottom
}

// Contains reports whether p lies within r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Region is an unordered collection of rectangles. Unlike a true
// rectangle-set implementation it does not keep the set disjoint or
// minimal; callers only ever need union, intersection-emptiness and
// iteration, which this representation supports cheaply enough for the
// coordinator's purposes (small number of dirty rectangles per frame).
type Region struct {
	rects []Rect
}

// NewRegion builds a Region out of the given rectangles, dropping empty ones.
func NewRegion(rects ...Rect) Region {
	var reg Region
	for _, r := range rects {
		reg.AddRect(r)
	}
	return reg
}

// AddRect appends r to the region unless it is empty.
func (r *Region) AddRect(rect Rect) {
	if rect.IsEmpty() {
		return
	}
	r.rects = append(r.rects, rect)
}

// IsEmpty reports whether the region contains no rectangles.
func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// Rects returns the rectangles making up the region. The returned slice
// must not be mutated by the caller.
func (r Region) Rects() []Rect {
	return r.rects
}

// Union returns the region covering both r and o.
func (r Region) Union(o Region) Region {
	var out Region
	out.rects = append(out.rects, r.rects...)
	out.rects = append(out.rects, o.rects...)
	return out
}

// Intersect returns the region covering the overlap between r and the
// rectangle clip.
func (r Region) Intersect(clip Rect) Region {
	var out Region
	for _, rect := range r.rects {
		out.AddRect(rect.Intersect(clip))
	}
	return out
}

// Translate shifts every rectangle in the region by delta.
func (r Region) Translate(delta Point) Region {
	var out Region
	for _, rect := range r.rects {
		out.AddRect(rect.Translate(delta))
	}
	return out
}

// BoundingRect returns the smallest rectangle enclosing every rectangle
// in the region. Returns the zero Rect if the region is empty.
func (r Region) BoundingRect() Rect {
	if len(r.rects) == 0 {
		return Rect{}
	}
	out := r.rects[0]
	for _, rect := range r.rects[1:] {
		out.Left = min(out.Left, rect.Left)
		out.Top = min(out.Top, rect.Top)
		out.Right = max(out.Right, rect.Right)
		out.Bottom = max(out.Bottom, rect.Bottom)
	}
	return out
}
