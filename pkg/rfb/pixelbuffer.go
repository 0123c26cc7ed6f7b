package rfb

// PixelFormat describes how pixels are laid out in a PixelBuffer. The
// field names and shapes mirror the RFB wire format's PIXEL_FORMAT
// structure.
type PixelFormat struct {
	BitsPerPixel int
	Depth        int
	BigEndian    bool
	TrueColour   bool
	RedMax       int
	GreenMax     int
	BlueMax      int
	RedShift     int
	GreenShift   int
	BlueShift    int
}

// BytesPerPixel returns the number of bytes a single pixel occupies.
func (f PixelFormat) BytesPerPixel() int {
	return (f.BitsPerPixel + 7) / 8
}

// PixelFormatStandard is a common 32bpp true-colour pixel format, the
// default most RFB servers advertise.
var PixelFormatStandard = PixelFormat{
	BitsPerPixel: 32, Depth: 24, BigEndian: false, TrueColour: true,
	RedMax: 255, GreenMax: 255, BlueMax: 255,
	RedShift: 0, GreenShift: 8, BlueShift: 16,
}

// PixelBuffer is the coordinator's borrowed view of the backend's pixel
// storage. The coordinator never owns a PixelBuffer: the DesktopBackend
// installs one with SetPixelBuffer and may replace or withdraw it at any
// time. Implementations must be safe to call from the single coordinator
// goroutine only; no internal locking is implied or required.
type PixelBuffer interface {
	// Width and Height report the buffer's current dimensions.
	Width() int
	Height() int

	// Format reports the buffer's current pixel format.
	Format() PixelFormat

	// Rect returns the buffer's rectangle, i.e. NewRect(0, 0, Width(), Height()).
	Rect() Rect

	// GetImage returns the raw pixel bytes covering rect, tightly packed
	// row-major with no padding, along with the stride (bytes per row)
	// of the returned slice. Callers must not retain the slice past the
	// next GrabRegion call.
	GetImage(rect Rect) (pixels []byte, stride int)

	// GrabRegion asks the buffer to refresh its backing pixels for the
	// given region from the underlying source (e.g. a screen capture),
	// so that a subsequent GetImage reflects up-to-date contents.
	GrabRegion(region Region) error
}
