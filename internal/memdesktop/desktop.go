// Package memdesktop is a synthetic rfb.Desktop backend: it paints an
// animated test pattern into an in-memory framebuffer instead of
// capturing a real screen, and logs (rather than injects) input events.
// It exists so cmd/server has a real PixelBuffer to drive end to end.
package memdesktop

import (
	"fmt"
	"math"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

const bytesPerPixel = 4

// buffer is a plain []byte plane implementing rfb.PixelBuffer. It is
// only ever touched from the coordinator's single owning goroutine, the
// same invariant every other PixelBuffer implementation relies on, so
// it needs no locking of its own.
type buffer struct {
	width  int
	height int
	plane  []byte
}

func newBuffer(w, h int) *buffer {
	return &buffer{width: w, height: h, plane: make([]byte, w*h*bytesPerPixel)}
}

func (b *buffer) Width() int              { return b.width }
func (b *buffer) Height() int             { return b.height }
func (b *buffer) Format() rfb.PixelFormat { return rfb.PixelFormatStandard }
func (b *buffer) Rect() rfb.Rect          { return rfb.NewRect(0, 0, b.width, b.height) }

func (b *buffer) GetImage(rect rfb.Rect) ([]byte, int) {
	stride := b.width * bytesPerPixel
	rowBytes := rect.Width() * bytesPerPixel
	out := make([]byte, rowBytes*rect.Height())
	for y := 0; y < rect.Height(); y++ {
		srcOff := (rect.Top+y)*stride + rect.Left*bytesPerPixel
		dstOff := y * rowBytes
		copy(out[dstOff:dstOff+rowBytes], b.plane[srcOff:srcOff+rowBytes])
	}
	return out, rowBytes
}

// GrabRegion is a no-op: the plane is always current, there is no
// separate capture step to trigger.
func (b *buffer) GrabRegion(rfb.Region) error { return nil }

func (b *buffer) resize(w, h int) {
	b.width, b.height = w, h
	b.plane = make([]byte, w*h*bytesPerPixel)
}

// paint renders a sine-wave test pattern at the given frame number, so
// consecutive frames visibly animate without any real capture source.
func (b *buffer) paint(frame uint64) {
	for y := 0; y < b.height; y++ {
		for x := 0; x < b.width; x++ {
			waveX := math.Sin(float64(x)*0.02 + float64(frame)*0.1)
			waveY := math.Sin(float64(y)*0.02 + float64(frame)*0.1)
			wave := waveX + waveY
			intensity := uint8((wave + 2) * 63.5)

			off := (y*b.width + x) * bytesPerPixel
			b.plane[off] = intensity
			b.plane[off+1] = intensity / 2
			b.plane[off+2] = intensity / 4
			b.plane[off+3] = 0
		}
	}
}

// Desktop is the synthetic rfb.Desktop backend.
type Desktop struct {
	logger rfb.Logger

	coord  rfb.DesktopCallbacks
	buf    *buffer
	frame  uint64
	screen rfb.Screen

	clipboard string
}

// New builds a Desktop that starts with a w x h framebuffer.
func New(w, h int, logger rfb.Logger) *Desktop {
	if logger == nil {
		logger = rfb.NopLogger{}
	}
	return &Desktop{
		logger: logger,
		buf:    newBuffer(w, h),
		screen: rfb.Screen{ID: 1, X: 0, Y: 0, Width: w, Height: h},
	}
}

func (d *Desktop) Init(server rfb.DesktopCallbacks) { d.coord = server }

func (d *Desktop) Start() error {
	layout := rfb.NewScreenSet(d.screen)
	return d.coord.SetPixelBuffer(d.buf, layout)
}

func (d *Desktop) Stop() {}

// PointerEvent and KeyEvent have no real input target to inject into;
// the synthetic desktop only logs what it received.
func (d *Desktop) PointerEvent(pos rfb.Point, buttonMask uint8) {
	d.logger.Debug("pointer event", map[string]any{"x": pos.X, "y": pos.Y, "buttons": buttonMask})
}

func (d *Desktop) KeyEvent(keysym, keycode uint32, down bool) {
	d.logger.Debug("key event", map[string]any{"keysym": keysym, "down": down})
}

func (d *Desktop) HandleClipboardRequest() {
	if d.clipboard == "" {
		return
	}
	_ = d.coord.SendClipboardData(d.clipboard)
}

func (d *Desktop) HandleClipboardAnnounce(available bool) {
	if available {
		d.coord.RequestClipboard()
	}
}

func (d *Desktop) HandleClipboardData(text string) {
	d.clipboard = text
}

// SetScreenLayout actually resizes the backing buffer, so a client's
// setDesktopSize round-trips into a real new framebuffer. The requested
// layout is not used: the desktop always installs its single screen (ID 1)
// at the new size, so the coordinator reports a runtime error for any
// request whose layout differs from that screen.
func (d *Desktop) SetScreenLayout(w, h int, layout rfb.ScreenSet) rfb.SetDesktopSizeResult {
	if w <= 0 || h <= 0 || w > 65535 || h > 65535 {
		return rfb.ResultInvalid
	}
	d.buf.resize(w, h)
	d.screen.Width, d.screen.Height = w, h
	if err := d.coord.SetScreenLayout(rfb.NewScreenSet(d.screen)); err != nil {
		return rfb.ResultInvalid
	}
	return rfb.ResultSuccess
}

// QueryConnection always approves: there is no real authentication
// backend behind this demo desktop.
func (d *Desktop) QueryConnection(sock rfb.Socket, userName string) {
	d.coord.ApproveConnection(sock, true, "")
}

// FrameTick repaints the test pattern and marks the whole framebuffer
// changed.
func (d *Desktop) FrameTick(msc uint64) {
	d.frame++
	d.buf.paint(d.frame)
	d.coord.AddChanged(rfb.NewRegion(d.buf.Rect()))
}

func (d *Desktop) Terminate() {
	d.logger.Info("desktop terminated", map[string]any{"frames painted": fmt.Sprint(d.frame)})
}
