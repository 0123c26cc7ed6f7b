package rfb

import (
	"bytes"
	"errors"
	"time"
)

// fakeSocket is a minimal Socket for tests: it records what was written
// to it instead of touching a real network connection.
type fakeSocket struct {
	addr          string
	endpoint      string
	buf           bytes.Buffer
	shutdownCalls int
	requiresQuery bool
}

func newFakeSocket(addr string) *fakeSocket {
	return &fakeSocket{addr: addr, endpoint: addr + ":5900"}
}

func (s *fakeSocket) PeerAddress() string  { return s.addr }
func (s *fakeSocket) PeerEndpoint() string { return s.endpoint }
func (s *fakeSocket) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}
func (s *fakeSocket) Shutdown() error {
	s.shutdownCalls++
	return nil
}
func (s *fakeSocket) RequiresQuery() bool { return s.requiresQuery }

// fakeConn is a minimal Connection for tests: every *OrClose method
// succeeds unless failNext is set, and every call is recorded so tests
// can assert on call counts and arguments.
type fakeConn struct {
	sock   Socket
	authed bool
	access AccessRights

	closed      bool
	closeReason string

	failNext bool

	approveCalls        []approveCall
	layoutChangeCalls   []LayoutChangeReason
	ledCalls            []LEDState
	renderedCursorCalls int
	cursorChangeCalls   int
	cursorPosCalls      int
	pixelBufferCalls    int
	bellCalls           int
	nameCalls           []string
	requestClipCalls    int
	announceClipCalls   []bool
	sendClipCalls       []string
	addCopiedCalls      []copyCall
	addChangedCalls     []Region
	writeUpdateCalls    int

	needRenderedCursor bool
	comparerState      bool
}

type approveCall struct {
	accept bool
	reason string
}

type copyCall struct {
	dest  Region
	delta Point
}

func newFakeConn(sock Socket) *fakeConn {
	return &fakeConn{sock: sock, authed: true, access: AccessFull}
}

func (f *fakeConn) Socket() Socket                      { return f.sock }
func (f *fakeConn) Authenticated() bool                 { return f.authed }
func (f *fakeConn) AccessCheck(want AccessRights) bool  { return f.access.Has(want) }

func (f *fakeConn) Init() error            { return nil }
func (f *fakeConn) ProcessMessages() error { return nil }
func (f *fakeConn) FlushSocket() error     { return nil }
func (f *fakeConn) Close(reason string) {
	f.closed = true
	f.closeReason = reason
}

func (f *fakeConn) maybeFail() error {
	if f.failNext {
		return errFakeConnFailure
	}
	return nil
}

var errFakeConnFailure = errors.New("fakeConn: simulated delivery failure")

func (f *fakeConn) PixelBufferChange() { f.pixelBufferCalls++ }
func (f *fakeConn) ScreenLayoutChangeOrClose(reason LayoutChangeReason) error {
	f.layoutChangeCalls = append(f.layoutChangeCalls, reason)
	return f.maybeFail()
}
func (f *fakeConn) RenderedCursorChange() { f.renderedCursorCalls++ }
func (f *fakeConn) SetCursorOrClose() error {
	return f.maybeFail()
}
func (f *fakeConn) CursorPositionChange() { f.cursorPosCalls++ }
func (f *fakeConn) SetLEDStateOrClose(state LEDState) error {
	f.ledCalls = append(f.ledCalls, state)
	return f.maybeFail()
}

func (f *fakeConn) RequestClipboardOrClose() error {
	f.requestClipCalls++
	return f.maybeFail()
}
func (f *fakeConn) AnnounceClipboardOrClose(available bool) error {
	f.announceClipCalls = append(f.announceClipCalls, available)
	return f.maybeFail()
}
func (f *fakeConn) SendClipboardDataOrClose(text string) error {
	f.sendClipCalls = append(f.sendClipCalls, text)
	return f.maybeFail()
}

func (f *fakeConn) BellOrClose() error {
	f.bellCalls++
	return f.maybeFail()
}
func (f *fakeConn) SetDesktopNameOrClose(name string) error {
	f.nameCalls = append(f.nameCalls, name)
	return f.maybeFail()
}
func (f *fakeConn) ApproveConnectionOrClose(accept bool, reason string) error {
	f.approveCalls = append(f.approveCalls, approveCall{accept, reason})
	return f.maybeFail()
}

func (f *fakeConn) NeedRenderedCursor() bool { return f.needRenderedCursor }
func (f *fakeConn) ComparerState() bool      { return f.comparerState }

func (f *fakeConn) AddCopied(dest Region, delta Point) {
	f.addCopiedCalls = append(f.addCopiedCalls, copyCall{dest, delta})
}
func (f *fakeConn) AddChanged(region Region) {
	f.addChangedCalls = append(f.addChangedCalls, region)
}
func (f *fakeConn) WriteFramebufferUpdateOrClose() error {
	f.writeUpdateCalls++
	return f.maybeFail()
}

// fakeDesktop is a minimal Desktop for tests.
type fakeDesktop struct {
	callbacks DesktopCallbacks

	startErr    error
	startCalls  int
	stopCalls   int

	pointerEvents []pointerCall
	keyEvents     []keyCall

	clipRequestCalls  int
	clipAnnounceCalls []bool
	clipDataCalls     []string

	setScreenLayoutResult SetDesktopSizeResult
	setScreenLayoutCalls  []layoutCall
	setScreenLayoutFn     func(w, h int, layout ScreenSet) SetDesktopSizeResult

	queryConnectionCalls []queryCall

	frameTicks     []uint64
	terminateCalls int

	pb PixelBuffer
}

type pointerCall struct {
	pos Point
	btn uint8
}

type keyCall struct {
	keysym, keycode uint32
	down            bool
}

type layoutCall struct {
	w, h   int
	layout ScreenSet
}

type queryCall struct {
	sock     Socket
	userName string
}

func newFakeDesktop() *fakeDesktop {
	return &fakeDesktop{setScreenLayoutResult: ResultSuccess}
}

func (d *fakeDesktop) Init(server DesktopCallbacks) { d.callbacks = server }

func (d *fakeDesktop) Start() error {
	d.startCalls++
	if d.startErr != nil {
		return d.startErr
	}
	if d.pb != nil {
		_ = d.callbacks.SetPixelBufferInferLayout(d.pb)
	}
	return nil
}

func (d *fakeDesktop) Stop() { d.stopCalls++ }

func (d *fakeDesktop) PointerEvent(pos Point, buttonMask uint8) {
	d.pointerEvents = append(d.pointerEvents, pointerCall{pos, buttonMask})
}
func (d *fakeDesktop) KeyEvent(keysym, keycode uint32, down bool) {
	d.keyEvents = append(d.keyEvents, keyCall{keysym, keycode, down})
}

func (d *fakeDesktop) HandleClipboardRequest()              { d.clipRequestCalls++ }
func (d *fakeDesktop) HandleClipboardAnnounce(available bool) {
	d.clipAnnounceCalls = append(d.clipAnnounceCalls, available)
}
func (d *fakeDesktop) HandleClipboardData(text string) {
	d.clipDataCalls = append(d.clipDataCalls, text)
}

func (d *fakeDesktop) SetScreenLayout(w, h int, layout ScreenSet) SetDesktopSizeResult {
	d.setScreenLayoutCalls = append(d.setScreenLayoutCalls, layoutCall{w, h, layout})
	if d.setScreenLayoutFn != nil {
		return d.setScreenLayoutFn(w, h, layout)
	}
	return d.setScreenLayoutResult
}

func (d *fakeDesktop) QueryConnection(sock Socket, userName string) {
	d.queryConnectionCalls = append(d.queryConnectionCalls, queryCall{sock, userName})
}

func (d *fakeDesktop) FrameTick(msc uint64) { d.frameTicks = append(d.frameTicks, msc) }
func (d *fakeDesktop) Terminate()           { d.terminateCalls++ }

// fakePixelBuffer is a minimal PixelBuffer for tests: a flat byte plane.
type fakePixelBuffer struct {
	width, height int
	format        PixelFormat
	plane         []byte
	grabCalls     int
}

func newFakePixelBuffer(w, h int) *fakePixelBuffer {
	format := PixelFormatStandard
	return &fakePixelBuffer{
		width: w, height: h, format: format,
		plane: make([]byte, w*h*format.BytesPerPixel()),
	}
}

func (p *fakePixelBuffer) Width() int         { return p.width }
func (p *fakePixelBuffer) Height() int        { return p.height }
func (p *fakePixelBuffer) Format() PixelFormat { return p.format }
func (p *fakePixelBuffer) Rect() Rect         { return NewRect(0, 0, p.width, p.height) }

func (p *fakePixelBuffer) GetImage(rect Rect) ([]byte, int) {
	bpp := p.format.BytesPerPixel()
	stride := p.width * bpp
	out := make([]byte, rect.Width()*bpp*rect.Height())
	for y := 0; y < rect.Height(); y++ {
		srcOff := (rect.Top+y)*stride + rect.Left*bpp
		dstOff := y * rect.Width() * bpp
		copy(out[dstOff:dstOff+rect.Width()*bpp], p.plane[srcOff:srcOff+rect.Width()*bpp])
	}
	return out, rect.Width() * bpp
}

func (p *fakePixelBuffer) GrabRegion(region Region) error {
	p.grabCalls++
	return nil
}

// fixedClock lets tests control Coordinator's notion of "now" and
// advance it deterministically between assertions.
type fixedClock struct {
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
