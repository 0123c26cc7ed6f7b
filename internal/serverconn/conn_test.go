package serverconn

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

// testSocket is a bytes.Buffer-backed rfb.Socket: it never touches the
// network, so handshake steps can be driven and asserted deterministically
// without a second goroutine on the other end of a pipe.
type testSocket struct {
	addr     string
	out      bytes.Buffer
	shutdown bool
}

func (s *testSocket) PeerAddress() string      { return s.addr }
func (s *testSocket) PeerEndpoint() string      { return s.addr + ":12345" }
func (s *testSocket) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *testSocket) Shutdown() error             { s.shutdown = true; return nil }
func (s *testSocket) RequiresQuery() bool         { return false }

// testPixelBuffer is a minimal rfb.PixelBuffer over a flat plane.
type testPixelBuffer struct {
	width, height int
	plane         []byte
}

func newTestPixelBuffer(w, h int) *testPixelBuffer {
	pb := &testPixelBuffer{width: w, height: h, plane: make([]byte, w*h*4)}
	for i := range pb.plane {
		pb.plane[i] = byte(i)
	}
	return pb
}

func (p *testPixelBuffer) Width() int              { return p.width }
func (p *testPixelBuffer) Height() int             { return p.height }
func (p *testPixelBuffer) Format() rfb.PixelFormat { return rfb.PixelFormatStandard }
func (p *testPixelBuffer) Rect() rfb.Rect          { return rfb.NewRect(0, 0, p.width, p.height) }

func (p *testPixelBuffer) GetImage(rect rfb.Rect) ([]byte, int) {
	stride := p.width * 4
	out := make([]byte, rect.Width()*4*rect.Height())
	for y := 0; y < rect.Height(); y++ {
		srcOff := (rect.Top+y)*stride + rect.Left*4
		dstOff := y * rect.Width() * 4
		copy(out[dstOff:dstOff+rect.Width()*4], p.plane[srcOff:srcOff+rect.Width()*4])
	}
	return out, rect.Width() * 4
}

func (p *testPixelBuffer) GrabRegion(rfb.Region) error { return nil }

// testDesktop is a minimal rfb.Desktop that installs a testPixelBuffer on Start.
type testDesktop struct {
	callbacks rfb.DesktopCallbacks
	pb        *testPixelBuffer
}

func newTestDesktop(w, h int) *testDesktop {
	return &testDesktop{pb: newTestPixelBuffer(w, h)}
}

func (d *testDesktop) Init(cb rfb.DesktopCallbacks) { d.callbacks = cb }
func (d *testDesktop) Start() error                 { return d.callbacks.SetPixelBufferInferLayout(d.pb) }
func (d *testDesktop) Stop()                        {}
func (d *testDesktop) PointerEvent(rfb.Point, uint8) {}
func (d *testDesktop) KeyEvent(uint32, uint32, bool) {}
func (d *testDesktop) HandleClipboardRequest()       {}
func (d *testDesktop) HandleClipboardAnnounce(bool)  {}
func (d *testDesktop) HandleClipboardData(string)    {}
func (d *testDesktop) SetScreenLayout(w, h int, layout rfb.ScreenSet) rfb.SetDesktopSizeResult {
	return rfb.ResultSuccess
}
func (d *testDesktop) QueryConnection(rfb.Socket, string) {}
func (d *testDesktop) FrameTick(uint64)                   {}
func (d *testDesktop) Terminate()                         {}

func newTestCoordinator(t *testing.T, w, h int) (*rfb.Coordinator, *testDesktop) {
	t.Helper()
	desktop := newTestDesktop(w, h)
	factory := func(coord *rfb.Coordinator, sock rfb.Socket, outgoing bool, access rfb.AccessRights) (rfb.Connection, error) {
		return New(coord, sock, access, rfb.NopLogger{}), nil
	}
	coord := rfb.NewCoordinator("test desktop", desktop, factory, rfb.DefaultConfig(), rfb.NopLogger{})
	return coord, desktop
}

func TestConn_HandshakeThroughServerInit(t *testing.T) {
	coord, desktop := newTestCoordinator(t, 4, 4)
	sock := &testSocket{addr: "10.0.0.1"}

	coord.AddSocket(sock, false, rfb.AccessFull)
	require.Equal(t, protocolVersion, sock.out.String())
	sock.out.Reset()

	conn := coord.Clients()[0].(*Conn)

	conn.Feed([]byte("RFB 003.008\n"))
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	require.Equal(t, []byte{1, secTypeNone}, sock.out.Bytes())
	sock.out.Reset()

	conn.Feed([]byte{secTypeNone})
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	require.Equal(t, []byte{0, 0, 0, 0}, sock.out.Bytes())
	sock.out.Reset()

	conn.Feed([]byte{1}) // shared
	require.NoError(t, coord.ProcessSocketReadEvent(sock))

	out := sock.out.Bytes()
	require.GreaterOrEqual(t, len(out), 4+16+4)
	require.Equal(t, uint16(desktop.pb.width), binary.BigEndian.Uint16(out[0:2]))
	require.Equal(t, uint16(desktop.pb.height), binary.BigEndian.Uint16(out[2:4]))
	nameLen := binary.BigEndian.Uint32(out[20:24])
	require.Equal(t, "test desktop", string(out[24:24+nameLen]))
	require.True(t, conn.Authenticated())
}

func TestConn_FramebufferUpdateEncodesRawRect(t *testing.T) {
	coord, _ := newTestCoordinator(t, 4, 4)
	sock := &testSocket{addr: "10.0.0.1"}
	coord.AddSocket(sock, false, rfb.AccessFull)
	conn := coord.Clients()[0].(*Conn)

	conn.Feed([]byte("RFB 003.008\n"))
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	conn.Feed([]byte{secTypeNone})
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	conn.Feed([]byte{1})
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	sock.out.Reset()

	conn.updateRequested = true
	rect := rfb.NewRect(0, 0, 4, 4)
	conn.AddChanged(rfb.NewRegion(rect))
	require.NoError(t, conn.WriteFramebufferUpdateOrClose())

	out := sock.out.Bytes()
	require.Equal(t, byte(msgFramebufferUpdate), out[0])
	require.Equal(t, uint16(1), binary.BigEndian.Uint16(out[2:4]))

	hdr := out[4:16]
	require.Equal(t, uint16(0), binary.BigEndian.Uint16(hdr[0:2]))
	require.Equal(t, uint16(4), binary.BigEndian.Uint16(hdr[4:6]))
	require.Equal(t, uint16(4), binary.BigEndian.Uint16(hdr[6:8]))
	require.Equal(t, int32(encodingRaw), int32(binary.BigEndian.Uint32(hdr[8:12])))

	pixels := out[16:]
	require.Len(t, pixels, 4*4*4)
}

func TestConn_WriteFramebufferUpdateNoopWithoutRequest(t *testing.T) {
	coord, _ := newTestCoordinator(t, 4, 4)
	sock := &testSocket{addr: "10.0.0.1"}
	coord.AddSocket(sock, false, rfb.AccessFull)
	conn := coord.Clients()[0].(*Conn)

	conn.Feed([]byte("RFB 003.008\n"))
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	conn.Feed([]byte{secTypeNone})
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	conn.Feed([]byte{1})
	require.NoError(t, coord.ProcessSocketReadEvent(sock))
	sock.out.Reset()

	conn.AddChanged(rfb.NewRegion(rfb.NewRect(0, 0, 4, 4)))
	require.NoError(t, conn.WriteFramebufferUpdateOrClose())
	require.Zero(t, sock.out.Len())
}

func TestPixelFormat_EncodeDecodeRoundTrip(t *testing.T) {
	encoded := encodePixelFormat(rfb.PixelFormatStandard)
	require.Len(t, encoded, 16)
	decoded := decodePixelFormat(encoded)
	require.Equal(t, rfb.PixelFormatStandard.BitsPerPixel, decoded.BitsPerPixel)
	require.Equal(t, rfb.PixelFormatStandard.RedMax, decoded.RedMax)
	require.Equal(t, rfb.PixelFormatStandard.TrueColour, decoded.TrueColour)
}
