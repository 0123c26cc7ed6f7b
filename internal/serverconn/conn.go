package serverconn

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

type connState int

const (
	stateVersion connState = iota
	stateSecurityType
	stateAwaitingApproval
	stateClientInit
	stateNormal
	stateClosed
)

// Conn is a server-side RFB 3.8 protocol driver satisfying rfb.Connection.
// The host process feeds it raw bytes read off the wire via Feed and is
// responsible for calling Coordinator.ProcessSocketReadEvent/WriteEvent
// at the right times; Conn itself performs no socket I/O of its own
// beyond the blocking writes issued from flush.
type Conn struct {
	ID uuid.UUID

	sock   rfb.Socket
	coord  *rfb.Coordinator
	access rfb.AccessRights
	logger rfb.Logger

	state connState
	pf    rfb.PixelFormat

	pending bytes.Buffer
	outbox  bytes.Buffer

	closing     bool
	closeReason string

	pendingChanged   rfb.Region
	pendingCopied    rfb.Region
	pendingCopyDelta rfb.Point
	updateRequested  bool

	lastCursorRect rfb.Rect

	hasCopyRect bool
}

// New builds a Conn bound to coord over sock. Init must be called once
// before the host starts feeding data.
func New(coord *rfb.Coordinator, sock rfb.Socket, access rfb.AccessRights, logger rfb.Logger) *Conn {
	if logger == nil {
		logger = rfb.NopLogger{}
	}
	return &Conn{
		ID:     uuid.New(),
		sock:   sock,
		coord:  coord,
		access: access,
		logger: logger,
	}
}

// Feed appends bytes read off the wire to the connection's pending
// buffer. The host calls this before invoking
// Coordinator.ProcessSocketReadEvent so that ProcessMessages has bytes
// to parse; it performs no I/O itself.
func (c *Conn) Feed(data []byte) {
	c.pending.Write(data)
}

// --- rfb.Connection ---

func (c *Conn) Socket() rfb.Socket { return c.sock }

func (c *Conn) Authenticated() bool { return c.state == stateNormal }

func (c *Conn) AccessCheck(want rfb.AccessRights) bool { return c.access.Has(want) }

func (c *Conn) Init() error {
	c.state = stateVersion
	c.outbox.WriteString(protocolVersion)
	return c.flush()
}

func (c *Conn) ProcessMessages() error {
	for {
		var ok bool
		var err error
		switch c.state {
		case stateVersion:
			ok, err = c.handleVersion()
		case stateSecurityType:
			ok, err = c.handleSecurityType()
		case stateAwaitingApproval:
			return nil
		case stateClientInit:
			ok, err = c.handleClientInit()
		case stateNormal:
			ok, err = c.decodeMessage()
		default:
			return nil
		}
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (c *Conn) FlushSocket() error { return c.flush() }

func (c *Conn) Close(reason string) {
	if c.closing {
		return
	}
	c.closing = true
	c.closeReason = reason
	c.state = stateClosed
	if err := c.sock.Shutdown(); err != nil {
		c.logger.Debug("shutdown failed", map[string]any{"conn": c.ID, "err": err.Error()})
	}
}

func (c *Conn) PixelBufferChange() {
	if c.state != stateNormal {
		return
	}
	pb := c.coord.PixelBuffer()
	if pb == nil {
		return
	}
	c.sendExtendedDesktopSize(edsReasonServer, edsStatusOK, pb.Width(), pb.Height())
	if err := c.flush(); err != nil {
		c.Close("communication error")
	}
}

func (c *Conn) ScreenLayoutChangeOrClose(reason rfb.LayoutChangeReason) error {
	pb := c.coord.PixelBuffer()
	if pb == nil {
		return nil
	}
	edsReason := edsReasonServer
	if reason == rfb.ReasonOtherClient {
		edsReason = edsReasonOtherClient
	}
	c.sendExtendedDesktopSize(edsReason, edsStatusOK, pb.Width(), pb.Height())
	return c.flush()
}

// RenderedCursorChange invalidates both the cursor's previous and
// current screen position so the next update redraws both: the old spot
// needs the plain framebuffer back, the new spot needs the cursor baked
// in.
func (c *Conn) RenderedCursorChange() {
	rc := c.coord.GetRenderedCursor()
	if !c.lastCursorRect.IsEmpty() {
		c.pendingChanged.AddRect(c.lastCursorRect)
	}
	if !rc.Rect().IsEmpty() {
		c.pendingChanged.AddRect(rc.Rect())
	}
	c.lastCursorRect = rc.Rect()
}

// SetCursorOrClose is a no-op: this client never negotiates the
// RichCursor pseudo-encoding, so the cursor is always baked into
// framebuffer pixels via RenderedCursorChange instead of sent as shape
// data.
func (c *Conn) SetCursorOrClose() error { return nil }

// CursorPositionChange requires the CursorPositionUpdates
// pseudo-encoding, which this minimal client does not negotiate.
func (c *Conn) CursorPositionChange() {}

// SetLEDStateOrClose requires the LED-state pseudo-encoding, which this
// minimal client does not negotiate.
func (c *Conn) SetLEDStateOrClose(rfb.LEDState) error { return nil }

// RequestClipboardOrClose has no corresponding message in the legacy
// ClientCutText protocol: a server cannot ask a client to send its
// clipboard, only receive one spontaneously.
func (c *Conn) RequestClipboardOrClose() error { return nil }

// AnnounceClipboardOrClose has no corresponding message either; ownership
// is only surfaced to this client when actual data arrives via
// SendClipboardDataOrClose.
func (c *Conn) AnnounceClipboardOrClose(bool) error { return nil }

func (c *Conn) SendClipboardDataOrClose(text string) error {
	c.writeServerCutText(text)
	return c.flush()
}

func (c *Conn) BellOrClose() error {
	c.outbox.WriteByte(msgBell)
	return c.flush()
}

// SetDesktopNameOrClose is a no-op: the desktop name is only ever sent
// once, in ServerInit; there is no rename message in this subset.
func (c *Conn) SetDesktopNameOrClose(string) error { return nil }

func (c *Conn) ApproveConnectionOrClose(accept bool, reason string) error {
	if accept {
		c.writeSecurityResult(true, "")
		if err := c.flush(); err != nil {
			return err
		}
		c.state = stateClientInit
		return nil
	}
	c.writeSecurityResult(false, reason)
	_ = c.flush()
	c.Close(reason)
	return nil
}

func (c *Conn) NeedRenderedCursor() bool { return true }

// ComparerState reports false: this minimal client always wants the
// freshest pixels rather than opting into the pixel-comparison tradeoff.
func (c *Conn) ComparerState() bool { return false }

func (c *Conn) AddCopied(dest rfb.Region, delta rfb.Point) {
	if dest.IsEmpty() {
		return
	}
	c.pendingCopied = c.pendingCopied.Union(dest)
	c.pendingCopyDelta = delta
}

// AddChanged adds region's rectangles to the pending changed region,
// skipping any rectangle already enclosed by a pending one, so the same
// pixels are not encoded twice in one update.
func (c *Conn) AddChanged(region rfb.Region) {
	for _, rect := range region.Rects() {
		covered := false
		for _, p := range c.pendingChanged.Rects() {
			if rect.EnclosedBy(p) {
				covered = true
				break
			}
		}
		if !covered {
			c.pendingChanged.AddRect(rect)
		}
	}
}

func (c *Conn) WriteFramebufferUpdateOrClose() error {
	if c.state != stateNormal || !c.updateRequested {
		return nil
	}
	if c.pendingChanged.IsEmpty() && c.pendingCopied.IsEmpty() {
		return nil
	}
	if err := c.encodeFramebufferUpdate(); err != nil {
		return err
	}
	c.pendingChanged = rfb.Region{}
	c.pendingCopied = rfb.Region{}
	c.updateRequested = false
	return c.flush()
}

// --- handshake steps ---

func (c *Conn) handleVersion() (bool, error) {
	if c.pending.Len() < 12 {
		return false, nil
	}
	buf := make([]byte, 12)
	if _, err := io.ReadFull(&c.pending, buf); err != nil {
		return false, err
	}
	if !bytes.HasPrefix(buf, []byte("RFB 003.")) {
		return false, fmt.Errorf("serverconn: unsupported client protocol version %q", buf)
	}
	c.outbox.WriteByte(1)
	c.outbox.WriteByte(secTypeNone)
	if err := c.flush(); err != nil {
		return false, err
	}
	c.state = stateSecurityType
	return true, nil
}

func (c *Conn) handleSecurityType() (bool, error) {
	if c.pending.Len() < 1 {
		return false, nil
	}
	b, _ := c.pending.ReadByte()
	if b != secTypeNone {
		c.writeSecurityResult(false, "unsupported security type")
		_ = c.flush()
		c.Close("unsupported security type")
		return true, nil
	}
	c.state = stateAwaitingApproval
	c.coord.QueryConnection(c, "")
	return true, nil
}

func (c *Conn) handleClientInit() (bool, error) {
	if c.pending.Len() < 1 {
		return false, nil
	}
	b, _ := c.pending.ReadByte()
	shared := b != 0
	c.coord.ClientReady(c, shared)
	if c.closing {
		return true, nil
	}
	if err := c.writeServerInit(); err != nil {
		return false, err
	}
	c.state = stateNormal
	return true, nil
}

// --- normal message decoding ---

func (c *Conn) decodeMessage() (bool, error) {
	data := c.pending.Bytes()
	if len(data) < 1 {
		return false, nil
	}

	switch data[0] {
	case msgSetPixelFormat:
		if len(data) < 20 {
			return false, nil
		}
		c.pf = decodePixelFormat(data[4:20])
		c.pending.Next(20)
		return true, nil

	case msgSetEncodings:
		if len(data) < 4 {
			return false, nil
		}
		count := int(binary.BigEndian.Uint16(data[2:4]))
		total := 4 + count*4
		if len(data) < total {
			return false, nil
		}
		c.hasCopyRect = false
		for i := 0; i < count; i++ {
			off := 4 + i*4
			enc := int32(binary.BigEndian.Uint32(data[off : off+4]))
			if enc == encodingCopyRect {
				c.hasCopyRect = true
			}
		}
		c.pending.Next(total)
		return true, nil

	case msgFramebufferUpdateRequest:
		if len(data) < 10 {
			return false, nil
		}
		c.updateRequested = true
		c.pending.Next(10)
		return true, nil

	case msgKeyEvent:
		if len(data) < 8 {
			return false, nil
		}
		down := data[1] != 0
		keysym := binary.BigEndian.Uint32(data[4:8])
		c.pending.Next(8)
		c.coord.KeyEvent(keysym, 0, down)
		return true, nil

	case msgPointerEvent:
		if len(data) < 6 {
			return false, nil
		}
		mask := data[1]
		x := int(binary.BigEndian.Uint16(data[2:4]))
		y := int(binary.BigEndian.Uint16(data[4:6]))
		c.pending.Next(6)
		c.coord.PointerEvent(c, rfb.Point{X: x, Y: y}, mask)
		return true, nil

	case msgClientCutText:
		if len(data) < 8 {
			return false, nil
		}
		length := int(binary.BigEndian.Uint32(data[4:8]))
		total := 8 + length
		if len(data) < total {
			return false, nil
		}
		text := string(data[8:total])
		c.pending.Next(total)
		c.coord.HandleClipboardAnnounce(c, true)
		c.coord.HandleClipboardData(c, text)
		return true, nil

	case msgSetDesktopSize:
		if len(data) < 8 {
			return false, nil
		}
		w := int(binary.BigEndian.Uint16(data[2:4]))
		h := int(binary.BigEndian.Uint16(data[4:6]))
		numScreens := int(data[6])
		total := 8 + numScreens*16
		if len(data) < total {
			return false, nil
		}
		var layout rfb.ScreenSet
		for i := 0; i < numScreens; i++ {
			off := 8 + i*16
			layout.AddScreen(rfb.Screen{
				ID:     binary.BigEndian.Uint32(data[off : off+4]),
				X:      int(binary.BigEndian.Uint16(data[off+4 : off+6])),
				Y:      int(binary.BigEndian.Uint16(data[off+6 : off+8])),
				Width:  int(binary.BigEndian.Uint16(data[off+8 : off+10])),
				Height: int(binary.BigEndian.Uint16(data[off+10 : off+12])),
				Flags:  rfb.ScreenFlags(binary.BigEndian.Uint32(data[off+12 : off+16])),
			})
		}
		c.pending.Next(total)
		result, err := c.coord.SetDesktopSize(c, w, h, layout)
		if err != nil {
			c.logger.Error("setDesktopSize failed", err, map[string]any{"conn": c.ID})
		}
		c.sendOwnDesktopSizeReply(result)
		return true, c.flush()

	default:
		return false, fmt.Errorf("serverconn: unknown client message type %d", data[0])
	}
}

// flush writes everything queued in outbox to the socket.
func (c *Conn) flush() error {
	if c.outbox.Len() == 0 {
		return nil
	}
	_, err := c.sock.Write(c.outbox.Bytes())
	c.outbox.Reset()
	if err != nil {
		return fmt.Errorf("serverconn: write failed: %w", err)
	}
	return nil
}

func (c *Conn) sendOwnDesktopSizeReply(result rfb.SetDesktopSizeResult) {
	status := edsStatusOK
	switch result {
	case rfb.ResultProhibited:
		status = edsStatusResizeProhibited
	case rfb.ResultInvalid:
		status = edsStatusInvalidLayout
	case rfb.ResultIOError, rfb.ResultOutOfResources:
		status = edsStatusCannotSatisfy
	}
	pb := c.coord.PixelBuffer()
	w, h := 0, 0
	if pb != nil {
		w, h = pb.Width(), pb.Height()
	}
	c.sendExtendedDesktopSize(edsReasonClientOwn, status, w, h)
}
