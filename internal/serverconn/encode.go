package serverconn

import (
	"encoding/binary"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

// decodePixelFormat parses the 16-byte PIXEL_FORMAT structure a client
// sends in SetPixelFormat. The demo connection accepts whatever the
// client asks for but always encodes using the PixelBuffer's native
// format; tracking it is only for bookkeeping/log purposes.
func decodePixelFormat(b []byte) rfb.PixelFormat {
	return rfb.PixelFormat{
		BitsPerPixel: int(b[0]),
		Depth:        int(b[1]),
		BigEndian:    b[2] != 0,
		TrueColour:   b[3] != 0,
		RedMax:       int(binary.BigEndian.Uint16(b[4:6])),
		GreenMax:     int(binary.BigEndian.Uint16(b[6:8])),
		BlueMax:      int(binary.BigEndian.Uint16(b[8:10])),
		RedShift:     int(b[10]),
		GreenShift:   int(b[11]),
		BlueShift:    int(b[12]),
	}
}

func encodePixelFormat(f rfb.PixelFormat) []byte {
	buf := make([]byte, 16)
	buf[0] = byte(f.BitsPerPixel)
	buf[1] = byte(f.Depth)
	if f.BigEndian {
		buf[2] = 1
	}
	if f.TrueColour {
		buf[3] = 1
	}
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.RedMax))
	binary.BigEndian.PutUint16(buf[6:8], uint16(f.GreenMax))
	binary.BigEndian.PutUint16(buf[8:10], uint16(f.BlueMax))
	buf[10] = byte(f.RedShift)
	buf[11] = byte(f.GreenShift)
	buf[12] = byte(f.BlueShift)
	// buf[13:16] padding
	return buf
}

func (c *Conn) writeSecurityResult(ok bool, reason string) {
	var buf [4]byte
	if ok {
		binary.BigEndian.PutUint32(buf[:], secResultOK)
		c.outbox.Write(buf[:])
		return
	}
	binary.BigEndian.PutUint32(buf[:], secResultFailed)
	c.outbox.Write(buf[:])
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(reason)))
	c.outbox.Write(lenBuf[:])
	c.outbox.WriteString(reason)
}

func (c *Conn) writeServerInit() error {
	pb := c.coord.PixelBuffer()
	if pb == nil {
		return rfbProtocolError("no pixel buffer installed before ClientInit")
	}
	var dims [4]byte
	binary.BigEndian.PutUint16(dims[0:2], uint16(pb.Width()))
	binary.BigEndian.PutUint16(dims[2:4], uint16(pb.Height()))
	c.outbox.Write(dims[:])
	c.outbox.Write(encodePixelFormat(pb.Format()))

	name := c.coord.Name()
	var nameLen [4]byte
	binary.BigEndian.PutUint32(nameLen[:], uint32(len(name)))
	c.outbox.Write(nameLen[:])
	c.outbox.WriteString(name)

	c.pf = pb.Format()
	return c.flush()
}

func (c *Conn) writeServerCutText(text string) {
	c.outbox.WriteByte(msgServerCutText)
	c.outbox.Write(make([]byte, 3)) // padding
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(text)))
	c.outbox.Write(lenBuf[:])
	c.outbox.WriteString(text)
}

// sendExtendedDesktopSize queues a FramebufferUpdate carrying a single
// ExtendedDesktopSize pseudo-rectangle, per the classic (non-Tight)
// multi-monitor resize extension.
func (c *Conn) sendExtendedDesktopSize(reason, status, w, h int) {
	layout := c.coord.ScreenLayout()
	screens := layout.Screens()

	c.outbox.WriteByte(msgFramebufferUpdate)
	c.outbox.WriteByte(0) // padding
	var numRects [2]byte
	binary.BigEndian.PutUint16(numRects[:], 1)
	c.outbox.Write(numRects[:])

	var hdr [12]byte
	binary.BigEndian.PutUint16(hdr[0:2], uint16(reason))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(status))
	binary.BigEndian.PutUint16(hdr[4:6], uint16(w))
	binary.BigEndian.PutUint16(hdr[6:8], uint16(h))
	extDesktopSizeEncoding := int32(encodingExtendedDesktopSize)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(extDesktopSizeEncoding))
	c.outbox.Write(hdr[:])

	c.outbox.WriteByte(byte(len(screens)))
	c.outbox.Write(make([]byte, 3)) // padding

	for _, s := range screens {
		var sb [16]byte
		binary.BigEndian.PutUint32(sb[0:4], s.ID)
		binary.BigEndian.PutUint16(sb[4:6], uint16(s.X))
		binary.BigEndian.PutUint16(sb[6:8], uint16(s.Y))
		binary.BigEndian.PutUint16(sb[8:10], uint16(s.Width))
		binary.BigEndian.PutUint16(sb[10:12], uint16(s.Height))
		binary.BigEndian.PutUint32(sb[12:16], uint32(s.Flags))
		c.outbox.Write(sb[:])
	}
}

// encodeFramebufferUpdate writes a FramebufferUpdate covering the
// connection's accumulated copied and changed regions: each copied
// rectangle as a CopyRect rectangle with the shared copy delta (if
// negotiated, else as a Raw rectangle), the changed region as one Raw rectangle per
// dirty rect, with the rendered cursor composited over any rectangle it
// overlaps.
func (c *Conn) encodeFramebufferUpdate() error {
	pb := c.coord.PixelBuffer()
	if pb == nil {
		return nil
	}

	copiedRects := c.pendingCopied.Rects()
	changedRects := c.pendingChanged.Rects()

	rc := c.coord.GetRenderedCursor()

	useCopyRect := c.hasCopyRect && len(copiedRects) > 0
	numRects := len(changedRects) + len(copiedRects)

	c.outbox.WriteByte(msgFramebufferUpdate)
	c.outbox.WriteByte(0)
	var numRectsBuf [2]byte
	binary.BigEndian.PutUint16(numRectsBuf[:], uint16(numRects))
	c.outbox.Write(numRectsBuf[:])

	for _, rect := range copiedRects {
		if useCopyRect {
			c.writeCopyRectHeader(rect, c.pendingCopyDelta)
		} else {
			c.writeRawRect(pb, rect, rc)
		}
	}
	for _, rect := range changedRects {
		c.writeRawRect(pb, rect, rc)
	}
	return nil
}

func (c *Conn) writeCopyRectHeader(rect rfb.Rect, delta rfb.Point) {
	c.writeRectHeader(rect, encodingCopyRect)
	src := rect.Translate(rfb.Point{}.Subtract(delta))
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(src.Left))
	binary.BigEndian.PutUint16(buf[2:4], uint16(src.Top))
	c.outbox.Write(buf[:])
}

func (c *Conn) writeRawRect(pb rfb.PixelBuffer, rect rfb.Rect, rc *rfb.RenderedCursor) {
	c.writeRectHeader(rect, encodingRaw)

	pixels, stride := pb.GetImage(rect)
	bpp := pb.Format().BytesPerPixel()
	rowBytes := rect.Width() * bpp

	overlap := rc.Rect().Intersect(rect)
	for y := 0; y < rect.Height(); y++ {
		rowOff := y * stride
		row := append([]byte(nil), pixels[rowOff:rowOff+rowBytes]...)

		if !overlap.IsEmpty() {
			absY := rect.Top + y
			if absY >= overlap.Top && absY < overlap.Bottom {
				overlayCursorRow(row, rect.Left, absY, overlap, rc, bpp)
			}
		}
		c.outbox.Write(row)
	}
}

func (c *Conn) writeRectHeader(rect rfb.Rect, encoding int) {
	var buf [12]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(rect.Left))
	binary.BigEndian.PutUint16(buf[2:4], uint16(rect.Top))
	binary.BigEndian.PutUint16(buf[4:6], uint16(rect.Width()))
	binary.BigEndian.PutUint16(buf[6:8], uint16(rect.Height()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(encoding)))
	c.outbox.Write(buf[:])
}

// overlayCursorRow replaces the portion of row covering the overlap
// rectangle at framebuffer row absY with the rendered cursor's own
// pixels. row is relative to rectLeft; the cursor's Data() is always
// 4 bytes per pixel, matching RenderedCursor.Update's assumption that
// it shares the PixelBuffer's bpp.
func overlayCursorRow(row []byte, rectLeft, absY int, overlap rfb.Rect, rc *rfb.RenderedCursor, bpp int) {
	cursorRect := rc.Rect()
	cursorData := rc.Data()
	cursorStride := cursorRect.Width() * bpp

	for absX := overlap.Left; absX < overlap.Right; absX++ {
		rowOff := (absX - rectLeft) * bpp
		if rowOff < 0 || rowOff+bpp > len(row) {
			continue
		}
		cy := absY - cursorRect.Top
		cx := absX - cursorRect.Left
		cursorOff := cy*cursorStride + cx*bpp
		if cursorOff < 0 || cursorOff+bpp > len(cursorData) {
			continue
		}
		copy(row[rowOff:rowOff+bpp], cursorData[cursorOff:cursorOff+bpp])
	}
}

type rfbProtocolError string

func (e rfbProtocolError) Error() string { return "serverconn: " + string(e) }
