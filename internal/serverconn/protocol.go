// Package serverconn implements a minimal but wire-accurate RFB 3.8
// server-side Connection, satisfying rfb.Connection so that rfb.Coordinator
// can drive a real TCP client end to end. It deliberately supports only
// Raw and CopyRect encodings, security type None, and the classic
// ExtendedDesktopSize pseudo-encoding for resize notifications; VeNCrypt,
// TLS and compressed encodings (Tight, ZRLE) are not implemented.
package serverconn

// protocolVersion is the banner this server advertises and accepts.
const protocolVersion = "RFB 003.008\n"

// Security types (RFB §7.2.1).
const (
	secTypeInvalid = 0
	secTypeNone    = 1
)

// SecurityResult values (RFB §7.2.2).
const (
	secResultOK     = 0
	secResultFailed = 1
)

// Client-to-server message types (RFB §7.5).
const (
	msgSetPixelFormat           = 0
	msgSetEncodings             = 2
	msgFramebufferUpdateRequest = 3
	msgKeyEvent                 = 4
	msgPointerEvent             = 5
	msgClientCutText            = 6
	msgSetDesktopSize           = 251
)

// Server-to-client message types (RFB §7.6).
const (
	msgFramebufferUpdate = 0
	msgBell              = 2
	msgServerCutText     = 3
)

// Encoding types (RFB §7.7) this server is willing to send.
const (
	encodingRaw                = 0
	encodingCopyRect           = 1
	encodingDesktopSize        = -223
	encodingExtendedDesktopSize = -308
)

// ExtendedDesktopSize reason codes (the rectangle's x-position field).
const (
	edsReasonServer       = 0
	edsReasonClientOwn    = 1
	edsReasonOtherClient  = 2
)

// ExtendedDesktopSize status codes (the rectangle's y-position field).
const (
	edsStatusOK               = 0
	edsStatusResizeProhibited = 1
	edsStatusCannotSatisfy    = 2
	edsStatusInvalidLayout    = 3
)
