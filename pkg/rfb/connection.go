package rfb

// AccessRights is a bitset of the operations a Connection is permitted
// to perform, assigned by the embedder at AddSocket time.
type AccessRights uint32

const (
	AccessView           AccessRights = 1 << 0
	AccessKeyEvents      AccessRights = 1 << 1
	AccessPointerEvents  AccessRights = 1 << 2
	AccessCutText        AccessRights = 1 << 3
	AccessSetDesktopSize AccessRights = 1 << 4
	// AccessNoQuery lets a connection skip the query-connect UI prompt.
	AccessNoQuery AccessRights = 1 << 5
	// AccessNonShared lets a connection, when it requests a non-shared
	// session, evict every other client instead of being refused itself.
	AccessNonShared AccessRights = 1 << 6

	AccessDefault AccessRights = AccessView | AccessKeyEvents | AccessPointerEvents |
		AccessCutText | AccessSetDesktopSize
	AccessFull AccessRights = AccessDefault | AccessNoQuery | AccessNonShared
)

// Has reports whether every bit in want is set in a.
func (a AccessRights) Has(want AccessRights) bool {
	return a&want == want
}

// LEDState is a bitset of keyboard LED indicators. LEDUnknown is a
// distinguished sentinel the coordinator starts with so that the first
// real SetLEDState call always broadcasts (it never compares equal to a
// real state, per spec open question).
type LEDState uint32

const (
	LEDScrollLock LEDState = 1 << 0
	LEDNumLock    LEDState = 1 << 1
	LEDCapsLock   LEDState = 1 << 2
	LEDUnknown    LEDState = 1 << 31
)

// LayoutChangeReason tells a Connection why it is being notified of a
// screen layout change, so it can in turn tell the client.
type LayoutChangeReason int

const (
	ReasonServer LayoutChangeReason = iota
	ReasonOtherClient
)

// SetDesktopSizeResult is the outcome of a client-driven (or backend)
// resize request.
type SetDesktopSizeResult int

const (
	ResultSuccess SetDesktopSizeResult = iota
	ResultInvalid
	ResultProhibited
	ResultIOError
	ResultOutOfResources
)

func (r SetDesktopSizeResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultInvalid:
		return "invalid"
	case ResultProhibited:
		return "prohibited"
	case ResultIOError:
		return "ioerror"
	case ResultOutOfResources:
		return "outofresources"
	default:
		return "unknown"
	}
}

// Socket is the coordinator's view of a byte-stream transport. It is
// owned by the embedder, not the coordinator: the coordinator only ever
// shuts a socket down (two-phase teardown, see Connection.Close), never
// destroys it outright.
type Socket interface {
	// PeerAddress returns the bare address (e.g. "1.2.3.4"), used for
	// blacklist lookups.
	PeerAddress() string
	// PeerEndpoint returns a human-readable "address:port"-style string
	// for logs.
	PeerEndpoint() string
	// Write performs a best-effort, non-blocking-safe write. The
	// coordinator itself uses it only for the blacklist reject banner;
	// Connection implementations may write their own output through it.
	Write(p []byte) (int, error)
	// Shutdown begins an orderly shutdown of the underlying transport.
	// It must not block and must not destroy the Socket: destruction is
	// the embedder's responsibility once it observes shutdown complete.
	Shutdown() error
	// RequiresQuery reports whether the transport itself requires an
	// explicit connection approval (e.g. a listening socket configured
	// for manual accept), independent of server policy.
	RequiresQuery() bool
}

// Connection is the per-client protocol driver contract. The wire-level
// RFB state machine behind it is an excluded collaborator (§1); the
// coordinator only ever calls through this interface.
type Connection interface {
	Socket() Socket
	Authenticated() bool
	AccessCheck(want AccessRights) bool

	Init() error
	ProcessMessages() error
	FlushSocket() error
	// Close shuts the connection's socket down and marks it closing; it
	// does not destroy the Connection. Actual destruction happens only
	// when the embedder calls Coordinator.RemoveSocket for this socket.
	Close(reason string)

	PixelBufferChange()
	ScreenLayoutChangeOrClose(reason LayoutChangeReason) error
	RenderedCursorChange()
	SetCursorOrClose() error
	CursorPositionChange()
	SetLEDStateOrClose(state LEDState) error

	RequestClipboardOrClose() error
	AnnounceClipboardOrClose(available bool) error
	SendClipboardDataOrClose(text string) error

	BellOrClose() error
	SetDesktopNameOrClose(name string) error
	ApproveConnectionOrClose(accept bool, reason string) error

	NeedRenderedCursor() bool
	ComparerState() bool

	AddCopied(dest Region, delta Point)
	AddChanged(region Region)
	WriteFramebufferUpdateOrClose() error
}
