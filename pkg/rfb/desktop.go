package rfb

// Desktop is the pixel-capture / input-injection backend contract (§4.1).
// It is the excluded collaborator that actually grabs screen pixels,
// synthesizes input, and owns authentication/authorization policy
// decisions surfaced through QueryConnection.
type Desktop interface {
	// Init wires the backend to the coordinator that owns it. Called
	// once, before Start is ever called.
	Init(server DesktopCallbacks)

	// Start begins capture. Must result in a call back to
	// SetPixelBuffer before returning; if it doesn't, the coordinator
	// treats that as a configuration error.
	Start() error
	// Stop ceases capture.
	Stop()

	PointerEvent(pos Point, buttonMask uint8)
	KeyEvent(keysym, keycode uint32, down bool)

	HandleClipboardRequest()
	HandleClipboardAnnounce(available bool)
	HandleClipboardData(text string)

	// SetScreenLayout asks the backend to effect a resize. The backend
	// may call back SetScreenLayout on the coordinator synchronously
	// before returning.
	SetScreenLayout(w, h int, layout ScreenSet) SetDesktopSizeResult

	// QueryConnection is an out-of-band approval hook: the backend must
	// eventually call ApproveConnection on the coordinator for sock.
	QueryConnection(sock Socket, userName string)

	FrameTick(msc uint64)
	Terminate()
}

// DesktopCallbacks is the subset of Coordinator methods a Desktop
// backend is allowed to call back into. Splitting this out from the
// full Coordinator type keeps the backend from reaching into methods
// that are only meant for the embedder or for Connections.
type DesktopCallbacks interface {
	SetPixelBuffer(pb PixelBuffer, layout ScreenSet) error
	SetPixelBufferInferLayout(pb PixelBuffer) error
	SetScreenLayout(layout ScreenSet) error

	SetCursor(width, height int, hotspot Point, data []byte)
	SetCursorPos(pos Point, warped bool)
	SetLEDState(state LEDState)

	AddChanged(region Region)
	AddCopied(dest Region, delta Point)

	Bell()
	SetName(name string)

	AnnounceClipboard(available bool)
	SendClipboardData(text string) error
	RequestClipboard()

	BlockUpdates()
	UnblockUpdates()

	QueueMsc(target uint64)
	Msc() uint64

	ApproveConnection(sock Socket, accept bool, reason string)
}
