// Package rfb implements the server-side session coordinator of an RFB
// service: a single-threaded multiplexor that accepts client
// connections over pre-existing byte-stream sockets, negotiates the RFB
// session, and drives periodic framebuffer update delivery to every
// connected client while reconciling shared per-session state (pointer
// ownership, clipboard ownership, cursor, LED state, screen layout,
// idle/connection timers).
//
// The wire-level RFB protocol state machine and the pixel-capture /
// input-injection backend are treated as external collaborators behind
// the Connection and Desktop interfaces; this package only orchestrates
// them.
package rfb

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// ConnectionFactory constructs a Connection for a newly accepted
// Socket. It is a dependency-injected factory: the coordinator never
// knows how a Connection talks the wire protocol, only how to ask for one.
type ConnectionFactory func(coord *Coordinator, sock Socket, outgoing bool, accessRights AccessRights) (Connection, error)

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithClock overrides the coordinator's notion of "now", for tests that
// need to control timer expiry deterministically.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithBlacklistThreshold overrides the default failed-auth threshold
// before a peer is blackmarked.
func WithBlacklistThreshold(n int) Option {
	return func(c *Coordinator) { c.Blacklist = NewBlacklist(n) }
}

// Coordinator is the session object described by the data model: it
// owns the client list, the closing-sockets list, the borrowed
// PixelBuffer, the screen layout, the cursor, LED state, and the four
// timers, and dispatches socket events, timer events and Desktop
// callbacks.
type Coordinator struct {
	name        string
	desktop     Desktop
	connFactory ConnectionFactory
	config      Config
	logger      Logger
	now         func() time.Time

	desktopStarted bool
	blockCounter   int

	pb           PixelBuffer
	comparer     *ComparingTracker
	screenLayout ScreenSet

	clients        []Connection
	closingSockets []Socket

	pointerClient      Connection
	pointerClientTime  time.Time
	clipboardClient    Connection
	clipboardRequestors []Connection

	cursor                *Cursor
	cursorPos             Point
	renderedCursor        RenderedCursor
	renderedCursorInvalid bool

	ledState LEDState

	msc, queuedMsc uint64

	timers TimerSet

	// Blacklist tracks failed-auth counts per peer address. Exported so
	// embedders can record failures as they observe them (authentication
	// policy itself is delegated to the Desktop backend, per §1).
	Blacklist *Blacklist
}

// NewCoordinator builds a Coordinator for the named session, wired to
// desktop and using connFactory to build a Connection for each accepted
// Socket.
func NewCoordinator(name string, desktop Desktop, connFactory ConnectionFactory, config Config, logger Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = NopLogger{}
	}

	c := &Coordinator{
		name:        name,
		desktop:     desktop,
		connFactory: connFactory,
		config:      config,
		logger:      logger,
		Blacklist:   NewBlacklist(5),
		cursor:      NewCursor(0, 0, Point{}, nil),
		ledState:    LEDUnknown,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	logger.Debug("creating single-threaded server", map[string]any{"name": name})
	desktop.Init(c)

	now := c.now()
	if config.MaxIdleTime > 0 {
		c.timers.Idle.Start(now, time.Duration(config.MaxIdleTime)*time.Second)
	}
	if config.MaxDisconnectionTime > 0 {
		c.timers.Disconnect.Start(now, time.Duration(config.MaxDisconnectionTime)*time.Second)
	}

	return c
}

// Shutdown closes every client, stops the desktop and the frame clock.
// Order matters: close clients first (with logging), then stop the frame
// clock, then delete every client, then stop the desktop only once no
// client can reference it anymore.
func (c *Coordinator) Shutdown() {
	c.CloseClients("Server shutdown", nil)
	c.stopFrameClock()

	for _, conn := range append([]Connection(nil), c.clients...) {
		c.RemoveSocket(conn.Socket())
	}

	c.StopDesktop()

	if c.comparer != nil {
		c.logComparerStats()
	}
}

// --- accessors (read-only views for embedders, tests, and the admin TUI) ---

func (c *Coordinator) Name() string                { return c.name }
func (c *Coordinator) DesktopStarted() bool         { return c.desktopStarted }
func (c *Coordinator) BlockCounter() int            { return c.blockCounter }
func (c *Coordinator) PixelBuffer() PixelBuffer     { return c.pb }
func (c *Coordinator) ScreenLayout() ScreenSet       { return c.screenLayout }
func (c *Coordinator) Clients() []Connection         { return append([]Connection(nil), c.clients...) }
func (c *Coordinator) ClosingSockets() []Socket      { return append([]Socket(nil), c.closingSockets...) }
func (c *Coordinator) PointerClient() Connection     { return c.pointerClient }
func (c *Coordinator) ClipboardClient() Connection   { return c.clipboardClient }
func (c *Coordinator) CursorPos() Point              { return c.cursorPos }
func (c *Coordinator) LEDState() LEDState            { return c.ledState }

// --- embedder-facing connection admission (§4.2) ---

// AddSocket admits a newly accepted connection. It never returns an
// error for caller-visible failure modes: a blacklisted peer or a
// Connection construction failure is absorbed and the socket is queued
// on ClosingSockets for the embedder to reap, per §7's "transient
// per-peer" error class.
func (c *Coordinator) AddSocket(sock Socket, outgoing bool, accessRights AccessRights) {
	address := sock.PeerAddress()
	if c.Blacklist.IsBlackmarked(address) {
		c.logger.Error("blacklisted", nil, map[string]any{"peer": address})
		writeBlacklistBanner(sock)
		_ = sock.Shutdown()
		c.closingSockets = append(c.closingSockets, sock)
		return
	}

	c.logger.Info("accepted", map[string]any{"peer": sock.PeerEndpoint()})

	if c.config.MaxConnectionTime > 0 && len(c.clients) == 0 {
		c.timers.Connect.Start(c.now(), time.Duration(c.config.MaxConnectionTime)*time.Second)
	}
	c.timers.Disconnect.Stop()

	conn, err := c.connFactory(c, sock, outgoing, accessRights)
	if err != nil {
		c.logger.Error("error accepting client", err, nil)
		_ = sock.Shutdown()
		c.closingSockets = append(c.closingSockets, sock)
		return
	}

	c.clients = append([]Connection{conn}, c.clients...)

	if err := conn.Init(); err != nil {
		c.logger.Error("error initializing client", err, nil)
		c.clients = removeConn(c.clients, conn)
		_ = sock.Shutdown()
		c.closingSockets = append(c.closingSockets, sock)
	}
}

// RemoveSocket destroys the Connection owning sock, or, if sock has no
// live Connection, drops it from ClosingSockets. Idempotent either way.
func (c *Coordinator) RemoveSocket(sock Socket) {
	for i, conn := range c.clients {
		if conn.Socket() != sock {
			continue
		}

		if c.pointerClient == conn {
			c.desktop.PointerEvent(c.cursorPos, 0)
			c.pointerClient = nil
		}
		if c.clipboardClient == conn {
			c.HandleClipboardAnnounce(conn, false)
		}
		c.clipboardRequestors = removeConn(c.clipboardRequestors, conn)

		peer := conn.Socket().PeerEndpoint()
		c.clients = append(c.clients[:i], c.clients[i+1:]...)
		c.logger.Info("closed", map[string]any{"peer": peer})

		if c.authClientCount() == 0 {
			c.StopDesktop()
		}
		if c.comparer != nil {
			c.logComparerStats()
		}

		c.timers.Connect.Stop()
		if c.config.MaxDisconnectionTime > 0 && len(c.clients) == 0 {
			c.timers.Disconnect.Start(c.now(), time.Duration(c.config.MaxDisconnectionTime)*time.Second)
		}
		return
	}

	c.closingSockets = removeSocket(c.closingSockets, sock)
}

// ProcessSocketReadEvent routes a readable-socket notification to the
// owning Connection.
func (c *Coordinator) ProcessSocketReadEvent(sock Socket) error {
	for _, conn := range c.clients {
		if conn.Socket() == sock {
			return conn.ProcessMessages()
		}
	}
	return invalidArgument("ProcessSocketReadEvent", errors.New("invalid socket"))
}

// ProcessSocketWriteEvent routes a writable-socket notification to the
// owning Connection.
func (c *Coordinator) ProcessSocketWriteEvent(sock Socket) error {
	for _, conn := range c.clients {
		if conn.Socket() == sock {
			return conn.FlushSocket()
		}
	}
	return invalidArgument("ProcessSocketWriteEvent", errors.New("invalid socket"))
}

// GetSockets returns every socket the embedder must poll: one per live
// client, plus every closing-only socket.
func (c *Coordinator) GetSockets() []Socket {
	out := make([]Socket, 0, len(c.clients)+len(c.closingSockets))
	for _, conn := range c.clients {
		out = append(out, conn.Socket())
	}
	out = append(out, c.closingSockets...)
	return out
}

// writeBlacklistBanner writes the reject banner an RFB client sees when
// its peer is blackmarked: a bare protocol version line followed by a
// ConnFailed-style security-result record (u32 zero, u32 reason length,
// reason bytes), with no handshake beforehand. w is usually a Socket,
// which satisfies io.Writer.
func writeBlacklistBanner(w io.Writer) {
	const reason = "Too many security failures"
	_, _ = w.Write([]byte("RFB 003.003\n"))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 0)
	_, _ = w.Write(lenBuf[:])
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(reason)))
	_, _ = w.Write(lenBuf[:])
	_, _ = w.Write([]byte(reason))
}

// --- framebuffer & layout (§4.3) ---

// SetPixelBuffer installs pb (which may be nil to withdraw the
// framebuffer) with an explicit screen layout.
func (c *Coordinator) SetPixelBuffer(pb PixelBuffer, layout ScreenSet) error {
	if pb != nil {
		if err := layout.Validate(pb.Width(), pb.Height()); err != nil {
			return invalidArgument("SetPixelBuffer", err)
		}
	}

	if c.comparer != nil {
		c.logComparerStats()
	}

	c.pb = pb
	c.comparer = nil

	if pb == nil {
		c.screenLayout = ScreenSet{}
		if c.desktopStarted {
			return invariantViolation("SetPixelBuffer", errors.New("null PixelBuffer when desktopStarted"))
		}
		return nil
	}

	c.screenLayout = layout
	c.comparer = NewComparingTracker(pb)
	c.renderedCursorInvalid = true
	c.AddChanged(NewRegion(pb.Rect()))

	for _, conn := range c.clients {
		conn.PixelBufferChange()
	}
	return nil
}

// SetPixelBufferInferLayout installs pb, preserving the current screen
// layout where possible: every screen is intersected against the new
// framebuffer rect, empty screens are dropped, and if none remain a
// single screen covering the whole framebuffer is synthesized.
func (c *Coordinator) SetPixelBufferInferLayout(pb PixelBuffer) error {
	layout := c.screenLayout

	if pb != nil {
		if err := layout.Validate(pb.Width(), pb.Height()); err != nil {
			layout = layout.IntersectFramebuffer(pb.Width(), pb.Height())
		}
		if layout.NumScreens() == 0 {
			layout.AddScreen(Screen{ID: 0, X: 0, Y: 0, Width: pb.Width(), Height: pb.Height()})
		}
	}

	return c.SetPixelBuffer(pb, layout)
}

// SetScreenLayout replaces the current screen layout, requiring a
// PixelBuffer to already be installed, and notifies every client with
// ReasonServer.
func (c *Coordinator) SetScreenLayout(layout ScreenSet) error {
	if c.pb == nil {
		return invariantViolation("SetScreenLayout", errors.New("new screen layout without a PixelBuffer"))
	}
	if err := layout.Validate(c.pb.Width(), c.pb.Height()); err != nil {
		return invalidArgument("SetScreenLayout", err)
	}

	c.screenLayout = layout
	c.broadcast(func(conn Connection) error {
		return conn.ScreenLayoutChangeOrClose(ReasonServer)
	})
	return nil
}

// SetDesktopSize is the entry point for a client-driven resize request.
func (c *Coordinator) SetDesktopSize(requester Connection, w, h int, layout ScreenSet) (SetDesktopSizeResult, error) {
	if !c.config.AcceptSetDesktopSize {
		c.logger.Debug("rejecting unauthorized framebuffer resize request", nil)
		return ResultProhibited, nil
	}
	if w > 16384 || h > 16384 {
		c.logger.Error("rejecting too large framebuffer resize request", nil, nil)
		return ResultProhibited, nil
	}
	if err := layout.Validate(w, h); err != nil {
		c.logger.Error("invalid screen layout requested by client", err, nil)
		return ResultInvalid, nil
	}

	result := c.desktop.SetScreenLayout(w, h, layout)
	if result != ResultSuccess {
		return result, nil
	}

	if !c.screenLayout.Equal(layout) {
		return ResultSuccess, runtimeFault("SetDesktopSize", errors.New("desktop configured a different screen layout than requested"))
	}

	c.broadcast(func(conn Connection) error {
		if conn == requester {
			return nil
		}
		return conn.ScreenLayoutChangeOrClose(ReasonOtherClient)
	})
	return ResultSuccess, nil
}

// --- cursor & LED (§4.4) ---

// SetCursor replaces the current cursor shape, cropping transparent
// borders, and tells every client both that its rendered cursor is
// stale and that the shape itself may need retransmission.
func (c *Coordinator) SetCursor(width, height int, hotspot Point, data []byte) {
	cur := NewCursor(width, height, hotspot, data)
	cur.crop()
	c.cursor = cur
	c.renderedCursorInvalid = true

	c.broadcast(func(conn Connection) error {
		conn.RenderedCursorChange()
		return conn.SetCursorOrClose()
	})
}

// SetCursorPos no-ops if the position is unchanged; otherwise it
// invalidates the rendered cursor and, iff warped, tells clients the
// position itself moved (as opposed to merely tracking their own input).
func (c *Coordinator) SetCursorPos(pos Point, warped bool) {
	if c.cursorPos == pos {
		return
	}
	c.cursorPos = pos
	c.renderedCursorInvalid = true

	c.broadcast(func(conn Connection) error {
		conn.RenderedCursorChange()
		if warped {
			conn.CursorPositionChange()
		}
		return nil
	})
}

// SetLEDState is idempotent: it only broadcasts on an actual change.
func (c *Coordinator) SetLEDState(state LEDState) {
	if state == c.ledState {
		return
	}
	c.ledState = state
	c.broadcast(func(conn Connection) error {
		return conn.SetLEDStateOrClose(state)
	})
}

// GetRenderedCursor lazily recomposites the PixelBuffer and cursor when
// invalid; the returned pointer is valid until the next invalidation.
func (c *Coordinator) GetRenderedCursor() *RenderedCursor {
	if c.renderedCursorInvalid && c.pb != nil {
		c.renderedCursor.Update(c.pb, c.cursor, c.cursorPos)
		c.renderedCursorInvalid = false
	}
	return &c.renderedCursor
}

// --- pointer & key input (§4.6) ---

// KeyEvent forwards a key event to the backend, kicking the idle timer.
func (c *Coordinator) KeyEvent(keysym, keycode uint32, down bool) {
	if !c.config.AcceptKeyEvents {
		return
	}
	if c.config.MaxIdleTime > 0 {
		c.timers.Idle.Start(c.now(), time.Duration(c.config.MaxIdleTime)*time.Second)
	}
	c.desktop.KeyEvent(keysym, keycode, down)
}

// PointerEvent arbitrates pointer "grab" ownership: only one client may
// drive the pointer while any button is held, unless its grab is more
// than 10 seconds stale.
func (c *Coordinator) PointerEvent(client Connection, pos Point, buttonMask uint8) {
	if !c.config.AcceptPointerEvents {
		return
	}

	now := c.now()
	if c.config.MaxIdleTime > 0 {
		c.timers.Idle.Start(now, time.Duration(c.config.MaxIdleTime)*time.Second)
	}

	if c.pointerClient != nil && c.pointerClient != client && now.Sub(c.pointerClientTime) < 10*time.Second {
		return
	}

	c.pointerClientTime = now
	if buttonMask != 0 {
		c.pointerClient = client
	} else {
		c.pointerClient = nil
	}

	c.desktop.PointerEvent(pos, buttonMask)
}

// --- clipboard arbitration (§4.7) ---

func (c *Coordinator) HandleClipboardRequest(client Connection) {
	c.clipboardRequestors = append(c.clipboardRequestors, client)
	if len(c.clipboardRequestors) == 1 {
		c.desktop.HandleClipboardRequest()
	}
}

func (c *Coordinator) HandleClipboardAnnounce(client Connection, available bool) {
	if available {
		if !c.config.AcceptCutText {
			return
		}
		c.clipboardClient = client
	} else {
		if client != c.clipboardClient {
			return
		}
		c.clipboardClient = nil
	}
	c.desktop.HandleClipboardAnnounce(available)
}

func (c *Coordinator) HandleClipboardData(client Connection, text string) {
	if !c.config.AcceptCutText {
		return
	}
	if client != c.clipboardClient {
		c.logger.Debug("ignoring unexpected clipboard data", nil)
		return
	}
	c.desktop.HandleClipboardData(text)
}

func (c *Coordinator) RequestClipboard() {
	if !c.config.AcceptCutText {
		return
	}
	if c.clipboardClient == nil {
		c.logger.Debug("got request for client clipboard but no client currently owns the clipboard", nil)
		return
	}
	c.broadcastTo([]Connection{c.clipboardClient}, func(conn Connection) error {
		return conn.RequestClipboardOrClose()
	})
}

func (c *Coordinator) AnnounceClipboard(available bool) {
	c.clipboardRequestors = nil
	if !c.config.SendCutText {
		return
	}
	c.broadcast(func(conn Connection) error {
		return conn.AnnounceClipboardOrClose(available)
	})
}

// SendClipboardData rejects text containing a carriage return (an
// invalid-argument from the caller, state unchanged); otherwise it
// delivers to every currently-pending requestor and clears the list.
func (c *Coordinator) SendClipboardData(text string) error {
	if !c.config.SendCutText {
		return nil
	}
	for _, r := range text {
		if r == '\r' {
			return invalidArgument("SendClipboardData", errors.New("invalid carriage return in clipboard data"))
		}
	}

	c.broadcastTo(c.clipboardRequestors, func(conn Connection) error {
		return conn.SendClipboardDataOrClose(text)
	})
	c.clipboardRequestors = nil
	return nil
}

// --- misc broadcasts ---

func (c *Coordinator) Bell() {
	c.broadcast(func(conn Connection) error { return conn.BellOrClose() })
}

func (c *Coordinator) SetName(name string) {
	c.name = name
	c.broadcast(func(conn Connection) error { return conn.SetDesktopNameOrClose(name) })
}

// --- update tracking feed (§4.5) ---

func (c *Coordinator) AddChanged(region Region) {
	if c.comparer == nil {
		return
	}
	c.comparer.AddChanged(region)
	c.startFrameClock()
}

func (c *Coordinator) AddCopied(dest Region, delta Point) {
	if c.comparer == nil {
		return
	}
	c.comparer.AddCopied(dest, delta)
	c.startFrameClock()
}

// --- authentication aftermath & sharing (§4.8) ---

func (c *Coordinator) QueryConnection(client Connection, userName string) {
	c.Blacklist.ClearBlackmark(client.Socket().PeerAddress())

	if err := c.StartDesktop(); err != nil {
		c.logger.Error("failed to start desktop", err, nil)
		c.ApproveConnection(client.Socket(), false, "Internal server error")
		return
	}

	if c.config.NeverShared && !c.config.DisconnectClients && c.authClientCountExcept(client) > 0 {
		c.ApproveConnection(client.Socket(), false, "The server is already in use")
		return
	}

	if !c.config.QueryConnect && !client.Socket().RequiresQuery() {
		c.ApproveConnection(client.Socket(), true, "")
		return
	}

	if client.AccessCheck(AccessNoQuery) {
		c.ApproveConnection(client.Socket(), true, "")
		return
	}

	c.desktop.QueryConnection(client.Socket(), userName)
}

func (c *Coordinator) ClientReady(client Connection, shared bool) {
	if shared {
		return
	}

	if c.config.DisconnectClients && client.AccessCheck(AccessNonShared) {
		c.CloseClients("Non-shared connection requested", client.Socket())
		return
	}

	if c.authClientCount() > 1 {
		client.Close("Server is already in use")
	}
}

func (c *Coordinator) ApproveConnection(sock Socket, accept bool, reason string) {
	for _, conn := range c.clients {
		if conn.Socket() == sock {
			if err := conn.ApproveConnectionOrClose(accept, reason); err != nil {
				conn.Close("communication error")
			}
			return
		}
	}
}

func (c *Coordinator) CloseClients(reason string, except Socket) {
	for _, conn := range c.clients {
		if conn.Socket() != except {
			conn.Close(reason)
		}
	}
}

// --- desktop start/stop (§4.8) ---

func (c *Coordinator) StartDesktop() error {
	if c.desktopStarted {
		return nil
	}
	c.logger.Debug("starting desktop", nil)

	if err := c.desktop.Start(); err != nil {
		return runtimeFault("StartDesktop", err)
	}
	if c.pb == nil {
		return invariantViolation("StartDesktop", errors.New("desktop.Start did not set a valid PixelBuffer"))
	}

	c.desktopStarted = true

	if c.comparer != nil && !c.comparer.IsEmpty() {
		c.writeUpdate()
	}

	if c.timers.Frame.IsStarted() {
		c.stopFrameClock()
		c.startFrameClock()
	}
	return nil
}

func (c *Coordinator) StopDesktop() {
	if !c.desktopStarted {
		return
	}
	c.logger.Debug("stopping desktop", nil)
	c.desktopStarted = false
	c.desktop.Stop()
}

func (c *Coordinator) authClientCount() int {
	return c.authClientCountExcept(nil)
}

func (c *Coordinator) authClientCountExcept(except Connection) int {
	n := 0
	for _, conn := range c.clients {
		if conn != except && conn.Authenticated() {
			n++
		}
	}
	return n
}

// --- timers & frame clock (§4.5, §4.9) ---

// BlockUpdates and UnblockUpdates nest: while any block is outstanding
// the frame clock is stopped; on the last matching Unblock it is
// re-armed if work remains.
func (c *Coordinator) BlockUpdates() {
	c.blockCounter++
	c.stopFrameClock()
}

func (c *Coordinator) UnblockUpdates() {
	if c.blockCounter <= 0 {
		return
	}
	c.blockCounter--
	if c.blockCounter == 0 {
		c.startFrameClock()
	}
}

func (c *Coordinator) Msc() uint64 { return c.msc }

// QueueMsc raises queuedMsc (monotone max) and ensures the frame clock
// runs at least until msc catches up, so a caller awaiting frame N is
// served even with no pixel changes.
func (c *Coordinator) QueueMsc(target uint64) {
	if target > c.queuedMsc {
		c.queuedMsc = target
	}
	c.startFrameClock()
}

// HandleTimeout dispatches an expired timer by pointer identity against
// the four owned timers.
func (c *Coordinator) HandleTimeout(t *Timer) {
	now := c.now()
	switch t {
	case &c.timers.Frame:
		c.handleFrameTimeout(now)
	case &c.timers.Idle:
		c.timers.Idle.Stop()
		c.logger.Info("MaxIdleTime reached, exiting", nil)
		c.desktop.Terminate()
	case &c.timers.Disconnect:
		c.timers.Disconnect.Stop()
		c.logger.Info("MaxDisconnectionTime reached, exiting", nil)
		c.desktop.Terminate()
	case &c.timers.Connect:
		c.timers.Connect.Stop()
		c.logger.Info("MaxConnectionTime reached, exiting", nil)
		c.desktop.Terminate()
	}
}

func (c *Coordinator) handleFrameTimeout(now time.Time) {
	noWork := !c.desktopStarted || (c.comparer != nil && c.comparer.IsEmpty())
	if noWork && c.queuedMsc < c.msc {
		c.timers.Frame.Stop()
		return
	}

	timeout := time.Second / time.Duration(c.config.FrameRate)
	if !c.desktopStarted {
		timeout = time.Second
	}
	c.timers.Frame.Repeat(now, timeout)

	if c.desktopStarted && c.comparer != nil && !c.comparer.IsEmpty() {
		c.writeUpdate()
	}

	c.msc++
	c.desktop.FrameTick(c.msc)
}

// MsToNextUpdate reports the sleep hint the embedder's selector should
// use: the frame timer's remaining time if armed, half a frame interval
// otherwise (so a newly-idle coordinator still wakes promptly if work
// shows up).
func (c *Coordinator) MsToNextUpdate() int {
	if !c.timers.Frame.IsStarted() {
		half := time.Second / time.Duration(c.config.FrameRate) / 2
		return int(half.Milliseconds())
	}
	return c.timers.Frame.RemainingMs(c.now())
}

// NextTimerDeadlineMs reports the smallest RemainingMs across every
// armed timer (frame, idle, disconnect, connect), or -1 if none are
// armed. The embedder should select with a timeout of
// min(MsToNextUpdate(), NextTimerDeadlineMs()) when the latter is >= 0.
func (c *Coordinator) NextTimerDeadlineMs() int {
	return c.timers.NextDeadlineMs(c.now())
}

// DueTimers returns every timer currently armed and past its deadline,
// for an embedder driving HandleTimeout itself off a polling loop.
func (c *Coordinator) DueTimers() []*Timer {
	return c.timers.Due(c.now())
}

func (c *Coordinator) startFrameClock() {
	if c.timers.Frame.IsStarted() {
		return
	}
	if c.blockCounter > 0 {
		return
	}

	noWork := !c.desktopStarted || (c.comparer != nil && c.comparer.IsEmpty())
	if noWork && c.queuedMsc < c.msc {
		return
	}

	now := c.now()
	if !c.desktopStarted {
		c.timers.Frame.Start(now, time.Second)
		return
	}
	c.timers.Frame.Start(now, time.Second/time.Duration(c.config.FrameRate)/2)
}

func (c *Coordinator) stopFrameClock() {
	c.timers.Frame.Stop()
}

// --- update emission (§4.5) ---

func (c *Coordinator) writeUpdate() {
	ui := c.comparer.GetUpdateInfo(c.pb.Rect())
	toCheck := ui.Changed.Union(ui.Copied)

	if c.needRenderedCursor() {
		clipped := c.cursor.Rect().Translate(c.cursorPos.Subtract(c.cursor.Hotspot())).Intersect(c.pb.Rect())
		if !toCheck.Intersect(clipped).IsEmpty() {
			c.renderedCursorInvalid = true
		}
	}

	_ = c.pb.GrabRegion(toCheck)

	if c.GetComparerState() {
		c.comparer.Enable()
	} else {
		c.comparer.Disable()
	}

	if c.comparer.Compare() {
		ui = c.comparer.GetUpdateInfo(c.pb.Rect())
	}
	c.comparer.Clear()

	c.broadcast(func(conn Connection) error {
		conn.AddCopied(ui.Copied, ui.CopyDelta)
		conn.AddChanged(ui.Changed)
		return conn.WriteFramebufferUpdateOrClose()
	})
}

// GetPendingRegion returns the region that currently blocks a client
// from safely reading the framebuffer directly.
func (c *Coordinator) GetPendingRegion() Region {
	if c.blockCounter > 0 {
		return NewRegion(c.pb.Rect())
	}
	if c.comparer == nil || c.comparer.IsEmpty() {
		return Region{}
	}
	ui := c.comparer.GetUpdateInfo(c.pb.Rect())
	return ui.Changed.Union(ui.Copied)
}

func (c *Coordinator) GetComparerState() bool {
	switch c.config.CompareFB {
	case CompareFBOff:
		return false
	case CompareFBOn:
		return true
	default:
		for _, conn := range c.clients {
			if conn.ComparerState() {
				return true
			}
		}
		return false
	}
}

func (c *Coordinator) needRenderedCursor() bool {
	for _, conn := range c.clients {
		if conn.NeedRenderedCursor() {
			return true
		}
	}
	return false
}

func (c *Coordinator) logComparerStats() {
	examined, saved := c.comparer.Stats()
	c.logger.Debug("comparer stats", map[string]any{"examined": examined, "saved": saved})
	c.comparer.ResetStats()
}

// --- broadcast helper (the OrClose pattern, §9) ---

func (c *Coordinator) broadcast(fn func(Connection) error) {
	c.broadcastTo(append([]Connection(nil), c.clients...), fn)
}

func (c *Coordinator) broadcastTo(subset []Connection, fn func(Connection) error) {
	var failed []Connection
	for _, conn := range subset {
		if err := fn(conn); err != nil {
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		conn.Close("communication error")
	}
}

func removeConn(list []Connection, target Connection) []Connection {
	out := list[:0]
	for _, conn := range list {
		if conn != target {
			out = append(out, conn)
		}
	}
	return out
}

func removeSocket(list []Socket, target Socket) []Socket {
	out := list[:0]
	for _, sock := range list {
		if sock != target {
			out = append(out, sock)
		}
	}
	return out
}
