package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nulvnc/rfbsession/internal/memdesktop"
	"github.com/nulvnc/rfbsession/internal/obslog"
	"github.com/nulvnc/rfbsession/internal/serverconn"
	"github.com/nulvnc/rfbsession/pkg/rfb"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "path to config.yaml")
		listenAddr  = pflag.String("listen", "", "override listenAddr")
		logLevel    = pflag.String("log-level", "", "override logLevel")
		ctrlSock    = pflag.String("control-socket", "", "override controlSocketPath")
	)
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Error().Err(err).Msg("load config")
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *ctrlSock != "" {
		cfg.ControlSocketPath = *ctrlSock
	}

	if err := cfg.validate(); err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Error().Err(err).Msg("invalid config")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := obslog.New(os.Stderr, "rfbsession", level, true)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", err, nil)
		os.Exit(1)
	}
}

func run(cfg Config, logger *obslog.Logger) error {
	desktop := memdesktop.New(cfg.DesktopWidth, cfg.DesktopHeight, logger.With("memdesktop"))

	events := make(chan func(), 64)

	factory := func(coord *rfb.Coordinator, sock rfb.Socket, outgoing bool, access rfb.AccessRights) (rfb.Connection, error) {
		return serverconn.New(coord, sock, access, logger.With("serverconn")), nil
	}

	coord := rfb.NewCoordinator(cfg.DesktopName, desktop, factory, cfg.rfbConfig(), logger.With("coordinator"))

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	logger.Info("listening", map[string]any{"addr": cfg.ListenAddr})

	startedAt := time.Now()
	ctrlLn, err := runControlSocket(cfg.ControlSocketPath, events, coord, startedAt, logger)
	if err != nil {
		return err
	}
	defer ctrlLn.Close()
	defer os.Remove(cfg.ControlSocketPath)
	logger.Info("control socket listening", map[string]any{"path": cfg.ControlSocketPath})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return acceptLoop(gctx, ln, events, coord, logger)
	})

	group.Go(func() error {
		return eventLoop(gctx, coord, events)
	})

	<-gctx.Done()
	logger.Info("shutting down", nil)
	coord.Shutdown()
	_ = ln.Close()

	return group.Wait()
}

// acceptLoop accepts TCP connections and spawns a read goroutine per
// connection; it never touches coord itself, only enqueues events onto
// the funnel the owning goroutine drains.
func acceptLoop(ctx context.Context, ln net.Listener, events chan func(), coord *rfb.Coordinator, logger rfb.Logger) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		sock := serverconn.NewSocket(conn)
		sendEvent(ctx, events, func() { coord.AddSocket(sock, false, rfb.AccessFull) })
		go readLoop(ctx, conn, sock, events, coord, logger)
	}
}

// sendEvent enqueues ev unless ctx is already done, so a goroutine
// shutting down never blocks forever on a funnel nobody drains anymore.
func sendEvent(ctx context.Context, events chan func(), ev func()) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// readLoop performs the blocking reads for one connection and funnels
// every chunk read, and the eventual close, through events.
func readLoop(ctx context.Context, conn net.Conn, sock *serverconn.Socket, events chan func(), coord *rfb.Coordinator, logger rfb.Logger) {
	buf := make([]byte, 16384)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			sendEvent(ctx, events, func() { dispatchRead(coord, sock, chunk, logger) })
		}
		if err != nil {
			sendEvent(ctx, events, func() {
				coord.RemoveSocket(sock)
				_ = conn.Close()
			})
			return
		}
	}
}

// dispatchRead finds the Connection owning sock, feeds it the newly
// read bytes, and lets the coordinator drive its message decoding.
func dispatchRead(coord *rfb.Coordinator, sock rfb.Socket, data []byte, logger rfb.Logger) {
	for _, c := range coord.Clients() {
		if c.Socket() != sock {
			continue
		}
		if feeder, ok := c.(*serverconn.Conn); ok {
			feeder.Feed(data)
		}
		if err := coord.ProcessSocketReadEvent(sock); err != nil {
			logger.Debug("process read event failed", map[string]any{"err": err.Error()})
		}
		return
	}
}

// eventLoop is the coordinator's single owning goroutine: it drains the
// event funnel and drives the poll-based timer contract (§5), exactly
// the idiomatic-Go rendering of the original single-threaded select()
// loop.
func eventLoop(ctx context.Context, coord *rfb.Coordinator, events chan func()) error {
	for {
		sleep := coord.MsToNextUpdate()
		if d := coord.NextTimerDeadlineMs(); d >= 0 && d < sleep {
			sleep = d
		}
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			ev()
		case <-time.After(time.Duration(sleep) * time.Millisecond):
		}

		for _, t := range coord.DueTimers() {
			coord.HandleTimeout(t)
		}
	}
}
