package main

import (
	"encoding/json"
	"net"
	"time"

	"github.com/nulvnc/rfbsession/pkg/rfb"
)

// clientStatus is one rfb.Connection's read-only snapshot.
type clientStatus struct {
	PeerAddress   string `json:"peerAddress"`
	Authenticated bool   `json:"authenticated"`
}

// statusSnapshot is what the control socket hands cmd/admin: a
// point-in-time read of coordinator state, taken from inside the
// owning event-loop goroutine so it never races a real mutation.
type statusSnapshot struct {
	UptimeSeconds  float64        `json:"uptimeSeconds"`
	ClientCount    int            `json:"clientCount"`
	Clients        []clientStatus `json:"clients"`
	MSC            uint64         `json:"msc"`
	PointerOwner   string         `json:"pointerOwner"`
	ClipboardOwner string         `json:"clipboardOwner"`
	LEDState       uint32         `json:"ledState"`
}

func buildSnapshot(coord *rfb.Coordinator, startedAt time.Time) statusSnapshot {
	clients := coord.Clients()
	snap := statusSnapshot{
		UptimeSeconds: time.Since(startedAt).Seconds(),
		ClientCount:   len(clients),
		Clients:       make([]clientStatus, 0, len(clients)),
		MSC:           coord.Msc(),
		LEDState:      uint32(coord.LEDState()),
	}
	for _, c := range clients {
		snap.Clients = append(snap.Clients, clientStatus{
			PeerAddress:   c.Socket().PeerAddress(),
			Authenticated: c.Authenticated(),
		})
	}
	if p := coord.PointerClient(); p != nil {
		snap.PointerOwner = p.Socket().PeerAddress()
	}
	if cb := coord.ClipboardClient(); cb != nil {
		snap.ClipboardOwner = cb.Socket().PeerAddress()
	}
	return snap
}

// runControlSocket listens on a Unix-domain socket. For every connection
// accepted it pushes a snapshot request onto events (executed by the
// owning coordinator goroutine, so it never races a real mutation) and
// writes the resulting JSON snapshot back before closing the connection.
func runControlSocket(path string, events chan<- func(), coord *rfb.Coordinator, startedAt time.Time, logger rfb.Logger) (*net.UnixListener, error) {
	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveControlConn(conn, events, coord, startedAt, logger)
		}
	}()

	return ln, nil
}

func serveControlConn(conn net.Conn, events chan<- func(), coord *rfb.Coordinator, startedAt time.Time, logger rfb.Logger) {
	defer conn.Close()

	resp := make(chan statusSnapshot, 1)
	events <- func() { resp <- buildSnapshot(coord, startedAt) }

	snap := <-resp
	if err := json.NewEncoder(conn).Encode(snap); err != nil {
		logger.Debug("control socket write failed", map[string]any{"err": err.Error()})
	}
}
