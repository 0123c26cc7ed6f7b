package rfb

import "fmt"

// CompareFBMode controls when the ComparingTracker's pixel comparison is
// enabled.
type CompareFBMode int

const (
	// CompareFBOff never enables pixel comparison.
	CompareFBOff CompareFBMode = 0
	// CompareFBOn always enables pixel comparison.
	CompareFBOn CompareFBMode = 1
	// CompareFBPerClient enables pixel comparison iff at least one
	// connected client has opted in.
	CompareFBPerClient CompareFBMode = 2
)

// Config is the enumerated configuration surface from the external
// interfaces section: timers are in seconds (0 disables), FrameRate is
// updates per second.
type Config struct {
	MaxIdleTime          int
	MaxDisconnectionTime int
	MaxConnectionTime    int
	FrameRate            int

	NeverShared       bool
	DisconnectClients bool
	QueryConnect      bool

	AcceptCutText bool
	SendCutText   bool

	AcceptKeyEvents     bool
	AcceptPointerEvents bool

	AcceptSetDesktopSize bool

	CompareFB CompareFBMode
}

// DefaultConfig returns the configuration TigerVNC-style servers ship
// with out of the box: no timeouts, 60fps update cadence, sharing and
// clipboard both permitted, comparison off.
func DefaultConfig() Config {
	return Config{
		FrameRate:            60,
		DisconnectClients:    true,
		AcceptCutText:        true,
		SendCutText:          true,
		AcceptKeyEvents:      true,
		AcceptPointerEvents:  true,
		AcceptSetDesktopSize: true,
		CompareFB:            CompareFBOff,
	}
}

// Validate rejects a configuration with negative timers, a frame rate
// that is not positive, or an out-of-range CompareFB value.
func (c Config) Validate() error {
	if c.MaxIdleTime < 0 {
		return fmt.Errorf("MaxIdleTime must not be negative")
	}
	if c.MaxDisconnectionTime < 0 {
		return fmt.Errorf("MaxDisconnectionTime must not be negative")
	}
	if c.MaxConnectionTime < 0 {
		return fmt.Errorf("MaxConnectionTime must not be negative")
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("FrameRate must be positive")
	}
	if c.CompareFB != CompareFBOff && c.CompareFB != CompareFBOn && c.CompareFB != CompareFBPerClient {
		return fmt.Errorf("CompareFB must be 0, 1 or 2")
	}
	return nil
}
