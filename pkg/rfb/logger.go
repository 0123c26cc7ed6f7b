package rfb

// Logger is the small structured-logging contract the coordinator
// depends on: the core package never imports a concrete logging
// library, so it stays embeddable in any host. See internal/obslog for
// the zerolog-backed implementation used by the demo server (cmd/server).
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Error(msg string, err error, fields map[string]any)
}

// NopLogger discards everything. It is the Coordinator's default when
// no Logger is supplied, and is handy in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any)          {}
func (NopLogger) Info(string, map[string]any)            {}
func (NopLogger) Error(string, error, map[string]any)    {}
