// Package log configures the process-wide zerolog logger, following
// pkg/atlas/server.go's configureLogging stdout/pretty/level conventions,
// adapted to netzd's single-output needs.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Config selects how the root logger writes.
type Config struct {
	// Level is the minimum level that reaches the output.
	Level zerolog.Level
	// Pretty selects the human-readable console writer over JSON lines.
	// Typically true for an interactive terminal, false under a service
	// manager.
	Pretty bool
	Output io.Writer // defaults to os.Stderr
}

// New builds the root logger per cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).
		Level(cfg.Level).
		With().
		Timestamp().
		Logger()
}

// Dispatch logs one completed RMC dispatch at DEBUG:
// protocol name, method name, request hash, response kind, elapsed time.
func Dispatch(l zerolog.Logger, protocol, method string, requestHash uint32, ok bool, elapsedMS float64) {
	kind := "ok"
	if !ok {
		kind = "error"
	}
	l.Debug().
		Str("protocol", protocol).
		Str("method", method).
		Uint32("request_hash", requestHash).
		Str("response", kind).
		Float64("elapsed_ms", elapsedMS).
		Msg("dispatch")
}

// SignatureMismatch logs a dropped datagram at WARN.
func SignatureMismatch(l zerolog.Logger, remoteAddr string) {
	l.Warn().Str("remote_addr", remoteAddr).Msg("signature mismatch")
}
