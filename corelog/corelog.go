// Package corelog is the log-drain contract the core writes coarse
// lifecycle and diagnostic messages through (spec §6.5). The core
// itself only ever calls the Logger interface below — never a
// concrete backend — so swapping drains never touches scheduler,
// registry or power-domain code. This mirrors the teacher's own
// x/fmtx split: a hosted build backed by a real formatting/logging
// library, and an MCU build tag that avoids it entirely.
package corelog

// Logger is the minimal sink the core depends on.
type Logger interface {
	// Lifecycle logs a coarse lifecycle message (phase transitions,
	// bind/start completion, shutdown).
	Lifecycle(msg string)

	// Lifecyclef logs a formatted lifecycle message, for call sites
	// that would otherwise reach for fmt.Sprintf before Lifecycle.
	Lifecyclef(format string, args ...any)

	// Errorf logs a formatted error-level message.
	Errorf(format string, args ...any)

	// Dropf logs a formatted message for a best-effort drop (ISR queue
	// overflow, notification delivery failure). Never called from a
	// path that can itself block.
	Dropf(format string, args ...any)
}

// Discard is a Logger that drops everything; useful in tests and as
// a safe zero value.
type Discard struct{}

func (Discard) Lifecycle(string)          {}
func (Discard) Lifecyclef(string, ...any) {}
func (Discard) Errorf(string, ...any)     {}
func (Discard) Dropf(string, ...any)      {}

var _ Logger = Discard{}
