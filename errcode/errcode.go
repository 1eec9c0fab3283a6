// Package errcode implements the framework's compact error taxonomy
// (spec §7): a small, stable set of codes returned by every fallible
// core operation, so that lifecycle, dispatch and bind callers never
// need to inspect arbitrary error strings.
package errcode

// Code is a stable, wire/log-facing error identifier. It is a string
// newtype, comparable, allocation-free, and implements error — the
// same shape the teacher uses for its bus-facing codes.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (spec §7).
const (
	Success Code = "success"
	Pending Code = "pending" // operation accepted, completion asynchronous

	EParam   Code = "e_param"   // invalid argument, including bad ID
	EState   Code = "e_state"   // wrong lifecycle phase or in-flight conflict
	ENoMem   Code = "e_nomem"   // queue full, subscription pool exhausted
	EAccess  Code = "e_access"  // bind request from a disallowed peer
	ESupport Code = "e_support" // operation not implemented by a driver
	EBusy    Code = "e_busy"    // resource temporarily unavailable; retry allowed
	ETimeout Code = "e_timeout" // hardware did not respond within budget
	EHandler Code = "e_handler" // handler returned a non-success status
	EDevice  Code = "e_device"  // hardware fault
	EInit    Code = "e_init"    // subsystem not yet initialized
	ERange   Code = "e_range"   // out of supported numeric range
)

// IsSuccess reports whether c represents a non-error outcome
// (Success or Pending).
func (c Code) IsSuccess() bool { return c == Success || c == Pending }

// E wraps a Code with operation context and an optional cause, for
// callers that want more than the bare code (e.g. diagnostic logging)
// without giving every core operation a richer return type.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Op + ": " + e.Msg
	}
	return string(e.C) + ": " + e.Op
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap returns an *E carrying op/msg/cause, tagged with code.
func Wrap(code Code, op, msg string, cause error) error {
	return &E{C: code, Op: op, Msg: msg, Err: cause}
}

// Of extracts a Code from an error, defaulting to EHandler — the
// taxonomy's catch-all for "a handler returned something that wasn't
// a recognized status" (spec §7 propagation policy).
func Of(err error) Code {
	if err == nil {
		return Success
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return EHandler
}
