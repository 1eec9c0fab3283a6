//go:build !(rp2040 || rp2350)

package corelog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologDrain adapts the §6.5 "open/write/close byte-stream
// interface for diagnostic text" to a zerolog.Logger — the
// structured-logging library the rest of the example pack
// (jimyag-jvp) already depends on for exactly this concern.
type ZerologDrain struct {
	log zerolog.Logger
}

// NewZerologDrain builds a drain writing to w (os.Stdout if nil).
func NewZerologDrain(w io.Writer) *ZerologDrain {
	if w == nil {
		w = os.Stdout
	}
	return &ZerologDrain{log: zerolog.New(w).With().Timestamp().Logger()}
}

func (d *ZerologDrain) Lifecycle(msg string) {
	d.log.Info().Str("layer", "lifecycle").Msg(msg)
}

func (d *ZerologDrain) Lifecyclef(format string, args ...any) {
	d.log.Info().Str("layer", "lifecycle").Msgf(format, args...)
}

func (d *ZerologDrain) Errorf(format string, args ...any) {
	d.log.Error().Msgf(format, args...)
}

func (d *ZerologDrain) Dropf(format string, args ...any) {
	d.log.Warn().Str("reason", "drop").Msgf(format, args...)
}

var _ Logger = (*ZerologDrain)(nil)
