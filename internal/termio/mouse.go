package termio

import "os"

// enableMouseSeq turns on SGR-encoded button-event tracking: mode 1000
// (basic button press/release), 1002 (button-event/drag tracking), 1006
// (SGR extended coordinate encoding, required for terminals wider/taller
// than 223 cells).
const enableMouseSeq = "\x1b[?1000h\x1b[?1002h\x1b[?1006h"

// disableMouseSeq reverses enableMouseSeq, in the opposite order.
const disableMouseSeq = "\x1b[?1006l\x1b[?1002l\x1b[?1000l"

// SetMouseTracking toggles SGR mouse tracking on tty. Mouse tracking is only
// ever enabled while there is scrollback to scroll over (callers decide
// that; this function just flips the wire state).
func SetMouseTracking(tty *os.File, enable bool) {
	if enable {
		tty.WriteString(enableMouseSeq)
	} else {
		tty.WriteString(disableMouseSeq)
	}
}
