package termio

import (
	"fmt"

	"github.com/muesli/termenv"
)

// chromeColors holds the pre-resolved SGR sequences for the header bar and
// scrollbar, picked once at process start against the terminal's actual
// color profile (ANSI, ANSI256, TrueColor, or Ascii/no-color) so a dumb
// terminal never receives an escape sequence it can't render.
type chromeColors struct {
	headerNormal string // white bg / black fg
	headerActive string // dark-gray bg / white fg
	thumb        string // solid block color
	track        string // empty-track color
}

var chrome = resolveChromeColors(termenv.EnvColorProfile())

func resolveChromeColors(p termenv.Profile) chromeColors {
	seq := func(fg, bg termenv.Color) string {
		return fmt.Sprintf("\x1b[%sm\x1b[%sm", fg.Sequence(false), bg.Sequence(true))
	}
	return chromeColors{
		headerNormal: seq(p.Color("0"), p.Color("7")),
		headerActive: seq(p.Color("15"), p.Color("8")),
		thumb:        "\x1b[" + p.Color("7").Sequence(true) + "m",
		track:        "\x1b[" + p.Color("8").Sequence(true) + "m",
	}
}
