package termio

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vito/midterm"
)

// Frame describes the chrome drawn around a VT screen: a one-row header
// above the grid and, when there is scrollback, a vertical scrollbar thumb
// in the grid's rightmost column.
type Frame struct {
	SessionName   string
	ProjectName   string // "" when unknown
	CommandMode   bool
	ScrollOffset  int
	MaxScrollback int
	Cols, Rows    int // Rows is the total terminal height including the header
}

// GridRows is the number of rows available to the child's screen: the
// header consumes exactly one row.
func (f Frame) GridRows() int { return f.Rows - 1 }

// Render writes the full frame — header, grid rows from screen starting at
// startRow, and scrollbar — to buf. showCursor suppresses the cursor's
// inverse highlight while viewing scrollback.
func Render(buf *bytes.Buffer, f Frame, screen *midterm.Terminal, startRow int, showCursor bool) {
	buf.WriteString("\x1b[1;1H")
	buf.WriteString(f.header())
	buf.WriteString("\x1b[0m\x1b[K")

	grid := f.GridRows()
	for i := 0; i < grid; i++ {
		fmt.Fprintf(buf, "\x1b[%d;1H", i+2)
		row := startRow + i
		renderLine(buf, screen, row)
		buf.WriteString("\x1b[0m\x1b[K")
	}

	if showCursor && screen.Cursor.Y >= startRow && screen.Cursor.Y < startRow+grid {
		cursorRow := screen.Cursor.Y - startRow + 2
		fmt.Fprintf(buf, "\x1b[%d;%dH", cursorRow, screen.Cursor.X+1)
		ch := ' '
		if screen.Cursor.Y < len(screen.Content) {
			if line := screen.Content[screen.Cursor.Y]; screen.Cursor.X < len(line) && line[screen.Cursor.X] != 0 {
				ch = line[screen.Cursor.X]
			}
		}
		buf.WriteString("\x1b[7m")
		buf.WriteRune(ch)
		buf.WriteString("\x1b[0m")
	}

	renderScrollbar(buf, f)
}

// header composes the one-row header: left shows session identity (or the
// literal "COMMAND" in command mode), right shows a help hint (command mode
// only), a scroll position indicator (only when scrolled), and a two-column
// close button, concatenated and right-aligned.
func (f Frame) header() string {
	var left string
	if f.CommandMode {
		left = " COMMAND "
	} else if f.ProjectName != "" {
		left = fmt.Sprintf(" %s > %s ", f.ProjectName, f.SessionName)
	} else {
		left = fmt.Sprintf(" %s ", f.SessionName)
	}

	var right string
	if f.CommandMode {
		right += " ^P/^N scroll  ^Q detach  ^X stop  Esc exit "
	}
	if f.ScrollOffset > 0 {
		right += fmt.Sprintf(" [%d/%d] ", f.ScrollOffset, f.MaxScrollback)
	}
	right += "x "

	pad := f.Cols - len(left) - len(right)
	if pad < 0 {
		pad = 0
	}
	style := chrome.headerNormal
	if f.CommandMode {
		style = chrome.headerActive
	}
	return style + left + strings.Repeat(" ", pad) + right
}

// renderLine writes one screen row with SGR styling, resetting between
// format regions so a background color never bleeds into the next region.
// Rows beyond the screen's content are left blank (the caller's \x1b[K
// erases whatever was there before).
func renderLine(buf *bytes.Buffer, t *midterm.Terminal, row int) {
	if row < 0 || row >= len(t.Content) {
		return
	}
	line := t.Content[row]
	if len(line) == 0 {
		buf.WriteByte(' ')
		return
	}
	var pos int
	var lastFormat midterm.Format
	for region := range t.Format.Regions(row) {
		f := region.F
		if f != lastFormat {
			buf.WriteString("\x1b[0m")
			buf.WriteString(f.Render())
			lastFormat = f
		}
		end := pos + region.Size
		if pos < len(line) {
			contentEnd := end
			if contentEnd > len(line) {
				contentEnd = len(line)
			}
			for _, r := range line[pos:contentEnd] {
				if r == 0 {
					buf.WriteByte(' ')
				} else {
					buf.WriteRune(r)
				}
			}
		}
		pos = end
	}
}

// renderScrollbar draws a proportional thumb in the grid's rightmost column
// when there is scrollback: offset=0 puts the thumb at the bottom of the
// track, offset=max puts it at the top.
func renderScrollbar(buf *bytes.Buffer, f Frame) {
	if f.MaxScrollback <= 0 {
		return
	}
	trackHeight := f.GridRows()
	if trackHeight <= 0 {
		return
	}
	totalLines := f.MaxScrollback + trackHeight
	thumbSize := trackHeight * trackHeight / totalLines
	if thumbSize < 1 {
		thumbSize = 1
	}
	maxThumbTop := trackHeight - thumbSize
	thumbTop := 0
	if f.MaxScrollback > 0 {
		thumbTop = f.ScrollOffset * maxThumbTop / f.MaxScrollback
	}
	thumbYStart := maxThumbTop - thumbTop

	for row := 0; row < trackHeight; row++ {
		fmt.Fprintf(buf, "\x1b[%d;%dH", row+2, f.Cols)
		if row >= thumbYStart && row < thumbYStart+thumbSize {
			buf.WriteString(chrome.thumb + "█\x1b[0m")
		} else {
			buf.WriteString(chrome.track + "│\x1b[0m")
		}
	}
}
