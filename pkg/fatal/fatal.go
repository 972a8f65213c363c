// Package fatal is the terminal failure path. It is reserved for states that
// must never reach the flash, such as slot arithmetic producing a bank outside
// the range it is allowed to touch. There is no resumption: Critical unwinds
// the caller and only the top level may catch it, to render the diagnostic
// screen and stop.
package fatal

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Code identifies the check that failed.
type Code uint16

const (
	// CodeSRAMSlotOverflowUnknown: an SRAM slot mapped to a flash bank
	// outside the SRAM area.
	CodeSRAMSlotOverflowUnknown Code = 0x0101
	// CodeSRAMSlotOverflowSwitch: a switch was requested to an SRAM slot
	// that does not exist.
	CodeSRAMSlotOverflowSwitch Code = 0x0102
	// CodeSRAMSlotOverflowErase: an erase was requested for an SRAM slot
	// that does not exist.
	CodeSRAMSlotOverflowErase Code = 0x0103
	// CodeSettingsSlotOverflow: the settings ring cursor left the ring.
	CodeSettingsSlotOverflow Code = 0x0201
)

// ExitHalted is the process exit code after a critical error.
const ExitHalted = 3

// Error is the value Critical panics with.
type Error struct {
	Code  Code
	Extra uint16
}

func (e *Error) Error() string {
	return fmt.Sprintf("critical error %04X:%04X", uint16(e.Code), e.Extra)
}

// Critical reports an unrecoverable error. It never returns.
func Critical(code Code, extra uint16) {
	panic(&Error{Code: code, Extra: extra})
}

// Recover must be deferred directly. It passes a critical error raised below
// it to halt; any other panic continues unwinding.
func Recover(halt func(*Error)) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		halt(e)
		return
	}
	panic(r)
}

// Catch runs fn and returns the critical error it raised, if any.
func Catch(fn func()) (err *Error) {
	defer Recover(func(e *Error) { err = e })
	fn()
	return nil
}

// Screen layout, in characters.
const (
	ScreenWidth  = 28
	ScreenHeight = 18
)

// Render draws the fixed-layout diagnostic screen.
func Render(w io.Writer, e *Error) {
	title := color.New(color.FgHiWhite, color.BgRed, color.Bold)
	body := color.New(color.FgWhite)
	link := color.New(color.FgCyan)

	lines := make([]string, ScreenHeight)
	lines[2] = fmt.Sprintf("Error %04X:%04X", uint16(e.Code), e.Extra)
	lines[11] = "Please report this error"
	lines[13] = "github.com/cartfriend/"
	lines[14] = "cartfriend/issues"

	for i, line := range lines {
		text := center(line, ScreenWidth)
		switch i {
		case 2:
			title.Fprintln(w, text)
		case 13, 14:
			link.Fprintln(w, text)
		default:
			body.Fprintln(w, text)
		}
	}
}

func center(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	left := (width - len(s)) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-len(s)-left)
}
