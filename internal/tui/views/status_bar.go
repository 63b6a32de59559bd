package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// StatusBar is the single-line footer: connection state, input mode and a
// transient flash message.
type StatusBar struct {
	*tview.TextView
	state      string
	mode       string
	flash      string
	flashUntil time.Time
}

// NewStatusBar creates the footer bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv}
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(state string) {
	sb.state = state
	sb.render()
}

// SetMode updates the input mode display.
func (sb *StatusBar) SetMode(mode string) {
	sb.mode = mode
	sb.render()
}

// Flash shows a transient message for the given duration.
func (sb *StatusBar) Flash(msg string, d time.Duration) {
	sb.flash = msg
	sb.flashUntil = time.Now().Add(d)
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	flash := ""
	if sb.flash != "" && time.Now().Before(sb.flashUntil) {
		flash = "  [yellow]" + tview.Escape(sb.flash) + "[-]"
	}
	fmt.Fprintf(sb, " [green]%s[-]  [::b]-- %s --[-:-:-]%s", sb.state, sb.mode, flash)
}
