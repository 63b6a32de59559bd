package views

import (
	"fmt"

	"github.com/caiofmp/tgram/internal/store"
	"github.com/rivo/tview"
)

// MessageView renders the active chat's message window.
type MessageView struct {
	*tview.TextView
	flags    map[string]string
	colorLow int
	colorHi  int
}

// NewMessageView creates the message pane. flags overrides the default
// status glyphs; the color bounds come from ui.user_color_low/high.
func NewMessageView(flags map[string]string, colorLow, colorHi int) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{
		TextView: tv,
		flags:    flags,
		colorLow: colorLow,
		colorHi:  colorHi,
	}
}

// SetChatTitle updates the pane title.
func (mv *MessageView) SetChatTitle(title string) {
	mv.SetTitle(fmt.Sprintf(" %s ", title))
}

// Update redraws the window, marking the cursor row and any selected
// messages.
func (mv *MessageView) Update(msgs []store.Message, cursor int) {
	mv.Clear()

	for i, m := range msgs {
		sender := m.SenderName
		if m.Outgoing {
			sender = "You"
		}
		color := senderColor(m.SenderID, mv.colorLow, mv.colorHi)

		prefix := "  "
		if i == cursor {
			prefix = "> "
		}
		if m.Selected {
			prefix = "* "
		}

		glyph := statusGlyph(mv.flags, m)
		if glyph != "" {
			glyph = " [::d]" + glyph + "[-:-:-]"
		}
		reply := ""
		if m.ReplyTo != 0 {
			reply = fmt.Sprintf(" [::d]re:%d[-:-:-]", m.ReplyTo)
		}
		forwarded := ""
		if m.ForwardedFrom != "" {
			forwarded = fmt.Sprintf(" [::d]fwd:%s[-:-:-]", m.ForwardedFrom)
		}

		fmt.Fprintf(mv, "%s%s [::d]%s[-:-:-]%s%s%s\n  %s\n",
			prefix, colorTag(color, sender), formatClock(m.Timestamp),
			glyph, reply, forwarded, tview.Escape(contentLabel(m.Content)))
	}
	mv.ScrollToEnd()
}

func colorTag(color int, text string) string {
	return fmt.Sprintf("[#%06x]%s[-]", paletteRGB(color), text)
}

// paletteRGB maps a 16-color terminal index onto its conventional RGB value
// for tview color tags.
func paletteRGB(idx int) int {
	palette := []int{
		0x000000, 0x800000, 0x008000, 0x808000,
		0x000080, 0x800080, 0x008080, 0xc0c0c0,
		0x808080, 0xff0000, 0x00ff00, 0xffff00,
		0x0000ff, 0xff00ff, 0x00ffff, 0xffffff,
	}
	if idx < 0 || idx >= len(palette) {
		return 0xc0c0c0
	}
	return palette[idx]
}
