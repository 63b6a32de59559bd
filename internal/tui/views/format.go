package views

import (
	"fmt"
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/store"
)

var defaultMsgFlags = map[string]string{
	"pending":   "...",
	"sent":      ">",
	"delivered": ">>",
	"seen":      "seen",
	"edited":    "edited",
	"failed":    "failed!",
	"deleted":   "deleted",
}

var defaultChatFlags = map[string]string{
	"pinned":        "pin",
	"muted":         "mute",
	"online":        "online",
	"marked_unread": "unread",
	"secret":        "secret",
}

func flag(flags map[string]string, defaults map[string]string, name string) string {
	if v, ok := flags[name]; ok {
		return v
	}
	return defaults[name]
}

// contentLabel renders a one-line body for any content variant.
func contentLabel(c gateway.Content) string {
	switch c.Type {
	case gateway.ContentText:
		return c.Text
	case gateway.ContentPhoto:
		return withCaption("[photo]", c.Text)
	case gateway.ContentVideo:
		return withCaption(fmt.Sprintf("[video %s]", c.Duration.Round(time.Second)), c.Text)
	case gateway.ContentVoice:
		return fmt.Sprintf("[voice %s]", c.Duration.Round(time.Second))
	case gateway.ContentDocument:
		return withCaption("[document] "+c.File.Name, c.Text)
	case gateway.ContentSticker:
		return "[sticker]"
	case gateway.ContentService:
		if c.Text == "" {
			return "[deleted]"
		}
		return c.Text
	}
	return c.Text
}

func withCaption(label, caption string) string {
	if caption == "" {
		return label
	}
	return label + " " + caption
}

func statusGlyph(flags map[string]string, m store.Message) string {
	if !m.Outgoing && m.Status != store.StatusDeleted {
		return ""
	}
	return flag(flags, defaultMsgFlags, string(m.Status))
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 02")
}

// senderColor maps a sender id into the configured color index range so the
// same sender always renders in the same color.
func senderColor(senderID int64, low, high int) int {
	if high <= low {
		return low
	}
	span := int64(high - low + 1)
	idx := senderID % span
	if idx < 0 {
		idx += span
	}
	return low + int(idx)
}
