package views

import (
	"fmt"
	"strings"

	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/store"
	"github.com/rivo/tview"
)

// ChatList is the chat pane, a selectable table in display order.
type ChatList struct {
	*tview.Table
	chats []store.Chat
	flags map[string]string
}

// NewChatList creates the chat list table. flags overrides the default
// indicator strings per the ui.chat_flags config table.
func NewChatList(flags map[string]string) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Chats ")

	return &ChatList{Table: table, flags: flags}
}

// Update redraws the table from an ordered snapshot, keeping the selection
// on the given row.
func (cl *ChatList) Update(chats []store.Chat, cursor int) {
	cl.chats = chats
	cl.Clear()

	for i, chat := range chats {
		title := chat.Title
		if title == "" {
			title = fmt.Sprintf("chat %d", chat.ID)
		}
		if chat.UnreadCount > 0 {
			title = fmt.Sprintf("%s (%d)", title, chat.UnreadCount)
		}

		cl.SetCell(i, 0, tview.NewTableCell(" "+title).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(i, 1, tview.NewTableCell(cl.indicators(chat)).SetMaxWidth(20))
		cl.SetCell(i, 2, tview.NewTableCell(formatClock(chat.LastActivity)).SetMaxWidth(12))
	}
	if len(chats) > 0 {
		if cursor < 0 {
			cursor = 0
		}
		if cursor >= len(chats) {
			cursor = len(chats) - 1
		}
		cl.Select(cursor, 0)
	}
}

func (cl *ChatList) indicators(chat store.Chat) string {
	var parts []string
	if chat.Pinned {
		parts = append(parts, flag(cl.flags, defaultChatFlags, "pinned"))
	}
	if chat.Muted {
		parts = append(parts, flag(cl.flags, defaultChatFlags, "muted"))
	}
	if chat.Online {
		parts = append(parts, flag(cl.flags, defaultChatFlags, "online"))
	}
	if chat.MarkedUnread && chat.UnreadCount == 0 {
		parts = append(parts, flag(cl.flags, defaultChatFlags, "marked_unread"))
	}
	if chat.Kind == gateway.KindSecret {
		parts = append(parts, flag(cl.flags, defaultChatFlags, "secret"))
	}
	return strings.Join(parts, " ")
}

// SelectedChat returns the chat id under the table selection, or zero.
func (cl *ChatList) SelectedChat() int64 {
	row, _ := cl.GetSelection()
	if row >= 0 && row < len(cl.chats) {
		return cl.chats[row].ID
	}
	return 0
}
