package tui

import (
	"github.com/caiofmp/tgram/internal/store"
)

// Viewport tracks what slice of the stores the user is looking at. It is a
// pure reader: it takes versioned snapshots, keeps cursor positions, and
// reports when scrolling runs past the loaded history so the shell can emit
// a fetch-page intent instead of blocking.
type Viewport struct {
	chats *store.ChatStore
	msgs  *store.MessageStore

	activeChat int64
	chatRow    int
	msgRow     int

	// window is how many messages around the cursor count as visible, used
	// to protect on-screen attachments from cache eviction.
	window int

	lastChatVer uint64
	lastMsgVer  uint64
}

// NewViewport creates a viewport over the stores.
func NewViewport(chats *store.ChatStore, msgs *store.MessageStore, window int) *Viewport {
	if window < 1 {
		window = 20
	}
	return &Viewport{chats: chats, msgs: msgs, window: window}
}

// ActiveChat returns the chat the message window is showing.
func (v *Viewport) ActiveChat() int64 { return v.activeChat }

// SetActive switches the message window to another chat and rests the cursor
// on the newest message.
func (v *Viewport) SetActive(chatID int64) {
	v.activeChat = chatID
	v.msgRow = v.msgs.Len(chatID) - 1
	if v.msgRow < 0 {
		v.msgRow = 0
	}
	// Force the next snapshots to report changed.
	v.lastMsgVer = 0
	v.lastChatVer = 0
}

// ChatSnapshot returns the ordered chat list and whether it changed since
// the previous snapshot, so an unchanged frame is not redrawn.
func (v *Viewport) ChatSnapshot() ([]store.Chat, bool) {
	ver := v.chats.Version()
	changed := ver != v.lastChatVer
	v.lastChatVer = ver
	return v.chats.ListOrdered(), changed
}

// MessageSnapshot returns the active chat's messages and whether they
// changed since the previous snapshot.
func (v *Viewport) MessageSnapshot() ([]store.Message, bool) {
	ver := v.msgs.Version()
	changed := ver != v.lastMsgVer
	v.lastMsgVer = ver
	return v.msgs.List(v.activeChat), changed
}

// MoveChat moves the chat cursor, clamped to the list bounds.
func (v *Viewport) MoveChat(delta int) {
	n := len(v.chats.ListOrdered())
	v.chatRow = clamp(v.chatRow+delta, 0, n-1)
}

// ChatRow returns the chat cursor position.
func (v *Viewport) ChatRow() int { return v.chatRow }

// CursorChat returns the chat under the cursor.
func (v *Viewport) CursorChat() (store.Chat, bool) {
	list := v.chats.ListOrdered()
	if v.chatRow < 0 || v.chatRow >= len(list) {
		return store.Chat{}, false
	}
	return list[v.chatRow], true
}

// MoveMsg moves the message cursor. It reports true when the move ran past
// the top of the loaded window, meaning older history should be fetched.
func (v *Viewport) MoveMsg(delta int) (needFetch bool) {
	n := v.msgs.Len(v.activeChat)
	if n == 0 {
		return delta < 0
	}
	needFetch = delta < 0 && v.msgRow+delta < 0
	v.msgRow = clamp(v.msgRow+delta, 0, n-1)
	return needFetch
}

// JumpLatest puts the cursor on the newest message.
func (v *Viewport) JumpLatest() {
	v.msgRow = v.msgs.Len(v.activeChat) - 1
	if v.msgRow < 0 {
		v.msgRow = 0
	}
}

// JumpOldest puts the cursor on the oldest loaded message.
func (v *Viewport) JumpOldest() { v.msgRow = 0 }

// MsgRow returns the message cursor position.
func (v *Viewport) MsgRow() int { return v.msgRow }

// CursorMsg returns the message under the cursor.
func (v *Viewport) CursorMsg() (store.Message, bool) {
	list := v.msgs.List(v.activeChat)
	if len(list) == 0 {
		return store.Message{}, false
	}
	row := clamp(v.msgRow, 0, len(list)-1)
	return list[row], true
}

// InView reports whether a file id is referenced by a message within the
// visible window of the active chat. The cache eviction sweep skips these.
func (v *Viewport) InView(fileID int64) bool {
	list := v.msgs.List(v.activeChat)
	if len(list) == 0 {
		return false
	}
	lo := clamp(v.msgRow-v.window, 0, len(list)-1)
	hi := clamp(v.msgRow+v.window, 0, len(list)-1)
	for _, m := range list[lo : hi+1] {
		if m.Content.File.ID == fileID {
			return true
		}
	}
	return false
}

// InViewSet snapshots every file id inside the visible window, so eviction
// can run off the UI goroutine against a stable set.
func (v *Viewport) InViewSet() map[int64]bool {
	out := make(map[int64]bool)
	list := v.msgs.List(v.activeChat)
	if len(list) == 0 {
		return out
	}
	lo := clamp(v.msgRow-v.window, 0, len(list)-1)
	hi := clamp(v.msgRow+v.window, 0, len(list)-1)
	for _, m := range list[lo : hi+1] {
		if m.Content.File.ID != 0 {
			out[m.Content.File.ID] = true
		}
	}
	return out
}

func clamp(x, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
