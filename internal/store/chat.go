package store

import (
	"sort"
	"sync"
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
)

// ChatStore mirrors the user's chat set. Only the sync engine mutates it;
// readers take snapshot copies.
type ChatStore struct {
	mu      sync.RWMutex
	chats   map[int64]*Chat
	version uint64
}

// NewChatStore creates an empty chat store.
func NewChatStore() *ChatStore {
	return &ChatStore{chats: make(map[int64]*Chat)}
}

// Version increments on every mutation; the renderer uses it to skip
// redraws of unchanged state.
func (s *ChatStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns a copy of the chat, if known.
func (s *ChatStore) Get(chatID int64) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[chatID]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// Ensure returns the chat, creating a placeholder on first reference.
func (s *ChatStore) Ensure(chatID int64) Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.ensureLocked(chatID)
}

func (s *ChatStore) ensureLocked(chatID int64) *Chat {
	c, ok := s.chats[chatID]
	if !ok {
		c = &Chat{ID: chatID, Kind: gateway.KindNormal}
		s.chats[chatID] = c
		s.version++
	}
	return c
}

// Apply merges a push-originated chat update field by field. Fields the
// event does not carry keep their current value.
func (s *ChatStore) Apply(chatID int64, upd *gateway.ChatUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)

	if upd.Chat != nil {
		c.Title = upd.Chat.Title
		c.Kind = upd.Chat.Kind
		c.Pinned = upd.Chat.Pinned
		c.Muted = upd.Chat.Muted
		c.Online = upd.Chat.Online
		c.UnreadCount = upd.Chat.UnreadCount
		if lm := upd.Chat.LastMessage; lm != nil {
			c.LastMessageID = lm.ID
			c.LastActivity = lm.Timestamp
		}
	}
	if upd.Title != nil {
		c.Title = *upd.Title
	}
	if upd.Pinned != nil {
		c.Pinned = *upd.Pinned
	}
	if upd.Muted != nil {
		c.Muted = *upd.Muted
	}
	if upd.Online != nil {
		c.Online = *upd.Online
	}
	if upd.UnreadCount != nil {
		c.UnreadCount = *upd.UnreadCount
	}
	if upd.LastMessage != nil {
		c.LastMessageID = upd.LastMessage.ID
		c.LastActivity = upd.LastMessage.Timestamp
	}
	s.version++
}

// Touch records chat activity from a message without changing other fields.
func (s *ChatStore) Touch(chatID, msgID int64, at time.Time, incrementUnread bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)
	c.LastMessageID = msgID
	if at.After(c.LastActivity) {
		c.LastActivity = at
	}
	if incrementUnread {
		c.UnreadCount++
	}
	s.version++
}

// SetPinned flips the pinned flag, returning the previous value so an
// optimistic toggle can be rolled back on gateway error.
func (s *ChatStore) SetPinned(chatID int64, pinned bool) (prev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)
	prev = c.Pinned
	c.Pinned = pinned
	s.version++
	return prev
}

// SetMuted flips the muted flag, returning the previous value.
func (s *ChatStore) SetMuted(chatID int64, muted bool) (prev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)
	prev = c.Muted
	c.Muted = muted
	s.version++
	return prev
}

// SetMarkedUnread flips the marked-unread flag, returning the previous value.
func (s *ChatStore) SetMarkedUnread(chatID int64, marked bool) (prev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)
	prev = c.MarkedUnread
	c.MarkedUnread = marked
	s.version++
	return prev
}

// MarkRead clears the unread counter, returning the previous count for
// rollback.
func (s *ChatStore) MarkRead(chatID int64) (prevUnread int, prevMarked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)
	prevUnread, prevMarked = c.UnreadCount, c.MarkedUnread
	c.UnreadCount = 0
	c.MarkedUnread = false
	s.version++
	return prevUnread, prevMarked
}

// SetUnread restores an unread counter after a failed optimistic mark-read.
func (s *ChatStore) SetUnread(chatID int64, count int, marked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensureLocked(chatID)
	c.UnreadCount = count
	c.MarkedUnread = marked
	s.version++
}

// ListOrdered returns a snapshot of all chats in display order: pinned
// first, then most recent activity, chat id ascending as the tie-break.
func (s *ChatStore) ListOrdered() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.ID < b.ID
	})
	return out
}
