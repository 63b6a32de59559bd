package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
)

// MessageStore mirrors per-chat message logs. Committed messages (server
// ids) are ordered by id ascending; pending messages (negative temp ids)
// occupy the tail in submission order. Only the sync engine mutates it.
type MessageStore struct {
	mu       sync.RWMutex
	chats    map[int64]*chatLog
	nextTemp int64
	forward  []ForwardEntry
	version  uint64
}

type chatLog struct {
	order []int64
	msgs  map[int64]*Message
	// oldestFetched is the pagination watermark: the smallest server id
	// backfill has reached, so a next page never refetches known ids.
	oldestFetched int64
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{chats: make(map[int64]*chatLog)}
}

// Version increments on every mutation.
func (s *MessageStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// NewTempID allocates a transient negative id for a pending message.
func (s *MessageStore) NewTempID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTemp--
	return s.nextTemp
}

func (s *MessageStore) chat(chatID int64) *chatLog {
	cl, ok := s.chats[chatID]
	if !ok {
		cl = &chatLog{msgs: make(map[int64]*Message)}
		s.chats[chatID] = cl
	}
	return cl
}

// committedEnd returns the index just past the committed block, which is
// where the pending tail begins.
func (cl *chatLog) committedEnd() int {
	for i, id := range cl.order {
		if id < 0 {
			return i
		}
	}
	return len(cl.order)
}

func (cl *chatLog) insertCommitted(id int64) {
	end := cl.committedEnd()
	pos := end
	for pos > 0 && cl.order[pos-1] > id {
		pos--
	}
	cl.order = append(cl.order, 0)
	copy(cl.order[pos+1:], cl.order[pos:])
	cl.order[pos] = id
}

func (cl *chatLog) remove(id int64) bool {
	for i, v := range cl.order {
		if v == id {
			cl.order = append(cl.order[:i], cl.order[i+1:]...)
			delete(cl.msgs, id)
			return true
		}
	}
	return false
}

// AppendTail adds a newly arrived message. Committed messages are placed
// into the id-ordered block; pending ones go to the very end. Re-adding a
// known id only refreshes its fields (idempotent apply).
func (s *MessageStore) AppendTail(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl := s.chat(msg.ChatID)

	if existing, ok := cl.msgs[msg.ID]; ok {
		sel := existing.Selected
		*existing = msg
		existing.Selected = sel
		s.version++
		return
	}

	m := msg
	cl.msgs[m.ID] = &m
	if m.ID < 0 {
		cl.order = append(cl.order, m.ID)
	} else {
		cl.insertCommitted(m.ID)
	}
	s.version++
}

// PrependPage merges a page of backfilled history. Ids already present are
// skipped, so overlapping pages never duplicate, and the pagination
// watermark advances to the oldest id seen.
func (s *MessageStore) PrependPage(chatID int64, page []Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl := s.chat(chatID)

	added := 0
	for _, msg := range page {
		if msg.ID < 0 {
			continue
		}
		if cl.oldestFetched == 0 || msg.ID < cl.oldestFetched {
			cl.oldestFetched = msg.ID
		}
		if _, ok := cl.msgs[msg.ID]; ok {
			continue
		}
		m := msg
		cl.msgs[m.ID] = &m
		cl.insertCommitted(m.ID)
		added++
	}
	if added > 0 {
		s.version++
	}
	return added
}

// OldestFetched returns the pagination watermark for a chat; zero means no
// history has been fetched yet.
func (s *MessageStore) OldestFetched(chatID int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cl, ok := s.chats[chatID]; ok {
		return cl.oldestFetched
	}
	return 0
}

// Get returns a copy of a message.
func (s *MessageStore) Get(chatID, msgID int64) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cl, ok := s.chats[chatID]; ok {
		if m, ok := cl.msgs[msgID]; ok {
			return *m, true
		}
	}
	return Message{}, false
}

// Len returns the number of messages mirrored for a chat.
func (s *MessageStore) Len(chatID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cl, ok := s.chats[chatID]; ok {
		return len(cl.order)
	}
	return 0
}

// List returns a snapshot of a chat's messages in display order.
func (s *MessageStore) List(chatID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(cl.order))
	for _, id := range cl.order {
		out = append(out, *cl.msgs[id])
	}
	return out
}

// IndexOf returns the display position of a message id, or -1.
func (s *MessageStore) IndexOf(chatID, msgID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cl, ok := s.chats[chatID]; ok {
		for i, id := range cl.order {
			if id == msgID {
				return i
			}
		}
	}
	return -1
}

// UpdateStatus sets a message's lifecycle status.
func (s *MessageStore) UpdateStatus(chatID, msgID int64, status MsgStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return false
	}
	m, ok := cl.msgs[msgID]
	if !ok {
		return false
	}
	m.Status = status
	s.version++
	return true
}

// SwapID atomically replaces a pending message's temp id with its server id,
// keeping the message at the same position in the chat's sequence.
func (s *MessageStore) SwapID(chatID, tempID, serverID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("unknown chat %d", chatID)
	}
	m, ok := cl.msgs[tempID]
	if !ok {
		return fmt.Errorf("unknown temp id %d in chat %d", tempID, chatID)
	}
	if _, dup := cl.msgs[serverID]; dup {
		// The confirmed message already arrived via push; drop the temp.
		cl.remove(tempID)
		s.version++
		return nil
	}
	for i, id := range cl.order {
		if id == tempID {
			cl.order[i] = serverID
			break
		}
	}
	delete(cl.msgs, tempID)
	m.ID = serverID
	if !at.IsZero() {
		m.Timestamp = at
	}
	m.Status = StatusSent
	cl.msgs[serverID] = m
	s.version++
	return nil
}

// ApplyEdit replaces content when the revision is strictly newer. Edits at
// or below the stored revision, and edits of tombstones, are rejected with
// gateway.ErrStaleWrite and leave the store untouched.
func (s *MessageStore) ApplyEdit(chatID, msgID, revision int64, content gateway.Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return fmt.Errorf("unknown chat %d", chatID)
	}
	m, ok := cl.msgs[msgID]
	if !ok {
		return fmt.Errorf("unknown message %d in chat %d", msgID, chatID)
	}
	if m.Status == StatusDeleted || revision <= m.Revision {
		return gateway.ErrStaleWrite
	}
	m.Content = content
	m.Revision = revision
	m.Status = StatusEdited
	s.version++
	return nil
}

// SoftDelete tombstones messages: content cleared, id and position kept so
// anything addressing them by id stays valid.
func (s *MessageStore) SoftDelete(chatID int64, msgIDs []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return 0
	}
	n := 0
	for _, id := range msgIDs {
		m, ok := cl.msgs[id]
		if !ok || m.Status == StatusDeleted {
			continue
		}
		m.Content = gateway.Content{Type: gateway.ContentService}
		m.Status = StatusDeleted
		m.Selected = false
		n++
	}
	if n > 0 {
		s.version++
	}
	return n
}

// ToggleSelect flips the multi-select flag. Tombstones cannot be selected.
func (s *MessageStore) ToggleSelect(chatID, msgID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return false
	}
	m, ok := cl.msgs[msgID]
	if !ok || m.Status == StatusDeleted {
		return false
	}
	m.Selected = !m.Selected
	s.version++
	return m.Selected
}

// SelectedIDs returns the ids of selected messages in display order.
func (s *MessageStore) SelectedIDs(chatID int64) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	var ids []int64
	for _, id := range cl.order {
		if cl.msgs[id].Selected {
			ids = append(ids, id)
		}
	}
	return ids
}

// ClearSelection deselects everything in a chat.
func (s *MessageStore) ClearSelection(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return
	}
	for _, m := range cl.msgs {
		m.Selected = false
	}
	s.version++
}

// Yank snapshots the given messages into the forward buffer. The buffer
// holds copies, so the originals may be edited or deleted afterwards
// without corrupting a pending forward.
func (s *MessageStore) Yank(chatID int64, msgIDs []int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return 0
	}
	buf := make([]ForwardEntry, 0, len(msgIDs))
	for _, id := range msgIDs {
		m, ok := cl.msgs[id]
		if !ok || m.Status == StatusDeleted {
			continue
		}
		buf = append(buf, ForwardEntry{
			FromChatID: chatID,
			MsgID:      id,
			SenderName: m.SenderName,
			Content:    m.Content,
		})
	}
	if len(buf) == 0 {
		return 0
	}
	s.forward = buf
	s.version++
	return len(buf)
}

// ForwardBuffer returns a copy of the yank buffer.
func (s *MessageStore) ForwardBuffer() []ForwardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ForwardEntry, len(s.forward))
	copy(out, s.forward)
	return out
}

// ClearForwardBuffer empties the yank buffer.
func (s *MessageStore) ClearForwardBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forward = nil
	s.version++
}

// Retry re-enters a Failed message at Pending under a fresh temp id at the
// tail. Returns the new message copy.
func (s *MessageStore) Retry(chatID, msgID int64) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.chats[chatID]
	if !ok {
		return Message{}, fmt.Errorf("unknown chat %d", chatID)
	}
	m, ok := cl.msgs[msgID]
	if !ok {
		return Message{}, fmt.Errorf("unknown message %d in chat %d", msgID, chatID)
	}
	if m.Status != StatusFailed {
		return Message{}, fmt.Errorf("message %d is %s, only failed messages can be retried", msgID, m.Status)
	}

	retry := *m
	s.nextTemp--
	retry.ID = s.nextTemp
	retry.Status = StatusPending
	retry.Selected = false
	retry.Timestamp = time.Now()

	cl.remove(msgID)
	cl.msgs[retry.ID] = &retry
	cl.order = append(cl.order, retry.ID)
	s.version++
	return retry, nil
}
