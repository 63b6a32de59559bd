package gateway

import "time"

// EventKind tags a push event variant.
type EventKind int

const (
	EventNewMessage EventKind = iota
	EventMessageStatus
	EventChatUpdated
	EventFileUpdated
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventMessageStatus:
		return "message_status"
	case EventChatUpdated:
		return "chat_updated"
	case EventFileUpdated:
		return "file_updated"
	}
	return "unknown"
}

// MessageStatus enumerates remote-reported message state changes.
type MessageStatus string

const (
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
	StatusEdited    MessageStatus = "edited"
	StatusDeleted   MessageStatus = "deleted"
)

// StatusChange reports delivery receipts, read receipts, remote edits and
// remote deletions. NewContent and Revision are set for edits only; MsgIDs
// holds the affected ids for deletions, otherwise just MsgID.
type StatusChange struct {
	MsgID      int64
	MsgIDs     []int64
	Status     MessageStatus
	NewContent Content
	Revision   int64
}

// ChatUpdate reports a remote chat-level change. Pointer fields are nil for
// fields the event does not touch, so the store can merge per field.
type ChatUpdate struct {
	Chat        *Chat // full chat, set on first reference
	Title       *string
	Pinned      *bool
	Muted       *bool
	Online      *bool
	UnreadCount *int
	LastMessage *Message
}

// FileUpdate reports remote progress on a file transfer.
type FileUpdate struct {
	FileID    int64
	Size      int64
	Completed bool
}

// Event is a tagged push notification. Exactly one payload pointer matching
// Kind is non-nil. Seq is the per-chat sequence number; events for the same
// chat are applied in strictly increasing Seq order.
type Event struct {
	Kind      EventKind
	ChatID    int64
	Seq       uint64
	Timestamp time.Time

	NewMessage *Message
	Status     *StatusChange
	Chat       *ChatUpdate
	File       *FileUpdate
}
