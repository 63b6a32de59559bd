package store

import (
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
)

// MsgStatus tracks a message through its delivery lifecycle.
type MsgStatus string

const (
	StatusPending   MsgStatus = "pending"
	StatusSent      MsgStatus = "sent"
	StatusDelivered MsgStatus = "delivered"
	StatusSeen      MsgStatus = "seen"
	StatusEdited    MsgStatus = "edited"
	StatusFailed    MsgStatus = "failed"
	StatusDeleted   MsgStatus = "deleted"
)

// Message is the mirrored form of a message. ID is negative while the
// message is pending local confirmation.
type Message struct {
	ID            int64
	ChatID        int64
	SenderID      int64
	SenderName    string
	Outgoing      bool
	Timestamp     time.Time
	Content       gateway.Content
	Status        MsgStatus
	ReplyTo       int64
	ForwardedFrom string
	Revision      int64
	// Selected is transient UI state for multi-select yank/forward.
	Selected bool
}

// Chat is the mirrored form of a chat.
type Chat struct {
	ID            int64
	Title         string
	Kind          gateway.ChatKind
	LastMessageID int64
	LastActivity  time.Time
	UnreadCount   int
	Pinned        bool
	Muted         bool
	Online        bool
	MarkedUnread  bool
}

// FileStatus tracks an attachment through its transfer lifecycle.
type FileStatus string

const (
	FileNotFetched FileStatus = "not_fetched"
	FileFetching   FileStatus = "fetching"
	FileReady      FileStatus = "ready"
	FileFailed     FileStatus = "failed"
)

// Attachment describes the local state of a remote file. A file may be
// referenced by several messages; the cache tracks it once by file id.
type Attachment struct {
	FileID     int64
	ChatID     int64
	LocalPath  string
	Size       int64
	Status     FileStatus
	LastAccess time.Time
}

// ForwardEntry is a copied snapshot of a yanked message. Later edits or
// deletes of the original never touch it.
type ForwardEntry struct {
	FromChatID int64
	MsgID      int64
	SenderName string
	Content    gateway.Content
}
