package gateway

import "time"

// ChatKind classifies a chat.
type ChatKind string

const (
	KindNormal  ChatKind = "normal"
	KindGroup   ChatKind = "group"
	KindChannel ChatKind = "channel"
	KindSecret  ChatKind = "secret"
)

// ContentType enumerates message content variants.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentPhoto    ContentType = "photo"
	ContentVideo    ContentType = "video"
	ContentVoice    ContentType = "voice"
	ContentDocument ContentType = "document"
	ContentSticker  ContentType = "sticker"
	ContentService  ContentType = "service"
)

// FileRef identifies a remote file attached to a message.
type FileRef struct {
	ID   int64
	Size int64
	Name string
	MIME string
}

// Content is a message body. Text holds the text or caption; File is set
// for media variants.
type Content struct {
	Type     ContentType
	Text     string
	File     FileRef
	Duration time.Duration // voice and video only
}

// HasFile reports whether the content references a remote file.
func (c Content) HasFile() bool {
	return c.File.ID != 0
}

// Message is the wire form of a message as reported by the backend.
type Message struct {
	ID            int64
	ChatID        int64
	SenderID      int64
	SenderName    string
	Outgoing      bool
	Timestamp     time.Time
	Content       Content
	ReplyTo       int64
	ForwardedFrom string
	Revision      int64
}

// Chat is the wire form of a chat as reported by the backend.
type Chat struct {
	ID          int64
	Title       string
	Kind        ChatKind
	Pinned      bool
	Muted       bool
	Online      bool
	UnreadCount int
	LastMessage *Message
}
