package gateway

import (
	"context"
	"time"
)

// Result is the asynchronous outcome of a gateway call, matched back to the
// originating call by RequestID.
type Result struct {
	RequestID string
	ChatID    int64
	Err       error

	// ServerMsgID and Timestamp are set on successful send acks.
	ServerMsgID int64
	Timestamp   time.Time
	// Revision is set on successful edit acks.
	Revision int64
	// Page is set on history fetch results.
	Page *HistoryPage
}

// HistoryPage is one page of backfilled chat history, oldest last.
type HistoryPage struct {
	ChatID   int64
	Messages []Message
}

// Caller issues asynchronous RPCs against the backend. Every method returns
// immediately with a request id; the outcome arrives later on Results.
type Caller interface {
	SendMessage(chatID int64, content Content, replyTo int64) (requestID string)
	EditMessage(chatID, msgID, revision int64, content Content) (requestID string)
	DeleteMessages(chatID int64, msgIDs []int64) (requestID string)
	ForwardMessages(toChatID, fromChatID int64, msgIDs []int64) (requestID string)
	TogglePin(chatID int64, pinned bool) (requestID string)
	ToggleMute(chatID int64, muted bool) (requestID string)
	MarkRead(chatID, upToMsgID int64) (requestID string)
	FetchHistory(chatID, beforeMsgID int64, limit int) (requestID string)
	// ResyncChat requests a fresh authoritative snapshot for a chat whose
	// event sequence has a persistent gap.
	ResyncChat(chatID int64) (requestID string)
}

// Transferer moves file bytes. Calls block and are driven from the cache
// manager's worker pool, never from the engine loop.
type Transferer interface {
	DownloadFile(ctx context.Context, fileID int64, dest string) (size int64, err error)
	UploadFile(ctx context.Context, path string) (fileID int64, err error)
}

// Gateway abstracts the backend connection. Connect and Authenticate fail
// with ErrAuth on credential problems, which is fatal to the client.
type Gateway interface {
	Caller
	Transferer

	Connect(ctx context.Context) error
	Authenticate(ctx context.Context) error
	Close() error

	// Events delivers push notifications. The channel is closed when the
	// gateway shuts down.
	Events() <-chan Event
	// Results delivers call outcomes keyed by request id.
	Results() <-chan Result
}
