package gateway

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Gateway backed by nothing but maps. It acks every
// call successfully and lets callers inject push events, which makes it the
// shared double for engine tests and the offline demo mode of the binary.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	seqs    map[int64]uint64
	events  chan Event
	results chan Result
	closed  bool

	// FailWith, when non-nil, is returned as the result error for every
	// subsequent call instead of a success ack.
	FailWith error
}

var _ Gateway = (*Memory)(nil)

// NewMemory creates an in-memory gateway.
func NewMemory() *Memory {
	return &Memory{
		nextID:  1000,
		seqs:    make(map[int64]uint64),
		events:  make(chan Event, 256),
		results: make(chan Result, 256),
	}
}

// Connect always succeeds.
func (m *Memory) Connect(context.Context) error { return nil }

// Authenticate always succeeds.
func (m *Memory) Authenticate(context.Context) error { return nil }

// Close closes the event stream.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

// Events implements Gateway.
func (m *Memory) Events() <-chan Event { return m.events }

// Results implements Gateway.
func (m *Memory) Results() <-chan Result { return m.results }

// NextSeq returns the next sequence number for a chat.
func (m *Memory) NextSeq(chatID int64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[chatID]++
	return m.seqs[chatID]
}

// Push injects a push event, assigning the chat's next sequence number if
// the event has none.
func (m *Memory) Push(evt Event) {
	if evt.Seq == 0 {
		evt.Seq = m.NextSeq(evt.ChatID)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	m.events <- evt
}

// Deliver injects a raw call result, for tests that script their own acks.
func (m *Memory) Deliver(r Result) {
	m.results <- r
}

func (m *Memory) result(r Result) string {
	reqID := uuid.New().String()
	r.RequestID = reqID
	m.mu.Lock()
	if m.FailWith != nil {
		r = Result{RequestID: reqID, ChatID: r.ChatID, Err: m.FailWith}
	}
	m.mu.Unlock()
	m.results <- r
	return reqID
}

// SendMessage acks with a fresh server id.
func (m *Memory) SendMessage(chatID int64, content Content, replyTo int64) string {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()
	return m.result(Result{ChatID: chatID, ServerMsgID: id, Timestamp: time.Now()})
}

// EditMessage acks with the incremented revision.
func (m *Memory) EditMessage(chatID, msgID, revision int64, content Content) string {
	return m.result(Result{ChatID: chatID, Revision: revision + 1})
}

// DeleteMessages acks unconditionally.
func (m *Memory) DeleteMessages(chatID int64, msgIDs []int64) string {
	return m.result(Result{ChatID: chatID})
}

// ForwardMessages acks unconditionally.
func (m *Memory) ForwardMessages(toChatID, fromChatID int64, msgIDs []int64) string {
	return m.result(Result{ChatID: toChatID})
}

// TogglePin acks unconditionally.
func (m *Memory) TogglePin(chatID int64, pinned bool) string {
	return m.result(Result{ChatID: chatID})
}

// ToggleMute acks unconditionally.
func (m *Memory) ToggleMute(chatID int64, muted bool) string {
	return m.result(Result{ChatID: chatID})
}

// MarkRead acks unconditionally.
func (m *Memory) MarkRead(chatID, upToMsgID int64) string {
	return m.result(Result{ChatID: chatID})
}

// FetchHistory acks with an empty page.
func (m *Memory) FetchHistory(chatID, beforeMsgID int64, limit int) string {
	return m.result(Result{ChatID: chatID, Page: &HistoryPage{ChatID: chatID}})
}

// ResyncChat acks with an empty page.
func (m *Memory) ResyncChat(chatID int64) string {
	return m.result(Result{ChatID: chatID, Page: &HistoryPage{ChatID: chatID}})
}

// DownloadFile writes placeholder bytes to dest.
func (m *Memory) DownloadFile(ctx context.Context, fileID int64, dest string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	failWith := m.FailWith
	m.mu.Unlock()
	if failWith != nil {
		return 0, failWith
	}
	body := fmt.Sprintf("file %d", fileID)
	if err := os.WriteFile(dest, []byte(body), 0600); err != nil {
		return 0, &TransferError{FileID: fileID, Err: err}
	}
	return int64(len(body)), nil
}

// UploadFile assigns a fresh file id.
func (m *Memory) UploadFile(ctx context.Context, path string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if _, err := os.Stat(path); err != nil {
		return 0, &TransferError{Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}
