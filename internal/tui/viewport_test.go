package tui

import (
	"testing"
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/store"
)

func seeded(t *testing.T, n int) (*store.ChatStore, *store.MessageStore) {
	t.Helper()
	chats := store.NewChatStore()
	msgs := store.NewMessageStore()
	chats.Ensure(1)
	for i := 1; i <= n; i++ {
		msgs.AppendTail(store.Message{
			ID:        int64(i),
			ChatID:    1,
			Timestamp: time.Now(),
			Content:   gateway.Content{Type: gateway.ContentText, Text: "m"},
			Status:    store.StatusDelivered,
		})
	}
	return chats, msgs
}

func TestSetActiveRestsOnNewest(t *testing.T) {
	chats, msgs := seeded(t, 5)
	v := NewViewport(chats, msgs, 10)
	v.SetActive(1)
	if v.MsgRow() != 4 {
		t.Fatalf("row = %d, want 4", v.MsgRow())
	}
	m, ok := v.CursorMsg()
	if !ok || m.ID != 5 {
		t.Fatalf("cursor = %+v", m)
	}
}

func TestMoveMsgClampsAndSignalsFetch(t *testing.T) {
	chats, msgs := seeded(t, 3)
	v := NewViewport(chats, msgs, 10)
	v.SetActive(1)

	if v.MoveMsg(-2) {
		t.Fatal("move within window must not request a fetch")
	}
	if v.MsgRow() != 0 {
		t.Fatalf("row = %d, want 0", v.MsgRow())
	}
	// Past the top of the loaded history.
	if !v.MoveMsg(-1) {
		t.Fatal("scrolling past the top must request a fetch")
	}
	if v.MsgRow() != 0 {
		t.Fatalf("row = %d, cursor must stay clamped", v.MsgRow())
	}
	if v.MoveMsg(100); v.MsgRow() != 2 {
		t.Fatalf("row = %d, want 2", v.MsgRow())
	}
}

func TestSnapshotReportsChangesOnce(t *testing.T) {
	chats, msgs := seeded(t, 2)
	v := NewViewport(chats, msgs, 10)
	v.SetActive(1)

	if _, changed := v.MessageSnapshot(); !changed {
		t.Fatal("first snapshot must report changed")
	}
	if _, changed := v.MessageSnapshot(); changed {
		t.Fatal("unchanged store must not force a redraw")
	}

	msgs.UpdateStatus(1, 2, store.StatusSeen)
	if _, changed := v.MessageSnapshot(); !changed {
		t.Fatal("mutation must invalidate the snapshot")
	}
}

func TestInViewTracksWindowAroundCursor(t *testing.T) {
	chats := store.NewChatStore()
	msgs := store.NewMessageStore()
	chats.Ensure(1)
	for i := 1; i <= 50; i++ {
		m := store.Message{
			ID:      int64(i),
			ChatID:  1,
			Content: gateway.Content{Type: gateway.ContentText, Text: "m"},
		}
		if i == 3 || i == 48 {
			m.Content = gateway.Content{
				Type: gateway.ContentPhoto,
				File: gateway.FileRef{ID: int64(100 + i)},
			}
		}
		msgs.AppendTail(m)
	}
	v := NewViewport(chats, msgs, 5)
	v.SetActive(1) // cursor on newest, row 49

	if v.InView(103) {
		t.Fatal("file near the top must be out of view")
	}
	if !v.InView(148) {
		t.Fatal("file near the cursor must be in view")
	}

	v.JumpOldest()
	if !v.InView(103) {
		t.Fatal("after jumping to the top, the top file is in view")
	}
	if v.InView(148) {
		t.Fatal("bottom file left the window")
	}
}

func TestCursorChatFollowsOrdering(t *testing.T) {
	chats := store.NewChatStore()
	msgs := store.NewMessageStore()
	chats.Ensure(1)
	chats.Ensure(2)
	chats.Touch(2, 9, time.Now(), false) // most recent activity first
	v := NewViewport(chats, msgs, 10)

	c, ok := v.CursorChat()
	if !ok || c.ID != 2 {
		t.Fatalf("cursor chat = %+v, want chat 2 first", c)
	}
	v.MoveChat(1)
	c, _ = v.CursorChat()
	if c.ID != 1 {
		t.Fatalf("cursor chat = %+v, want chat 1", c)
	}
	v.MoveChat(10)
	if v.ChatRow() != 1 {
		t.Fatalf("row = %d, must clamp to list end", v.ChatRow())
	}
}
