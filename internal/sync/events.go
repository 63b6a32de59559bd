package sync

import (
	"errors"
	"time"

	"github.com/caiofmp/tgram/internal/cache"
	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/store"
	"go.uber.org/zap"
)

// chatSeq gates push events for one chat. next is the only sequence the
// engine will apply; anything newer waits in buf, anything older is a
// duplicate and is dropped.
type chatSeq struct {
	next      uint64
	buf       map[uint64]gateway.Event
	bufSince  time.Time
	resyncing bool
}

func (e *Engine) seq(chatID int64) *chatSeq {
	cs, ok := e.seqs[chatID]
	if !ok {
		cs = &chatSeq{buf: make(map[uint64]gateway.Event)}
		e.seqs[chatID] = cs
	}
	return cs
}

func (e *Engine) handleEvent(evt gateway.Event) {
	// Unsequenced events bypass the gate.
	if evt.Seq == 0 {
		e.applyEvent(evt)
		return
	}

	cs := e.seq(evt.ChatID)
	if cs.resyncing {
		// The pending snapshot supersedes anything arriving now; the gate
		// re-baselines from the first event after the snapshot lands.
		return
	}

	switch {
	case cs.next == 0:
		cs.next = evt.Seq + 1
		e.applyEvent(evt)
	case evt.Seq < cs.next:
		e.logger.Debug("duplicate event dropped",
			zap.Int64("chat_id", evt.ChatID),
			zap.Uint64("seq", evt.Seq))
	case evt.Seq == cs.next:
		cs.next++
		e.applyEvent(evt)
		e.drainBuffered(cs)
	default:
		if len(cs.buf) == 0 {
			cs.bufSince = time.Now()
		}
		cs.buf[evt.Seq] = evt
		if len(cs.buf) > e.cfg.ReorderMaxDepth {
			e.logger.Warn("reorder buffer overflow, resyncing",
				zap.Int64("chat_id", evt.ChatID),
				zap.Uint64("expected", cs.next))
			e.resync(evt.ChatID)
		}
	}
}

func (e *Engine) drainBuffered(cs *chatSeq) {
	for {
		evt, ok := cs.buf[cs.next]
		if !ok {
			if len(cs.buf) == 0 {
				cs.bufSince = time.Time{}
			}
			return
		}
		delete(cs.buf, cs.next)
		cs.next++
		e.applyEvent(evt)
	}
}

// resync abandons the gap and asks the gateway for an authoritative
// snapshot. The gate re-baselines when the snapshot arrives.
func (e *Engine) resync(chatID int64) {
	cs := e.seq(chatID)
	cs.resyncing = true
	cs.buf = make(map[uint64]gateway.Event)
	cs.bufSince = time.Time{}
	e.track(e.gw.ResyncChat(chatID), &pendingCall{kind: callResync, chatID: chatID})
}

func (e *Engine) applyEvent(evt gateway.Event) {
	switch evt.Kind {
	case gateway.EventNewMessage:
		e.applyNewMessage(evt)
	case gateway.EventMessageStatus:
		e.applyStatusChange(evt)
	case gateway.EventChatUpdated:
		if evt.Chat != nil {
			e.chats.Apply(evt.ChatID, evt.Chat)
			e.notify("store.chat_updated", evt.ChatID)
		}
	case gateway.EventFileUpdated:
		if evt.File != nil {
			e.notify("file.updated", evt.File.FileID)
		}
	}
}

func (e *Engine) applyNewMessage(evt gateway.Event) {
	wire := evt.NewMessage
	if wire == nil {
		return
	}
	msg := toStoreMessage(*wire)
	e.msgs.AppendTail(msg)

	incoming := !msg.Outgoing
	e.chats.Touch(evt.ChatID, msg.ID, msg.Timestamp, incoming && evt.ChatID != e.activeChat)
	e.notify("store.message_updated", evt.ChatID)
	e.notify("store.chat_updated", evt.ChatID)

	if !incoming {
		return
	}
	if chat, ok := e.chats.Get(evt.ChatID); ok && !chat.Muted {
		e.notify("notify.message", Notification{
			ChatID:  evt.ChatID,
			Title:   chat.Title,
			Sender:  msg.SenderName,
			Preview: preview(msg.Content),
		})
	}
	if f := msg.Content.File; msg.Content.HasFile() && f.Size > 0 && f.Size <= e.maxAuto {
		e.download(evt.ChatID, f.ID, f.Name)
	}
}

func (e *Engine) applyStatusChange(evt gateway.Event) {
	sc := evt.Status
	if sc == nil {
		return
	}
	ids := sc.MsgIDs
	if len(ids) == 0 && sc.MsgID != 0 {
		ids = []int64{sc.MsgID}
	}

	switch sc.Status {
	case gateway.StatusDelivered, gateway.StatusSeen:
		target := store.StatusDelivered
		if sc.Status == gateway.StatusSeen {
			target = store.StatusSeen
		}
		for _, id := range ids {
			if m, ok := e.msgs.Get(evt.ChatID, id); ok && receiptApplies(m.Status, target) {
				e.msgs.UpdateStatus(evt.ChatID, id, target)
			}
		}
	case gateway.StatusEdited:
		err := e.msgs.ApplyEdit(evt.ChatID, sc.MsgID, sc.Revision, sc.NewContent)
		if errors.Is(err, gateway.ErrStaleWrite) {
			e.logger.Info("stale edit dropped",
				zap.Int64("chat_id", evt.ChatID),
				zap.Int64("msg_id", sc.MsgID),
				zap.Int64("revision", sc.Revision))
			return
		}
		if err != nil {
			e.logger.Warn("edit for unknown message", zap.Error(err))
			return
		}
	case gateway.StatusDeleted:
		e.msgs.SoftDelete(evt.ChatID, ids)
	}
	e.notify("store.message_updated", evt.ChatID)
}

// receiptApplies keeps delivery receipts from downgrading a message that has
// already moved past them.
func receiptApplies(current, target store.MsgStatus) bool {
	rank := map[store.MsgStatus]int{
		store.StatusPending:   0,
		store.StatusSent:      1,
		store.StatusDelivered: 2,
		store.StatusSeen:      3,
	}
	cur, ok := rank[current]
	if !ok {
		// Edited, Failed and Deleted are content states; receipts for them
		// are meaningless.
		return false
	}
	return rank[target] > cur
}

// download forwards a fetch completion back into the engine queue.
func (e *Engine) download(chatID, fileID int64, name string) {
	if e.files == nil {
		return
	}
	ch := e.files.Fetch(fileID, chatID, name)
	go func() {
		res := <-ch
		select {
		case e.transfers <- transferDone{download: &downloadDone{chatID: chatID, fileID: fileID, res: res}}:
		case <-e.done:
		}
	}()
}

func toStoreMessage(wire gateway.Message) store.Message {
	status := store.StatusDelivered
	if wire.Outgoing {
		status = store.StatusSent
	}
	return store.Message{
		ID:            wire.ID,
		ChatID:        wire.ChatID,
		SenderID:      wire.SenderID,
		SenderName:    wire.SenderName,
		Outgoing:      wire.Outgoing,
		Timestamp:     wire.Timestamp,
		Content:       wire.Content,
		Status:        status,
		ReplyTo:       wire.ReplyTo,
		ForwardedFrom: wire.ForwardedFrom,
		Revision:      wire.Revision,
	}
}

func toStoreMessages(wire []gateway.Message) []store.Message {
	out := make([]store.Message, 0, len(wire))
	for _, w := range wire {
		out = append(out, toStoreMessage(w))
	}
	return out
}

// preview renders a one-line notification body for a message.
func preview(c gateway.Content) string {
	switch c.Type {
	case gateway.ContentText:
		return c.Text
	case gateway.ContentPhoto:
		return "[photo]"
	case gateway.ContentVideo:
		return "[video]"
	case gateway.ContentVoice:
		return "[voice]"
	case gateway.ContentDocument:
		return "[document] " + c.File.Name
	case gateway.ContentSticker:
		return "[sticker]"
	}
	return "[message]"
}

type downloadDone struct {
	chatID int64
	fileID int64
	res    cache.FetchResult
}

type uploadDone struct {
	chatID  int64
	tempID  int64
	replyTo int64
	content gateway.Content
	path    string
	res     cache.StoreResult
}

type transferDone struct {
	download *downloadDone
	upload   *uploadDone
}
