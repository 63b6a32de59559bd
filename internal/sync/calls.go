package sync

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/input"
	"github.com/caiofmp/tgram/internal/store"
	"go.uber.org/zap"
)

type callKind int

const (
	callSend callKind = iota
	callEdit
	callDelete
	callForward
	callPin
	callMute
	callMarkRead
	callFetch
	callResync
)

// pendingCall is the engine-side record of an in-flight gateway call, keyed
// by request id. It carries everything needed to reconcile a success, roll
// back a failure, or re-issue the call after a transient error.
type pendingCall struct {
	kind    callKind
	chatID  int64
	attempt int
	issued  time.Time

	// send
	tempID  int64
	content gateway.Content
	replyTo int64

	// edit
	msgID        int64
	revision     int64
	prevRevision int64
	prevContent  gateway.Content

	// delete / forward
	msgIDs     []int64
	fromChatID int64

	// pin / mute rollback
	flag     bool
	prevFlag bool

	// mark-read rollback
	prevUnread int
	prevMarked bool

	// fetch
	beforeID int64
}

func (e *Engine) track(requestID string, pc *pendingCall) {
	pc.issued = time.Now()
	e.pending[requestID] = pc
}

func (e *Engine) handleIntent(in input.Intent) {
	switch in.Kind {
	case input.IntentSend, input.IntentReply:
		e.intentSend(in)
	case input.IntentEdit:
		e.intentEdit(in)
	case input.IntentDelete:
		e.intentDelete(in)
	case input.IntentYank:
		e.intentYank(in)
	case input.IntentForward:
		e.intentForward(in)
	case input.IntentSelect:
		e.msgs.ToggleSelect(in.ChatID, in.MsgID)
		e.notify("store.message_updated", in.ChatID)
	case input.IntentClearSelection:
		e.msgs.ClearSelection(in.ChatID)
		e.notify("store.message_updated", in.ChatID)
	case input.IntentTogglePin:
		e.intentTogglePin(in.ChatID)
	case input.IntentToggleMute:
		e.intentToggleMute(in.ChatID)
	case input.IntentToggleUnread:
		cur, _ := e.chats.Get(in.ChatID)
		e.chats.SetMarkedUnread(in.ChatID, !cur.MarkedUnread)
		e.notify("store.chat_updated", in.ChatID)
	case input.IntentMarkRead:
		e.intentMarkRead(in.ChatID)
	case input.IntentFetchPage:
		e.intentFetchPage(in.ChatID)
	case input.IntentSwitchChat:
		e.switchChat(in.ChatID)
	case input.IntentRetry:
		e.intentRetry(in)
	case input.IntentDownload:
		e.intentDownload(in)
	}
}

func (e *Engine) intentSend(in input.Intent) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Path == "" {
		e.logger.Info("empty send rejected", zap.Int64("chat_id", in.ChatID))
		e.notify("engine.notice", "nothing to send")
		return
	}

	tempID := e.msgs.NewTempID()
	content := gateway.Content{Type: gateway.ContentText, Text: text}
	if in.Path != "" {
		content.Type = in.Attach
		if content.Type == "" {
			content.Type = gateway.ContentDocument
		}
		content.File.Name = filepath.Base(in.Path)
	}

	now := time.Now()
	e.msgs.AppendTail(store.Message{
		ID:        tempID,
		ChatID:    in.ChatID,
		Outgoing:  true,
		Timestamp: now,
		Content:   content,
		Status:    store.StatusPending,
		ReplyTo:   in.ReplyTo,
	})
	e.chats.Touch(in.ChatID, tempID, now, false)
	e.notify("store.message_updated", in.ChatID)
	e.notify("store.chat_updated", in.ChatID)

	if in.Path != "" {
		e.upload(in.ChatID, tempID, in.ReplyTo, content, in.Path)
		return
	}
	e.track(e.gw.SendMessage(in.ChatID, content, in.ReplyTo), &pendingCall{
		kind:    callSend,
		chatID:  in.ChatID,
		tempID:  tempID,
		content: content,
		replyTo: in.ReplyTo,
	})
}

// upload stages a send-with-attachment: the file goes through the cache
// manager's pool first, and the message send is issued from the completion.
func (e *Engine) upload(chatID, tempID, replyTo int64, content gateway.Content, path string) {
	if e.files == nil {
		e.msgs.UpdateStatus(chatID, tempID, store.StatusFailed)
		e.notify("store.message_updated", chatID)
		return
	}
	ch := e.files.Store(path, chatID)
	go func() {
		res := <-ch
		done := uploadDone{
			chatID:  chatID,
			tempID:  tempID,
			replyTo: replyTo,
			content: content,
			path:    path,
			res:     res,
		}
		select {
		case e.transfers <- transferDone{upload: &done}:
		case <-e.done:
		}
	}()
}

func (e *Engine) handleTransfer(td transferDone) {
	if d := td.download; d != nil {
		if d.res.Err != nil {
			e.logger.Warn("download failed",
				zap.Int64("chat_id", d.chatID),
				zap.Int64("file_id", d.fileID),
				zap.Error(d.res.Err))
		}
		e.notify("store.message_updated", d.chatID)
		return
	}

	u := td.upload
	if u == nil {
		return
	}
	if u.res.Err != nil {
		e.logger.Warn("upload failed",
			zap.Int64("chat_id", u.chatID),
			zap.String("path", u.path),
			zap.Error(u.res.Err))
		e.msgs.UpdateStatus(u.chatID, u.tempID, store.StatusFailed)
		e.notify("store.message_updated", u.chatID)
		return
	}
	content := u.content
	content.File.ID = u.res.FileID
	if m, ok := e.msgs.Get(u.chatID, u.tempID); ok {
		m.Content = content
		e.msgs.AppendTail(m)
	}
	e.track(e.gw.SendMessage(u.chatID, content, u.replyTo), &pendingCall{
		kind:    callSend,
		chatID:  u.chatID,
		tempID:  u.tempID,
		content: content,
		replyTo: u.replyTo,
	})
}

func (e *Engine) intentEdit(in input.Intent) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		e.notify("engine.notice", "empty edit rejected")
		return
	}
	m, ok := e.msgs.Get(in.ChatID, in.MsgID)
	if !ok || !m.Outgoing || m.Status == store.StatusDeleted || m.Status == store.StatusPending || m.Status == store.StatusFailed {
		e.notify("engine.notice", "message cannot be edited")
		return
	}

	content := gateway.Content{Type: gateway.ContentText, Text: text}
	optimistic := m.Revision + 1
	if err := e.msgs.ApplyEdit(in.ChatID, in.MsgID, optimistic, content); err != nil {
		e.logger.Warn("optimistic edit rejected", zap.Error(err))
		return
	}
	e.notify("store.message_updated", in.ChatID)
	e.track(e.gw.EditMessage(in.ChatID, in.MsgID, m.Revision, content), &pendingCall{
		kind:         callEdit,
		chatID:       in.ChatID,
		msgID:        in.MsgID,
		content:      content,
		revision:     optimistic,
		prevRevision: m.Revision,
		prevContent:  m.Content,
	})
}

func (e *Engine) deleteTargets(in input.Intent) []int64 {
	if len(in.MsgIDs) > 0 {
		return in.MsgIDs
	}
	if ids := e.msgs.SelectedIDs(in.ChatID); len(ids) > 0 {
		return ids
	}
	if in.MsgID != 0 {
		return []int64{in.MsgID}
	}
	return nil
}

func (e *Engine) intentDelete(in input.Intent) {
	ids := e.deleteTargets(in)
	if len(ids) == 0 {
		return
	}
	e.msgs.SoftDelete(in.ChatID, ids)
	e.msgs.ClearSelection(in.ChatID)
	e.notify("store.message_updated", in.ChatID)
	e.track(e.gw.DeleteMessages(in.ChatID, ids), &pendingCall{
		kind:   callDelete,
		chatID: in.ChatID,
		msgIDs: ids,
	})
}

func (e *Engine) intentYank(in input.Intent) {
	ids := e.deleteTargets(in)
	if len(ids) == 0 {
		return
	}
	n := e.msgs.Yank(in.ChatID, ids)
	e.msgs.ClearSelection(in.ChatID)
	e.notify("store.message_updated", in.ChatID)
	e.notify("engine.notice", fmt.Sprintf("yanked %d messages", n))
}

// intentForward pastes the yank buffer into the target chat. Entries are
// grouped by source chat; the forwarded copies come back as push events, so
// nothing is inserted locally here.
func (e *Engine) intentForward(in input.Intent) {
	entries := e.msgs.ForwardBuffer()
	if len(entries) == 0 {
		e.notify("engine.notice", "forward buffer is empty")
		return
	}
	grouped := make(map[int64][]int64)
	var order []int64
	for _, entry := range entries {
		if _, ok := grouped[entry.FromChatID]; !ok {
			order = append(order, entry.FromChatID)
		}
		grouped[entry.FromChatID] = append(grouped[entry.FromChatID], entry.MsgID)
	}
	for _, from := range order {
		e.track(e.gw.ForwardMessages(in.ChatID, from, grouped[from]), &pendingCall{
			kind:       callForward,
			chatID:     in.ChatID,
			fromChatID: from,
			msgIDs:     grouped[from],
		})
	}
}

func (e *Engine) intentTogglePin(chatID int64) {
	cur, _ := e.chats.Get(chatID)
	desired := !cur.Pinned
	prev := e.chats.SetPinned(chatID, desired)
	e.notify("store.chat_updated", chatID)
	e.track(e.gw.TogglePin(chatID, desired), &pendingCall{
		kind:     callPin,
		chatID:   chatID,
		flag:     desired,
		prevFlag: prev,
	})
}

func (e *Engine) intentToggleMute(chatID int64) {
	cur, _ := e.chats.Get(chatID)
	desired := !cur.Muted
	prev := e.chats.SetMuted(chatID, desired)
	e.notify("store.chat_updated", chatID)
	e.track(e.gw.ToggleMute(chatID, desired), &pendingCall{
		kind:     callMute,
		chatID:   chatID,
		flag:     desired,
		prevFlag: prev,
	})
}

func (e *Engine) intentMarkRead(chatID int64) {
	chat, ok := e.chats.Get(chatID)
	if !ok {
		return
	}
	prevUnread, prevMarked := e.chats.MarkRead(chatID)
	e.notify("store.chat_updated", chatID)
	e.track(e.gw.MarkRead(chatID, chat.LastMessageID), &pendingCall{
		kind:       callMarkRead,
		chatID:     chatID,
		prevUnread: prevUnread,
		prevMarked: prevMarked,
	})
}

func (e *Engine) intentFetchPage(chatID int64) {
	for _, pc := range e.pending {
		if pc.kind == callFetch && pc.chatID == chatID {
			return
		}
	}
	before := e.msgs.OldestFetched(chatID)
	e.track(e.gw.FetchHistory(chatID, before, historyPageSize), &pendingCall{
		kind:     callFetch,
		chatID:   chatID,
		beforeID: before,
	})
}

// switchChat changes the active chat and cancels the previous chat's
// in-flight pagination; a late page for a no-longer-active chat has no
// pending entry left and is discarded as stale.
func (e *Engine) switchChat(chatID int64) {
	e.activeChat = chatID
	for reqID, pc := range e.pending {
		if pc.kind == callFetch && pc.chatID != chatID {
			delete(e.pending, reqID)
		}
	}
	e.notify("store.chat_updated", chatID)
}

func (e *Engine) intentRetry(in input.Intent) {
	retry, err := e.msgs.Retry(in.ChatID, in.MsgID)
	if err != nil {
		e.logger.Info("retry rejected", zap.Error(err))
		return
	}
	e.notify("store.message_updated", in.ChatID)
	e.track(e.gw.SendMessage(in.ChatID, retry.Content, retry.ReplyTo), &pendingCall{
		kind:    callSend,
		chatID:  in.ChatID,
		tempID:  retry.ID,
		content: retry.Content,
		replyTo: retry.ReplyTo,
	})
}

func (e *Engine) intentDownload(in input.Intent) {
	m, ok := e.msgs.Get(in.ChatID, in.MsgID)
	if !ok || !m.Content.HasFile() {
		return
	}
	e.download(in.ChatID, m.Content.File.ID, m.Content.File.Name)
}

func (e *Engine) handleResult(res gateway.Result) {
	pc, ok := e.pending[res.RequestID]
	if !ok {
		// Cancelled pagination or a call already timed out locally.
		e.logger.Debug("stale result discarded", zap.String("request_id", res.RequestID))
		return
	}
	delete(e.pending, res.RequestID)

	if res.Err != nil {
		if errors.Is(res.Err, gateway.ErrAuth) {
			if pc.kind == callSend {
				e.msgs.UpdateStatus(pc.chatID, pc.tempID, store.StatusFailed)
			}
			e.failFatal(res.Err)
			return
		}
		if gateway.IsRetryable(res.Err) && pc.attempt+1 < e.cfg.RetryAttempts {
			pc.attempt++
			e.scheduleRetry(pc, res.Err)
			return
		}
		e.failCall(pc, res.Err)
		return
	}

	switch pc.kind {
	case callSend:
		if err := e.msgs.SwapID(pc.chatID, pc.tempID, res.ServerMsgID, res.Timestamp); err != nil {
			e.logger.Warn("send ack for unknown temp id", zap.Error(err))
			return
		}
		e.chats.Touch(pc.chatID, res.ServerMsgID, res.Timestamp, false)
		e.notify("store.message_updated", pc.chatID)
		e.notify("store.chat_updated", pc.chatID)
	case callEdit:
		if res.Revision > pc.revision {
			// The server assigned a higher revision than our optimistic one;
			// re-apply under the authoritative number.
			_ = e.msgs.ApplyEdit(pc.chatID, pc.msgID, res.Revision, pc.content)
			e.notify("store.message_updated", pc.chatID)
		}
	case callFetch:
		if pc.chatID != e.activeChat || res.Page == nil {
			return
		}
		if added := e.msgs.PrependPage(pc.chatID, toStoreMessages(res.Page.Messages)); added > 0 {
			e.notify("store.message_updated", pc.chatID)
		}
	case callResync:
		cs := e.seq(pc.chatID)
		cs.resyncing = false
		cs.next = 0
		if res.Page != nil {
			e.msgs.PrependPage(pc.chatID, toStoreMessages(res.Page.Messages))
		}
		e.notify("store.message_updated", pc.chatID)
	}
	// Delete, forward, pin, mute and mark-read acks confirm what the store
	// already shows.
}

func (e *Engine) scheduleRetry(pc *pendingCall, err error) {
	delay := e.cfg.RetryBase.Duration << (pc.attempt - 1)
	if hint := gateway.RetryDelayHint(err); hint > 0 {
		delay = hint
	}
	e.logger.Info("retrying gateway call",
		zap.Int64("chat_id", pc.chatID),
		zap.Int("attempt", pc.attempt),
		zap.Duration("delay", delay))
	time.AfterFunc(delay, func() {
		select {
		case e.retries <- pc:
		case <-e.done:
		}
	})
}

// reissue repeats a call after backoff under a fresh request id.
func (e *Engine) reissue(pc *pendingCall) {
	switch pc.kind {
	case callSend:
		e.track(e.gw.SendMessage(pc.chatID, pc.content, pc.replyTo), pc)
	case callEdit:
		e.track(e.gw.EditMessage(pc.chatID, pc.msgID, pc.prevRevision, pc.content), pc)
	case callDelete:
		e.track(e.gw.DeleteMessages(pc.chatID, pc.msgIDs), pc)
	case callForward:
		e.track(e.gw.ForwardMessages(pc.chatID, pc.fromChatID, pc.msgIDs), pc)
	case callPin:
		e.track(e.gw.TogglePin(pc.chatID, pc.flag), pc)
	case callMute:
		e.track(e.gw.ToggleMute(pc.chatID, pc.flag), pc)
	case callMarkRead:
		chat, _ := e.chats.Get(pc.chatID)
		e.track(e.gw.MarkRead(pc.chatID, chat.LastMessageID), pc)
	case callFetch:
		e.track(e.gw.FetchHistory(pc.chatID, pc.beforeID, historyPageSize), pc)
	case callResync:
		e.track(e.gw.ResyncChat(pc.chatID), pc)
	}
}

// failCall rolls back the optimistic mutation of a call that exhausted its
// retries (or timed out).
func (e *Engine) failCall(pc *pendingCall, err error) {
	switch pc.kind {
	case callSend:
		e.msgs.UpdateStatus(pc.chatID, pc.tempID, store.StatusFailed)
		e.notify("store.message_updated", pc.chatID)
		e.notify("engine.notice", "send failed")
	case callEdit:
		// Restore the previous content under a fresh revision; the counter
		// only ever moves forward.
		_ = e.msgs.ApplyEdit(pc.chatID, pc.msgID, pc.revision+1, pc.prevContent)
		e.notify("store.message_updated", pc.chatID)
		e.notify("engine.notice", "edit failed")
	case callDelete:
		// The tombstones stay; a resync restores anything the server kept.
		e.notify("engine.notice", "delete failed")
	case callForward:
		e.notify("engine.notice", "forward failed")
	case callPin:
		e.chats.SetPinned(pc.chatID, pc.prevFlag)
		e.notify("store.chat_updated", pc.chatID)
	case callMute:
		e.chats.SetMuted(pc.chatID, pc.prevFlag)
		e.notify("store.chat_updated", pc.chatID)
	case callMarkRead:
		e.chats.SetUnread(pc.chatID, pc.prevUnread, pc.prevMarked)
		e.notify("store.chat_updated", pc.chatID)
	case callResync:
		e.seq(pc.chatID).resyncing = false
	}
	e.logger.Warn("gateway call failed",
		zap.Int64("chat_id", pc.chatID),
		zap.Int("attempts", pc.attempt+1),
		zap.Error(err))
}
