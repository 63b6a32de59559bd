package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/caiofmp/tgram/internal/bus"
	"github.com/caiofmp/tgram/internal/cache"
	"github.com/caiofmp/tgram/internal/config"
	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/input"
	"github.com/caiofmp/tgram/internal/status"
	"github.com/caiofmp/tgram/internal/store"
	engine "github.com/caiofmp/tgram/internal/sync"
	"github.com/caiofmp/tgram/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const evictInterval = time.Hour

type composeKind int

const (
	composeSend composeKind = iota
	composeReply
	composeEdit
)

// App is the terminal shell: it owns the tview application, feeds keys
// through the modal machine, resolves intents against the viewport and hands
// them to the engine. It never mutates the stores directly.
type App struct {
	app     *tview.Application
	engine  *engine.Engine
	machine *input.Machine
	vp      *Viewport
	files   *cache.Manager
	bus     *bus.Bus
	state   *status.Machine
	logger  *zap.Logger
	cfg     *config.Config

	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	statusBar *views.StatusBar

	compose       composeKind
	composeTarget int64

	cancel context.CancelFunc
}

// NewApp builds the shell around an already-wired engine.
func NewApp(eng *engine.Engine, chats *store.ChatStore, msgs *store.MessageStore, files *cache.Manager, b *bus.Bus, st *status.Machine, logger *zap.Logger, cfg *config.Config) *App {
	a := &App{
		app:       tview.NewApplication(),
		engine:    eng,
		machine:   input.NewMachine(),
		vp:        NewViewport(chats, msgs, 20),
		files:     files,
		bus:       b,
		state:     st,
		logger:    logger.Named("tui"),
		cfg:       cfg,
		chatList:  views.NewChatList(cfg.UI.ChatFlags),
		msgView:   views.NewMessageView(cfg.UI.MsgFlags, cfg.UI.UserColorLow, cfg.UI.UserColorHigh),
		composer:  views.NewComposer(),
		statusBar: views.NewStatusBar(),
	}

	a.composer.SetOnSend(a.submitComposer)
	a.setupLayout()
	return a
}

func (a *App) setupLayout() {
	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	body := tview.NewFlex().
		AddItem(a.chatList, 32, 0, true).
		AddItem(right, 0, 1, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.captureKey)
}

func (a *App) captureKey(ev *tcell.EventKey) *tcell.EventKey {
	// The composer owns its own editing keys; only Esc leaves insert mode
	// from here, Enter is consumed by the composer's done callback.
	if a.app.GetFocus() == a.composer.InputField {
		if ev.Key() == tcell.KeyEscape {
			a.leaveInsert()
			return nil
		}
		return ev
	}

	intent, ok := a.machine.Handle(ev)
	if ok {
		a.dispatch(intent)
	}
	if a.machine.Mode() == input.Insert {
		a.enterInsert()
	}
	a.statusBar.SetMode(a.machine.Mode().String())
	return nil
}

func (a *App) enterInsert() {
	a.app.SetFocus(a.composer.InputField)
}

func (a *App) leaveInsert() {
	a.machine.Reset()
	a.compose = composeSend
	a.composeTarget = 0
	a.composer.SetPrompt(">")
	a.composer.SetText("")
	a.app.SetFocus(a.chatList)
	a.statusBar.SetMode(a.machine.Mode().String())
}

// dispatch resolves a machine intent against the viewport and routes it.
// Runs on the tview event goroutine, so direct view updates are safe.
func (a *App) dispatch(in input.Intent) {
	active := a.vp.ActiveChat()

	switch in.Kind {
	case input.IntentNavigateMsg:
		if a.vp.MoveMsg(in.Delta) {
			a.engine.Submit(input.Intent{Kind: input.IntentFetchPage, ChatID: active})
		}
		a.redrawMessages()
	case input.IntentNavigateChat:
		a.vp.MoveChat(in.Delta)
		a.redrawChats()
	case input.IntentJumpLatest:
		a.vp.JumpLatest()
		a.redrawMessages()
	case input.IntentJumpOldest:
		a.vp.JumpOldest()
		a.redrawMessages()
	case input.IntentSwitchChat:
		chat, ok := a.vp.CursorChat()
		if !ok {
			return
		}
		a.vp.SetActive(chat.ID)
		a.msgView.SetChatTitle(chatTitle(chat))
		a.engine.Submit(input.Intent{Kind: input.IntentSwitchChat, ChatID: chat.ID})
		a.engine.Submit(input.Intent{Kind: input.IntentMarkRead, ChatID: chat.ID})
		if a.vp.MsgRow() == 0 {
			// Nothing mirrored yet; pull the first page.
			a.engine.Submit(input.Intent{Kind: input.IntentFetchPage, ChatID: chat.ID})
		}
		a.redrawAll()
	case input.IntentSelect:
		if m, ok := a.vp.CursorMsg(); ok {
			a.engine.Submit(input.Intent{Kind: input.IntentSelect, ChatID: active, MsgID: m.ID})
			a.vp.MoveMsg(1)
		}
	case input.IntentClearSelection:
		a.engine.Submit(input.Intent{Kind: input.IntentClearSelection, ChatID: active})
	case input.IntentYank, input.IntentDelete:
		if m, ok := a.vp.CursorMsg(); ok {
			a.engine.Submit(input.Intent{Kind: in.Kind, ChatID: active, MsgID: m.ID})
		}
	case input.IntentForward:
		a.engine.Submit(input.Intent{Kind: input.IntentForward, ChatID: active})
	case input.IntentTogglePin, input.IntentToggleMute, input.IntentToggleUnread, input.IntentMarkRead:
		if chat, ok := a.vp.CursorChat(); ok {
			a.engine.Submit(input.Intent{Kind: in.Kind, ChatID: chat.ID})
		}
	case input.IntentFetchPage:
		a.engine.Submit(input.Intent{Kind: input.IntentFetchPage, ChatID: active})
	case input.IntentReply:
		if m, ok := a.vp.CursorMsg(); ok && m.ID > 0 {
			a.compose = composeReply
			a.composeTarget = m.ID
			a.composer.SetPrompt(fmt.Sprintf("re:%d>", m.ID))
		}
	case input.IntentEdit:
		m, ok := a.vp.CursorMsg()
		if !ok || !m.Outgoing || m.Status == store.StatusDeleted {
			a.machine.Reset()
			a.statusBar.Flash("cannot edit this message", 3*time.Second)
			return
		}
		a.compose = composeEdit
		a.composeTarget = m.ID
		a.composer.SetPrompt(fmt.Sprintf("edit:%d>", m.ID))
		a.composer.SetText(m.Content.Text)
	case input.IntentAttach:
		a.attach(in.Attach)
	case input.IntentComposeExternal:
		a.composeExternal()
	case input.IntentOpen:
		a.openAttachment()
	case input.IntentDownload:
		if m, ok := a.vp.CursorMsg(); ok && m.Content.HasFile() {
			a.engine.Submit(input.Intent{Kind: input.IntentDownload, ChatID: active, MsgID: m.ID})
		}
	case input.IntentRetry:
		if m, ok := a.vp.CursorMsg(); ok {
			a.engine.Submit(input.Intent{Kind: input.IntentRetry, ChatID: active, MsgID: m.ID})
		}
	case input.IntentQuit:
		a.Stop()
	}
}

// submitComposer fires when Enter lands in the composer.
func (a *App) submitComposer(text string) {
	active := a.vp.ActiveChat()
	switch a.compose {
	case composeReply:
		a.engine.Submit(input.Intent{Kind: input.IntentSend, ChatID: active, Text: text, ReplyTo: a.composeTarget})
	case composeEdit:
		a.engine.Submit(input.Intent{Kind: input.IntentEdit, ChatID: active, MsgID: a.composeTarget, Text: text})
	default:
		a.engine.Submit(input.Intent{Kind: input.IntentSend, ChatID: active, Text: text})
	}
	a.leaveInsert()
}

// attach suspends the UI, runs the configured picker, and sends the chosen
// file.
func (a *App) attach(kind gateway.ContentType) {
	active := a.vp.ActiveChat()
	if active == 0 {
		return
	}
	tmpl := a.cfg.Commands.FilePicker
	if kind == gateway.ContentVoice {
		tmpl = a.cfg.Commands.VoiceRecord
	}
	a.app.Suspend(func() {
		path, err := pickFile(tmpl)
		if err != nil {
			a.logger.Warn("file picker failed", zap.Error(err))
			return
		}
		if path == "" {
			return
		}
		a.engine.Submit(input.Intent{Kind: input.IntentSend, ChatID: active, Path: path, Attach: kind})
	})
}

// composeExternal suspends the UI and drafts a message in the configured
// editor. An empty or unchanged-empty draft sends nothing.
func (a *App) composeExternal() {
	active := a.vp.ActiveChat()
	if active == 0 {
		return
	}
	a.app.Suspend(func() {
		text, err := editText(a.cfg.Commands.Editor, a.composer.GetText())
		if err != nil {
			a.logger.Warn("external editor failed", zap.Error(err))
			return
		}
		if text == "" {
			return
		}
		a.engine.Submit(input.Intent{Kind: input.IntentSend, ChatID: active, Text: text})
		a.composer.SetText("")
	})
}

// openAttachment fetches the file under the cursor (hitting the cache when
// warm) and hands it to the configured opener.
func (a *App) openAttachment() {
	m, ok := a.vp.CursorMsg()
	if !ok || !m.Content.HasFile() || a.files == nil {
		return
	}
	active := a.vp.ActiveChat()
	ch := a.files.Fetch(m.Content.File.ID, active, m.Content.File.Name)
	go func() {
		res := <-ch
		if res.Err != nil {
			a.flashAsync("download failed: " + res.Err.Error())
			return
		}
		tmpl := a.cfg.Commands.Open
		if m.Content.Type == gateway.ContentText {
			tmpl = a.cfg.Commands.ViewText
		}
		if err := runCommand(tmpl, map[string]string{"file_path": res.Attachment.LocalPath}); err != nil {
			a.flashAsync("open failed: " + err.Error())
		}
	}()
}

func (a *App) flashAsync(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.Flash(msg, 5*time.Second)
	})
}

func (a *App) redrawChats() {
	chats, _ := a.vp.ChatSnapshot()
	a.chatList.Update(chats, a.vp.ChatRow())
}

func (a *App) redrawMessages() {
	msgs, _ := a.vp.MessageSnapshot()
	a.msgView.Update(msgs, a.vp.MsgRow())
}

func (a *App) redrawAll() {
	a.redrawChats()
	a.redrawMessages()
	a.statusBar.SetState(string(a.state.Current()))
}

// Run starts the bus listeners, the eviction timer and the terminal loop. It
// blocks until the UI stops.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.consumeBus(ctx)
	go a.evictLoop(ctx)

	a.statusBar.SetState(string(a.state.Current()))
	a.statusBar.SetMode(a.machine.Mode().String())
	a.redrawAll()
	return a.app.Run()
}

// Stop tears the UI down.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.app.Stop()
}

// consumeBus drives redraws and shell commands from engine events.
func (a *App) consumeBus(ctx context.Context) {
	events, unsub := a.bus.Subscribe("", 64)
	defer unsub()

	for {
		select {
		case evt := <-events:
			a.handleBusEvent(evt)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) handleBusEvent(evt bus.Event) {
	switch evt.Kind {
	case "store.chat_updated", "store.message_updated", "file.updated":
		a.app.QueueUpdateDraw(func() {
			if chats, changed := a.vp.ChatSnapshot(); changed {
				a.chatList.Update(chats, a.vp.ChatRow())
			}
			if msgs, changed := a.vp.MessageSnapshot(); changed {
				a.msgView.Update(msgs, a.vp.MsgRow())
			}
		})
	case "status.changed":
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(string(a.state.Current()))
		})
	case "engine.notice":
		if msg, ok := evt.Payload.(string); ok {
			a.flashAsync(msg)
		}
	case "engine.fatal":
		msg, _ := evt.Payload.(string)
		a.logger.Error("engine fatal", zap.String("reason", msg))
		a.Stop()
	case "notify.message":
		n, ok := evt.Payload.(engine.Notification)
		if !ok {
			return
		}
		title := n.Title
		if title == "" {
			title = n.Sender
		}
		if err := runCommand(a.cfg.Commands.Notify, map[string]string{
			"title": title,
			"msg":   n.Preview,
		}); err != nil {
			a.logger.Debug("notify command failed", zap.Error(err))
		}
	}
}

// evictLoop sweeps the media cache, skipping whatever the viewport shows.
func (a *App) evictLoop(ctx context.Context) {
	if a.files == nil {
		return
	}
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var inView map[int64]bool
			a.app.QueueUpdate(func() { inView = a.vp.InViewSet() })
			if _, err := a.files.Evict(func(id int64) bool { return inView[id] }); err != nil {
				a.logger.Warn("cache eviction failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func chatTitle(c store.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("chat %d", c.ID)
}
