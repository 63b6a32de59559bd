package sync

import (
	"context"
	"errors"
	"time"

	"github.com/caiofmp/tgram/internal/bus"
	"github.com/caiofmp/tgram/internal/cache"
	"github.com/caiofmp/tgram/internal/config"
	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/input"
	"github.com/caiofmp/tgram/internal/store"
	"go.uber.org/zap"
)

const historyPageSize = 50

// Notification is the payload of "notify.message" bus events. The shell
// decides how to present it; muted chats never produce one.
type Notification struct {
	ChatID  int64
	Title   string
	Sender  string
	Preview string
}

// Engine is the single writer of the chat and message stores. One goroutine
// drains a merged queue of gateway push events, gateway call results, user
// intents and transfer completions; everything else only reads snapshots.
type Engine struct {
	gw     gateway.Gateway
	chats  *store.ChatStore
	msgs   *store.MessageStore
	files  *cache.Manager
	bus    *bus.Bus
	logger *zap.Logger
	cfg    config.SyncConfig

	// maxAuto caps the size of incoming attachments fetched unprompted.
	maxAuto int64

	intents   chan input.Intent
	retries   chan *pendingCall
	transfers chan transferDone

	// Engine-goroutine state, never touched from outside the loop.
	activeChat int64
	pending    map[string]*pendingCall
	seqs       map[int64]*chatSeq
	fatal      bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine wires the engine to its stores and gateway. The cache manager
// may be nil when transfers are not exercised.
func NewEngine(gw gateway.Gateway, chats *store.ChatStore, msgs *store.MessageStore, files *cache.Manager, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gw:        gw,
		chats:     chats,
		msgs:      msgs,
		files:     files,
		bus:       b,
		logger:    logger,
		cfg:       cfg.Sync,
		maxAuto:   cfg.Cache.MaxAutoDownloadBytes,
		intents:   make(chan input.Intent, 128),
		retries:   make(chan *pendingCall, 32),
		transfers: make(chan transferDone, 64),
		pending:   make(map[string]*pendingCall),
		seqs:      make(map[int64]*chatSeq),
		done:      make(chan struct{}),
	}
}

// Start launches the engine loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go e.loop(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	<-e.done
}

// Submit enqueues a user intent. Intents are dropped once the engine has hit
// a fatal error, and when the queue is full rather than blocking the UI.
func (e *Engine) Submit(in input.Intent) {
	select {
	case e.intents <- in:
	case <-e.done:
	default:
		e.logger.Warn("intent queue full, dropping", zap.String("kind", in.Kind.String()))
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	events := e.gw.Events()
	results := e.gw.Results()
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.handleEvent(evt)
		case res := <-results:
			e.handleResult(res)
		case in := <-e.intents:
			if !e.fatal {
				e.handleIntent(in)
			}
		case pc := <-e.retries:
			if !e.fatal {
				e.reissue(pc)
			}
		case td := <-e.transfers:
			e.handleTransfer(td)
		case <-tick.C:
			e.housekeeping()
		case <-ctx.Done():
			return
		}
		if e.fatal {
			e.flush(results)
			return
		}
	}
}

// flush drains already-received results after a fatal error so reconciliation
// that arrived before the failure is not lost, then stops cleanly.
func (e *Engine) flush(results <-chan gateway.Result) {
	for {
		select {
		case res := <-results:
			if !errors.Is(res.Err, gateway.ErrAuth) {
				e.handleResult(res)
			}
		default:
			return
		}
	}
}

// failFatal halts intake. Pending sends are marked Failed so their content
// stays visible for copy-out.
func (e *Engine) failFatal(err error) {
	if e.fatal {
		return
	}
	e.fatal = true
	e.logger.Error("fatal gateway error, stopping engine", zap.Error(err))
	for _, pc := range e.pending {
		if pc.kind == callSend {
			e.msgs.UpdateStatus(pc.chatID, pc.tempID, store.StatusFailed)
		}
	}
	e.pending = make(map[string]*pendingCall)
	e.bus.Publish(bus.Event{Kind: "engine.fatal", Payload: err.Error()})
}

// housekeeping runs on a coarse tick: reorder-buffer expiry and call
// timeouts.
func (e *Engine) housekeeping() {
	now := time.Now()
	for chatID, cs := range e.seqs {
		if len(cs.buf) > 0 && now.Sub(cs.bufSince) > e.cfg.ReorderWindow.Duration {
			e.logger.Warn("reorder window expired, resyncing",
				zap.Int64("chat_id", chatID),
				zap.Int("buffered", len(cs.buf)))
			e.resync(chatID)
		}
	}
	for reqID, pc := range e.pending {
		if now.Sub(pc.issued) > e.cfg.CallTimeout.Duration {
			delete(e.pending, reqID)
			e.logger.Warn("gateway call timed out",
				zap.String("request_id", reqID),
				zap.Int64("chat_id", pc.chatID))
			e.failCall(pc, context.DeadlineExceeded)
		}
	}
}

func (e *Engine) notify(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Payload: payload})
}
