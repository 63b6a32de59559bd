package app

import (
	"context"

	"github.com/caiofmp/tgram/internal/bus"
	"github.com/caiofmp/tgram/internal/cache"
	"github.com/caiofmp/tgram/internal/config"
	"github.com/caiofmp/tgram/internal/gateway"
	"github.com/caiofmp/tgram/internal/lock"
	"github.com/caiofmp/tgram/internal/logging"
	"github.com/caiofmp/tgram/internal/paths"
	"github.com/caiofmp/tgram/internal/status"
	"github.com/caiofmp/tgram/internal/store"
	intsync "github.com/caiofmp/tgram/internal/sync"
	"github.com/caiofmp/tgram/internal/tui"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module composes every provider and the lifecycle hooks into one fx option
// consumed by the binary.
func Module() fx.Option {
	return fx.Module("tgram",
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCacheDB,
			provideGateway,
			provideCacheManager,
			provideChatStore,
			provideMessageStore,
			provideEngine,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return config.Load(paths.ConfigPath())
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(paths.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring instance lock", zap.String("dir", paths.BaseDir()))
	return lock.Acquire(paths.BaseDir())
}

func provideCacheDB(logger *zap.Logger) (*cache.DB, error) {
	db, err := cache.Open(paths.CacheDBPath())
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("cache migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("cache index up to date", zap.Uint("version", result.Version))
	}
	return db, nil
}

// provideGateway wires the in-process gateway. A real backend transport
// drops in here without touching anything downstream.
func provideGateway() gateway.Gateway {
	return gateway.NewMemory()
}

func provideCacheManager(db *cache.DB, gw gateway.Gateway, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *cache.Manager {
	return cache.NewManager(db, gw, b, logger.Named("cache"), paths.CacheDir(), cfg.Cache)
}

func provideChatStore() *store.ChatStore {
	return store.NewChatStore()
}

func provideMessageStore() *store.MessageStore {
	return store.NewMessageStore()
}

func provideEngine(gw gateway.Gateway, chats *store.ChatStore, msgs *store.MessageStore, files *cache.Manager, b *bus.Bus, logger *zap.Logger, cfg *config.Config) *intsync.Engine {
	return intsync.NewEngine(gw, chats, msgs, files, b, logger.Named("sync"), cfg)
}

func provideApp(eng *intsync.Engine, chats *store.ChatStore, msgs *store.MessageStore, files *cache.Manager, b *bus.Bus, st *status.Machine, logger *zap.Logger, cfg *config.Config) *tui.App {
	return tui.NewApp(eng, chats, msgs, files, b, st, logger, cfg)
}

func registerLifecycle(lc fx.Lifecycle, sh fx.Shutdowner, ui *tui.App, gw gateway.Gateway, files *cache.Manager, eng *intsync.Engine, machine *status.Machine, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			files.Start(context.Background())
			eng.Start(context.Background())

			_ = machine.Transition(status.Connecting)
			if err := gw.Connect(ctx); err != nil {
				_ = machine.Transition(status.Fatal)
				return err
			}
			if err := gw.Authenticate(ctx); err != nil {
				_ = machine.Transition(status.Fatal)
				return err
			}
			_ = machine.Transition(status.Syncing)
			_ = machine.Transition(status.Ready)

			// The terminal loop owns the foreground; bring the process down
			// when the user quits.
			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("tui error", zap.Error(err))
				}
				_ = sh.Shutdown()
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			ui.Stop()
			eng.Stop()
			files.Stop()
			_ = gw.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("tgram stopped")
			return nil
		},
	})
}
