// Package client assembles a HapTalk client for one profile.
package client

import (
	"context"

	"github.com/matheus3301/haptalk/internal/bus"
	"github.com/matheus3301/haptalk/internal/chat"
	"github.com/matheus3301/haptalk/internal/conn"
	"github.com/matheus3301/haptalk/internal/lock"
	"github.com/matheus3301/haptalk/internal/logging"
	"github.com/matheus3301/haptalk/internal/outbox"
	"github.com/matheus3301/haptalk/internal/profile"
	"github.com/matheus3301/haptalk/internal/status"
	"github.com/matheus3301/haptalk/internal/store"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile  string
	Endpoint string
	// Console tees logs to stderr; only safe when no TUI owns the terminal.
	Console bool
	Debug   bool
}

// SessionID is the profile's persistent sender identity.
type SessionID string

// Module returns the fx module for the client, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Options(
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Module("client",
			fx.Supply(p),
			fx.Provide(
				provideLogger,
				provideBus,
				provideStateMachine,
				provideLock,
				provideStore,
				provideSessionID,
				provideInbox,
				provideManager,
				provideReconciler,
				provideCore,
			),
			fx.Invoke(registerLifecycle),
		),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Path:      profile.LogPath(p.Profile),
		Console:   p.Console,
		Debug:     p.Debug,
		Component: "client",
		Profile:   p.Profile,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.AppDBPath(p.Profile)
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSessionID(db *store.DB, logger *zap.Logger) (SessionID, error) {
	id, err := db.SessionID()
	if err != nil {
		return "", err
	}
	logger.Info("session id", zap.String("session_id", id))
	return SessionID(id), nil
}

func provideInbox(id SessionID, db *store.DB, b *bus.Bus, logger *zap.Logger) *chat.Inbox {
	return chat.NewInbox(string(id), db, b, logger)
}

func provideManager(p Params, inbox *chat.Inbox, m *status.Machine, logger *zap.Logger) *conn.Manager {
	return conn.New(p.Endpoint, conn.WebSocketDialer{}, inbox, m, logger)
}

func provideReconciler(db *store.DB, mgr *conn.Manager, b *bus.Bus, logger *zap.Logger) *outbox.Reconciler {
	return outbox.NewReconciler(db, mgr, b, logger)
}

func provideCore(inbox *chat.Inbox, db *store.DB, rec *outbox.Reconciler, m *status.Machine, b *bus.Bus) *chat.Core {
	return chat.NewCore(inbox, db, rec, m, b)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, mgr *conn.Manager, rec *outbox.Reconciler, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribe before connecting so the first CONNECTED triggers a flush.
			rec.Start(context.Background())
			mgr.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			rec.Stop()
			mgr.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
