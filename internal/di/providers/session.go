package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/auth"
	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/session"
)

// SessionManagerHandle wraps the session manager with shutdown capability.
type SessionManagerHandle struct {
	*session.Manager
}

// Shutdown implements do.Shutdownable.
func (h *SessionManagerHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideSessionManager provides the session manager and resolves the identity
// the default provider already holds.
func ProvideSessionManager(i do.Injector) (*SessionManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	providers := do.MustInvoke[auth.Providers](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	clk := do.MustInvoke[clock.Clock](i)

	defaultProvider := auth.ProviderGoogle
	if cfg.Firebase.Provider == config.AuthProviderLocal {
		defaultProvider = auth.ProviderLocal
	}

	manager := session.NewManager(session.Options{
		Providers:            providers,
		DefaultProvider:      defaultProvider,
		Store:                storeHandle.Store,
		Clock:                clk,
		Emitter:              sseHandle.Manager,
		Logger:               log.Component("session"),
		RefreshInterval:      cfg.Session.RefreshInterval,
		RefreshRetryInterval: cfg.Session.RefreshRetryInterval,
	})

	if err := manager.Start(context.Background()); err != nil {
		log.Warn("Session start failed, continuing signed out", "error", err)
	}

	return &SessionManagerHandle{Manager: manager}, nil
}
