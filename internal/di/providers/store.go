package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/store"
)

// StoreHandle wraps the badger store holding identity, preferences and the device id.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the store under <data>/db and ensures a device id exists.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).Component("store")

	path := filepath.Join(cfg.Data.BasePath, "db")
	db, err := store.New(path, log)
	if err != nil {
		return nil, err
	}

	deviceID, err := db.DeviceID(context.Background())
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn("close store after failed init", "error", closeErr)
		}
		return nil, err
	}

	log.Info("store opened", "path", path, "device_id", deviceID)
	return &StoreHandle{Store: db}, nil
}
