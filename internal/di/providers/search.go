package providers

import (
	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/config"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/search"
)

// SearchIndexHandle owns the bleve index the tag store mirrors its list into.
type SearchIndexHandle struct {
	*search.TagIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex opens the tag index next to the store.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).Component("search")

	index, err := search.NewTagIndex(search.Options{DataPath: cfg.Data.BasePath, Logger: log})
	if err != nil {
		return nil, err
	}

	if n, err := index.DocumentCount(); err == nil && n > 0 {
		log.Debug("tags carried over from last run", "documents", n)
	}
	return &SearchIndexHandle{TagIndex: index}, nil
}
