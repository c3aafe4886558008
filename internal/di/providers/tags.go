package providers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/do/v2"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/graphql"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/tags"
)

// TagStoreHandle wraps the tag store with the goroutines that keep it current:
// the live change feed and the session watcher that refetches on identity changes.
type TagStoreHandle struct {
	*tags.Store
	Remote *tags.Remote

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Shutdown implements do.Shutdownable.
func (h *TagStoreHandle) Shutdown() error {
	h.cancel()
	h.wg.Wait()
	return nil
}

// ProvideTagStore provides the tag store and starts its feed. The feed resubscribes
// on its own, so a failing subscription channel does not fail the container.
func ProvideTagStore(i do.Injector) (*TagStoreHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	gateway := do.MustInvoke[*graphql.Gateway](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	sessionHandle := do.MustInvoke[*SessionManagerHandle](i)

	tagLog := log.Component("tags")
	remote := tags.NewRemote(gateway, tagLog)
	store := tags.NewStore(tags.Options{
		List:      tags.NewRemoteTagList(gateway),
		Details:   remote,
		UserTags:  tags.NewRemoteUserTags(gateway),
		Threshold: remote,
		Votes:     remote,
		Index:     indexHandle.TagIndex,
		Emitter:   sseHandle.Manager,
		Logger:    tagLog,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h := &TagStoreHandle{Store: store, Remote: remote, cancel: cancel}

	feed := tags.NewLiveFeed(gateway, sseHandle.Manager, tagLog)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		feed.Follow(ctx, store)
	}()
	go func() {
		defer h.wg.Done()
		watchSession(ctx, sessionHandle, store, tagLog)
	}()

	log.Info("Tag store started")
	return h, nil
}

// sessionSource is the part of the session manager the watcher needs.
type sessionSource interface {
	State() domain.Session
	Subscribe() (<-chan domain.Session, func())
}

// watchSession refetches the tag list once the session settles and whenever the
// identity changes. User tags are loaded only for authenticated sessions.
func watchSession(ctx context.Context, sessions sessionSource, store *tags.Store, log *slog.Logger) {
	updates, unsubscribe := sessions.Subscribe()
	defer unsubscribe()

	last := domain.PhaseUnknown
	lastUID := ""
	refresh := func(state domain.Session) {
		phase := state.Phase()
		if phase == domain.PhaseUnknown || (phase == last && state.UID == lastUID) {
			return
		}
		last, lastUID = phase, state.UID

		if err := store.Refetch(ctx); err != nil {
			log.Warn("Tag refetch after session change failed", "phase", phase, "error", err)
		}
		if phase == domain.PhaseAuthenticated {
			if err := store.GetUserTagList(ctx); err != nil {
				log.Warn("User tag fetch failed", "uid", state.UID, "error", err)
			}
		}
	}

	refresh(sessions.State())
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			refresh(state)
		}
	}
}
