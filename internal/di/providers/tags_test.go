package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/tags"
)

type countingList struct {
	mu        sync.Mutex
	refetches int
	userLoads int
}

func (c *countingList) Tags() []domain.Tag             { return nil }
func (c *countingList) UpdateTagList(domain.TagChange) {}
func (c *countingList) UserAddTags() []domain.Tag      { return nil }

func (c *countingList) Refetch(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refetches++
	return nil
}

func (c *countingList) GetUserTagList(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userLoads++
	return nil
}

func (c *countingList) counts() (refetches, userLoads int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refetches, c.userLoads
}

type scriptedSessions struct {
	initial domain.Session
	updates chan domain.Session
}

func (s *scriptedSessions) State() domain.Session { return s.initial }

func (s *scriptedSessions) Subscribe() (<-chan domain.Session, func()) {
	return s.updates, func() {}
}

func TestWatchSession(t *testing.T) {
	list := &countingList{}
	store := tags.NewStore(tags.Options{List: list, UserTags: list, Logger: logger.Discard().Logger})
	sessions := &scriptedSessions{initial: domain.NewSession(), updates: make(chan domain.Session)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchSession(ctx, sessions, store, logger.Discard().Logger)
	}()

	// Still loading: nothing fetched.
	sessions.updates <- domain.Session{IsLoadingToken: true}
	// Settled as guest: refetch, no user tags.
	sessions.updates <- domain.Session{Token: domain.GuestToken}
	// Same phase again: ignored.
	sessions.updates <- domain.Session{Token: domain.GuestToken}
	// Signed in: refetch and user tags.
	sessions.updates <- domain.Session{UID: "u1", Token: "t1"}
	// Token refreshed for the same user: ignored.
	sessions.updates <- domain.Session{UID: "u1", Token: "t2"}
	// Another user.
	sessions.updates <- domain.Session{UID: "u2", Token: "t3"}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "watcher did not stop")
	}

	refetches, userLoads := list.counts()
	assert.Equal(t, 3, refetches)
	assert.Equal(t, 2, userLoads)
}

func TestWatchSession_ClosedUpdates(t *testing.T) {
	list := &countingList{}
	store := tags.NewStore(tags.Options{List: list, UserTags: list, Logger: logger.Discard().Logger})
	updates := make(chan domain.Session)
	close(updates)
	sessions := &scriptedSessions{initial: domain.Session{}, updates: updates}

	watchSession(context.Background(), sessions, store, logger.Discard().Logger)

	refetches, _ := list.counts()
	assert.Equal(t, 1, refetches)
}
