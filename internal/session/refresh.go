package session

import (
	"context"
	"strconv"
	"time"

	"github.com/mapflag/mapflag-client/internal/auth"
	"github.com/mapflag/mapflag-client/internal/store"
)

// refreshLoop keeps the token fresh until ctx is cancelled. Each cycle waits out
// the remainder of the interval since the persisted refresh time, so restarts do
// not refresh more often than the interval.
func (m *Manager) refreshLoop(ctx context.Context, user auth.User) {
	log := m.logger.With("uid", user.UID())

	for {
		if wait := m.untilNextRefresh(ctx); wait > 0 {
			if !m.sleep(ctx, wait) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		token, err := user.IDToken(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("token refresh failed", "retry_in", m.retry, "error", err)
			m.Dispatch(SetError{Message: "refresh failed, retry in " + m.retry.String()})
			if !m.sleep(ctx, m.retry) {
				return
			}
			continue
		}

		m.Dispatch(SetToken{Token: token})
		if m.State().LastError != "" {
			m.Dispatch(SetError{})
		}
		m.persistRefreshTime(ctx)
		log.Debug("token refreshed")
	}
}

// untilNextRefresh returns how long to wait; zero or less means refresh now.
func (m *Manager) untilNextRefresh(ctx context.Context) time.Duration {
	if m.store == nil {
		return 0
	}

	raw, ok, err := m.store.GetItem(ctx, store.KeyTokenExpireInfo)
	if err != nil {
		m.logger.Warn("read refresh timestamp", "error", err)
		return 0
	}
	if !ok {
		return 0
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("invalid refresh timestamp", "value", raw)
		return 0
	}

	last := time.UnixMilli(millis)
	return m.interval - m.clock.Now().Sub(last)
}

func (m *Manager) persistRefreshTime(ctx context.Context) {
	if m.store == nil {
		return
	}
	now := strconv.FormatInt(m.clock.Now().UnixMilli(), 10)
	if err := m.store.SetItem(ctx, store.KeyTokenExpireInfo, now); err != nil {
		m.logger.Warn("persist refresh timestamp", "error", err)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-m.clock.After(d):
		return true
	}
}
