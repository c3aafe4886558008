package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mapflag/mapflag-client/internal/auth"
	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/sse"
)

const (
	DefaultRefreshInterval      = 15 * time.Minute
	DefaultRefreshRetryInterval = 30 * time.Second

	subscriberBuffer = 16
)

// KV persists the refresh timestamp across restarts.
type KV interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
}

// Options configures a Manager.
type Options struct {
	Providers auth.Providers
	// DefaultProvider is consulted by Start for an existing user.
	DefaultProvider string
	Store           KV
	Clock           clock.Clock
	Emitter         sse.Emitter
	Logger          *slog.Logger

	RefreshInterval      time.Duration
	RefreshRetryInterval time.Duration
}

// Manager owns the session state. All mutations go through dispatch.
type Manager struct {
	providers       auth.Providers
	defaultProvider string
	store           KV
	clock           clock.Clock
	emitter         sse.Emitter
	logger          *slog.Logger
	interval        time.Duration
	retry           time.Duration

	// transition serializes sign-in, sign-out, and user handling.
	transition sync.Mutex

	mu          sync.RWMutex
	state       domain.Session
	user        auth.User
	provider    auth.Provider
	subscribers map[chan domain.Session]struct{}

	refreshMu     sync.Mutex
	refreshCancel context.CancelFunc
	refreshDone   chan struct{}
}

// NewManager creates a Manager in the initial loading state.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Emitter == nil {
		opts.Emitter = sse.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.RefreshRetryInterval <= 0 {
		opts.RefreshRetryInterval = DefaultRefreshRetryInterval
	}

	return &Manager{
		providers:       opts.Providers,
		defaultProvider: opts.DefaultProvider,
		store:           opts.Store,
		clock:           opts.Clock,
		emitter:         opts.Emitter,
		logger:          opts.Logger,
		interval:        opts.RefreshInterval,
		retry:           opts.RefreshRetryInterval,
		state:           domain.NewSession(),
		subscribers:     make(map[chan domain.Session]struct{}),
	}
}

// State returns a snapshot of the session.
func (m *Manager) State() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsGuest reports whether the session holds the guest token.
func (m *Manager) IsGuest() bool {
	return m.State().IsGuest()
}

// Token returns the bearer token for API calls. Guests and signed-out sessions get "".
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	state, user := m.state, m.user
	m.mu.RUnlock()

	if state.IsGuest() || state.Token == "" {
		return "", nil
	}
	if user == nil {
		return state.Token, nil
	}
	return user.IDToken(ctx)
}

// Subscribe returns a channel of state snapshots, one per dispatched action.
// Slow subscribers miss snapshots rather than block dispatch.
func (m *Manager) Subscribe() (<-chan domain.Session, func()) {
	ch := make(chan domain.Session, subscriberBuffer)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, ch)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Dispatch applies an action and notifies subscribers.
func (m *Manager) Dispatch(a Action) domain.Session {
	m.mu.Lock()
	m.state = Reduce(m.state, a)
	state := m.state
	for ch := range m.subscribers {
		select {
		case ch <- state:
		default:
			m.logger.Warn("session subscriber is slow, dropping snapshot")
		}
	}
	m.mu.Unlock()

	m.emitter.Emit(sse.NewSessionChangedEvent(state))
	return state
}

// SignInWithGuest switches to the guest session. No provider or storage is touched.
func (m *Manager) SignInWithGuest() {
	m.Dispatch(SetToken{Token: domain.GuestToken})
}

// SignInWithGoogle signs in through the Google provider.
func (m *Manager) SignInWithGoogle(ctx context.Context) error {
	return m.SignInWith(ctx, auth.ProviderGoogle)
}

// SignInWith signs in through the named provider and handles the resulting user.
func (m *Manager) SignInWith(ctx context.Context, providerName string) error {
	p, ok := m.providers[providerName]
	if !ok {
		return errors.NotFoundf("auth provider %q is not configured", providerName)
	}

	user, err := p.SignIn(ctx)
	if err != nil {
		m.Dispatch(SetError{Message: "sign-in failed: " + err.Error()})
		return err
	}

	m.mu.Lock()
	m.provider = p
	m.mu.Unlock()

	return m.HandleUser(ctx, user)
}

// SignOut stops token refresh, resets the session, and signs out of the provider.
// The refresh loop has exited before the reset, so no refreshed token can land
// on the signed-out session.
func (m *Manager) SignOut(ctx context.Context) error {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.stopRefresh()

	m.mu.Lock()
	p := m.provider
	m.provider = nil
	m.user = nil
	m.mu.Unlock()

	m.Dispatch(CleanUser{})

	if p != nil {
		if err := p.SignOut(ctx); err != nil {
			m.logger.Warn("provider sign-out failed", "provider", p.Name(), "error", err)
		}
	}
	return m.handleUser(ctx, nil)
}

// HandleUser reacts to a change of the provider's user.
//
// A nil user marks loading complete and leaves the token unset. Otherwise the
// profile fields are set, then the token, then loading completes, and the uid is
// set last: consumers treat a non-empty uid as "session ready".
func (m *Manager) HandleUser(ctx context.Context, user auth.User) error {
	m.transition.Lock()
	defer m.transition.Unlock()
	return m.handleUser(ctx, user)
}

// handleUser is HandleUser for callers already holding transition.
func (m *Manager) handleUser(ctx context.Context, user auth.User) error {
	m.stopRefresh()

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	if user == nil {
		m.Dispatch(SetLoading{Loading: false})
		return nil
	}

	m.Dispatch(SetUserName{Name: user.DisplayName()})
	m.Dispatch(SetUserEmail{Email: user.Email()})
	m.Dispatch(SetUserPicture{Picture: user.PhotoURL()})

	token, err := user.IDToken(ctx)
	if err != nil {
		m.logger.Error("fetch id token failed", "uid", user.UID(), "error", err)
		m.Dispatch(SetError{Message: "token fetch failed: " + err.Error()})
		m.Dispatch(SetLoading{Loading: false})
		return errors.Wrap(err, errors.CodeUnauthorized, "fetch id token")
	}

	m.Dispatch(SetToken{Token: token})
	m.Dispatch(SetLoading{Loading: false})
	m.Dispatch(SetUID{UID: user.UID()})
	if m.State().LastError != "" {
		m.Dispatch(SetError{})
	}

	m.startRefresh(user)
	m.logger.Info("session ready", "uid", user.UID())
	return nil
}

// Start picks up a user the default provider already holds.
func (m *Manager) Start(ctx context.Context) error {
	var user auth.User
	if p, ok := m.providers[m.defaultProvider]; ok {
		if user = p.CurrentUser(); user != nil {
			m.mu.Lock()
			m.provider = p
			m.mu.Unlock()
		}
	}
	return m.HandleUser(ctx, user)
}

// Close stops the refresh loop.
func (m *Manager) Close() {
	m.stopRefresh()
}

func (m *Manager) startRefresh(user auth.User) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	m.refreshMu.Lock()
	m.refreshCancel = cancel
	m.refreshDone = done
	m.refreshMu.Unlock()

	go func() {
		defer close(done)
		m.refreshLoop(ctx, user)
	}()
}

func (m *Manager) stopRefresh() {
	m.refreshMu.Lock()
	cancel, done := m.refreshCancel, m.refreshDone
	m.refreshCancel, m.refreshDone = nil, nil
	m.refreshMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
