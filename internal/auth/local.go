package auth

import (
	"context"
	"sync"
	"time"
)

// LocalProvider signs in as a fixed identity with self-minted PASETO tokens.
// It is meant for development against a server that shares the key.
type LocalProvider struct {
	tokens   *TokenService
	identity LocalIdentity

	mu      sync.RWMutex
	current *localUser
}

// NewLocalProvider returns a provider that signs in as identity.
func NewLocalProvider(tokens *TokenService, identity LocalIdentity) *LocalProvider {
	return &LocalProvider{tokens: tokens, identity: identity}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return ProviderLocal }

// SignIn implements Provider.
func (p *LocalProvider) SignIn(_ context.Context) (User, error) {
	user := &localUser{tokens: p.tokens, identity: p.identity}
	if _, err := user.mint(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = user
	p.mu.Unlock()
	return user, nil
}

// SignOut implements Provider.
func (p *LocalProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return nil
}

// CurrentUser implements Provider.
func (p *LocalProvider) CurrentUser() User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

type localUser struct {
	tokens   *TokenService
	identity LocalIdentity

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (u *localUser) DisplayName() string { return u.identity.Name }
func (u *localUser) Email() string       { return u.identity.Email }
func (u *localUser) PhotoURL() string    { return u.identity.Picture }
func (u *localUser) UID() string         { return u.identity.UID }

func (u *localUser) IDToken(_ context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.token != "" && u.tokens.clock.Now().Add(tokenRefreshSkew).Before(u.expiresAt) {
		return u.token, nil
	}
	return u.mintLocked()
}

func (u *localUser) mint() (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.mintLocked()
}

func (u *localUser) mintLocked() (string, error) {
	token, expires, err := u.tokens.Mint(u.identity)
	if err != nil {
		return "", err
	}
	u.token, u.expiresAt = token, expires
	return token, nil
}
