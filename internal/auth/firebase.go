package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/store"
)

const (
	identityToolkitBase = "https://identitytoolkit.googleapis.com/v1"
	secureTokenBase     = "https://securetoken.googleapis.com/v1"

	// Refresh when the cached token has less than this left.
	tokenRefreshSkew = 5 * time.Minute
)

// Firebase IdP provider ids.
const (
	firebaseGoogleID   = "google.com"
	firebaseFacebookID = "facebook.com"
)

// KV persists the signed-in identity across restarts.
type KV interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	DeleteItem(ctx context.Context, key string) error
}

// FirebaseOptions configures the Firebase Auth REST client.
type FirebaseOptions struct {
	APIKey string
	// EmulatorHost (host:port) routes every call to the auth emulator when set.
	EmulatorHost string
	HTTPClient   *http.Client
	// Store keeps the user signed in across restarts. Nil keeps it in memory only.
	Store  KV
	Clock  clock.Clock
	Logger *slog.Logger
}

// CredentialFunc returns the IdP credential posted to signInWithIdp,
// e.g. "id_token=<google id token>".
type CredentialFunc func(ctx context.Context) (string, error)

// StaticCredential returns a CredentialFunc for a configured IdP token.
func StaticCredential(param, token string) CredentialFunc {
	return func(context.Context) (string, error) {
		if token == "" {
			return "", errors.Unauthorized("no identity provider credential configured")
		}
		return param + "=" + url.QueryEscape(token), nil
	}
}

// FirebaseProvider signs in through Firebase Auth's REST API.
type FirebaseProvider struct {
	name        string
	providerID  string
	credential  CredentialFunc
	apiKey      string
	toolkitBase string
	secureBase  string
	client      *http.Client
	kv          KV
	clock       clock.Clock
	logger      *slog.Logger

	restore sync.Once
	mu      sync.RWMutex
	current *firebaseUser
}

// NewGoogleProvider returns the Google provider.
func NewGoogleProvider(opts FirebaseOptions, credential CredentialFunc) *FirebaseProvider {
	return newFirebaseProvider(ProviderGoogle, firebaseGoogleID, opts, credential)
}

// NewFacebookProvider returns the Facebook provider.
func NewFacebookProvider(opts FirebaseOptions, credential CredentialFunc) *FirebaseProvider {
	return newFirebaseProvider(ProviderFacebook, firebaseFacebookID, opts, credential)
}

func newFirebaseProvider(name, providerID string, opts FirebaseOptions, credential CredentialFunc) *FirebaseProvider {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	toolkit, secure := identityToolkitBase, secureTokenBase
	if opts.EmulatorHost != "" {
		host := strings.TrimSuffix(strings.TrimPrefix(opts.EmulatorHost, "http://"), "/")
		toolkit = "http://" + host + "/identitytoolkit.googleapis.com/v1"
		secure = "http://" + host + "/securetoken.googleapis.com/v1"
	}

	return &FirebaseProvider{
		name:        name,
		providerID:  providerID,
		credential:  credential,
		apiKey:      opts.APIKey,
		toolkitBase: toolkit,
		secureBase:  secure,
		client:      opts.HTTPClient,
		kv:          opts.Store,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Name implements Provider.
func (p *FirebaseProvider) Name() string { return p.name }

// CurrentUser implements Provider. The first call restores a user persisted
// by an earlier process; its id token is fetched with the refresh token on demand.
func (p *FirebaseProvider) CurrentUser() User {
	p.restore.Do(p.load)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

type signInWithIdpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
}

type signInWithIdpResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// SignIn implements Provider.
func (p *FirebaseProvider) SignIn(ctx context.Context) (User, error) {
	credential, err := p.credential(ctx)
	if err != nil {
		return nil, err
	}

	body := signInWithIdpRequest{
		PostBody:            credential + "&providerId=" + p.providerID,
		RequestURI:          "http://localhost",
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}

	var resp signInWithIdpResponse
	if err := p.postJSON(ctx, p.toolkitBase+"/accounts:signInWithIdp", body, &resp); err != nil {
		return nil, fmt.Errorf("%s sign-in: %w", p.name, err)
	}

	user := &firebaseUser{
		provider:     p,
		uid:          resp.LocalID,
		email:        resp.Email,
		displayName:  resp.DisplayName,
		photoURL:     resp.PhotoURL,
		refreshToken: resp.RefreshToken,
	}
	user.setToken(resp.IDToken, resp.ExpiresIn)

	// The stored user must not replace this one later.
	p.restore.Do(func() {})
	p.mu.Lock()
	p.current = user
	p.mu.Unlock()
	p.save(ctx, user.record())

	p.logger.Info("signed in", "provider", p.name, "uid", user.uid)
	return user, nil
}

// SignOut implements Provider. Firebase sign-out is local: the refresh token is dropped.
func (p *FirebaseProvider) SignOut(ctx context.Context) error {
	p.restore.Do(func() {})
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	if p.kv == nil {
		return nil
	}
	if err := p.kv.DeleteItem(ctx, p.storeKey()); err != nil {
		return fmt.Errorf("forget %s user: %w", p.name, err)
	}
	return nil
}

// persistedUser is the stored form of a signed-in identity.
type persistedUser struct {
	UID          string `json:"uid"`
	Email        string `json:"email,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	PhotoURL     string `json:"photoUrl,omitempty"`
	RefreshToken string `json:"refreshToken"`
}

func (p *FirebaseProvider) storeKey() string {
	return store.KeyAuthUserPrefix + p.name
}

func (p *FirebaseProvider) load() {
	if p.kv == nil {
		return
	}

	raw, ok, err := p.kv.GetItem(context.Background(), p.storeKey())
	if err != nil {
		p.logger.Warn("read persisted user", "provider", p.name, "error", err)
		return
	}
	if !ok {
		return
	}

	var rec persistedUser
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.UID == "" || rec.RefreshToken == "" {
		p.logger.Warn("discarding invalid persisted user", "provider", p.name)
		return
	}

	p.mu.Lock()
	p.current = &firebaseUser{
		provider:     p,
		uid:          rec.UID,
		email:        rec.Email,
		displayName:  rec.DisplayName,
		photoURL:     rec.PhotoURL,
		refreshToken: rec.RefreshToken,
	}
	p.mu.Unlock()
	p.logger.Info("restored signed-in user", "provider", p.name, "uid", rec.UID)
}

func (p *FirebaseProvider) save(ctx context.Context, rec persistedUser) {
	if p.kv == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("encode user", "provider", p.name, "error", err)
		return
	}
	if err := p.kv.SetItem(ctx, p.storeKey(), string(data)); err != nil {
		p.logger.Warn("persist user", "provider", p.name, "uid", rec.UID, "error", err)
	}
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
}

func (p *FirebaseProvider) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.secureBase+"/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := p.do(req, &resp); err != nil {
		return nil, fmt.Errorf("refresh id token: %w", err)
	}
	return &resp, nil
}

func (p *FirebaseProvider) endpoint(base string) string {
	return base + "?key=" + url.QueryEscape(p.apiKey)
}

func (p *FirebaseProvider) postJSON(ctx context.Context, rawURL string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(rawURL), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, dest)
}

type firebaseErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *FirebaseProvider) do(req *http.Request, dest any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeTransport, "firebase request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var fe firebaseErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&fe)
		msg := "firebase: " + fe.Error.Message
		if fe.Error.Message == "" {
			msg = "firebase request failed"
		}
		if strings.Contains(fe.Error.Message, "TOKEN_EXPIRED") {
			return errors.ErrTokenExpired.WithCause(errors.New(msg))
		}
		return errors.FromHTTPStatus(resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrap(err, errors.CodeTransport, "decode firebase response")
	}
	return nil
}

// firebaseUser is a signed-in Firebase identity.
type firebaseUser struct {
	provider    *FirebaseProvider
	uid         string
	email       string
	displayName string
	photoURL    string

	mu           sync.Mutex
	idToken      string
	refreshToken string
	expiresAt    time.Time
}

func (u *firebaseUser) DisplayName() string { return u.displayName }
func (u *firebaseUser) Email() string       { return u.email }
func (u *firebaseUser) PhotoURL() string    { return u.photoURL }
func (u *firebaseUser) UID() string         { return u.uid }

// IDToken returns the cached token unless it expires within tokenRefreshSkew.
func (u *firebaseUser) IDToken(ctx context.Context) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.provider.clock.Now()
	if u.idToken != "" && now.Add(tokenRefreshSkew).Before(u.expiresAt) {
		return u.idToken, nil
	}

	resp, err := u.provider.refresh(ctx, u.refreshToken)
	if err != nil {
		return "", err
	}
	if resp.RefreshToken != "" && resp.RefreshToken != u.refreshToken {
		u.refreshToken = resp.RefreshToken
		u.provider.save(ctx, u.recordLocked())
	}
	u.setTokenLocked(resp.IDToken, resp.ExpiresIn)
	return u.idToken, nil
}

func (u *firebaseUser) record() persistedUser {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.recordLocked()
}

func (u *firebaseUser) recordLocked() persistedUser {
	return persistedUser{
		UID:          u.uid,
		Email:        u.email,
		DisplayName:  u.displayName,
		PhotoURL:     u.photoURL,
		RefreshToken: u.refreshToken,
	}
}

func (u *firebaseUser) setToken(token, expiresIn string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.setTokenLocked(token, expiresIn)
}

// setTokenLocked prefers the JWT exp claim and falls back to the expiresIn seconds.
func (u *firebaseUser) setTokenLocked(token, expiresIn string) {
	u.idToken = token
	if exp, err := tokenExpiry(token); err == nil {
		u.expiresAt = exp
		return
	}
	secs, err := strconv.Atoi(expiresIn)
	if err != nil {
		u.expiresAt = time.Time{}
		return
	}
	u.expiresAt = u.provider.clock.Now().Add(time.Duration(secs) * time.Second)
}
