package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/mapflag/mapflag-client/internal/clock"
	"github.com/mapflag/mapflag-client/internal/id"
)

const (
	tokenIssuer   = "mapflag-local"
	tokenAudience = "mapflag-api"

	// DefaultLocalTokenTTL matches the lifetime of a Firebase ID token.
	DefaultLocalTokenTTL = time.Hour
)

// TokenService mints and verifies PASETO v4.local tokens for the local provider.
type TokenService struct {
	symmetricKey paseto.V4SymmetricKey
	ttl          time.Duration
	clock        clock.Clock
}

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, ttl time.Duration, clk clock.Clock) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}

	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO symmetric key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultLocalTokenTTL
	}
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &TokenService{symmetricKey: symmetricKey, ttl: ttl, clock: clk}, nil
}

// Mint issues a token for the identity and returns it with its expiry.
func (s *TokenService) Mint(identity LocalIdentity) (string, time.Time, error) {
	now := s.clock.Now()
	expires := now.Add(s.ttl)

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(identity.UID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)

	tokenID, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Token.Set only errors on values that cannot be JSON encoded
	_ = token.Set("name", identity.Name)
	//nolint:errcheck // see above
	_ = token.Set("email", identity.Email)
	if identity.Picture != "" {
		//nolint:errcheck // see above
		_ = token.Set("picture", identity.Picture)
	}

	return token.V4Encrypt(s.symmetricKey, nil), expires, nil
}

// Verify decrypts a token and checks issuer, audience and validity window.
func (s *TokenService) Verify(tokenString string) (*LocalClaims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.clock.Now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims LocalClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &claims, nil
}
