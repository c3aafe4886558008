package auth

import "time"

// LocalIdentity is the profile the local provider signs in as.
type LocalIdentity struct {
	UID     string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// LocalClaims are the claims carried by a local provider token.
type LocalClaims struct {
	LocalIdentity
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}
