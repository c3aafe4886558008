package domain

// GuestToken is the sentinel token of a guest session.
const GuestToken = "guest"

// SessionPhase is the token lifecycle state.
type SessionPhase string

const (
	PhaseUnknown       SessionPhase = "unknown"
	PhaseAnonymous     SessionPhase = "anonymous"
	PhaseGuest         SessionPhase = "guest"
	PhaseAuthenticated SessionPhase = "authenticated"
)

// Session is the authenticated-user identity as seen by the client.
// An empty Token means no token has been issued.
type Session struct {
	UserName       string `json:"user_name"`
	UserEmail      string `json:"user_email"`
	UserPicture    string `json:"user_picture"`
	UID            string `json:"uid"`
	Token          string `json:"-"`
	IsLoadingToken bool   `json:"is_loading_token"`
	LastError      string `json:"last_error,omitempty"`
}

// NewSession returns the state at process start: empty identity, still loading.
func NewSession() Session {
	return Session{IsLoadingToken: true}
}

// IsGuest reports whether the token is exactly the guest sentinel.
func (s Session) IsGuest() bool {
	return s.Token == GuestToken
}

// Phase derives the lifecycle state.
func (s Session) Phase() SessionPhase {
	switch {
	case s.IsGuest():
		return PhaseGuest
	case s.IsLoadingToken:
		return PhaseUnknown
	case s.Token != "" && s.UID != "":
		return PhaseAuthenticated
	default:
		return PhaseAnonymous
	}
}
