// Package session owns the signed-in identity and its access token.
package session

import "github.com/mapflag/mapflag-client/internal/domain"

// Action is a session state transition. The set is closed: only this package
// can declare actions.
type Action interface {
	isAction()
}

type (
	SetUserName    struct{ Name string }
	SetUserEmail   struct{ Email string }
	SetUserPicture struct{ Picture string }
	SetToken       struct{ Token string }
	SetUID         struct{ UID string }
	// CleanUser resets the identity. The loading flag is kept as is.
	CleanUser  struct{}
	SetLoading struct{ Loading bool }
	SetError   struct{ Message string }
)

func (SetUserName) isAction()    {}
func (SetUserEmail) isAction()   {}
func (SetUserPicture) isAction() {}
func (SetToken) isAction()       {}
func (SetUID) isAction()         {}
func (CleanUser) isAction()      {}
func (SetLoading) isAction()     {}
func (SetError) isAction()       {}

// Reduce returns the state after applying a.
func Reduce(s domain.Session, a Action) domain.Session {
	switch a := a.(type) {
	case SetUserName:
		s.UserName = a.Name
	case SetUserEmail:
		s.UserEmail = a.Email
	case SetUserPicture:
		s.UserPicture = a.Picture
	case SetToken:
		s.Token = a.Token
	case SetUID:
		s.UID = a.UID
	case CleanUser:
		s = domain.Session{IsLoadingToken: s.IsLoadingToken}
	case SetLoading:
		s.IsLoadingToken = a.Loading
	case SetError:
		s.LastError = a.Message
	}
	return s
}
