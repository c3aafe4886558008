package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mapflag/mapflag-client/internal/color"
	"github.com/mapflag/mapflag-client/internal/domain"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/session",
		Summary:     "Get session",
		Description: "Returns the current identity and token lifecycle phase",
		Tags:        []string{"Session"},
	}, s.handleGetSession)

	huma.Register(s.api, huma.Operation{
		OperationID: "signInGuest",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/guest",
		Summary:     "Sign in as guest",
		Description: "Switches the session to the guest token",
		Tags:        []string{"Session"},
	}, s.handleSignInGuest)

	huma.Register(s.api, huma.Operation{
		OperationID: "signIn",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/sign-in/{provider}",
		Summary:     "Sign in",
		Description: "Signs in with the named identity provider",
		Tags:        []string{"Session"},
	}, s.handleSignIn)

	huma.Register(s.api, huma.Operation{
		OperationID: "signOut",
		Method:      http.MethodPost,
		Path:        "/api/v1/session/sign-out",
		Summary:     "Sign out",
		Description: "Clears the identity and stops token refresh",
		Tags:        []string{"Session"},
	}, s.handleSignOut)
}

// SessionResponse is the client-visible session. The token itself is never exposed.
type SessionResponse struct {
	UserName       string              `json:"user_name"`
	UserEmail      string              `json:"user_email"`
	UserPicture    string              `json:"user_picture"`
	AvatarColor    string              `json:"avatar_color,omitempty" doc:"Fallback avatar color when there is no picture"`
	UID            string              `json:"uid"`
	IsLoadingToken bool                `json:"is_loading_token"`
	IsGuest        bool                `json:"is_guest"`
	HasToken       bool                `json:"has_token"`
	Phase          domain.SessionPhase `json:"phase" enum:"unknown,anonymous,guest,authenticated"`
	LastError      string              `json:"last_error,omitempty"`
}

// SessionOutput wraps the session for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// SignInInput names the identity provider.
type SignInInput struct {
	Provider string `path:"provider" enum:"google,facebook,local" doc:"Identity provider"`
}

func toSessionResponse(state domain.Session) SessionResponse {
	return SessionResponse{
		UserName:       state.UserName,
		UserEmail:      state.UserEmail,
		UserPicture:    state.UserPicture,
		AvatarColor:    color.ForUser(state.UID),
		UID:            state.UID,
		IsLoadingToken: state.IsLoadingToken,
		IsGuest:        state.IsGuest(),
		HasToken:       state.Token != "",
		Phase:          state.Phase(),
		LastError:      state.LastError,
	}
}

func (s *Server) sessionOutput() *SessionOutput {
	return &SessionOutput{Body: toSessionResponse(s.services.Session.State())}
}

func (s *Server) handleGetSession(_ context.Context, _ *struct{}) (*SessionOutput, error) {
	return s.sessionOutput(), nil
}

func (s *Server) handleSignInGuest(_ context.Context, _ *struct{}) (*SessionOutput, error) {
	s.services.Session.SignInWithGuest()
	return s.sessionOutput(), nil
}

func (s *Server) handleSignIn(ctx context.Context, input *SignInInput) (*SessionOutput, error) {
	if err := s.services.Session.SignInWith(ctx, input.Provider); err != nil {
		return nil, apiError(err)
	}
	return s.sessionOutput(), nil
}

func (s *Server) handleSignOut(ctx context.Context, _ *struct{}) (*SessionOutput, error) {
	if err := s.services.Session.SignOut(ctx); err != nil {
		return nil, apiError(err)
	}
	return s.sessionOutput(), nil
}
