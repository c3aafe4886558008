package api

import (
	"context"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/mission"
	"github.com/mapflag/mapflag-client/internal/search"
)

// SessionService is the session manager as seen by the handlers.
type SessionService interface {
	State() domain.Session
	SignInWithGuest()
	SignInWith(ctx context.Context, provider string) error
	SignOut(ctx context.Context) error
}

// TagService is the tag store as seen by the handlers.
type TagService interface {
	Tags() []domain.Tag
	VisibleTags() []domain.Tag
	Refetch(ctx context.Context) error
	ActiveTagID() string
	SetActiveTagID(id string)
	ActiveTag() *domain.Tag
	ResetActiveTag()
	FetchTagDetail(ctx context.Context) error
	TagDetail() *domain.TagDetail
	FilterTags() []int
	AddFilterTags(categoryID int)
	ResetFilterTags(categoryID int)
	CategoryList() []domain.Category
	UserAddTags() []domain.Tag
	GetUserTagList(ctx context.Context) error
	Threshold(ctx context.Context) (int, error)
	UpVote(ctx context.Context, id string, cancel bool) (domain.VoteResult, error)
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error)
}

// MissionService is the mission context as seen by the handlers.
type MissionService interface {
	Open(categoryID int) error
	Active() bool
	Draft() (domain.TagDraft, bool)
	SetPosition(pos domain.Position) error
	SetContent(content string) error
	Submit(ctx context.Context) (domain.Tag, error)
}

// BarService renders the mission bar.
type BarService interface {
	View(lang string) mission.BarView
	Cancel()
}

// Services groups everything the API server calls into.
type Services struct {
	Session SessionService
	Tags    TagService
	Mission MissionService
	Bar     BarService
}
