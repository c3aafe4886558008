// Package tags holds the client's view of tags on the map: the list, the active tag
// and its detail, category filters, and the reconciliation of live changes.
package tags

import (
	"context"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/search"
)

// TagList owns the current tag list.
type TagList interface {
	Tags() []domain.Tag
	Refetch(ctx context.Context) error
	UpdateTagList(change domain.TagChange)
}

// DetailFetcher loads the detail of one tag.
type DetailFetcher interface {
	GetTagDetail(ctx context.Context, id string) (domain.TagDetail, error)
}

// UserTagSource holds the tags added by the signed-in user.
type UserTagSource interface {
	UserAddTags() []domain.Tag
	GetUserTagList(ctx context.Context) error
}

// ThresholdSource reports the vote count at which a tag is archived.
type ThresholdSource interface {
	Threshold(ctx context.Context) (int, error)
}

// VoteSender sends up-votes. cancel withdraws a previous vote.
type VoteSender interface {
	UpVote(ctx context.Context, id string, cancel bool) (domain.VoteResult, error)
}

// Indexer mirrors the tag list into a searchable index.
type Indexer interface {
	Replace(tags []domain.Tag) error
	ApplyChange(change domain.TagChange) error
	Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error)
}
