package tags

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/graphql"
)

// Gateway is the part of the API client the remote sources use.
type Gateway interface {
	Query(ctx context.Context, req graphql.Request, policy graphql.FetchPolicy, dest any) error
	Mutate(ctx context.Context, req graphql.Request, dest any) error
	Subscribe(ctx context.Context, req graphql.Request) (<-chan *graphql.Response, error)
}

const tagFields = `
    __typename
    id
    categoryId
    coordinates { latitude longitude }
    content
    voteCount`

var (
	tagRenderListQuery = `query tagRenderList {
  tagRenderList {` + tagFields + `
  }
}`

	tagDetailQuery = `query getTagDetail($id: ID!) {
  getTagDetail(tagId: $id) {
    __typename
    id
    description
    imageUrl
    createUser { displayName }
    createTime
    lastUpdateTime
    voteCount
    hasUpVote
  }
}`

	userDataQuery = `query getUserData {
  getUserData {
    __typename
    uid
    addTags {` + tagFields + `
    }
  }
}`

	thresholdQuery = `query archivedThreshold {
  archivedThreshold
}`

	upVoteMutation = `mutation updateUpVote($tagId: ID!, $action: UpVoteAction!) {
  updateUpVote(tagId: $tagId, action: $action) {
    tagId
    numberOfUpVote
    hasUpVote
  }
}`

	addNewTagMutation = `mutation addNewTagData($data: AddNewTagDataInput!) {
  addNewTagData(data: $data) {
    tag {` + tagFields + `
    }
  }
}`

	tagChangeSubscription = `subscription tagChangeSubscription {
  tagChangeSubscription {
    changeType
    tagContent {` + tagFields + `
    }
  }
}`
)

type remoteTag struct {
	ID          string `json:"id"`
	CategoryID  int    `json:"categoryId"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Content   string `json:"content"`
	VoteCount int    `json:"voteCount"`
}

func (r remoteTag) toDomain() domain.Tag {
	return domain.Tag{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Position:   domain.Position{Latitude: r.Coordinates.Latitude, Longitude: r.Coordinates.Longitude},
		Content:    r.Content,
		VoteCount:  r.VoteCount,
	}
}

func toDomainTags(in []remoteTag) []domain.Tag {
	out := make([]domain.Tag, 0, len(in))
	for _, r := range in {
		out = append(out, r.toDomain())
	}
	return out
}

// RemoteTagList is a TagList backed by the tagRenderList query.
type RemoteTagList struct {
	gw Gateway

	mu   sync.RWMutex
	tags []domain.Tag
}

// NewRemoteTagList creates an empty list; call Refetch to load it.
func NewRemoteTagList(gw Gateway) *RemoteTagList {
	return &RemoteTagList{gw: gw}
}

// Tags returns a copy of the current list.
func (l *RemoteTagList) Tags() []domain.Tag {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Tag, len(l.tags))
	copy(out, l.tags)
	return out
}

// Refetch reloads the whole list from the server.
func (l *RemoteTagList) Refetch(ctx context.Context) error {
	var data struct {
		TagRenderList []remoteTag `json:"tagRenderList"`
	}
	if err := l.gw.Query(ctx, graphql.Request{Query: tagRenderListQuery}, graphql.NetworkOnly, &data); err != nil {
		return fmt.Errorf("fetch tag list: %w", err)
	}

	tags := toDomainTags(data.TagRenderList)
	l.mu.Lock()
	l.tags = tags
	l.mu.Unlock()
	return nil
}

// UpdateTagList applies one live change to the list.
func (l *RemoteTagList) UpdateTagList(change domain.TagChange) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tags = domain.ApplyChange(l.tags, change)
}

// RemoteUserTags is a UserTagSource backed by the getUserData query.
type RemoteUserTags struct {
	gw Gateway

	mu   sync.RWMutex
	tags []domain.Tag
}

// NewRemoteUserTags creates an empty source; call GetUserTagList to load it.
func NewRemoteUserTags(gw Gateway) *RemoteUserTags {
	return &RemoteUserTags{gw: gw}
}

// UserAddTags returns the last loaded list, nil before the first load.
func (u *RemoteUserTags) UserAddTags() []domain.Tag {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.tags == nil {
		return nil
	}
	out := make([]domain.Tag, len(u.tags))
	copy(out, u.tags)
	return out
}

// GetUserTagList reloads the user's tags.
func (u *RemoteUserTags) GetUserTagList(ctx context.Context) error {
	var data struct {
		GetUserData struct {
			UID     string      `json:"uid"`
			AddTags []remoteTag `json:"addTags"`
		} `json:"getUserData"`
	}
	if err := u.gw.Query(ctx, graphql.Request{Query: userDataQuery}, graphql.NetworkOnly, &data); err != nil {
		return fmt.Errorf("fetch user tags: %w", err)
	}

	tags := toDomainTags(data.GetUserData.AddTags)
	u.mu.Lock()
	u.tags = tags
	u.mu.Unlock()
	return nil
}

// Remote implements the stateless collaborators over the gateway.
type Remote struct {
	gw     Gateway
	logger *slog.Logger
}

// NewRemote creates a Remote.
func NewRemote(gw Gateway, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{gw: gw, logger: logger}
}

// GetTagDetail fetches the detail of id, bypassing the cache.
func (r *Remote) GetTagDetail(ctx context.Context, id string) (domain.TagDetail, error) {
	var data struct {
		GetTagDetail *struct {
			ID          string   `json:"id"`
			Description string   `json:"description"`
			ImageURL    []string `json:"imageUrl"`
			CreateUser  struct {
				DisplayName string `json:"displayName"`
			} `json:"createUser"`
			CreateTime     time.Time `json:"createTime"`
			LastUpdateTime time.Time `json:"lastUpdateTime"`
			VoteCount      int       `json:"voteCount"`
			HasUpVote      bool      `json:"hasUpVote"`
		} `json:"getTagDetail"`
	}

	req := graphql.Request{Query: tagDetailQuery, Variables: map[string]any{"id": id}}
	if err := r.gw.Query(ctx, req, graphql.NetworkOnly, &data); err != nil {
		return domain.TagDetail{}, err
	}
	d := data.GetTagDetail
	if d == nil {
		return domain.TagDetail{}, errors.NotFoundf("tag %s not found", id)
	}

	return domain.TagDetail{
		ID:          d.ID,
		Description: d.Description,
		ImageURLs:   d.ImageURL,
		CreatedBy:   d.CreateUser.DisplayName,
		CreatedAt:   d.CreateTime,
		UpdatedAt:   d.LastUpdateTime,
		VoteCount:   d.VoteCount,
		HasUpVoted:  d.HasUpVote,
	}, nil
}

// Threshold returns the archive threshold. It rarely changes, so the cache answers repeats.
func (r *Remote) Threshold(ctx context.Context) (int, error) {
	var data struct {
		ArchivedThreshold int `json:"archivedThreshold"`
	}
	if err := r.gw.Query(ctx, graphql.Request{Query: thresholdQuery}, graphql.CacheFirst, &data); err != nil {
		return 0, fmt.Errorf("fetch threshold: %w", err)
	}
	return data.ArchivedThreshold, nil
}

// UpVote sends an up-vote, or withdraws it when cancel is set.
func (r *Remote) UpVote(ctx context.Context, id string, cancel bool) (domain.VoteResult, error) {
	action := "UPVOTE"
	if cancel {
		action = "CANCEL_UPVOTE"
	}

	var data struct {
		UpdateUpVote struct {
			TagID          string `json:"tagId"`
			NumberOfUpVote int    `json:"numberOfUpVote"`
			HasUpVote      bool   `json:"hasUpVote"`
		} `json:"updateUpVote"`
	}
	req := graphql.Request{
		Query:     upVoteMutation,
		Variables: map[string]any{"tagId": id, "action": action},
	}
	if err := r.gw.Mutate(ctx, req, &data); err != nil {
		return domain.VoteResult{}, fmt.Errorf("up-vote %s: %w", id, err)
	}

	return domain.VoteResult{
		TagID:      data.UpdateUpVote.TagID,
		VoteCount:  data.UpdateUpVote.NumberOfUpVote,
		HasUpVoted: data.UpdateUpVote.HasUpVote,
	}, nil
}

// AddNewTag creates a tag from a mission draft.
func (r *Remote) AddNewTag(ctx context.Context, draft domain.TagDraft) (domain.Tag, error) {
	var data struct {
		AddNewTagData struct {
			Tag remoteTag `json:"tag"`
		} `json:"addNewTagData"`
	}
	req := graphql.Request{
		Query: addNewTagMutation,
		Variables: map[string]any{"data": map[string]any{
			"categoryId": draft.CategoryID,
			"coordinates": map[string]any{
				"latitude":  draft.Position.Latitude,
				"longitude": draft.Position.Longitude,
			},
			"content": draft.Content,
		}},
	}
	if err := r.gw.Mutate(ctx, req, &data); err != nil {
		return domain.Tag{}, fmt.Errorf("add tag: %w", err)
	}
	return data.AddNewTagData.Tag.toDomain(), nil
}
