package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mapflag/mapflag-client/internal/color"
	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/search"
)

func (s *Server) registerTagRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags",
		Summary:     "List tags",
		Description: "Returns the tag list, or only tags passing the category filters when visible=true",
		Tags:        []string{"Tags"},
	}, s.handleListTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "refetchTags",
		Method:      http.MethodPost,
		Path:        "/api/v1/tags/refetch",
		Summary:     "Refetch tags",
		Description: "Reloads the whole tag list from the server",
		Tags:        []string{"Tags"},
	}, s.handleRefetchTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/search",
		Summary:     "Search tags",
		Description: "Full-text search over tag content",
		Tags:        []string{"Tags"},
	}, s.handleSearchTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getActiveTag",
		Method:      http.MethodGet,
		Path:        "/api/v1/tags/active",
		Summary:     "Get active tag",
		Description: "Returns the selected tag id, the tag it resolves to, and its loaded detail",
		Tags:        []string{"Tags"},
	}, s.handleGetActiveTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "setActiveTag",
		Method:      http.MethodPut,
		Path:        "/api/v1/tags/active",
		Summary:     "Set active tag",
		Description: "Selects a tag; fetch_detail also loads its detail",
		Tags:        []string{"Tags"},
	}, s.handleSetActiveTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "resetActiveTag",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tags/active",
		Summary:     "Reset active tag",
		Description: "Clears the selection and its detail",
		Tags:        []string{"Tags"},
	}, s.handleResetActiveTag)

	huma.Register(s.api, huma.Operation{
		OperationID: "fetchActiveTagDetail",
		Method:      http.MethodPost,
		Path:        "/api/v1/tags/active/detail",
		Summary:     "Fetch active tag detail",
		Description: "Loads the detail of the selected tag",
		Tags:        []string{"Tags"},
	}, s.handleFetchActiveTagDetail)

	huma.Register(s.api, huma.Operation{
		OperationID: "upVoteTag",
		Method:      http.MethodPost,
		Path:        "/api/v1/tags/{id}/vote",
		Summary:     "Up-vote tag",
		Description: "Votes for a tag, or withdraws the vote with cancel=true",
		Tags:        []string{"Tags"},
	}, s.handleUpVote)

	huma.Register(s.api, huma.Operation{
		OperationID: "listCategories",
		Method:      http.MethodGet,
		Path:        "/api/v1/categories",
		Summary:     "List categories",
		Tags:        []string{"Tags"},
	}, s.handleListCategories)

	huma.Register(s.api, huma.Operation{
		OperationID: "listUserTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/user/tags",
		Summary:     "List user tags",
		Description: "Returns tags added by the signed-in user; refresh=true reloads them first",
		Tags:        []string{"Tags"},
	}, s.handleListUserTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getThreshold",
		Method:      http.MethodGet,
		Path:        "/api/v1/threshold",
		Summary:     "Get archive threshold",
		Tags:        []string{"Tags"},
	}, s.handleGetThreshold)
}

// === DTOs ===

// TagResponse is a tag in API responses.
type TagResponse struct {
	ID         string  `json:"id"`
	CategoryID int     `json:"category_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Content    string  `json:"content"`
	VoteCount  int     `json:"vote_count"`
}

func toTagResponse(t domain.Tag) TagResponse {
	return TagResponse{
		ID:         t.ID,
		CategoryID: t.CategoryID,
		Latitude:   t.Position.Latitude,
		Longitude:  t.Position.Longitude,
		Content:    t.Content,
		VoteCount:  t.VoteCount,
	}
}

func toTagResponses(tags []domain.Tag) []TagResponse {
	out := make([]TagResponse, 0, len(tags))
	for _, t := range tags {
		out = append(out, toTagResponse(t))
	}
	return out
}

// ListTagsInput contains parameters for listing tags.
type ListTagsInput struct {
	Visible bool `query:"visible" doc:"Apply the category filters"`
}

// TagListResponse is a list of tags.
type TagListResponse struct {
	Tags []TagResponse `json:"tags"`
}

// TagListOutput wraps a tag list for Huma.
type TagListOutput struct {
	Body TagListResponse
}

// SearchTagsInput contains search parameters.
type SearchTagsInput struct {
	Query      string `query:"q" doc:"Text to match against tag content"`
	Categories []int  `query:"category" doc:"Restrict to these category ids"`
	Limit      int    `query:"limit" minimum:"0" maximum:"100" doc:"Page size (default 20)"`
	Offset     int    `query:"offset" minimum:"0"`
	Sort       string `query:"sort" enum:"relevance,votes" default:"relevance"`
}

// SearchTagsOutput wraps search results for Huma.
type SearchTagsOutput struct {
	Body *search.SearchResult
}

// TagDetailResponse is the active tag's detail with its description as Markdown.
type TagDetailResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	ImageURLs   []string  `json:"image_urls"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	VoteCount   int       `json:"vote_count"`
	HasUpVoted  bool      `json:"has_up_voted"`
}

// ActiveTagResponse describes the selection.
type ActiveTagResponse struct {
	ActiveTagID string             `json:"active_tag_id"`
	Tag         *TagResponse       `json:"tag,omitempty"`
	Detail      *TagDetailResponse `json:"detail,omitempty"`
}

// ActiveTagOutput wraps the selection for Huma.
type ActiveTagOutput struct {
	Body ActiveTagResponse
}

// SetActiveTagInput selects a tag.
type SetActiveTagInput struct {
	Body struct {
		ID          string `json:"id" minLength:"1"`
		FetchDetail bool   `json:"fetch_detail,omitempty"`
	}
}

// UpVoteInput identifies the tag to vote for.
type UpVoteInput struct {
	ID     string `path:"id"`
	Cancel bool   `query:"cancel" doc:"Withdraw a previous vote"`
}

// UpVoteOutput wraps a vote result for Huma.
type UpVoteOutput struct {
	Body domain.VoteResult
}

// CategoryResponse is a category with its marker color.
type CategoryResponse struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CategoryListOutput wraps the category table for Huma.
type CategoryListOutput struct {
	Body struct {
		Categories []CategoryResponse `json:"categories"`
	}
}

// ListUserTagsInput contains parameters for listing user tags.
type ListUserTagsInput struct {
	Refresh bool `query:"refresh" doc:"Reload from the server first"`
}

// ThresholdOutput wraps the archive threshold for Huma.
type ThresholdOutput struct {
	Body struct {
		Threshold int `json:"threshold"`
	}
}

// === Handlers ===

func (s *Server) handleListTags(_ context.Context, input *ListTagsInput) (*TagListOutput, error) {
	tags := s.services.Tags.Tags()
	if input.Visible {
		tags = s.services.Tags.VisibleTags()
	}
	return &TagListOutput{Body: TagListResponse{Tags: toTagResponses(tags)}}, nil
}

func (s *Server) handleRefetchTags(ctx context.Context, _ *struct{}) (*TagListOutput, error) {
	if err := s.services.Tags.Refetch(ctx); err != nil {
		return nil, apiError(err)
	}
	return &TagListOutput{Body: TagListResponse{Tags: toTagResponses(s.services.Tags.Tags())}}, nil
}

func (s *Server) handleSearchTags(ctx context.Context, input *SearchTagsInput) (*SearchTagsOutput, error) {
	result, err := s.services.Tags.Search(ctx, search.SearchParams{
		Query:       input.Query,
		CategoryIDs: input.Categories,
		Limit:       input.Limit,
		Offset:      input.Offset,
		SortBy:      input.Sort,
		Highlight:   input.Query != "",
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &SearchTagsOutput{Body: result}, nil
}

func (s *Server) activeTagOutput() *ActiveTagOutput {
	out := &ActiveTagOutput{Body: ActiveTagResponse{ActiveTagID: s.services.Tags.ActiveTagID()}}

	if t := s.services.Tags.ActiveTag(); t != nil {
		resp := toTagResponse(*t)
		out.Body.Tag = &resp
	}
	if d := s.services.Tags.TagDetail(); d != nil {
		out.Body.Detail = &TagDetailResponse{
			ID:          d.ID,
			Description: htmlToMarkdown(d.Description),
			ImageURLs:   d.ImageURLs,
			CreatedBy:   d.CreatedBy,
			CreatedAt:   d.CreatedAt,
			UpdatedAt:   d.UpdatedAt,
			VoteCount:   d.VoteCount,
			HasUpVoted:  d.HasUpVoted,
		}
	}
	return out
}

func (s *Server) handleGetActiveTag(_ context.Context, _ *struct{}) (*ActiveTagOutput, error) {
	return s.activeTagOutput(), nil
}

func (s *Server) handleSetActiveTag(ctx context.Context, input *SetActiveTagInput) (*ActiveTagOutput, error) {
	s.services.Tags.SetActiveTagID(input.Body.ID)
	if input.Body.FetchDetail {
		if err := s.services.Tags.FetchTagDetail(ctx); err != nil {
			return nil, apiError(err)
		}
	}
	return s.activeTagOutput(), nil
}

func (s *Server) handleResetActiveTag(_ context.Context, _ *struct{}) (*ActiveTagOutput, error) {
	s.services.Tags.ResetActiveTag()
	return s.activeTagOutput(), nil
}

func (s *Server) handleFetchActiveTagDetail(ctx context.Context, _ *struct{}) (*ActiveTagOutput, error) {
	if err := s.services.Tags.FetchTagDetail(ctx); err != nil {
		return nil, apiError(err)
	}
	return s.activeTagOutput(), nil
}

func (s *Server) handleUpVote(ctx context.Context, input *UpVoteInput) (*UpVoteOutput, error) {
	result, err := s.services.Tags.UpVote(ctx, input.ID, input.Cancel)
	if err != nil {
		return nil, apiError(err)
	}
	return &UpVoteOutput{Body: result}, nil
}

func (s *Server) handleListCategories(_ context.Context, _ *struct{}) (*CategoryListOutput, error) {
	out := &CategoryListOutput{}
	for _, c := range s.services.Tags.CategoryList() {
		out.Body.Categories = append(out.Body.Categories, CategoryResponse{ID: c.ID, Name: c.Name, Color: color.ForCategory(c.ID)})
	}
	return out, nil
}

func (s *Server) handleListUserTags(ctx context.Context, input *ListUserTagsInput) (*TagListOutput, error) {
	if input.Refresh {
		if err := s.services.Tags.GetUserTagList(ctx); err != nil {
			return nil, apiError(err)
		}
	}
	return &TagListOutput{Body: TagListResponse{Tags: toTagResponses(s.services.Tags.UserAddTags())}}, nil
}

func (s *Server) handleGetThreshold(ctx context.Context, _ *struct{}) (*ThresholdOutput, error) {
	threshold, err := s.services.Tags.Threshold(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	out := &ThresholdOutput{}
	out.Body.Threshold = threshold
	return out, nil
}
