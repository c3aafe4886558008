package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
)

func (s *Server) registerFilterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getFilters",
		Method:      http.MethodGet,
		Path:        "/api/v1/filters",
		Summary:     "Get category filters",
		Description: "An empty list shows every category",
		Tags:        []string{"Filters"},
	}, s.handleGetFilters)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleFilter",
		Method:      http.MethodPost,
		Path:        "/api/v1/filters/{category}/toggle",
		Summary:     "Toggle category filter",
		Tags:        []string{"Filters"},
	}, s.handleToggleFilter)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeFilter",
		Method:      http.MethodDelete,
		Path:        "/api/v1/filters/{category}",
		Summary:     "Remove category filter",
		Description: "Removing a category that is not filtered does nothing",
		Tags:        []string{"Filters"},
	}, s.handleRemoveFilter)
}

// FilterInput identifies a category.
type FilterInput struct {
	Category int `path:"category"`
}

// FiltersOutput wraps the active filters for Huma.
type FiltersOutput struct {
	Body struct {
		Categories []int `json:"categories"`
	}
}

func (s *Server) filtersOutput() *FiltersOutput {
	out := &FiltersOutput{}
	out.Body.Categories = s.services.Tags.FilterTags()
	if out.Body.Categories == nil {
		out.Body.Categories = []int{}
	}
	return out
}

func (s *Server) handleGetFilters(_ context.Context, _ *struct{}) (*FiltersOutput, error) {
	return s.filtersOutput(), nil
}

func (s *Server) handleToggleFilter(_ context.Context, input *FilterInput) (*FiltersOutput, error) {
	if _, ok := domain.CategoryByID(input.Category); !ok {
		return nil, apiError(errors.Validationf("unknown category %d", input.Category))
	}
	s.services.Tags.AddFilterTags(input.Category)
	return s.filtersOutput(), nil
}

func (s *Server) handleRemoveFilter(_ context.Context, input *FilterInput) (*FiltersOutput, error) {
	s.services.Tags.ResetFilterTags(input.Category)
	return s.filtersOutput(), nil
}
