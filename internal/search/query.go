package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Sort orders accepted by SearchParams.SortBy.
const (
	SortRelevance = "relevance"
	SortVotes     = "votes"
)

// DefaultLimit is used when SearchParams.Limit is not positive.
const DefaultLimit = 20

// SearchParams configures a search query.
type SearchParams struct {
	Query       string // Free text matched against tag content
	CategoryIDs []int  // Restrict to these categories (empty = all)

	Limit  int
	Offset int

	SortBy    string // "relevance" or "votes"
	Highlight bool
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit is one matching tag.
type SearchHit struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
	CategoryID int     `json:"category_id"`
	VoteCount  int     `json:"vote_count"`
	Highlight  string  `json:"highlight,omitempty"`
}

// Search runs a query against the tag index.
func (s *TagIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	searchRequest := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(searchRequest, params)
	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("content")
	}
	searchRequest.Fields = []string{"id", "content", "category_id", "vote_count"}

	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{ID: hit.ID, Score: hit.Score}

		if c, ok := hit.Fields["content"].(string); ok {
			searchHit.Content = c
		}
		if c, ok := hit.Fields["category_id"].(float64); ok {
			searchHit.CategoryID = int(c)
		}
		if v, ok := hit.Fields["vote_count"].(float64); ok {
			searchHit.VoteCount = int(v)
		}
		if fragments := hit.Fragments["content"]; len(fragments) > 0 {
			searchHit.Highlight = fragments[0]
		}

		result.Hits = append(result.Hits, searchHit)
	}

	return result, nil
}

// buildSearchQuery ANDs the text query with an OR over the requested categories.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if params.Query != "" {
		contentMatch := bleve.NewMatchQuery(params.Query)
		contentMatch.SetField("content")
		queries = append(queries, contentMatch)
	}

	if len(params.CategoryIDs) > 0 {
		inclusive := true
		categoryQueries := make([]query.Query, len(params.CategoryIDs))
		for i, id := range params.CategoryIDs {
			v := float64(id)
			cq := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
			cq.SetField("category_id")
			categoryQueries[i] = cq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(categoryQueries...))
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

func addSorting(req *bleve.SearchRequest, params SearchParams) {
	switch params.SortBy {
	case SortVotes:
		req.SortBy([]string{"-vote_count", "_id"})
	default:
		req.SortBy([]string{"-_score", "_id"})
	}
}
