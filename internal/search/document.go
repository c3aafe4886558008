// Package search provides local full-text search over the tag list using Bleve.
// The index is a derived view: the tag store feeds it on every refetch and live change.
package search

import "github.com/mapflag/mapflag-client/internal/domain"

// TagDocument is the indexed form of a tag.
type TagDocument struct {
	ID         string
	Content    string
	CategoryID int
	VoteCount  int
}

// FromTag converts a domain tag to its indexed form.
func FromTag(t domain.Tag) *TagDocument {
	return &TagDocument{
		ID:         t.ID,
		Content:    t.Content,
		CategoryID: t.CategoryID,
		VoteCount:  t.VoteCount,
	}
}

// ToMap converts the document so field names match the mapping.
func (d *TagDocument) ToMap() map[string]any {
	return map[string]any{
		"id":          d.ID,
		"content":     d.Content,
		"category_id": float64(d.CategoryID),
		"vote_count":  float64(d.VoteCount),
	}
}
