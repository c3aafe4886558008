package domain

import "time"

// Position is a WGS84 coordinate on the map.
type Position struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Tag is a flag placed on the map.
// The list is owned by the tag store; individual tags are replaced wholesale on refetch
// or patched when a live change references their id.
type Tag struct {
	ID         string   `json:"id"`
	CategoryID int      `json:"category_id"`
	Position   Position `json:"position"`
	Content    string   `json:"content"`
	VoteCount  int      `json:"vote_count"`
}

// TagDetail is the detail payload fetched for the active tag.
type TagDetail struct {
	ID          string    `json:"id"`
	Description string    `json:"description"` // HTML as stored by the server
	ImageURLs   []string  `json:"image_urls"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	VoteCount   int       `json:"vote_count"`
	HasUpVoted  bool      `json:"has_up_voted"`
}

// FindTagByID returns the tag with the given id.
// Returns nil when id is empty, tags is empty, or nothing matches.
func FindTagByID(id string, tags []Tag) *Tag {
	if id == "" || len(tags) == 0 {
		return nil
	}
	for i := range tags {
		if tags[i].ID == id {
			t := tags[i]
			return &t
		}
	}
	return nil
}

// TagDraft is a new tag being composed in a mission.
type TagDraft struct {
	CategoryID int      `json:"category_id" validate:"required,category"`
	Position   Position `json:"position"`
	Content    string   `json:"content" validate:"required,notblank,max=500"`
}

// VoteResult is the server's view of a tag's votes after an up-vote.
type VoteResult struct {
	TagID      string `json:"tag_id"`
	VoteCount  int    `json:"vote_count"`
	HasUpVoted bool   `json:"has_up_voted"`
}
