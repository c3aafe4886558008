package domain

// ChangeType is the kind of a live tag change.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// TagChange is one element of the live update feed.
type TagChange struct {
	ChangeType ChangeType `json:"change_type"`
	Tag        Tag        `json:"tag"`
}

// ApplyChange returns tags with the change applied.
// Added tags already present are treated as updates; updates for unknown ids are appended.
func ApplyChange(tags []Tag, change TagChange) []Tag {
	out := make([]Tag, 0, len(tags)+1)
	found := false
	for _, t := range tags {
		if t.ID != change.Tag.ID {
			out = append(out, t)
			continue
		}
		found = true
		if change.ChangeType != ChangeDeleted {
			out = append(out, change.Tag)
		}
	}
	if !found && change.ChangeType != ChangeDeleted {
		out = append(out, change.Tag)
	}
	return out
}
