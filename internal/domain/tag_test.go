package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTags() []Tag {
	return []Tag{
		{ID: "1", CategoryID: 1, Content: "water fountain"},
		{ID: "42", CategoryID: 2, Content: "broken light"},
	}
}

func TestFindTagByID(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		tags   []Tag
		wantID string
	}{
		{"empty id", "", sampleTags(), ""},
		{"nil tags", "42", nil, ""},
		{"empty tags", "42", []Tag{}, ""},
		{"no match", "7", sampleTags(), ""},
		{"match", "42", sampleTags(), "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindTagByID(tt.id, tt.tags)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestFindTagByID_ReturnsCopy(t *testing.T) {
	tags := sampleTags()
	got := FindTagByID("1", tags)
	require.NotNil(t, got)

	got.Content = "changed"
	assert.Equal(t, "water fountain", tags[0].Content)
}

func TestApplyChange(t *testing.T) {
	t.Run("added appends", func(t *testing.T) {
		out := ApplyChange(sampleTags(), TagChange{ChangeType: ChangeAdded, Tag: Tag{ID: "9"}})
		assert.Len(t, out, 3)
		assert.Equal(t, "9", out[2].ID)
	})

	t.Run("updated replaces in place", func(t *testing.T) {
		out := ApplyChange(sampleTags(), TagChange{ChangeType: ChangeUpdated, Tag: Tag{ID: "1", VoteCount: 5}})
		require.Len(t, out, 2)
		assert.Equal(t, "1", out[0].ID)
		assert.Equal(t, 5, out[0].VoteCount)
	})

	t.Run("deleted removes", func(t *testing.T) {
		out := ApplyChange(sampleTags(), TagChange{ChangeType: ChangeDeleted, Tag: Tag{ID: "1"}})
		require.Len(t, out, 1)
		assert.Equal(t, "42", out[0].ID)
	})

	t.Run("deleted unknown is a no-op", func(t *testing.T) {
		out := ApplyChange(sampleTags(), TagChange{ChangeType: ChangeDeleted, Tag: Tag{ID: "nope"}})
		assert.Equal(t, sampleTags(), out)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := sampleTags()
		_ = ApplyChange(in, TagChange{ChangeType: ChangeUpdated, Tag: Tag{ID: "1", Content: "x"}})
		assert.Equal(t, "water fountain", in[0].Content)
	})
}

func TestCategoryByID(t *testing.T) {
	c, ok := CategoryByID(2)
	require.True(t, ok)
	assert.Equal(t, "校園問題", c.Name)

	_, ok = CategoryByID(99)
	assert.False(t, ok)
}
