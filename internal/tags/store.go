package tags

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/search"
	"github.com/mapflag/mapflag-client/internal/sse"
)

// Options configures a Store. Index, Emitter and Logger are optional.
type Options struct {
	List      TagList
	Details   DetailFetcher
	UserTags  UserTagSource
	Threshold ThresholdSource
	Votes     VoteSender
	Index     Indexer
	Emitter   sse.Emitter
	Logger    *slog.Logger
}

// Store is the tag state shared by every UI process.
type Store struct {
	list      TagList
	details   DetailFetcher
	userTags  UserTagSource
	threshold ThresholdSource
	votes     VoteSender
	index     Indexer
	emitter   sse.Emitter
	logger    *slog.Logger

	mu          sync.RWMutex
	activeTagID string
	detail      *domain.TagDetail
	generation  uint64 // bumped whenever an in-flight detail becomes outdated
	filters     []int
}

// NewStore creates a Store with no active tag and no filters.
func NewStore(opts Options) *Store {
	if opts.Emitter == nil {
		opts.Emitter = sse.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		list:      opts.List,
		details:   opts.Details,
		userTags:  opts.UserTags,
		threshold: opts.Threshold,
		votes:     opts.Votes,
		index:     opts.Index,
		emitter:   opts.Emitter,
		logger:    opts.Logger,
		filters:   []int{},
	}
}

// Tags returns the full tag list.
func (s *Store) Tags() []domain.Tag {
	return s.list.Tags()
}

// Refetch reloads the tag list and rebuilds the search index from it.
func (s *Store) Refetch(ctx context.Context) error {
	if err := s.list.Refetch(ctx); err != nil {
		return err
	}

	tags := s.list.Tags()
	if s.index != nil {
		if err := s.index.Replace(tags); err != nil {
			s.logger.Warn("search index rebuild failed", "error", err)
		}
	}
	s.emitter.Emit(sse.NewTagsRefetchedEvent(len(tags)))
	return nil
}

// UpdateTagList applies one change to the list and the search index.
func (s *Store) UpdateTagList(change domain.TagChange) {
	s.list.UpdateTagList(change)
	if s.index != nil {
		if err := s.index.ApplyChange(change); err != nil {
			s.logger.Warn("search index update failed", "tag_id", change.Tag.ID, "error", err)
		}
	}
	s.emitter.Emit(sse.NewTagChangedEvent(change))
}

// ActiveTagID returns the selected tag id, "" when none.
func (s *Store) ActiveTagID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeTagID
}

// SetActiveTagID selects a tag. Changing the selection drops the old detail.
func (s *Store) SetActiveTagID(id string) {
	s.mu.Lock()
	if id == s.activeTagID {
		s.mu.Unlock()
		return
	}
	s.activeTagID = id
	s.detail = nil
	s.generation++
	s.mu.Unlock()

	s.emitter.Emit(sse.NewActiveTagChangedEvent(id))
}

// ActiveTag resolves the active id against the current list. It is nil when
// nothing is selected or the tag is gone.
func (s *Store) ActiveTag() *domain.Tag {
	return domain.FindTagByID(s.ActiveTagID(), s.list.Tags())
}

// ResetActiveTag clears the selection and its detail.
func (s *Store) ResetActiveTag() {
	s.mu.Lock()
	s.activeTagID = ""
	s.detail = nil
	s.generation++
	s.mu.Unlock()

	s.emitter.Emit(sse.NewActiveTagChangedEvent(""))
}

// FetchTagDetail loads the detail of the active tag. A response that arrives after
// the selection changed or a newer fetch started is discarded with a stale error.
func (s *Store) FetchTagDetail(ctx context.Context) error {
	s.mu.Lock()
	id := s.activeTagID
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if id == "" {
		return errors.Validation("no active tag")
	}

	detail, err := s.details.GetTagDetail(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch detail of tag %s: %w", id, err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return errors.Stale("detail of tag " + id + " superseded")
	}
	s.detail = &detail
	s.mu.Unlock()

	s.emitter.Emit(sse.NewTagDetailLoadedEvent(id, detail))
	return nil
}

// TagDetail returns the loaded detail of the active tag, nil when not loaded.
func (s *Store) TagDetail() *domain.TagDetail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.detail == nil {
		return nil
	}
	d := *s.detail
	return &d
}

// FilterTags returns the selected category ids.
func (s *Store) FilterTags() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.filters)
}

// AddFilterTags toggles a category in the filter set.
func (s *Store) AddFilterTags(categoryID int) {
	s.mu.Lock()
	if i := slices.Index(s.filters, categoryID); i >= 0 {
		s.filters = slices.Delete(s.filters, i, i+1)
	} else {
		s.filters = append(s.filters, categoryID)
	}
	filters := slices.Clone(s.filters)
	s.mu.Unlock()

	s.emitter.Emit(sse.NewFiltersChangedEvent(filters))
}

// ResetFilterTags removes a category from the filter set. Removing an absent one is a no-op.
func (s *Store) ResetFilterTags(categoryID int) {
	s.mu.Lock()
	s.filters = slices.DeleteFunc(s.filters, func(c int) bool { return c == categoryID })
	filters := slices.Clone(s.filters)
	s.mu.Unlock()

	s.emitter.Emit(sse.NewFiltersChangedEvent(filters))
}

// VisibleTags returns the tags whose category is in the filter set, or all tags
// when the set is empty.
func (s *Store) VisibleTags() []domain.Tag {
	filters := s.FilterTags()
	tags := s.list.Tags()
	if len(filters) == 0 {
		return tags
	}
	return slices.DeleteFunc(tags, func(t domain.Tag) bool {
		return !slices.Contains(filters, t.CategoryID)
	})
}

// CategoryList returns the category table.
func (s *Store) CategoryList() []domain.Category {
	return slices.Clone(domain.Categories)
}

// UserAddTags returns the tags added by the signed-in user.
func (s *Store) UserAddTags() []domain.Tag {
	return s.userTags.UserAddTags()
}

// GetUserTagList reloads the user's tags.
func (s *Store) GetUserTagList(ctx context.Context) error {
	return s.userTags.GetUserTagList(ctx)
}

// Threshold returns the archive threshold.
func (s *Store) Threshold(ctx context.Context) (int, error) {
	return s.threshold.Threshold(ctx)
}

// UpVote votes for a tag and patches its count in the list. The active detail is
// reloaded when the vote was for the active tag.
func (s *Store) UpVote(ctx context.Context, id string, cancel bool) (domain.VoteResult, error) {
	result, err := s.votes.UpVote(ctx, id, cancel)
	if err != nil {
		return domain.VoteResult{}, err
	}

	if t := domain.FindTagByID(id, s.list.Tags()); t != nil {
		t.VoteCount = result.VoteCount
		s.UpdateTagList(domain.TagChange{ChangeType: domain.ChangeUpdated, Tag: *t})
	}

	if id == s.ActiveTagID() {
		if err := s.FetchTagDetail(ctx); err != nil && !errors.Is(err, errors.ErrStale) {
			s.logger.Warn("detail reload after vote failed", "tag_id", id, "error", err)
		}
	}
	return result, nil
}

// Search queries the tag index.
func (s *Store) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	if s.index == nil {
		return nil, errors.Internal("search index not configured")
	}
	return s.index.Search(ctx, params)
}

// Run consumes live changes until ctx ends or the feed closes. An "updated" change
// reloads the active tag's detail, whichever tag it names.
func (s *Store) Run(ctx context.Context, feed <-chan domain.TagChange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-feed:
			if !ok {
				return nil
			}
			s.UpdateTagList(change)

			if change.ChangeType != domain.ChangeUpdated || s.ActiveTagID() == "" {
				continue
			}
			if err := s.FetchTagDetail(ctx); err != nil {
				if errors.Is(err, errors.ErrStale) {
					s.logger.Debug("dropped stale tag detail", "error", err)
					continue
				}
				s.logger.Warn("tag detail refresh failed", "error", err)
			}
		}
	}
}
