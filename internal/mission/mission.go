// Package mission holds the in-progress tag placement and the bar shown while it runs.
package mission

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/sse"
	"github.com/mapflag/mapflag-client/internal/validation"
)

// TagCreator sends a finished draft to the server.
type TagCreator interface {
	AddNewTag(ctx context.Context, draft domain.TagDraft) (domain.Tag, error)
}

// Refetcher reloads the tag list after a tag is created.
type Refetcher interface {
	Refetch(ctx context.Context) error
}

// Options configures a Context. Emitter and Logger are optional.
type Options struct {
	Creator   TagCreator
	Refetcher Refetcher
	Validator *validation.Validator
	Emitter   sse.Emitter
	Logger    *slog.Logger
}

// Context is the mission state: whether a mission runs and the draft it builds.
type Context struct {
	creator   TagCreator
	refetcher Refetcher
	validator *validation.Validator
	emitter   sse.Emitter
	logger    *slog.Logger

	mu          sync.RWMutex
	active      bool
	draft       domain.TagDraft
	hasPosition bool
	// generation counts Open calls.
	generation uint64
}

// NewContext creates an idle mission context.
func NewContext(opts Options) *Context {
	if opts.Validator == nil {
		opts.Validator = validation.New()
	}
	if opts.Emitter == nil {
		opts.Emitter = sse.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Context{
		creator:   opts.Creator,
		refetcher: opts.Refetcher,
		validator: opts.Validator,
		emitter:   opts.Emitter,
		logger:    opts.Logger,
	}
}

// Open starts a mission for a category, discarding any draft in progress.
func (c *Context) Open(categoryID int) error {
	if _, ok := domain.CategoryByID(categoryID); !ok {
		return errors.Validationf("unknown category %d", categoryID)
	}

	c.mu.Lock()
	c.generation++
	c.active = true
	c.draft = domain.TagDraft{CategoryID: categoryID}
	c.hasPosition = false
	c.mu.Unlock()

	c.emitter.Emit(sse.NewMissionOpenedEvent(categoryID))
	return nil
}

// Close ends the mission without submitting. Closing an idle context does nothing.
func (c *Context) Close() {
	if c.close() {
		c.emitter.Emit(sse.NewMissionClosedEvent(false))
	}
}

func (c *Context) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Context) closeLocked() bool {
	if !c.active {
		return false
	}
	c.active = false
	c.draft = domain.TagDraft{}
	c.hasPosition = false
	return true
}

// Active reports whether a mission is in progress.
func (c *Context) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Draft returns the draft in progress. ok is false when no mission runs.
func (c *Context) Draft() (draft domain.TagDraft, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft, c.active
}

// SetPosition places the draft on the map.
func (c *Context) SetPosition(pos domain.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Validation("no mission in progress")
	}
	c.draft.Position = pos
	c.hasPosition = true
	return nil
}

// SetContent sets the draft text, NFC-normalized and trimmed.
func (c *Context) SetContent(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return errors.Validation("no mission in progress")
	}
	c.draft.Content = strings.TrimSpace(norm.NFC.String(content))
	return nil
}

// Submit validates and sends the draft, closes the mission and refetches the tag
// list. A failed refetch is logged; the created tag is still returned. A mission
// opened while the draft was in flight stays open.
func (c *Context) Submit(ctx context.Context) (domain.Tag, error) {
	c.mu.RLock()
	active, draft, hasPosition, generation := c.active, c.draft, c.hasPosition, c.generation
	c.mu.RUnlock()

	if !active {
		return domain.Tag{}, errors.Validation("no mission in progress")
	}
	if !hasPosition {
		return domain.Tag{}, errors.ValidationWithDetails("validation failed: position is required",
			map[string]string{"position": "is required"})
	}
	if err := c.validator.Validate(draft); err != nil {
		return domain.Tag{}, err
	}

	tag, err := c.creator.AddNewTag(ctx, draft)
	if err != nil {
		return domain.Tag{}, err
	}

	c.mu.Lock()
	closed := c.generation == generation && c.closeLocked()
	c.mu.Unlock()
	if closed {
		c.emitter.Emit(sse.NewMissionClosedEvent(true))
	}

	if c.refetcher != nil {
		if err := c.refetcher.Refetch(ctx); err != nil {
			c.logger.Warn("refetch after submit failed", "tag_id", tag.ID, "error", err)
		}
	}
	return tag, nil
}
