package mission

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/sse"
)

type fakeCreator struct {
	drafts []domain.TagDraft
	err    error
	// during runs while the request is in flight.
	during func()
}

func (f *fakeCreator) AddNewTag(_ context.Context, draft domain.TagDraft) (domain.Tag, error) {
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return domain.Tag{}, f.err
	}
	f.drafts = append(f.drafts, draft)
	return domain.Tag{ID: "new", CategoryID: draft.CategoryID, Position: draft.Position, Content: draft.Content}, nil
}

type countingRefetcher struct {
	calls int
	err   error
}

func (r *countingRefetcher) Refetch(context.Context) error {
	r.calls++
	return r.err
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []sse.Event
}

func (e *recordingEmitter) Emit(ev sse.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

type missionHarness struct {
	mission   *Context
	creator   *fakeCreator
	refetcher *countingRefetcher
	emitter   *recordingEmitter
}

func newMissionHarness() *missionHarness {
	h := &missionHarness{
		creator:   &fakeCreator{},
		refetcher: &countingRefetcher{},
		emitter:   &recordingEmitter{},
	}
	h.mission = NewContext(Options{
		Creator:   h.creator,
		Refetcher: h.refetcher,
		Emitter:   h.emitter,
		Logger:    logger.Discard().Logger,
	})
	return h
}

func TestContext_OpenAndClose(t *testing.T) {
	h := newMissionHarness()
	assert.False(t, h.mission.Active())

	require.NoError(t, h.mission.Open(2))
	assert.True(t, h.mission.Active())
	draft, ok := h.mission.Draft()
	assert.True(t, ok)
	assert.Equal(t, 2, draft.CategoryID)

	h.mission.Close()
	assert.False(t, h.mission.Active())

	// Closing again emits nothing.
	h.mission.Close()
	require.Len(t, h.emitter.events, 2)
	assert.Equal(t, sse.EventMissionOpened, h.emitter.events[0].Type)
	assert.Equal(t, sse.EventMissionClosed, h.emitter.events[1].Type)
	assert.Equal(t, sse.MissionData{Submitted: false}, h.emitter.events[1].Data)
}

func TestContext_OpenUnknownCategory(t *testing.T) {
	h := newMissionHarness()

	err := h.mission.Open(7)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.False(t, h.mission.Active())
}

func TestContext_ReopenDiscardsDraft(t *testing.T) {
	h := newMissionHarness()
	require.NoError(t, h.mission.Open(1))
	require.NoError(t, h.mission.SetContent("first"))

	require.NoError(t, h.mission.Open(3))
	draft, _ := h.mission.Draft()
	assert.Equal(t, domain.TagDraft{CategoryID: 3}, draft)
}

func TestContext_EditsRequireActiveMission(t *testing.T) {
	h := newMissionHarness()

	assert.ErrorIs(t, h.mission.SetPosition(domain.Position{}), errors.ErrValidation)
	assert.ErrorIs(t, h.mission.SetContent("x"), errors.ErrValidation)
	_, err := h.mission.Submit(context.Background())
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestContext_SetContentNormalizes(t *testing.T) {
	h := newMissionHarness()
	require.NoError(t, h.mission.Open(1))

	// "e" followed by a combining acute accent composes to a single rune.
	require.NoError(t, h.mission.SetContent("  cafe\u0301 line \n"))
	draft, _ := h.mission.Draft()
	assert.Equal(t, "caf\u00e9 line", draft.Content)
}

func TestContext_Submit(t *testing.T) {
	h := newMissionHarness()
	require.NoError(t, h.mission.Open(2))
	require.NoError(t, h.mission.SetPosition(domain.Position{Latitude: 24.79, Longitude: 120.99}))
	require.NoError(t, h.mission.SetContent("broken streetlight"))

	tag, err := h.mission.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new", tag.ID)
	assert.Equal(t, []domain.TagDraft{{
		CategoryID: 2,
		Position:   domain.Position{Latitude: 24.79, Longitude: 120.99},
		Content:    "broken streetlight",
	}}, h.creator.drafts)
	assert.False(t, h.mission.Active())
	assert.Equal(t, 1, h.refetcher.calls)

	last := h.emitter.events[len(h.emitter.events)-1]
	assert.Equal(t, sse.EventMissionClosed, last.Type)
	assert.Equal(t, sse.MissionData{Submitted: true}, last.Data)
}

func TestContext_SubmitKeepsMissionOpenedMeanwhile(t *testing.T) {
	h := newMissionHarness()
	require.NoError(t, h.mission.Open(2))
	require.NoError(t, h.mission.SetPosition(domain.Position{Latitude: 24.79, Longitude: 120.99}))
	require.NoError(t, h.mission.SetContent("broken streetlight"))

	h.creator.during = func() { require.NoError(t, h.mission.Open(3)) }

	tag, err := h.mission.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tag.CategoryID)

	draft, ok := h.mission.Draft()
	require.True(t, ok)
	assert.Equal(t, domain.TagDraft{CategoryID: 3}, draft)
	assert.Equal(t, 1, h.refetcher.calls)

	last := h.emitter.events[len(h.emitter.events)-1]
	assert.Equal(t, sse.EventMissionOpened, last.Type)
}

func TestContext_SubmitValidation(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*Context)
		wantField string
	}{
		{"no position", func(c *Context) { _ = c.SetContent("text") }, "position"},
		{"no content", func(c *Context) { _ = c.SetPosition(domain.Position{Latitude: 1, Longitude: 1}) }, "content"},
		{"whitespace content", func(c *Context) {
			_ = c.SetPosition(domain.Position{Latitude: 1, Longitude: 1})
			_ = c.SetContent("   ")
		}, "content"},
		{"bad latitude", func(c *Context) {
			_ = c.SetPosition(domain.Position{Latitude: 100, Longitude: 1})
			_ = c.SetContent("text")
		}, "latitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMissionHarness()
			require.NoError(t, h.mission.Open(1))
			tt.setup(h.mission)

			_, err := h.mission.Submit(context.Background())
			require.ErrorIs(t, err, errors.ErrValidation)

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)

			assert.True(t, h.mission.Active())
			assert.Empty(t, h.creator.drafts)
		})
	}
}

func TestContext_SubmitCreatorError(t *testing.T) {
	h := newMissionHarness()
	h.creator.err = errors.Unauthorized("guests cannot add tags")
	require.NoError(t, h.mission.Open(1))
	require.NoError(t, h.mission.SetPosition(domain.Position{Latitude: 1, Longitude: 1}))
	require.NoError(t, h.mission.SetContent("text"))

	_, err := h.mission.Submit(context.Background())
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
	assert.True(t, h.mission.Active())
	assert.Zero(t, h.refetcher.calls)
}

func TestContext_SubmitRefetchErrorStillReturnsTag(t *testing.T) {
	h := newMissionHarness()
	h.refetcher.err = errors.Transport("down")
	require.NoError(t, h.mission.Open(1))
	require.NoError(t, h.mission.SetPosition(domain.Position{Latitude: 1, Longitude: 1}))
	require.NoError(t, h.mission.SetContent("text"))

	tag, err := h.mission.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", tag.ID)
	assert.False(t, h.mission.Active())
}
