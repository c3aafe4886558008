package tags

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/graphql"
	"github.com/mapflag/mapflag-client/internal/logger"
	"github.com/mapflag/mapflag-client/internal/sse"
)

func changePayload(changeType, id, content string) *graphql.Response {
	return &graphql.Response{Data: json.RawMessage(`{"tagChangeSubscription":{"changeType":"` + changeType +
		`","tagContent":{"__typename":"Tag","id":"` + id + `","categoryId":2,` +
		`"coordinates":{"latitude":1,"longitude":2},"content":"` + content + `","voteCount":3}}}`)}
}

func receive(t *testing.T, ch <-chan domain.TagChange) (domain.TagChange, bool) {
	t.Helper()
	select {
	case c, ok := <-ch:
		return c, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tag change")
		return domain.TagChange{}, false
	}
}

func TestLiveFeed_Changes(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan *graphql.Response, 4)}
	emitter := &recordingEmitter{}
	feed := NewLiveFeed(newTestGateway(t, &scriptedDoer{}, sub), emitter, logger.Discard().Logger)

	changes, err := feed.Changes(context.Background())
	require.NoError(t, err)

	sub.ch <- changePayload("updated", "2", "fixed light")
	sub.ch <- &graphql.Response{Errors: []graphql.Error{{Message: "boom"}}}
	sub.ch <- changePayload("renamed", "2", "x")
	sub.ch <- changePayload("deleted", "1", "")
	close(sub.ch)

	c, ok := receive(t, changes)
	require.True(t, ok)
	assert.Equal(t, domain.ChangeUpdated, c.ChangeType)
	assert.Equal(t, domain.Tag{
		ID:         "2",
		CategoryID: 2,
		Position:   domain.Position{Latitude: 1, Longitude: 2},
		Content:    "fixed light",
		VoteCount:  3,
	}, c.Tag)

	c, ok = receive(t, changes)
	require.True(t, ok)
	assert.Equal(t, domain.ChangeDeleted, c.ChangeType)
	assert.Equal(t, "1", c.Tag.ID)

	_, ok = receive(t, changes)
	assert.False(t, ok)

	assert.Equal(t, []sse.EventType{sse.EventSubscriptionError, sse.EventSubscriptionError}, emitter.Types())
}

func TestLiveFeed_SubscribeError(t *testing.T) {
	sub := &chanSubscriber{err: errors.Transport("dial failed")}
	feed := NewLiveFeed(newTestGateway(t, &scriptedDoer{}, sub), nil, nil)

	_, err := feed.Changes(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestLiveFeed_DrivesStore(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan *graphql.Response, 1)}
	feed := NewLiveFeed(newTestGateway(t, &scriptedDoer{}, sub), nil, logger.Discard().Logger)
	h := newStoreHarness(t)
	h.store.SetActiveTagID("1")

	changes, err := feed.Changes(context.Background())
	require.NoError(t, err)

	sub.ch <- changePayload("updated", "2", "fixed light")
	close(sub.ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.store.Run(ctx, changes))

	assert.Equal(t, "fixed light", domain.FindTagByID("2", h.store.Tags()).Content)
	assert.Equal(t, []string{"1"}, h.details.Calls())
}

// resubscriber hands out one scripted stream per Subscribe call. Once the
// script runs out it returns streams that stay open until ctx ends.
type resubscriber struct {
	mu      sync.Mutex
	streams []chan *graphql.Response
	errs    []error
	calls   int
}

func (s *resubscriber) Subscribe(ctx context.Context, _ graphql.Request) (<-chan *graphql.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	if len(s.streams) > 0 {
		ch := s.streams[0]
		s.streams = s.streams[1:]
		return ch, nil
	}
	ch := make(chan *graphql.Response)
	context.AfterFunc(ctx, func() { close(ch) })
	return ch, nil
}

func (s *resubscriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestLiveFeed_FollowResubscribes(t *testing.T) {
	first := make(chan *graphql.Response, 1)
	first <- changePayload("updated", "2", "fixed light")
	close(first)

	second := make(chan *graphql.Response, 1)
	second <- changePayload("updated", "3", "quiet now")

	sub := &resubscriber{
		errs:    []error{errors.Transport("dial failed")},
		streams: []chan *graphql.Response{first, second},
	}
	emitter := &recordingEmitter{}
	gw := graphql.NewGateway(&scriptedDoer{}, sub, nil, logger.Discard().Logger)
	feed := NewLiveFeed(gw, emitter, logger.Discard().Logger)
	feed.minBackoff, feed.maxBackoff = time.Millisecond, 5*time.Millisecond
	h := newStoreHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Follow(ctx, h.store)
	}()

	require.Eventually(t, func() bool {
		tag := domain.FindTagByID("3", h.store.Tags())
		return tag != nil && tag.Content == "quiet now"
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, "fixed light", domain.FindTagByID("2", h.store.Tags()).Content)
	assert.Equal(t, 3, sub.Calls())
	assert.Equal(t, []sse.EventType{sse.EventSubscriptionError, sse.EventSubscriptionError}, emitter.Types())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}
