package tags

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/domain"
	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/graphql"
	"github.com/mapflag/mapflag-client/internal/logger"
)

// scriptedDoer answers each operation name with a canned data payload.
type scriptedDoer struct {
	mu       sync.Mutex
	data     map[string]string
	errs     map[string]error
	requests []graphql.Request
}

func (d *scriptedDoer) Do(_ context.Context, req graphql.Request) (*graphql.Response, error) {
	name := operationName(req.Query)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if err := d.errs[name]; err != nil {
		return nil, err
	}
	return &graphql.Response{Data: json.RawMessage(d.data[name])}, nil
}

func (d *scriptedDoer) Requests() []graphql.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]graphql.Request(nil), d.requests...)
}

// operationName returns the name after the operation keyword: "query getTagDetail($id: ID!)" gives getTagDetail.
func operationName(q string) string {
	fields := strings.Fields(q)
	if len(fields) < 2 {
		return ""
	}
	name, _, _ := strings.Cut(fields[1], "(")
	return name
}

type chanSubscriber struct {
	ch  chan *graphql.Response
	err error
}

func (s *chanSubscriber) Subscribe(context.Context, graphql.Request) (<-chan *graphql.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

func newTestGateway(t *testing.T, doer *scriptedDoer, sub *chanSubscriber) *graphql.Gateway {
	t.Helper()
	cache, err := graphql.NewCache(1000)
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	if sub == nil {
		sub = &chanSubscriber{ch: make(chan *graphql.Response)}
	}
	return graphql.NewGateway(doer, sub, cache, logger.Discard().Logger)
}

const tagListData = `{"tagRenderList":[
  {"__typename":"Tag","id":"1","categoryId":1,"coordinates":{"latitude":24.79,"longitude":120.99},"content":"water fountain","voteCount":2},
  {"__typename":"Tag","id":"2","categoryId":2,"coordinates":{"latitude":24.8,"longitude":121},"content":"broken light","voteCount":5}
]}`

func TestOperationName(t *testing.T) {
	assert.Equal(t, "tagRenderList", operationName(tagRenderListQuery))
	assert.Equal(t, "getTagDetail", operationName(tagDetailQuery))
	assert.Equal(t, "updateUpVote", operationName(upVoteMutation))
}

func TestRemoteTagList_Refetch(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{"tagRenderList": tagListData}}
	list := NewRemoteTagList(newTestGateway(t, doer, nil))

	assert.Empty(t, list.Tags())
	require.NoError(t, list.Refetch(context.Background()))

	tags := list.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, domain.Tag{
		ID:         "1",
		CategoryID: 1,
		Position:   domain.Position{Latitude: 24.79, Longitude: 120.99},
		Content:    "water fountain",
		VoteCount:  2,
	}, tags[0])

	// Refetch always goes to the network.
	require.NoError(t, list.Refetch(context.Background()))
	assert.Len(t, doer.Requests(), 2)
}

func TestRemoteTagList_UpdateTagList(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{"tagRenderList": tagListData}}
	list := NewRemoteTagList(newTestGateway(t, doer, nil))
	require.NoError(t, list.Refetch(context.Background()))

	list.UpdateTagList(domain.TagChange{ChangeType: domain.ChangeDeleted, Tag: domain.Tag{ID: "1"}})
	list.UpdateTagList(domain.TagChange{ChangeType: domain.ChangeAdded, Tag: domain.Tag{ID: "3"}})

	tags := list.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, "2", tags[0].ID)
	assert.Equal(t, "3", tags[1].ID)
}

func TestRemoteTagList_RefetchError(t *testing.T) {
	doer := &scriptedDoer{errs: map[string]error{"tagRenderList": errors.Transport("down")}}
	list := NewRemoteTagList(newTestGateway(t, doer, nil))

	err := list.Refetch(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestRemote_GetTagDetail(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{"getTagDetail": `{"getTagDetail":{
		"__typename":"Tag","id":"7","description":"<p>hi</p>","imageUrl":["https://img/1.png"],
		"createUser":{"displayName":"Ann"},"createTime":"2024-03-01T10:00:00Z",
		"lastUpdateTime":"2024-03-02T10:00:00Z","voteCount":4,"hasUpVote":true}}`}}
	remote := NewRemote(newTestGateway(t, doer, nil), nil)

	detail, err := remote.GetTagDetail(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, domain.TagDetail{
		ID:          "7",
		Description: "<p>hi</p>",
		ImageURLs:   []string{"https://img/1.png"},
		CreatedBy:   "Ann",
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
		VoteCount:   4,
		HasUpVoted:  true,
	}, detail)
	assert.Equal(t, map[string]any{"id": "7"}, doer.Requests()[0].Variables)
}

func TestRemote_GetTagDetailMissing(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{"getTagDetail": `{"getTagDetail":null}`}}
	remote := NewRemote(newTestGateway(t, doer, nil), nil)

	_, err := remote.GetTagDetail(context.Background(), "7")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRemote_ThresholdIsCached(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{"archivedThreshold": `{"archivedThreshold":25}`}}
	remote := NewRemote(newTestGateway(t, doer, nil), nil)

	for range 3 {
		threshold, err := remote.Threshold(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 25, threshold)
	}
	assert.Len(t, doer.Requests(), 1)
}

func TestRemote_UpVote(t *testing.T) {
	tests := []struct {
		name       string
		cancel     bool
		wantAction string
	}{
		{"vote", false, "UPVOTE"},
		{"withdraw", true, "CANCEL_UPVOTE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &scriptedDoer{data: map[string]string{
				"updateUpVote": `{"updateUpVote":{"tagId":"2","numberOfUpVote":6,"hasUpVote":true}}`,
			}}
			remote := NewRemote(newTestGateway(t, doer, nil), nil)

			result, err := remote.UpVote(context.Background(), "2", tt.cancel)
			require.NoError(t, err)
			assert.Equal(t, domain.VoteResult{TagID: "2", VoteCount: 6, HasUpVoted: true}, result)
			assert.Equal(t, tt.wantAction, doer.Requests()[0].Variables["action"])
		})
	}
}

func TestRemote_AddNewTag(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{
		"addNewTagData": `{"addNewTagData":{"tag":{"__typename":"Tag","id":"11","categoryId":3,
			"coordinates":{"latitude":1.5,"longitude":2.5},"content":"long queue","voteCount":0}}}`,
	}}
	remote := NewRemote(newTestGateway(t, doer, nil), nil)

	tag, err := remote.AddNewTag(context.Background(), domain.TagDraft{
		CategoryID: 3,
		Position:   domain.Position{Latitude: 1.5, Longitude: 2.5},
		Content:    "long queue",
	})
	require.NoError(t, err)
	assert.Equal(t, "11", tag.ID)
	assert.Equal(t, 3, tag.CategoryID)

	data, ok := doer.Requests()[0].Variables["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "long queue", data["content"])
	assert.Equal(t, 3, data["categoryId"])
}

func TestRemoteUserTags(t *testing.T) {
	doer := &scriptedDoer{data: map[string]string{
		"getUserData": `{"getUserData":{"__typename":"User","uid":"u1","addTags":[
			{"__typename":"Tag","id":"5","categoryId":1,"coordinates":{"latitude":0,"longitude":0},"content":"mine","voteCount":1}]}}`,
	}}
	userTags := NewRemoteUserTags(newTestGateway(t, doer, nil))

	assert.Nil(t, userTags.UserAddTags())
	require.NoError(t, userTags.GetUserTagList(context.Background()))

	tags := userTags.UserAddTags()
	require.Len(t, tags, 1)
	assert.Equal(t, "mine", tags[0].Content)
}
