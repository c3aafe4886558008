package graphql

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(1000)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

var tagListQuery = Request{Query: `query TagList { tagList { __typename id content voteCount } }`, OperationName: "TagList"}

func TestCache_ReadMiss(t *testing.T) {
	c := newTestCache(t)
	_, ok := c.Read(tagListQuery)
	assert.False(t, ok)
}

func TestCache_WriteRead(t *testing.T) {
	c := newTestCache(t)
	data := `{"tagList":[{"__typename":"Tag","id":"1","content":"library","voteCount":2}]}`

	require.NoError(t, c.Write(tagListQuery, []byte(data)))

	got, ok := c.Read(tagListQuery)
	require.True(t, ok)
	assert.JSONEq(t, data, string(got))

	entity, ok := c.Entity("Tag", "1")
	require.True(t, ok)
	assert.Equal(t, "library", entity["content"])
}

func TestCache_EntityUpdateVisibleToQueries(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Write(tagListQuery, []byte(
		`{"tagList":[{"__typename":"Tag","id":"1","content":"library","voteCount":2},{"__typename":"Tag","id":"2","content":"gym","voteCount":0}]}`,
	)))

	// A subscription payload carries a partial Tag.
	require.NoError(t, c.WriteEntities([]byte(
		`{"tagChangeSubscription":{"changeType":"updated","tag":{"__typename":"Tag","id":"1","voteCount":7}}}`,
	)))

	got, ok := c.Read(tagListQuery)
	require.True(t, ok)
	assert.JSONEq(t,
		`{"tagList":[{"__typename":"Tag","id":"1","content":"library","voteCount":7},{"__typename":"Tag","id":"2","content":"gym","voteCount":0}]}`,
		string(got))
}

func TestCache_RepeatedEntityInOnePayload(t *testing.T) {
	c := newTestCache(t)
	req := Request{Query: `query Pair { first { __typename id content } second { __typename id voteCount } }`}

	require.NoError(t, c.Write(req, []byte(
		`{"first":{"__typename":"Tag","id":"1","content":"library"},"second":{"__typename":"Tag","id":"1","voteCount":4}}`,
	)))

	entity, ok := c.Entity("Tag", "1")
	require.True(t, ok)
	assert.Equal(t, "library", entity["content"])
	assert.Equal(t, json.Number("4"), entity["voteCount"])

	got, ok := c.Read(req)
	require.True(t, ok)
	assert.JSONEq(t,
		`{"first":{"__typename":"Tag","id":"1","content":"library","voteCount":4},"second":{"__typename":"Tag","id":"1","content":"library","voteCount":4}}`,
		string(got))
}

func TestCache_VariablesPartitionResults(t *testing.T) {
	c := newTestCache(t)
	q := `query Detail($id: ID!) { getTagDetail(id: $id) { __typename id description } }`
	one := Request{Query: q, Variables: map[string]any{"id": "1"}}
	two := Request{Query: q, Variables: map[string]any{"id": "2"}}

	require.NoError(t, c.Write(one, []byte(`{"getTagDetail":{"__typename":"TagDetail","id":"1","description":"<p>a</p>"}}`)))

	_, ok := c.Read(one)
	assert.True(t, ok)
	_, ok = c.Read(two)
	assert.False(t, ok)
	assert.NotEqual(t, ResultKey(one), ResultKey(two))
}

func TestCache_NumericIDsAndNonEntities(t *testing.T) {
	c := newTestCache(t)
	req := Request{Query: `{ threshold categories { id name } }`}
	data := `{"threshold":5,"categories":[{"id":1,"name":"facility"}]}`

	require.NoError(t, c.Write(req, []byte(data)))

	got, ok := c.Read(req)
	require.True(t, ok)
	assert.JSONEq(t, data, string(got))

	_, ok = c.Entity("Category", "1")
	assert.False(t, ok, "objects without __typename are not normalized")
}

func TestCache_Clear(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Write(tagListQuery, []byte(`{"tagList":[]}`)))

	c.Clear()

	_, ok := c.Read(tagListQuery)
	assert.False(t, ok)
}

func TestCache_InvalidJSON(t *testing.T) {
	c := newTestCache(t)
	assert.Error(t, c.Write(tagListQuery, []byte(`{`)))
}
