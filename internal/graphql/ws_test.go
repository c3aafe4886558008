package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapflag/mapflag-client/internal/logger"
)

const waitTimeout = 5 * time.Second

type startedOp struct {
	conn    *websocket.Conn
	id      string
	payload Request
}

// fakeSubscriptionServer speaks the server side of graphql-ws.
type fakeSubscriptionServer struct {
	srv      *httptest.Server
	inits    chan json.RawMessage
	starts   chan startedOp
	stops    chan string
	upgrader websocket.Upgrader
}

func newFakeSubscriptionServer(t *testing.T) *fakeSubscriptionServer {
	t.Helper()
	s := &fakeSubscriptionServer{
		inits:    make(chan json.RawMessage, 8),
		starts:   make(chan startedOp, 8),
		stops:    make(chan string, 8),
		upgrader: websocket.Upgrader{Subprotocols: []string{subprotocol}},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeSubscriptionServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeSubscriptionServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var init wsMessage
	if err := conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
		return
	}
	s.inits <- init.Payload
	if err := conn.WriteJSON(wsMessage{Type: msgConnectionAck}); err != nil {
		return
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case msgStart:
			var req Request
			_ = json.Unmarshal(msg.Payload, &req)
			s.starts <- startedOp{conn: conn, id: msg.ID, payload: req}
		case msgStop:
			s.stops <- msg.ID
		}
	}
}

func nextStart(t *testing.T, s *fakeSubscriptionServer) startedOp {
	t.Helper()
	select {
	case op := <-s.starts:
		return op
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for subscription start")
		return startedOp{}
	}
}

func nextResponse(t *testing.T, ch <-chan *Response) *Response {
	t.Helper()
	select {
	case resp, ok := <-ch:
		require.True(t, ok, "subscription channel closed")
		return resp
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for subscription data")
		return nil
	}
}

func assertClosed(t *testing.T, ch <-chan *Response) {
	t.Helper()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for channel close")
	}
}

func newTestWSTransport(s *fakeSubscriptionServer, onError func(error)) *WSTransport {
	return NewWSTransport(WSOptions{
		URL:        s.url(),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
		OnError:    onError,
		Logger:     logger.Discard().Logger,
		ConnectionParams: func(context.Context) (map[string]any, error) {
			return map[string]any{"authToken": "tok1"}, nil
		},
	})
}

var tagChangeSub = Request{Query: `subscription { tagChangeSubscription { changeType tag { id } } }`}

func TestWSTransport_SubscribeReceivesData(t *testing.T) {
	srv := newFakeSubscriptionServer(t)
	tr := newTestWSTransport(srv, nil)
	defer tr.Close()

	ch, err := tr.Subscribe(context.Background(), tagChangeSub)
	require.NoError(t, err)

	op := nextStart(t, srv)
	assert.Equal(t, tagChangeSub.Query, op.payload.Query)
	assert.JSONEq(t, `{"authToken":"tok1"}`, string(<-srv.inits))

	require.NoError(t, op.conn.WriteJSON(wsMessage{
		ID:      op.id,
		Type:    msgData,
		Payload: json.RawMessage(`{"data":{"tagChangeSubscription":{"changeType":"added","tag":{"id":"1"}}}}`),
	}))

	resp := nextResponse(t, ch)
	assert.JSONEq(t, `{"tagChangeSubscription":{"changeType":"added","tag":{"id":"1"}}}`, string(resp.Data))
}

func TestWSTransport_ErrorEndsOperation(t *testing.T) {
	srv := newFakeSubscriptionServer(t)
	tr := newTestWSTransport(srv, nil)
	defer tr.Close()

	ch, err := tr.Subscribe(context.Background(), tagChangeSub)
	require.NoError(t, err)
	op := nextStart(t, srv)

	require.NoError(t, op.conn.WriteJSON(wsMessage{ID: op.id, Type: msgError, Payload: json.RawMessage(`{"message":"not allowed"}`)}))
	resp := nextResponse(t, ch)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "not allowed", resp.Errors[0].Message)

	assertClosed(t, ch)
	assert.Eventually(t, func() bool { return tr.Active() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestWSTransport_CompleteClosesChannel(t *testing.T) {
	srv := newFakeSubscriptionServer(t)
	tr := newTestWSTransport(srv, nil)
	defer tr.Close()

	ch, err := tr.Subscribe(context.Background(), tagChangeSub)
	require.NoError(t, err)
	op := nextStart(t, srv)

	require.NoError(t, op.conn.WriteJSON(wsMessage{ID: op.id, Type: msgComplete}))
	assertClosed(t, ch)
	assert.Eventually(t, func() bool { return tr.Active() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestWSTransport_ContextCancelStops(t *testing.T) {
	srv := newFakeSubscriptionServer(t)
	tr := newTestWSTransport(srv, nil)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := tr.Subscribe(ctx, tagChangeSub)
	require.NoError(t, err)
	op := nextStart(t, srv)

	cancel()

	select {
	case stopped := <-srv.stops:
		assert.Equal(t, op.id, stopped)
	case <-time.After(waitTimeout):
		t.Fatal("server never saw stop")
	}
	assertClosed(t, ch)
}

func TestWSTransport_ReconnectResubscribes(t *testing.T) {
	srv := newFakeSubscriptionServer(t)

	var mu sync.Mutex
	var reported []error
	tr := newTestWSTransport(srv, func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})
	defer tr.Close()

	ch, err := tr.Subscribe(context.Background(), tagChangeSub)
	require.NoError(t, err)

	first := nextStart(t, srv)
	require.NoError(t, first.conn.Close())

	second := nextStart(t, srv)
	assert.Equal(t, first.id, second.id, "the same operation is restarted")
	assert.NotSame(t, first.conn, second.conn)

	require.NoError(t, second.conn.WriteJSON(wsMessage{
		ID:      second.id,
		Type:    msgData,
		Payload: json.RawMessage(`{"data":{"tagChangeSubscription":{"changeType":"updated","tag":{"id":"2"}}}}`),
	}))
	resp := nextResponse(t, ch)
	assert.Contains(t, string(resp.Data), `"updated"`)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reported, "disconnects are reported, not swallowed")
	assert.Contains(t, reported[0].Error(), "disconnected")
}

func TestWSTransport_DialFailureReported(t *testing.T) {
	srv := newFakeSubscriptionServer(t)
	url := srv.url()
	srv.srv.Close()

	errs := make(chan error, 16)
	tr := NewWSTransport(WSOptions{
		URL:        url,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
		Logger:     logger.Discard().Logger,
		OnError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})
	defer tr.Close()

	_, err := tr.Subscribe(context.Background(), tagChangeSub)
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "connect")
	case <-time.After(waitTimeout):
		t.Fatal("dial failure was not reported")
	}
}

func TestWSTransport_CloseClosesSubscriptions(t *testing.T) {
	srv := newFakeSubscriptionServer(t)
	tr := newTestWSTransport(srv, nil)

	ch, err := tr.Subscribe(context.Background(), tagChangeSub)
	require.NoError(t, err)
	nextStart(t, srv)

	require.NoError(t, tr.Close())
	assertClosed(t, ch)

	_, err = tr.Subscribe(context.Background(), tagChangeSub)
	assert.Error(t, err)
}

func TestParseErrorPayload(t *testing.T) {
	assert.Equal(t, []Error{{Message: "a"}, {Message: "b"}}, parseErrorPayload(json.RawMessage(`[{"message":"a"},{"message":"b"}]`)))
	assert.Equal(t, []Error{{Message: "one"}}, parseErrorPayload(json.RawMessage(`{"message":"one"}`)))
	assert.Equal(t, []Error{{Message: `"raw"`}}, parseErrorPayload(json.RawMessage(`"raw"`)))
}
