package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/id"
)

// DefaultSubscriptionURL is where the server listens for subscriptions.
const DefaultSubscriptionURL = "ws://localhost:8333/subscriptions"

// graphql-ws (subscriptions-transport-ws) protocol.
const (
	subprotocol = "graphql-ws"

	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionTerminate = "connection_terminate"
	msgKeepAlive           = "ka"
	msgStart               = "start"
	msgStop                = "stop"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	ackTimeout = 10 * time.Second

	maxMessageSize = 1 << 20
	subBuffer      = 16

	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ConnectionParamsFunc builds the connection_init payload, typically carrying the token.
type ConnectionParamsFunc func(ctx context.Context) (map[string]any, error)

// WSOptions configures a WSTransport.
type WSOptions struct {
	URL              string
	Dialer           *websocket.Dialer
	Header           http.Header
	ConnectionParams ConnectionParamsFunc
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	// OnError receives every dial, handshake and disconnect failure.
	OnError func(error)
	Logger  *slog.Logger
}

// WSTransport is the persistent channel for subscriptions. It connects lazily on the
// first subscription, reconnects with capped exponential backoff, and restarts every
// live subscription after a reconnect.
type WSTransport struct {
	url        string
	dialer     *websocket.Dialer
	header     http.Header
	params     ConnectionParamsFunc
	minBackoff time.Duration
	maxBackoff time.Duration
	onError    func(error)
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	subs      map[string]*wsSub
	conn      *websocket.Conn
	started   bool
	closed    bool
	connected chan struct{}

	writeMu sync.Mutex
}

type wsSub struct {
	id   string
	req  Request
	ch   chan *Response
	done chan struct{}

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// NewWSTransport creates the subscription transport. Nothing is dialed until Subscribe.
func NewWSTransport(opts WSOptions) *WSTransport {
	if opts.URL == "" {
		opts.URL = DefaultSubscriptionURL
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		}
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WSTransport{
		url:        opts.URL,
		dialer:     opts.Dialer,
		header:     opts.Header,
		params:     opts.ConnectionParams,
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		onError:    opts.OnError,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		subs:       make(map[string]*wsSub),
		connected:  make(chan struct{}),
	}
}

// Subscribe starts a subscription. The returned channel is closed when the server
// completes the operation, ctx ends, or the transport closes.
func (t *WSTransport) Subscribe(ctx context.Context, req Request) (<-chan *Response, error) {
	opID, err := id.Operation()
	if err != nil {
		return nil, err
	}

	sub := &wsSub{
		id:   opID,
		req:  req,
		ch:   make(chan *Response, subBuffer),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.Transport("subscription transport closed")
	}
	t.subs[opID] = sub
	conn := t.conn
	if !t.started {
		t.started = true
		go t.run()
	}
	t.mu.Unlock()

	if conn != nil {
		if err := t.send(conn, wsMessage{ID: opID, Type: msgStart, Payload: mustJSON(req)}); err != nil {
			// The run loop resends starts after it reconnects.
			t.logger.Warn("send subscription start", "id", opID, "error", err)
		}
	}

	context.AfterFunc(ctx, func() { t.unsubscribe(opID) })
	return sub.ch, nil
}

// Connected is closed once the first connection is acknowledged. Useful in tests.
func (t *WSTransport) Connected() <-chan struct{} {
	return t.connected
}

// Active returns the number of live subscriptions.
func (t *WSTransport) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close stops the run loop, terminates the connection, and closes every subscription channel.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	conn := t.conn
	subs := t.subs
	t.subs = make(map[string]*wsSub)
	t.mu.Unlock()

	if conn != nil {
		_ = t.send(conn, wsMessage{Type: msgConnectionTerminate})
	}
	t.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-t.done
	}

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

func (t *WSTransport) unsubscribe(opID string) {
	t.mu.Lock()
	sub, ok := t.subs[opID]
	delete(t.subs, opID)
	conn := t.conn
	t.mu.Unlock()

	if !ok {
		return
	}
	if conn != nil {
		if err := t.send(conn, wsMessage{ID: opID, Type: msgStop}); err != nil {
			t.logger.Debug("send subscription stop", "id", opID, "error", err)
		}
	}
	sub.close()
}

func (t *WSTransport) run() {
	defer close(t.done)

	backoff := t.minBackoff
	var connectedOnce sync.Once

	for {
		if t.ctx.Err() != nil {
			return
		}

		conn, err := t.dial()
		if err != nil {
			t.report(fmt.Errorf("connect %s: %w", t.url, err))
			if !t.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, t.maxBackoff)
			continue
		}
		backoff = t.minBackoff

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		live := make([]*wsSub, 0, len(t.subs))
		for _, sub := range t.subs {
			live = append(live, sub)
		}
		t.mu.Unlock()

		connectedOnce.Do(func() { close(t.connected) })
		t.logger.Info("subscription channel connected", "url", t.url, "subscriptions", len(live))

		for _, sub := range live {
			if err := t.send(conn, wsMessage{ID: sub.id, Type: msgStart, Payload: mustJSON(sub.req)}); err != nil {
				t.logger.Warn("resend subscription start", "id", sub.id, "error", err)
			}
		}

		err = t.serve(conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		_ = conn.Close()

		if t.ctx.Err() != nil {
			return
		}
		t.report(fmt.Errorf("subscription channel disconnected: %w", err))
		if !t.sleep(backoff) {
			return
		}
	}
}

func (t *WSTransport) dial() (*websocket.Conn, error) {
	dialer := *t.dialer
	dialer.Subprotocols = []string{subprotocol}

	conn, _, err := dialer.DialContext(t.ctx, t.url, t.header)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxMessageSize)

	var payload json.RawMessage
	if t.params != nil {
		params, err := t.params(t.ctx)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("connection params: %w", err)
		}
		payload = mustJSON(params)
	}
	if err := t.send(conn, wsMessage{Type: msgConnectionInit, Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("await connection_ack: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			return conn, nil
		case msgConnectionError:
			_ = conn.Close()
			return nil, fmt.Errorf("connection rejected: %s", string(msg.Payload))
		case msgKeepAlive:
			continue
		default:
			t.logger.Debug("unexpected message before ack", "type", msg.Type)
		}
	}
}

// serve reads until the connection fails. A pinger keeps the read deadline moving.
func (t *WSTransport) serve(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go t.ping(conn, stopPing)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case msgData:
			var resp Response
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				t.logger.Warn("invalid subscription payload", "id", msg.ID, "error", err)
				continue
			}
			t.deliver(msg.ID, &resp)
		case msgError:
			// An error ends the operation.
			t.deliver(msg.ID, &Response{Errors: parseErrorPayload(msg.Payload)})
			t.complete(msg.ID)
		case msgComplete:
			t.complete(msg.ID)
		case msgKeepAlive:
		case msgConnectionError:
			return fmt.Errorf("connection error: %s", string(msg.Payload))
		default:
			t.logger.Debug("ignoring subscription message", "type", msg.Type)
		}
	}
}

func (t *WSTransport) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (t *WSTransport) deliver(opID string, resp *Response) {
	t.mu.Lock()
	sub, ok := t.subs[opID]
	t.mu.Unlock()
	if !ok {
		return
	}
	sub.send(resp, t.ctx.Done())
}

func (t *WSTransport) complete(opID string) {
	t.mu.Lock()
	sub, ok := t.subs[opID]
	delete(t.subs, opID)
	t.mu.Unlock()
	if ok {
		sub.close()
	}
}

func (t *WSTransport) send(conn *websocket.Conn, msg wsMessage) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (t *WSTransport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (t *WSTransport) report(err error) {
	t.logger.Warn("subscription channel error", "error", err)
	if t.onError != nil {
		t.onError(errors.Wrap(err, errors.CodeTransport, "subscription transport"))
	}
}

// send blocks until the consumer takes resp or the subscription ends.
func (s *wsSub) send(resp *Response, stop <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- resp:
	case <-s.done:
	case <-stop:
	}
}

func (s *wsSub) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// parseErrorPayload accepts either a single error object or an array of them.
func parseErrorPayload(payload json.RawMessage) []Error {
	var list []Error
	if err := json.Unmarshal(payload, &list); err == nil {
		return list
	}
	var single Error
	if err := json.Unmarshal(payload, &single); err == nil && single.Message != "" {
		return []Error{single}
	}
	return []Error{{Message: string(payload)}}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal graphql-ws payload: %v", err))
	}
	return data
}
