package sse

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mapflag/mapflag-client/internal/id"
)

const (
	queueSize    = 256
	clientBuffer = 64
	historySize  = 128
)

// Subscription describes what a connecting client wants to receive.
type Subscription struct {
	// Types holds event name prefixes such as "tag." or "mission.opened".
	// Empty means everything.
	Types []string

	// LastEventID is the last sequence the client saw. Retained events after
	// it are replayed on connect.
	LastEventID uint64
}

// Client is a connected event stream.
type Client struct {
	ConnectedAt time.Time
	EventChan   chan Event
	Done        chan struct{}
	ID          string

	// Backlog holds the events replayed for Subscription.LastEventID, oldest first.
	Backlog []Event

	types []string
}

// Accepts reports whether the client subscribed to events of type t.
// Heartbeats always pass.
func (c *Client) Accepts(t EventType) bool {
	if len(c.types) == 0 || t == EventHeartbeat {
		return true
	}
	for _, prefix := range c.types {
		if strings.HasPrefix(string(t), prefix) {
			return true
		}
	}
	return false
}

// Manager sequences events, keeps a short replay history, and fans them out
// to connected clients.
type Manager struct {
	logger    *slog.Logger
	queue     chan Event
	heartbeat time.Duration

	// mu guards clients, history and seq. Broadcast and Connect both take it
	// so a reconnecting client sees each event exactly once.
	mu      sync.Mutex
	clients map[string]*Client
	history []Event
	seq     uint64

	closeMu sync.RWMutex
	closed  bool
	running sync.WaitGroup
}

// NewManager creates a Manager. Call Start to begin broadcasting.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger,
		queue:     make(chan Event, queueSize),
		heartbeat: 30 * time.Second,
		clients:   make(map[string]*Client),
		history:   make([]Event, 0, historySize),
	}
}

// Start runs the broadcast loop until ctx ends or Shutdown closes the queue.
func (m *Manager) Start(ctx context.Context) {
	m.running.Add(1)
	defer m.running.Done()

	m.logger.Info("event stream starting", slog.Duration("heartbeat", m.heartbeat))

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				m.dropClients()
				return
			}
			m.broadcast(event)

		case <-ticker.C:
			m.broadcast(NewHeartbeatEvent())

		case <-ctx.Done():
			m.logger.Info("event stream stopping")
			m.dropClients()
			return
		}
	}
}

// Shutdown stops accepting events, flushes what is queued, and closes every client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	stopped := make(chan struct{})
	go func() {
		m.running.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		// Start never ran or already returned; deliver what it left behind.
		for event := range m.queue {
			m.broadcast(event)
		}
	case <-ctx.Done():
		m.logger.Warn("event stream flush timed out", slog.Int("pending", len(m.queue)))
	}

	m.dropClients()
	m.logger.Info("event stream closed")
	return nil
}

// Emit queues an event. Events emitted after Shutdown are dropped.
func (m *Manager) Emit(event Event) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		return
	}

	select {
	case m.queue <- event:
	default:
		m.logger.Error("event queue full, dropping event",
			slog.String("event_type", string(event.Type)))
	}
}

// broadcast stamps non-heartbeat events with the next sequence number,
// records them for replay and delivers them to every interested client.
func (m *Manager) broadcast(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.Type != EventHeartbeat {
		m.seq++
		event.ID = m.seq
		m.remember(event)
	}

	var delivered, dropped int
	for _, client := range m.clients {
		if !client.Accepts(event.Type) {
			continue
		}
		select {
		case client.EventChan <- event:
			delivered++
		default:
			dropped++
			m.logger.Warn("client buffer full, event dropped",
				slog.String("client_id", client.ID),
				slog.Uint64("event_id", event.ID))
		}
	}

	if event.Type != EventHeartbeat {
		m.logger.Debug("event sent",
			slog.String("event_type", string(event.Type)),
			slog.Uint64("event_id", event.ID),
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped))
	}
}

// remember appends to the history, discarding the oldest entry when full.
// Callers hold mu.
func (m *Manager) remember(event Event) {
	if len(m.history) == historySize {
		copy(m.history, m.history[1:])
		m.history = m.history[:historySize-1]
	}
	m.history = append(m.history, event)
}

// Connect registers a new client. When sub.LastEventID is set, retained
// events after it that match sub.Types are placed in Client.Backlog.
func (m *Manager) Connect(sub Subscription) (*Client, error) {
	clientID, err := id.Generate(id.PrefixSSEClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		EventChan:   make(chan Event, clientBuffer),
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
		types:       sub.Types,
	}

	m.mu.Lock()
	if sub.LastEventID > 0 {
		for _, event := range m.history {
			if event.ID > sub.LastEventID && client.Accepts(event.Type) {
				client.Backlog = append(client.Backlog, event)
			}
		}
		if len(m.history) > 0 && m.history[0].ID > sub.LastEventID+1 {
			m.logger.Warn("replay history exhausted, client missed events",
				slog.String("client_id", clientID),
				slog.Uint64("last_event_id", sub.LastEventID),
				slog.Uint64("oldest_retained", m.history[0].ID))
		}
	}
	m.clients[clientID] = client
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("event client connected",
		slog.String("client_id", clientID),
		slog.Int("replayed", len(client.Backlog)),
		slog.Int("total_clients", total))
	return client, nil
}

// Disconnect removes a client and closes its channels. Unknown ids are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	total := len(m.clients)
	m.mu.Unlock()

	if !ok {
		return
	}
	client.close()

	m.logger.Info("event client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", total))
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// LastEventID returns the sequence number of the most recent event.
func (m *Manager) LastEventID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

func (m *Manager) dropClients() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

func (c *Client) close() {
	close(c.Done)
	close(c.EventChan)
}
