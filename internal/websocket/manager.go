// Package websocket carries session messages between the browser and the
// editor engine.
//
// Each connection is bound to one page session by the session query
// parameter. Inbound frames are decoded and submitted to the session loop;
// everything the session emits is written back on the same connection.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/session"
	"github.com/conneroisu/livecode/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer. Edits carry the full text.
	maxMessageSize = 256 << 10

	sendBuffer = 256
)

// Sessions looks up page sessions.
type Sessions interface {
	Get(id string) (*session.Session, error)
}

// Metrics counts connections and messages.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	ObserveMessage(direction, typ string)
}

// Options configures a Manager.
type Options struct {
	// AllowedOrigins lists origins or hosts accepted besides the request's
	// own host.
	AllowedOrigins []string
	// MessagesPerSecond bounds inbound traffic per client. Messages over it
	// are dropped with an error reply; persistent flooding closes the
	// connection with 1008. Zero disables it.
	MessagesPerSecond int
	Metrics           Metrics
	Logger            logging.Logger
}

// Client is one browser connection.
type Client struct {
	conn    *websocket.Conn
	session *session.Session
	send    chan []byte
	limiter *inboundLimiter
	detach  func()

	mu     sync.Mutex
	closed bool
}

// enqueue is the session sink. It runs on the session goroutine and never
// blocks: a client that cannot keep up is dropped.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// setDetach records the session detach func, running it at once when the
// client was dropped while the backlog replayed.
func (c *Client) setDetach(detach func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		detach()
		return
	}
	c.detach = detach
	c.mu.Unlock()
}

// shut detaches the client from its session and stops the writer.
func (c *Client) shut() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// Manager accepts websocket connections and tracks the live clients.
type Manager struct {
	sessions Sessions
	opts     Options
	logger   logging.Logger
	metrics  Metrics

	clients      map[*Client]struct{}
	clientsMutex sync.RWMutex

	register   chan *Client
	unregister chan *Client

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewManager creates a manager and starts its hub goroutine.
func NewManager(sessions Sessions, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions:   sessions,
		opts:       opts,
		logger:     logger.WithComponent("websocket"),
		metrics:    opts.Metrics,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 32),
		unregister: make(chan *Client, 32),
		ctx:        ctx,
		cancel:     cancel,
	}
	go m.runHub()
	return m
}

// HandleWebSocket upgrades a request for the session named by the session
// query parameter.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	if err := m.checkOrigin(r); err != nil {
		m.logger.Warn(r.Context(), err, "websocket connection rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	sess, err := m.sessions.Get(r.URL.Query().Get("session"))
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin was validated above.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:    conn,
		session: sess,
		send:    make(chan []byte, sendBuffer),
	}
	if m.opts.MessagesPerSecond > 0 {
		client.limiter = newInboundLimiter(m.opts.MessagesPerSecond)
	}

	select {
	case m.register <- client:
	case <-m.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	}

	client.setDetach(sess.Attach(func(msg session.Message) {
		data, err := json.Marshal(msg)
		if err != nil {
			m.logger.Error(m.ctx, err, "encoding message", "type", msg.Type)
			return
		}
		if !client.enqueue(data) {
			m.drop(client)
			return
		}
		m.observe("out", msg.Type)
	}))

	m.wg.Add(2)
	go m.writeToClient(client)
	go m.readFromClient(client)
}

// checkOrigin accepts the request's own host and the configured origins.
func (m *Manager) checkOrigin(r *http.Request) error {
	allowed := append([]string{r.Host}, m.opts.AllowedOrigins...)
	return validation.ValidateOrigin(r.Header.Get("Origin"), allowed)
}

func (m *Manager) runHub() {
	for {
		select {
		case client := <-m.register:
			m.clientsMutex.Lock()
			m.clients[client] = struct{}{}
			count := len(m.clients)
			m.clientsMutex.Unlock()
			if m.metrics != nil {
				m.metrics.ClientConnected()
			}
			m.logger.Debug(m.ctx, "client connected", "session", client.session.ID(), "clients", count)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	_, exists := m.clients[client]
	delete(m.clients, client)
	count := len(m.clients)
	m.clientsMutex.Unlock()
	if !exists {
		return
	}

	client.shut()
	if m.metrics != nil {
		m.metrics.ClientDisconnected()
	}
	m.logger.Debug(m.ctx, "client disconnected", "session", client.session.ID(), "clients", count)
}

// drop disconnects a client from a goroutine that must not block.
func (m *Manager) drop(client *Client) {
	go func() {
		select {
		case m.unregister <- client:
		case <-m.ctx.Done():
		}
	}()
}

func (m *Manager) readFromClient(client *Client) {
	defer m.wg.Done()
	defer func() {
		select {
		case m.unregister <- client:
		case <-m.ctx.Done():
		}
	}()

	for {
		_, data, err := client.conn.Read(m.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && m.ctx.Err() == nil {
				m.logger.Debug(m.ctx, "websocket read ended", "error", err.Error())
			}
			return
		}

		if client.limiter != nil {
			ok, exhausted := client.limiter.admit(time.Now())
			if exhausted {
				m.logger.Warn(m.ctx, nil, "message rate limit exceeded", "session", client.session.ID())
				_ = client.conn.Close(websocket.StatusPolicyViolation, "rate limit exceeded")
				return
			}
			if !ok {
				m.reply(client, "rate limit exceeded, message dropped")
				continue
			}
		}

		if !m.processClientMessage(client, data) {
			_ = client.conn.Close(websocket.StatusGoingAway, "session closed")
			return
		}
	}
}

// processClientMessage submits one frame and reports whether the
// connection should stay open.
func (m *Manager) processClientMessage(client *Client, data []byte) bool {
	var in session.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		m.reply(client, "malformed message")
		return true
	}
	m.observe("in", in.Type)

	if in.Type != session.TypeReady {
		if err := validation.ValidateEditorID(in.Editor); err != nil {
			m.reply(client, err.Error())
			return true
		}
	}

	err := client.session.Submit(m.ctx, in)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errors.ErrSessionClosed):
		return false
	case errors.IsRecoverable(err) || errors.IsExecutionError(err):
		m.logger.Debug(m.ctx, "message rejected", "session", client.session.ID(), "type", in.Type, "error", err.Error())
		m.reply(client, errors.UserMessage(err))
		return true
	default:
		m.logger.Warn(m.ctx, err, "message rejected", "session", client.session.ID(), "type", in.Type)
		m.reply(client, errors.UserMessage(err))
		return true
	}
}

// reply sends an error to one client only.
func (m *Manager) reply(client *Client, text string) {
	data, err := json.Marshal(session.Message{Type: session.TypeError, Error: text, Timestamp: time.Now()})
	if err != nil {
		return
	}
	if client.enqueue(data) {
		m.observe("out", session.TypeError)
	}
}

func (m *Manager) writeToClient(client *Client) {
	defer m.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() { _ = client.conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := client.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}

		case <-client.session.Done():
			_ = client.conn.Close(websocket.StatusGoingAway, "session closed")
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) observe(direction, typ string) {
	if m.metrics != nil {
		m.metrics.ObserveMessage(direction, typ)
	}
}

// Clients returns the number of connected clients.
func (m *Manager) Clients() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Shutdown closes every connection and stops the hub.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.clientsMutex.Lock()
		clients := make([]*Client, 0, len(m.clients))
		for client := range m.clients {
			clients = append(clients, client)
		}
		m.clients = make(map[*Client]struct{})
		m.clientsMutex.Unlock()

		for _, client := range clients {
			client.shut()
			_ = client.conn.Close(websocket.StatusServiceRestart, "Server shutting down")
			if m.metrics != nil {
				m.metrics.ClientDisconnected()
			}
		}
		m.cancel()
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
