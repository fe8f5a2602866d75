package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the maximum time allowed for a single write to a client.
	// It prevents goroutine leaks when clients are slow or disconnected.
	writeTimeout = 5 * time.Second

	// closeTimeout bounds the close frame sent to each client on shutdown.
	closeTimeout = 1 * time.Second

	// maxMessageSize limits incoming WebSocket messages.
	maxMessageSize = 64 * 1024

	// subscriberBuffer is the per-subscriber queue length. Full queues drop
	// messages rather than block the broadcaster.
	subscriberBuffer = 100

	// serverSender is the From value of messages published via Broadcast.
	serverSender = "server"
)

// ErrClosed is reported when Close is called more than once.
var ErrClosed = errors.New("realtime channel closed")

// Mux is the route registration capability of the HTTP listener.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Channel is the contract between the server and its real-time collaborator.
//
// Attach is called once at startup with the HTTP listener; Close is the
// single teardown operation and reports completion through done.
type Channel interface {
	Attach(m Mux)
	Close(done func(error))
}

// Message is one broadcast, as delivered to every subscriber.
type Message struct {
	From string    `json:"from"`
	Data string    `json:"data"`
	At   time.Time `json:"at"`
}

// Hub is the default [Channel]: a broadcast room reachable over WebSocket
// ("/ws") and Server-Sent Events ("/events").
//
// Every text message a WebSocket client sends is relayed to all subscribers,
// the sender included.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[chan Message]struct{}
	conns       map[string]*websocket.Conn
	closed      bool
	wg          sync.WaitGroup
}

// NewHub creates an empty [Hub].
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// local development only; any page may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subscribers: make(map[chan Message]struct{}),
		conns:       make(map[string]*websocket.Conn),
	}
}

// Attach registers the hub's routes on m.
func (h *Hub) Attach(m Mux) {
	m.Handle("/ws", http.HandlerFunc(h.handleWebSocket))
	m.Handle("/events", http.HandlerFunc(h.handleSSE))
}

// Broadcast publishes data from the server to every subscriber.
func (h *Hub) Broadcast(data string) {
	h.publish(Message{From: serverSender, Data: data, At: time.Now().UTC()})
}

// Clients returns the number of active subscribers (WebSocket and SSE).
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Subscribe returns a channel receiving every subsequent broadcast.
//
// The channel has a buffer of 100 messages; when it is full, new messages
// are dropped for this subscriber. After Close the returned channel is
// already closed. Callers must [Hub.Unsubscribe] when done.
func (h *Hub) Subscribe() <-chan Message {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (h *Hub) Unsubscribe(ch <-chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// publish sends msg to all subscribers without blocking.
func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			// subscriber is slow, drop the message
		}
	}
}

// handleWebSocket upgrades the request and runs the client until it
// disconnects or the hub closes.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "realtime channel closed", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	sub := h.Subscribe()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conns[id] = conn
	h.mu.Unlock()

	h.logger.Info("realtime client connected", "client_id", id, "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, sub)
	}()

	h.readLoop(id, conn)

	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	h.Unsubscribe(sub)
	_ = conn.Close()
	<-writerDone

	h.logger.Info("realtime client disconnected", "client_id", id)
}

// readLoop relays client text messages until the connection fails.
func (h *Hub) readLoop(id string, conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("realtime read ended", "client_id", id, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.publish(Message{From: id, Data: string(data), At: time.Now().UTC()})
	}
}

// writeLoop forwards subscription messages to the client until the
// subscription is closed or a write fails.
func (h *Hub) writeLoop(conn *websocket.Conn, sub <-chan Message) {
	for msg := range sub {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Close issues an asynchronous close and returns immediately.
//
// New connections are refused with 503. Every WebSocket client receives a
// close frame and is disconnected, every subscription is closed, and done
// is called once all client goroutines have exited. A second Close reports
// [ErrClosed].
func (h *Hub) Close(done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		go done(ErrClosed)
		return
	}
	h.closed = true
	conns := make(map[string]*websocket.Conn, len(h.conns))
	for id, c := range h.conns {
		conns[id] = c
	}
	h.mu.Unlock()

	go func() {
		var errs []error
		frame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		for id, c := range conns {
			err := c.WriteControl(websocket.CloseMessage, frame, time.Now().Add(closeTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, fmt.Errorf("client %s: %w", id, err))
			}
			_ = c.Close()
		}

		h.mu.Lock()
		for ch := range h.subscribers {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()

		h.wg.Wait()
		done(errors.Join(errs...))
	}()
}
