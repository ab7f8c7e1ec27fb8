// Package companion implements the local WebSocket bridge a browser
// extension connects to for reload notifications. It is a best-effort
// observer of the sync engine: the engine broadcasts after a successful
// mutating op, and a missing or failing bridge never affects correctness.
//
// The protocol is one-way and tiny: the bridge sends a hello frame on
// accept and a reload frame after each mutation. Nothing the extension
// sends is interpreted.
package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// DefaultPort is the loopback port the bridge listens on.
const DefaultPort = 4242

// sendQueueLen bounds each subscriber's outbound queue. A slow or wedged
// extension drops notifications instead of stalling the push that
// triggered them.
const sendQueueLen = 16

// writeTimeout bounds a single frame write to one subscriber.
const writeTimeout = 3 * time.Second

// MessageType distinguishes the two wire frames the bridge sends.
type MessageType string

const (
	MessageTypeHello  MessageType = "hello"
	MessageTypeReload MessageType = "reload"
)

// Message is the JSON shape sent over the companion WebSocket.
type Message struct {
	Type MessageType `json:"type"`

	// Val/Branch are set on MessageTypeHello.
	Val    string `json:"val,omitempty"`
	Branch string `json:"branch,omitempty"`

	// Paths/Version are set on MessageTypeReload.
	Paths   []string `json:"paths,omitempty"`
	Version uint64   `json:"version,omitempty"`
}

// subscriber is one connected extension. Each has a private outbound queue
// drained by its own writer goroutine, so one stuck connection never delays
// another subscriber or the sync op doing the broadcast.
type subscriber struct {
	conn  *websocket.Conn
	queue chan []byte
}

// Hub accepts extension connections on 127.0.0.1:<port>/vt and fans reload
// frames out to them.
type Hub struct {
	hello []byte
	port  int

	ln     net.Listener
	closed chan struct{}

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	logger *log.Logger
}

// NewHub creates a Hub whose hello frame announces valID/branchID. If
// logger is nil, a stderr logger is used. Pass port 0 to let the OS assign
// an ephemeral port (tests); production callers pass DefaultPort.
func NewHub(port int, valID, branchID uuid.UUID, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "[companion] ", log.LstdFlags)
	}
	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Val: valID.String(), Branch: branchID.String()})
	return &Hub{
		hello:  hello,
		port:   port,
		closed: make(chan struct{}),
		subs:   make(map[*subscriber]struct{}),
		logger: logger,
	}
}

// Start begins accepting WebSocket connections at ws://127.0.0.1:<port>/vt.
func (h *Hub) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", h.port))
	if err != nil {
		return fmt.Errorf("companion: listen: %w", err)
	}
	h.ln = ln

	go func() {
		err := http.Serve(ln, http.HandlerFunc(h.accept))
		select {
		case <-h.closed:
			// Listener torn down by Stop; the serve error is expected.
		default:
			h.logger.Printf("companion: serve: %v", err)
		}
	}()
	return nil
}

// Stop tears the bridge down: the listener stops accepting and every
// subscriber's queue is closed, which makes its writer close the
// connection on the way out.
func (h *Hub) Stop() error {
	close(h.closed)
	if h.ln != nil {
		_ = h.ln.Close()
	}

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
		delete(h.subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		close(s.queue)
	}
	return nil
}

// BroadcastReload enqueues a reload frame for every subscriber. A full
// queue drops the frame with a log line; the caller is mid-push and must
// not block on a wedged extension.
func (h *Hub) BroadcastReload(paths []string, version uint64) {
	frame, err := json.Marshal(Message{Type: MessageTypeReload, Paths: paths, Version: version})
	if err != nil {
		h.logger.Printf("companion: marshal reload: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.queue <- frame:
		default:
			h.logger.Println("companion: subscriber queue full, dropping reload")
		}
	}
}

// accept upgrades one extension connection, registers it, and then blocks
// reading (and discarding) inbound frames; the read failing is the
// disconnect signal.
func (h *Hub) accept(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/vt" {
		http.NotFound(w, r)
		return
	}

	// Extension origins are opaque scheme-specific strings, not the
	// loopback host, so the origin check cannot be satisfied; the listener
	// being bound to 127.0.0.1 is the access control.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Printf("companion: accept: %v", err)
		return
	}

	sub := &subscriber{conn: conn, queue: make(chan []byte, sendQueueLen)}
	sub.queue <- h.hello

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go h.writeTo(sub)

	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			break
		}
	}
	h.drop(sub)
}

// writeTo drains one subscriber's queue onto its connection, closing the
// connection when the queue is closed or a write fails.
func (h *Hub) writeTo(sub *subscriber) {
	defer sub.conn.Close(websocket.StatusGoingAway, "")
	for frame := range sub.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := sub.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			h.logger.Printf("companion: write: %v", err)
			return
		}
	}
}

// drop unregisters a subscriber after its read loop ends. Whoever removes
// it from the map owns closing the queue, so a disconnect racing Stop
// cannot close it twice.
func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, registered := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	if registered {
		close(sub.queue)
	}
}

// Addr returns the bridge's listening address. Tests pass port 0 and read
// the assigned address back here.
func (h *Hub) Addr() string {
	if h.ln != nil {
		return h.ln.Addr().String()
	}
	return fmt.Sprintf("127.0.0.1:%d", h.port)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
