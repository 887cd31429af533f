package network

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// Handler receives a decoded client message. Handlers run on the connection's
// read goroutine and must hand work off rather than touch simulation state.
type Handler func(ctx context.Context, env Envelope)

// Hub upgrades telemetry clients to websockets, broadcasts envelopes to all of
// them, and dispatches messages they send to registered handlers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger
	seq      atomic.Uint64

	mu          sync.RWMutex
	handlers    map[MessageType][]Handler
	subscribers map[*subscriber]struct{}
	hello       func() any
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:      logger,
		handlers:    make(map[MessageType][]Handler),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// OnConnect sets the payload sent as a hello message to each new client.
func (h *Hub) OnConnect(hello func() any) {
	h.mu.Lock()
	h.hello = hello
	h.mu.Unlock()
}

func (h *Hub) Register(msgType MessageType, handler Handler) {
	h.mu.Lock()
	h.handlers[msgType] = append(h.handlers[msgType], handler)
	h.mu.Unlock()
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and reads client messages until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade %s: %v", r.RemoteAddr, err)
		return
	}
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	hello := h.hello
	h.mu.Unlock()
	defer h.drop(sub)

	if hello != nil {
		data, err := h.prepare(MessageHello, hello())
		if err == nil {
			err = sub.write(data)
		}
		if err != nil {
			h.logger.Printf("send hello to %s: %v", r.RemoteAddr, err)
			return
		}
	}

	ctx := r.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Printf("read from %s: %v", r.RemoteAddr, err)
			}
			return
		}
		env, err := Decode(payload)
		if err != nil {
			h.logger.Printf("decode message from %s: %v", r.RemoteAddr, err)
			continue
		}
		for _, handler := range h.handlersFor(env.Type) {
			handler(ctx, env)
		}
	}
}

func (h *Hub) handlersFor(msgType MessageType) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Handler(nil), h.handlers[msgType]...)
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
	}
}

// Broadcast sends one envelope to every subscriber and returns how many
// received it. Subscribers whose write fails are dropped.
func (h *Hub) Broadcast(msgType MessageType, payload any) (int, error) {
	data, err := h.prepare(msgType, payload)
	if err != nil {
		return 0, err
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if err := sub.write(data); err != nil {
			h.logger.Printf("websocket write error: %v", err)
			h.drop(sub)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	var errs []error
	for sub := range subs {
		if err := sub.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) prepare(msgType MessageType, payload any) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	env := Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Seq:       h.seq.Add(1),
		Payload:   raw,
	}
	return Encode(env)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("null"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}

// DecodePayload unmarshals an envelope payload into v.
func DecodePayload(env Envelope, v any) error {
	return json.Unmarshal(env.Payload, v)
}
