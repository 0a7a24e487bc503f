// Package bus provides in-memory pub/sub for pipeline events. Agents
// publish progress messages; HTTP streaming and handler subscribers
// consume them. A per-session ring buffer supports replay.
package bus

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
)

// Well-known topics.
const (
	TopicStage    = "stage"
	TopicProgress = "progress"
	TopicResult   = "result"
	TopicError    = "error"
)

// Message is a single bus event. Seq is assigned at publish time and
// increases monotonically per session.
type Message struct {
	SessionID string      `json:"session_id"`
	Topic     string      `json:"topic"`
	Sender    string      `json:"sender,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Seq       uint64      `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE or logs.
func (m Message) Marshal() []byte {
	b, _ := json.Marshal(m)
	return b
}

// Handler receives messages synchronously during publish.
type Handler func(Message)

// Bus fans messages out to channel subscribers and handlers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
	handlers    map[string][]Handler
	history     map[string]*ring
	capacity    int
	logger      *zap.Logger
}

// New returns a bus whose per-session replay buffers hold capacity
// messages each.
func New(capacity int, logger *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string]map[chan Message]struct{}),
		handlers:    make(map[string][]Handler),
		history:     make(map[string]*ring),
		capacity:    capacity,
		logger:      logger,
	}
}

// Subscribe adds a subscriber channel for a session; caller must drain
// and call Unsubscribe.
func (b *Bus) Subscribe(sessionID string, buffer int) chan Message {
	ch := make(chan Message, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Message]struct{})
		b.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (b *Bus) Unsubscribe(sessionID string, ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[sessionID]; ok {
		if _, present := subs[ch]; present {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
}

// SubscribeFunc registers a handler for all messages of a session.
// Handlers run synchronously during Publish; a panicking handler is
// recovered and never affects other subscribers.
func (b *Bus) SubscribeFunc(sessionID string, h Handler) {
	b.mu.Lock()
	b.handlers[sessionID] = append(b.handlers[sessionID], h)
	b.mu.Unlock()
}

// Publish assigns a sequence number and delivers the message to every
// subscriber of the session. Slow channel subscribers drop messages.
func (b *Bus) Publish(sessionID string, msg Message) {
	msg.SessionID = sessionID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	rg := b.history[sessionID]
	if rg == nil {
		rg = newRing(b.capacity)
		b.history[sessionID] = rg
	}
	msg.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(msg)
	handlers := make([]Handler, len(b.handlers[sessionID]))
	copy(handlers, b.handlers[sessionID])
	// Channel sends stay under the lock so Unsubscribe cannot close a
	// channel mid-delivery. Sends never block: slow subscribers drop.
	for ch := range b.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
	b.mu.Unlock()

	metrics.BusPublished.WithLabelValues(msg.Topic).Inc()

	for _, h := range handlers {
		b.invoke(h, msg)
	}
}

// ReplaySince returns messages with Seq > since, best-effort within
// ring capacity.
func (b *Bus) ReplaySince(sessionID string, since uint64) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rg := b.history[sessionID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Drop forgets all state for a session.
func (b *Bus) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[sessionID]; ok {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, sessionID)
	}
	delete(b.handlers, sessionID)
	delete(b.history, sessionID)
}

func (b *Bus) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusHandlerPanics.Inc()
			b.logger.Error("Bus handler panicked",
				zap.String("session_id", msg.SessionID),
				zap.String("topic", msg.Topic),
				zap.Any("panic", r),
			)
		}
	}()
	h(msg)
}

// ring is a fixed-capacity ring buffer of messages
type ring struct {
	buf     []Message
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Message, capacity)} }

func (r *ring) push(m Message) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = m
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = m
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Message {
	if r.count == 0 {
		return nil
	}
	out := make([]Message, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.start + i) % len(r.buf)
		m := r.buf[idx]
		if m.Seq > seq {
			out = append(out, m)
		}
	}
	return out
}
