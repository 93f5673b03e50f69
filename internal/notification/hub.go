package notification

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// DefaultQueueSize is used when NewHub is given a non-positive size.
const DefaultQueueSize = 256

// listenerQueueSize bounds the events waiting for one listener.
const listenerQueueSize = 32

// ErrListenerClosed is returned by listeners that can no longer deliver.
// The hub unregisters them on the next failed send.
var ErrListenerClosed = errors.New("listener closed")

// Listener receives broadcast events.
type Listener interface {
	ID() string
	Send(ctx context.Context, event Event) error
}

// Hub keeps the set of live listeners. A dispatcher goroutine moves queued
// events into a per-listener outbox, and each listener drains its own outbox,
// so a slow listener only delays itself.
type Hub struct {
	mu          sync.RWMutex
	listeners   map[string]*subscription
	queue       chan Event
	sendTimeout time.Duration
	logger      *log.Logger

	// base bounds every send and is cancelled when Run returns.
	base context.Context
	stop context.CancelFunc
}

type subscription struct {
	listener Listener
	outbox   chan Event
	done     chan struct{}
	once     sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// NewHub creates a hub with a bounded event queue.
func NewHub(queueSize int, logger *log.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Hub{
		listeners:   make(map[string]*subscription),
		queue:       make(chan Event, queueSize),
		sendTimeout: 5 * time.Second,
		logger:      logger,
		base:        base,
		stop:        stop,
	}
}

// Register adds a listener. Registering the same ID again replaces it.
func (h *Hub) Register(l Listener) {
	sub := &subscription{
		listener: l,
		outbox:   make(chan Event, listenerQueueSize),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if old, ok := h.listeners[l.ID()]; ok {
		old.close()
	}
	h.listeners[l.ID()] = sub
	h.mu.Unlock()

	go h.pump(sub)
}

// Unregister removes a listener. Unknown listeners are ignored.
func (h *Hub) Unregister(l Listener) {
	h.mu.Lock()
	sub, ok := h.listeners[l.ID()]
	if ok {
		delete(h.listeners, l.ID())
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}

// remove drops sub only if it is still the registered subscription for its ID.
func (h *Hub) remove(sub *subscription) {
	id := sub.listener.ID()
	h.mu.Lock()
	if h.listeners[id] == sub {
		delete(h.listeners, id)
	}
	h.mu.Unlock()
	sub.close()
}

// Count returns the number of registered listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Broadcast queues an event without blocking. It returns false and drops
// the event when the queue is full.
func (h *Hub) Broadcast(event Event) bool {
	select {
	case h.queue <- event:
		return true
	default:
		h.logger.Printf("Notification queue full, dropping %s event for computer %d", event.Type, event.ComputerID)
		return false
	}
}

// Run dispatches queued events until ctx is cancelled. In-flight sends are
// cancelled when it returns.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.queue:
			h.dispatch(event)
		}
	}
}

func (h *Hub) subscriptions() []*subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]*subscription, 0, len(h.listeners))
	for _, sub := range h.listeners {
		subs = append(subs, sub)
	}
	return subs
}

// dispatch hands event to every listener's outbox. A full outbox drops the
// event for that listener only.
func (h *Hub) dispatch(event Event) {
	for _, sub := range h.subscriptions() {
		select {
		case sub.outbox <- event:
		default:
			h.logger.Printf("Listener %s is falling behind, dropping %s event for computer %d",
				sub.listener.ID(), event.Type, event.ComputerID)
		}
	}
}

// pump delivers one listener's events until it is unregistered or the hub
// stops.
func (h *Hub) pump(sub *subscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-h.base.Done():
			return
		case event := <-sub.outbox:
			if !h.send(sub, event) {
				return
			}
		}
	}
}

// send reports whether the listener should keep receiving events.
func (h *Hub) send(sub *subscription, event Event) bool {
	sendCtx, cancel := context.WithTimeout(h.base, h.sendTimeout)
	err := sub.listener.Send(sendCtx, event)
	cancel()

	if err == nil {
		return true
	}
	if errors.Is(err, ErrListenerClosed) {
		h.remove(sub)
		h.logger.Printf("Listener %s closed, unregistered", sub.listener.ID())
		return false
	}
	h.logger.Printf("Failed to deliver %s event to listener %s: %v", event.Type, sub.listener.ID(), err)
	return true
}
