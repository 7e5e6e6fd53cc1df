// Package hub implements the central event hub for cquest.
package hub

import (
	"sync"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is the capacity of the broadcast queue.
const DefaultBufferSize = 256

// Hub is the central event dispatcher that fans out events to all subscribers.
//
// A single goroutine drains the broadcast queue, so events published from one
// goroutine reach every subscriber in publish order.
type Hub struct {
	// subscribers holds all active subscribers
	subscribers map[string]ports.Subscriber

	// broadcast channel receives events to be broadcast
	broadcast chan events.Event

	// register channel receives new subscribers
	register chan ports.Subscriber

	// unregister channel receives subscriber IDs to remove
	unregister chan string

	// mu protects subscribers map and running
	mu sync.RWMutex

	// done signals when the hub should stop
	done chan struct{}

	running bool
}

// New creates a new Hub.
func New() *Hub {
	return NewWithBuffer(DefaultBufferSize)
}

// NewWithBuffer creates a new Hub whose broadcast queue holds size events.
func NewWithBuffer(size int) *Hub {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan events.Event, size),
		register:    make(chan ports.Subscriber),
		unregister:  make(chan string, 16),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	h.mu.Unlock()

	log.Debug().Msg("event hub started")

	go h.run()
	return nil
}

// Stop gracefully stops the hub. Events still queued are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	close(h.done)

	for _, sub := range h.subscribers {
		_ = sub.Close()
	}
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	log.Debug().Msg("event hub stopped")
	return nil
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID()] = sub
			h.mu.Unlock()
			log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber registered")

		case id := <-h.unregister:
			h.remove(id)

		case event := <-h.broadcast:
			h.dispatch(event)
		}
	}
}

func (h *Hub) dispatch(event events.Event) {
	var failed []string

	h.mu.RLock()
	for id, sub := range h.subscribers {
		if err := sub.Send(event); err != nil {
			log.Warn().
				Str("subscriber_id", id).
				Str("event_type", string(event.Type())).
				Err(err).
				Msg("failed to send event to subscriber")
			failed = append(failed, id)
		}
	}
	h.mu.RUnlock()

	// Dropping the subscriber here keeps a slow client from missing an event
	// and then silently receiving later ones out of context.
	for _, id := range failed {
		h.remove(id)
	}
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		_ = sub.Close()
		log.Debug().Str("subscriber_id", id).Msg("subscriber unregistered")
	}
}

// Publish queues an event for all subscribers. It blocks while the queue is
// full and drops the event only once the hub has stopped.
func (h *Hub) Publish(event events.Event) {
	select {
	case <-h.done:
		log.Debug().
			Str("event_type", string(event.Type())).
			Msg("event dropped: hub stopped")
		return
	default:
	}

	select {
	case h.broadcast <- event:
		log.Trace().
			Str("event_type", string(event.Type())).
			Str("topic", event.Topic().String()).
			Msg("event published")
	case <-h.done:
		log.Debug().
			Str("event_type", string(event.Type())).
			Msg("event dropped: hub stopped")
	}
}

// Subscribe adds a new subscriber.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unsubscribe removes a subscriber by ID.
func (h *Hub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning returns true if the hub is running.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}
