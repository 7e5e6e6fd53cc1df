package hub

import (
	"sort"
	"sync"

	"github.com/brianly1003/cquest/internal/domain/events"
	"github.com/brianly1003/cquest/internal/domain/ports"
)

// FilteredSubscriber wraps a subscriber and filters events by topic.
// System events are always forwarded. With no topics subscribed, every
// event is forwarded.
type FilteredSubscriber struct {
	inner  ports.Subscriber
	topics map[events.Topic]struct{}
	mu     sync.RWMutex
}

// NewFilteredSubscriber creates a new filtered subscriber wrapping the given subscriber.
func NewFilteredSubscriber(inner ports.Subscriber) *FilteredSubscriber {
	return &FilteredSubscriber{
		inner:  inner,
		topics: make(map[events.Topic]struct{}),
	}
}

// ID returns the subscriber's unique identifier.
func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send sends an event to the subscriber if it passes the filter.
func (f *FilteredSubscriber) Send(event events.Event) error {
	if !f.shouldForward(event) {
		return nil
	}
	return f.inner.Send(event)
}

// Close closes the subscriber.
func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

// Done returns a channel that's closed when the subscriber is done.
func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// SubscribeTopic adds a topic to the filter. A topic with an empty ID
// matches every entity of that kind.
func (f *FilteredSubscriber) SubscribeTopic(topic events.Topic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics[topic] = struct{}{}
}

// UnsubscribeTopic removes a topic from the filter.
func (f *FilteredSubscriber) UnsubscribeTopic(topic events.Topic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.topics, topic)
}

// SubscribeAll clears the filter, forwarding all events.
func (f *FilteredSubscriber) SubscribeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = make(map[events.Topic]struct{})
}

// Topics returns the subscribed topics sorted by their string form.
func (f *FilteredSubscriber) Topics() []events.Topic {
	f.mu.RLock()
	result := make([]events.Topic, 0, len(f.topics))
	for t := range f.topics {
		result = append(result, t)
	}
	f.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].String() < result[j].String()
	})
	return result
}

// IsFiltering returns true if the subscriber is filtering by topic.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.topics) > 0
}

func (f *FilteredSubscriber) shouldForward(event events.Event) bool {
	topic := event.Topic()
	if topic.Kind == events.KindSystem {
		return true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.topics) == 0 {
		return true
	}
	if _, ok := f.topics[topic]; ok {
		return true
	}
	_, ok := f.topics[events.Topic{Kind: topic.Kind}]
	return ok
}
