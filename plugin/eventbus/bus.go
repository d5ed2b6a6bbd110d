// Package eventbus is the in-memory, single-process fan-out channel for
// session lifecycle events. Each conversation id owns a bounded replay
// history so a subscriber joining mid-session never starts blind.
package eventbus

import (
	"sync"
)

// DefaultHistoryLimit bounds the per-conversation replay buffer.
const DefaultHistoryLimit = 25

// Listener receives events for one conversation. Callbacks run synchronously
// on the emitting flow, in subscription order.
type Listener func(Event)

type subscriber struct {
	id int64
	fn Listener
}

type topic struct {
	history     []Event
	subscribers []subscriber
}

// Bus is an explicitly constructed, injectable component; there is no
// package-level instance. All methods are safe for concurrent use.
type Bus struct {
	mu           sync.Mutex
	historyLimit int
	nextID       int64
	topics       map[string]*topic

	// done tombstones are retained for the process lifetime so a late emit
	// or subscribe on a completed conversation stays a silent no-op. One
	// map entry per completed conversation; the uid space is small enough
	// that this is not a concern.
	done map[string]bool
}

// New creates a Bus. historyLimit <= 0 selects DefaultHistoryLimit.
func New(historyLimit int) *Bus {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Bus{
		historyLimit: historyLimit,
		topics:       make(map[string]*topic),
		done:         make(map[string]bool),
	}
}

// Subscribe attaches a listener to the conversation. Up to the last
// historyLimit events are replayed synchronously, in emission order, before
// Subscribe returns; any event emitted afterwards arrives live. The returned
// function detaches the listener and is safe to call more than once.
func (b *Bus) Subscribe(conversationID string, fn Listener) func() {
	b.mu.Lock()
	if b.done[conversationID] {
		b.mu.Unlock()
		return func() {}
	}
	t := b.topics[conversationID]
	if t == nil {
		t = &topic{}
		b.topics[conversationID] = t
	}
	// Replay under the lock: an emit racing with this subscribe lands either
	// in the replayed history or in the live notifications, never both.
	for _, ev := range t.history {
		fn(ev)
	}
	b.nextID++
	id := b.nextID
	t.subscribers = append(t.subscribers, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(conversationID, id)
		})
	}
}

func (b *Bus) unsubscribe(conversationID string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topics[conversationID]
	if t == nil {
		return
	}
	for i, s := range t.subscribers {
		if s.id == id {
			t.subscribers = append(t.subscribers[:i], t.subscribers[i+1:]...)
			break
		}
	}
	if len(t.subscribers) == 0 && len(t.history) == 0 {
		delete(b.topics, conversationID)
	}
}

// Emit appends the event to the bounded history (evicting the oldest on
// overflow) and then notifies current listeners in subscription order.
// Emitting to a completed conversation is a silent no-op.
func (b *Bus) Emit(conversationID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done[conversationID] {
		return
	}
	t := b.topics[conversationID]
	if t == nil {
		t = &topic{}
		b.topics[conversationID] = t
	}
	t.history = append(t.history, ev)
	if len(t.history) > b.historyLimit {
		t.history = t.history[len(t.history)-b.historyLimit:]
	}
	for _, s := range t.subscribers {
		s.fn(ev)
	}
}

// Complete marks the conversation terminal: listeners and history are
// dropped permanently and later emits go nowhere.
func (b *Bus) Complete(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, conversationID)
	b.done[conversationID] = true
}
