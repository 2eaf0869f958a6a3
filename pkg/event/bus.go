// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"slices"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 64

// Filter selects events for a subscription. A nil Filter accepts everything.
type Filter func(Event) bool

// ForConversation accepts events of a single conversation.
func ForConversation(id string) Filter {
	return func(e Event) bool { return e.ConversationID == id }
}

// ForTypes accepts events of the listed types.
func ForTypes(types ...Type) Filter {
	return func(e Event) bool { return slices.Contains(types, e.Type) }
}

// ForWorkflow accepts events of a single workflow.
func ForWorkflow(name string) Filter {
	return func(e Event) bool { return e.Workflow == name }
}

// All accepts events matching every non-nil filter.
func All(filters ...Filter) Filter {
	return func(e Event) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

// Bus is an in-process Observer that fans events out to subscriptions.
//
// Delivery never blocks the publisher: when a subscriber's buffer is full
// the event is dropped for that subscriber and counted.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	bufSize int
	closed  bool
	dropped atomic.Int64
}

// NewBus creates a bus whose subscriptions buffer bufSize events.
func NewBus(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Bus{
		subs:    make(map[*Subscription]struct{}),
		bufSize: bufSize,
	}
}

// Subscription is a filtered event stream.
type Subscription struct {
	bus    *Bus
	filter Filter
	ch     chan Event
	once   sync.Once
}

// C returns the receive channel. It is closed by Close or when the bus closes.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes and closes the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.closeChan()
}

func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe registers a new subscription. Subscribing to a closed bus
// returns an already-closed subscription.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	sub := &Subscription{bus: b, filter: filter, ch: make(chan Event, b.bufSize)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closeChan()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Observe publishes e to every matching subscription.
func (b *Bus) Observe(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were discarded because a subscriber
// was full.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Later events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.closeChan()
		delete(b.subs, sub)
	}
}
