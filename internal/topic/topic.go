// Package topic implements the broker's topic index: a name-keyed trie
// mapping topic names to the ordered list of their subscribers, grounded
// on original_source/src/trie.h's "children list + value at the node
// that completes a key" structure.
//
// The index is generic over the concrete client type so it carries no
// dependency on the broker package; a Subscriber holds a weak reference
// to its client (the literal Go expression of spec.md §3's "weak
// reference to Client"), resolved at fan-out time and silently skipped
// if the client has already been collected — defense in depth layered
// on top of, not a replacement for, synchronous purge-on-disconnect.
package topic

import (
	"sync"
	"weak"
)

// Subscriber is one (client, granted QoS) pair attached to a Topic.
type Subscriber[C any] struct {
	client weak.Pointer[C]
	QoS    byte
}

// Client resolves the subscriber's weak reference. It returns nil if the
// client has already been garbage collected without being unsubscribed
// — callers must treat that identically to "not subscribed."
func (s Subscriber[C]) Client() *C { return s.client.Value() }

// Topic is a named subscription point. Created on demand, destroyed
// only at broker shutdown (topics are persistent for the broker's
// lifetime, per spec.md §3).
type Topic[C any] struct {
	Name string

	mu          sync.RWMutex
	subscribers []Subscriber[C]
}

func newTopic[C any](name string) *Topic[C] {
	return &Topic[C]{Name: name}
}

// Subscribe appends a Subscriber for client at the given QoS. It does
// not de-duplicate: a client that subscribes twice gets two entries,
// matching the source's append-only subscriber list (SUBSCRIBE handling
// always appends; the broker relies on Unsubscribe to remove exactly
// what was added).
func (t *Topic[C]) Subscribe(client *C, qos byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, Subscriber[C]{client: weak.Make(client), QoS: qos})
}

// Unsubscribe removes every Subscriber entry pointing at client.
func (t *Topic[C]) Unsubscribe(client *C) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.subscribers[:0]
	for _, s := range t.subscribers {
		if s.client.Value() != client {
			kept = append(kept, s)
		}
	}
	t.subscribers = kept
}

// Each calls fn once per live subscriber, in subscription order. Dead
// weak references (a client collected without being purged) are skipped
// rather than passed to fn.
func (t *Topic[C]) Each(fn func(Subscriber[C])) {
	t.mu.RLock()
	subs := append([]Subscriber[C](nil), t.subscribers...)
	t.mu.RUnlock()

	for _, s := range subs {
		if s.client.Value() == nil {
			continue
		}
		fn(s)
	}
}

// Len reports the number of subscriber entries, live or not — used by
// tests asserting no-leak-after-disconnect.
func (t *Topic[C]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscribers)
}
