// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package tailtracker provides the monotonic, multi-producer/multi-consumer
// published view of a loglet's known global tail.
package tailtracker

import (
	"sync"

	"github.com/logletserver/loglet/types"
)

// Tracker is a monotonic register: MaybeUpdate never regresses the current
// value, and Subscribe returns a channel that is notified of advances made
// after subscribing. A send to a subscriber whose one-slot channel is full is
// dropped, and the value at subscribe time is not sent; Current() always
// returns the latest value.
type Tracker struct {
	mu      sync.Mutex
	current types.Offset
	subs    map[int]chan types.Offset
	nextSub int
}

// New creates a Tracker seeded at types.InvalidOffset, meaning "no global
// tail known yet".
func New() *Tracker {
	return &Tracker{
		current: types.InvalidOffset,
		subs:    make(map[int]chan types.Offset),
	}
}

// Current returns the latest known value.
func (t *Tracker) Current() types.Offset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// MaybeUpdate sets the tracked value to max(current, x) and wakes every
// subscriber if it advanced. Never regresses.
func (t *Tracker) MaybeUpdate(x types.Offset) {
	t.mu.Lock()
	if x <= t.current {
		t.mu.Unlock()
		return
	}
	t.current = x
	subs := make([]chan types.Offset, 0, len(t.subs))
	for _, c := range t.subs {
		subs = append(subs, c)
	}
	t.mu.Unlock()

	for _, c := range subs {
		select {
		case c <- x:
		default:
			// Slow subscriber: it will pick up the latest value via Current()
			// or the next successful send. We never block the writer on a
			// lagging reader.
		}
	}
}

// Subscription observes advances of the tracked value.
type Subscription struct {
	t    *Tracker
	id   int
	C    <-chan types.Offset
}

// Subscribe registers a new subscription. Cancel must be called to release
// it.
func (t *Tracker) Subscribe() *Subscription {
	c := make(chan types.Offset, 1)
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = c
	t.mu.Unlock()
	return &Subscription{t: t, id: id, C: c}
}

// Cancel releases the subscription.
func (s *Subscription) Cancel() {
	s.t.mu.Lock()
	delete(s.t.subs, s.id)
	s.t.mu.Unlock()
}
