// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package logletstate is the in-memory authority for one loglet: local tail,
// trim point, seal flag, and sequencer identity. The worker task, and the trim
// sub-tasks it spawns, mutate it through methods serialized by writeMu; every
// reader sees atomic snapshots, the
// same discipline the teacher's WAL uses for its segment map (s atomic.Value
// loaded without a lock, written only under writeMu).
package logletstate

import (
	"sync"
	"sync/atomic"

	"github.com/logletserver/loglet/tailtracker"
	"github.com/logletserver/loglet/types"
)

type snapshot struct {
	localTail types.TailView
	trimPoint types.Offset
	sequencer *types.GenerationalNodeId
}

// State is the single-writer, many-reader authority for one loglet.
type State struct {
	s atomic.Value // *snapshot

	// writeMu serializes the mutating operations. The worker task calls them,
	// and so do the trim sub-tasks it spawns (UpdateTrimPoint); the mutex
	// keeps each update a consistent, monotone step.
	writeMu sync.Mutex

	tailWatch *tailtracker.Tracker

	sealMu   sync.Mutex
	sealCh   chan struct{}
	isSealed bool
}

// New creates a State initialized to the open, untrimmed, unsequenced,
// unsealed loglet: local tail at OLDEST.
func New() *State {
	s := &State{
		tailWatch: tailtracker.New(),
		sealCh:    make(chan struct{}),
	}
	s.s.Store(&snapshot{
		localTail: types.OpenTailView(),
		trimPoint: types.InvalidOffset,
	})
	return s
}

// Restore creates a State initialized from values a log store persisted,
// used when a worker (re)loads a loglet it has seen before.
func Restore(localTail types.Offset, sealed bool, trimPoint types.Offset, sequencer *types.GenerationalNodeId) *State {
	s := &State{
		tailWatch: tailtracker.New(),
		sealCh:    make(chan struct{}),
	}
	s.s.Store(&snapshot{
		localTail: types.TailView{Offset: localTail, Sealed: sealed},
		trimPoint: trimPoint,
		sequencer: sequencer,
	})
	s.tailWatch.MaybeUpdate(localTail)
	if sealed {
		s.isSealed = true
		close(s.sealCh)
	}
	return s
}

func (s *State) load() *snapshot {
	return s.s.Load().(*snapshot)
}

// LocalTail returns a snapshot of the local tail.
func (s *State) LocalTail() types.TailView {
	return s.load().localTail
}

// TrimPoint returns the current trim point.
func (s *State) TrimPoint() types.Offset {
	return s.load().trimPoint
}

// IsSealed reports whether the loglet is sealed.
func (s *State) IsSealed() bool {
	return s.load().localTail.Sealed
}

// Sequencer returns the recorded sequencer, or nil if unset.
func (s *State) Sequencer() *types.GenerationalNodeId {
	return s.load().sequencer
}

// AdvanceLocalTail moves the local tail forward to newTail and notifies the
// tail watch. Must only be called by the single writer, with a newTail that
// is >= the current value; it is a caller bug to call it otherwise, so this
// panics rather than silently violating the monotonicity invariant.
func (s *State) AdvanceLocalTail(newTail types.Offset) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()
	if newTail < cur.localTail.Offset {
		panic("logletstate: local tail must not move backward")
	}
	next := *cur
	next.localTail.Offset = newTail
	s.s.Store(&next)
	s.tailWatch.MaybeUpdate(newTail)
}

// SetSequencer records id as the loglet's sequencer if none is set yet.
// Returns true iff it changed from unset to id. Idempotent if already equal
// to id. Callers must have already rejected mismatched sequencers before
// calling this; it panics if asked to change an already-set sequencer to a
// different value.
func (s *State) SetSequencer(id types.GenerationalNodeId) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()
	if cur.sequencer != nil {
		if cur.sequencer.Equal(id) {
			return false
		}
		panic("logletstate: sequencer changed after being set")
	}
	next := *cur
	idCopy := id
	next.sequencer = &idCopy
	s.s.Store(&next)
	return true
}

// UpdateTrimPoint advances the trim point to newTrim if newTrim is greater
// than the current value. Returns true iff it advanced.
func (s *State) UpdateTrimPoint(newTrim types.Offset) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.load()
	if newTrim <= cur.trimPoint {
		return false
	}
	next := *cur
	next.trimPoint = newTrim
	s.s.Store(&next)
	return true
}

// Seal marks the loglet sealed at its current local tail and fires the
// one-shot seal notification. Idempotent.
func (s *State) Seal() {
	s.writeMu.Lock()
	cur := s.load()
	if !cur.localTail.Sealed {
		next := *cur
		next.localTail.Sealed = true
		s.s.Store(&next)
	}
	s.writeMu.Unlock()

	s.sealMu.Lock()
	defer s.sealMu.Unlock()
	if !s.isSealed {
		s.isSealed = true
		close(s.sealCh)
	}
}

// WaitForSeal returns a channel that is closed once the loglet is sealed.
// A caller that subscribes after sealing still observes it immediately,
// because the channel is already closed — receiving from a closed channel
// never blocks.
func (s *State) WaitForSeal() <-chan struct{} {
	return s.sealCh
}

// SubscribeTail returns a subscription to local-tail advances. Cancel must
// be called when the caller stops watching.
func (s *State) SubscribeTail() *tailtracker.Subscription {
	return s.tailWatch.Subscribe()
}
