// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"sync"

	"github.com/logletserver/loglet/types"
)

// stubStore is an in-memory types.LogStore used to drive the worker's event
// loop without bbolt, in the spirit of the teacher's testStorage fixture.
type stubStore struct {
	mu sync.Mutex

	enabled   bool
	records   map[types.LogletId][]types.RawRecord
	trimPoint map[types.LogletId]types.Offset
	localTail map[types.LogletId]types.Offset
	sequencer map[types.LogletId]*types.GenerationalNodeId
	sealed    map[types.LogletId]bool

	failStore bool
	failSeal  bool
	failTrim  bool
}

func newStubStore() *stubStore {
	return &stubStore{
		enabled:   true,
		records:   make(map[types.LogletId][]types.RawRecord),
		trimPoint: make(map[types.LogletId]types.Offset),
		localTail: make(map[types.LogletId]types.Offset),
		sequencer: make(map[types.LogletId]*types.GenerationalNodeId),
		sealed:    make(map[types.LogletId]bool),
	}
}

func (s *stubStore) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *stubStore) token(err error) types.CompletionToken {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

func (s *stubStore) EnqueueStore(ctx context.Context, loglet types.LogletId, body types.StoreRequest, persistSequencer bool) (types.CompletionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return nil, types.ErrDisabled
	}
	if s.failStore {
		s.enabled = false
		return s.token(types.ErrDisabled), nil
	}

	for i, payload := range body.Payloads {
		s.records[loglet] = append(s.records[loglet], types.RawRecord{
			Offset: body.FirstOffset + types.Offset(i),
			Key:    body.KeyAt(i),
			Data:   payload,
		})
	}
	last, _ := body.LastOffset()
	if next := last.Next(); next > s.localTail[loglet] {
		s.localTail[loglet] = next
	}
	if persistSequencer {
		seq := body.Sequencer
		s.sequencer[loglet] = &seq
	}
	return s.token(nil), nil
}

func (s *stubStore) EnqueueSeal(ctx context.Context, loglet types.LogletId, body types.SealRequest) (types.CompletionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return nil, types.ErrDisabled
	}
	if s.failSeal {
		s.enabled = false
		return s.token(types.ErrDisabled), nil
	}
	s.sealed[loglet] = true
	return s.token(nil), nil
}

func (s *stubStore) EnqueueTrim(ctx context.Context, loglet types.LogletId, trimPoint types.Offset) (types.CompletionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return nil, types.ErrDisabled
	}
	if s.failTrim {
		s.enabled = false
		return s.token(types.ErrDisabled), nil
	}
	if trimPoint > s.trimPoint[loglet] {
		s.trimPoint[loglet] = trimPoint
	}
	kept := s.records[loglet][:0]
	for _, r := range s.records[loglet] {
		if r.Offset > trimPoint {
			kept = append(kept, r)
		}
	}
	s.records[loglet] = kept
	return s.token(nil), nil
}

func (s *stubStore) ReadRecords(ctx context.Context, loglet types.LogletId, from, to types.Offset) ([]types.RawRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.RawRecord
	for _, r := range s.records[loglet] {
		if r.Offset >= from && r.Offset <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) LoadState(ctx context.Context, loglet types.LogletId) (types.Offset, types.Offset, *types.GenerationalNodeId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tail := s.localTail[loglet]
	if tail == types.InvalidOffset {
		tail = types.OldestOffset
	}
	return s.trimPoint[loglet], tail, s.sequencer[loglet], s.sealed[loglet], nil
}
