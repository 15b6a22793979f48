// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package boltstore is a reference, durable implementation of the
// types.LogStore contract the worker consumes. It is the "external
// collaborator" spec.md §1 places out of the worker's scope, made concrete
// here (backed by go.etcd.io/bbolt) so restart-preservation and
// fail-safe behavior are testable rather than merely described.
//
// Structurally it follows the teacher's WAL: a single background goroutine
// per loglet serializes mutations the way the teacher's runRotate goroutine
// serializes segment rotation, an immutable.SortedMap gives readers a
// lock-free snapshot the way the teacher's segment map does, and a bounded
// admission channel is the batching capacity that gives the worker its
// backpressure point (§5).
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.etcd.io/bbolt"

	"github.com/logletserver/loglet/types"
)

var metaBucketName = []byte("meta")

func recordsBucketName(id types.LogletId) []byte {
	return []byte(fmt.Sprintf("records-%d", uint64(id)))
}

// Store is a bbolt-backed types.LogStore shared across every loglet worker
// on a node, matching §5's "the log store is shared across all loglet
// workers but is internally responsible for its own batching".
type Store struct {
	db         *bbolt.DB
	logger     log.Logger
	reg        prometheus.Registerer
	metrics    *storeMetrics
	queueDepth int

	mu       sync.Mutex
	backends map[types.LogletId]*logletBackend
}

// Open opens (creating if necessary) a bbolt database at path and returns a
// ready Store.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:     log.NewNopLogger(),
		reg:        prometheus.NewRegistry(),
		queueDepth: 64,
		backends:   make(map[types.LogletId]*logletBackend),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	s.metrics = newStoreMetrics(s.reg)
	return s, nil
}

// Close closes the underlying database and stops every loglet's background
// goroutine.
func (s *Store) Close() error {
	s.mu.Lock()
	for _, b := range s.backends {
		close(b.closeCh)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// Disable trips fail-safe for a single loglet, exercised by tests
// of §7's "Disabled" propagation. Real fail-safe triggers (disk write
// errors, corruption) are detected inside doStore/doSeal/doTrim; this is the
// externally-triggerable equivalent used to simulate them.
func (s *Store) Disable(loglet types.LogletId) {
	b, err := s.backendFor(loglet)
	if err != nil {
		return
	}
	atomic.StoreInt32(&b.enabled, 0)
}

func (s *Store) backendFor(id types.LogletId) (*logletBackend, error) {
	s.mu.Lock()
	if b, ok := s.backends[id]; ok {
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	b, err := s.loadBackend(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.backends[id]; ok {
		// Lost the race to create it; discard ours.
		return existing, nil
	}
	s.backends[id] = b
	go b.run()
	return b, nil
}

func (s *Store) loadBackend(id types.LogletId) (*logletBackend, error) {
	b := &logletBackend{
		id:      id,
		db:      s.db,
		metrics: s.metrics,
		logger:  log.With(s.logger, "loglet", id),
		queue:   make(chan func(), s.queueDepth),
		closeCh: make(chan struct{}),
	}
	atomic.StoreInt32(&b.enabled, 1)

	snap := &backendSnapshot{
		records:   &immutable.SortedMap[types.Offset, recEntry]{},
		trimPoint: types.InvalidOffset,
		localTail: types.OldestOffset,
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		if mb := tx.Bucket(metaBucketName); mb != nil {
			if raw := mb.Get(metaKey(id)); raw != nil {
				m, err := decodeMeta(raw)
				if err != nil {
					return err
				}
				snap.trimPoint = m.trimPoint
				snap.sealed = m.sealed
				snap.sequencer = m.sequencer
			}
		}
		if rb := tx.Bucket(recordsBucketName(id)); rb != nil {
			c := rb.Cursor()
			var lastOffset types.Offset
			seen := false
			for k, v := c.First(); k != nil; k, v = c.Next() {
				off := types.Offset(binary.BigEndian.Uint64(k))
				key, data, err := decodeRecordValue(v)
				if err != nil {
					return err
				}
				snap.records = snap.records.Set(off, recEntry{Key: key, Data: data})
				lastOffset = off
				seen = true
			}
			if seen {
				snap.localTail = lastOffset.Next()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// A trim may have deleted every stored record; the local tail is still
	// past the persisted trim point.
	if snap.localTail <= snap.trimPoint {
		snap.localTail = snap.trimPoint.Next()
	}
	b.snap.Store(snap)
	return b, nil
}

func (b *logletBackend) load() *backendSnapshot {
	return b.snap.Load().(*backendSnapshot)
}

// Enabled implements types.LogStore.
func (s *Store) Enabled() bool { return true }

// EnqueueStore implements types.LogStore.
func (s *Store) EnqueueStore(ctx context.Context, loglet types.LogletId, body types.StoreRequest, persistSequencer bool) (types.CompletionToken, error) {
	b, err := s.backendFor(loglet)
	if err != nil {
		return nil, err
	}
	if atomic.LoadInt32(&b.enabled) == 0 {
		return nil, types.ErrDisabled
	}

	done := make(chan error, 1)
	op := func() { b.doStore(body, persistSequencer, done) }
	select {
	case b.queue <- op:
		return types.CompletionToken(done), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnqueueSeal implements types.LogStore.
func (s *Store) EnqueueSeal(ctx context.Context, loglet types.LogletId, body types.SealRequest) (types.CompletionToken, error) {
	b, err := s.backendFor(loglet)
	if err != nil {
		return nil, err
	}
	if atomic.LoadInt32(&b.enabled) == 0 {
		return nil, types.ErrDisabled
	}

	done := make(chan error, 1)
	op := func() { b.doSeal(done) }
	select {
	case b.queue <- op:
		return types.CompletionToken(done), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EnqueueTrim implements types.LogStore.
func (s *Store) EnqueueTrim(ctx context.Context, loglet types.LogletId, trimPoint types.Offset) (types.CompletionToken, error) {
	b, err := s.backendFor(loglet)
	if err != nil {
		return nil, err
	}
	if atomic.LoadInt32(&b.enabled) == 0 {
		return nil, types.ErrDisabled
	}

	done := make(chan error, 1)
	op := func() { b.doTrim(trimPoint, done) }
	select {
	case b.queue <- op:
		return types.CompletionToken(done), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadRecords implements types.LogStore. It is a direct, synchronous read of
// the in-memory snapshot: safe to call concurrently with the writer
// goroutine since snapshots are immutable once published.
func (s *Store) ReadRecords(ctx context.Context, loglet types.LogletId, from, to types.Offset) ([]types.RawRecord, error) {
	b, err := s.backendFor(loglet)
	if err != nil {
		return nil, err
	}
	snap := b.load()

	var out []types.RawRecord
	it := snap.records.Iterator()
	for !it.Done() {
		off, rec, _ := it.Next()
		if off < from {
			continue
		}
		if off > to {
			break
		}
		out = append(out, types.RawRecord{Offset: off, Key: rec.Key, Data: rec.Data})
	}
	b.metrics.recordsRead.Add(float64(len(out)))
	var bytes int
	for _, r := range out {
		bytes += len(r.Data)
	}
	b.metrics.recordBytesRead.Add(float64(bytes))
	return out, nil
}

// LoadState implements types.LogStore.
func (s *Store) LoadState(ctx context.Context, loglet types.LogletId) (types.Offset, types.Offset, *types.GenerationalNodeId, bool, error) {
	b, err := s.backendFor(loglet)
	if err != nil {
		return 0, 0, nil, false, err
	}
	snap := b.load()
	return snap.trimPoint, snap.localTail, snap.sequencer, snap.sealed, nil
}

type logletBackend struct {
	id      types.LogletId
	db      *bbolt.DB
	metrics *storeMetrics
	logger  log.Logger

	snap atomic.Value // *backendSnapshot

	queue   chan func()
	closeCh chan struct{}
	enabled int32
}

type backendSnapshot struct {
	records   *immutable.SortedMap[types.Offset, recEntry]
	trimPoint types.Offset
	localTail types.Offset
	sealed    bool
	sequencer *types.GenerationalNodeId
}

type recEntry struct {
	Key  uint64
	Data []byte
}

func (b *logletBackend) run() {
	for {
		select {
		case op := <-b.queue:
			op()
		case <-b.closeCh:
			return
		}
	}
}

func (b *logletBackend) doStore(req types.StoreRequest, persistSequencer bool, done chan<- error) {
	if atomic.LoadInt32(&b.enabled) == 0 {
		done <- types.ErrDisabled
		return
	}

	snap := b.load()
	last, _ := req.LastOffset()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		rb, err := tx.CreateBucketIfNotExists(recordsBucketName(b.id))
		if err != nil {
			return err
		}
		for i, payload := range req.Payloads {
			off := req.FirstOffset + types.Offset(i)
			key := req.KeyAt(i)
			if err := rb.Put(encodeOffsetKey(off), encodeRecordValue(key, payload)); err != nil {
				return err
			}
		}
		if persistSequencer {
			mb := tx.Bucket(metaBucketName)
			m := meta{trimPoint: snap.trimPoint, sealed: snap.sealed, sequencer: &req.Sequencer}
			return mb.Put(metaKey(b.id), encodeMeta(m))
		}
		return nil
	})
	if err != nil {
		level.Error(b.logger).Log("msg", "store commit failed, disabling loglet", "err", err)
		atomic.StoreInt32(&b.enabled, 0)
		done <- err
		return
	}

	next := *snap
	recs := snap.records
	for i, payload := range req.Payloads {
		off := req.FirstOffset + types.Offset(i)
		recs = recs.Set(off, recEntry{Key: req.KeyAt(i), Data: payload})
	}
	next.records = recs
	next.localTail = last.Next()
	if persistSequencer {
		seq := req.Sequencer
		next.sequencer = &seq
	}
	b.snap.Store(&next)

	b.metrics.stores.Inc()
	b.metrics.recordsWritten.Add(float64(len(req.Payloads)))
	var bytes int
	for _, p := range req.Payloads {
		bytes += len(p)
	}
	b.metrics.bytesWritten.Add(float64(bytes))

	done <- nil
}

func (b *logletBackend) doSeal(done chan<- error) {
	if atomic.LoadInt32(&b.enabled) == 0 {
		done <- types.ErrDisabled
		return
	}
	snap := b.load()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(metaBucketName)
		m := meta{trimPoint: snap.trimPoint, sealed: true, sequencer: snap.sequencer}
		return mb.Put(metaKey(b.id), encodeMeta(m))
	})
	if err != nil {
		level.Error(b.logger).Log("msg", "seal commit failed, disabling loglet", "err", err)
		atomic.StoreInt32(&b.enabled, 0)
		done <- err
		return
	}

	next := *snap
	next.sealed = true
	b.snap.Store(&next)
	b.metrics.seals.Inc()
	done <- nil
}

func (b *logletBackend) doTrim(trimPoint types.Offset, done chan<- error) {
	if atomic.LoadInt32(&b.enabled) == 0 {
		done <- types.ErrDisabled
		return
	}
	snap := b.load()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(metaBucketName)
		m := meta{trimPoint: trimPoint, sealed: snap.sealed, sequencer: snap.sequencer}
		if err := mb.Put(metaKey(b.id), encodeMeta(m)); err != nil {
			return err
		}
		// Drop trimmed records so the store doesn't grow without bound.
		rb := tx.Bucket(recordsBucketName(b.id))
		if rb == nil {
			return nil
		}
		c := rb.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			off := types.Offset(binary.BigEndian.Uint64(k))
			if off > trimPoint {
				break
			}
			if err := rb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		level.Error(b.logger).Log("msg", "trim commit failed, disabling loglet", "err", err)
		atomic.StoreInt32(&b.enabled, 0)
		done <- err
		return
	}

	advanced := "false"
	if trimPoint > snap.trimPoint {
		advanced = "true"
	}
	next := *snap
	next.trimPoint = trimPoint
	it := next.records.Iterator()
	for !it.Done() {
		off, _, _ := it.Next()
		if off > trimPoint {
			break
		}
		next.records = next.records.Delete(off)
	}
	b.snap.Store(&next)
	b.metrics.trims.WithLabelValues(advanced).Inc()
	done <- nil
}

func encodeOffsetKey(o types.Offset) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(o))
	return buf
}

func encodeRecordValue(key uint64, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], key)
	copy(buf[8:], payload)
	return buf
}

func decodeRecordValue(raw []byte) (uint64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("%w: truncated record value", types.ErrCorrupt)
	}
	key := binary.BigEndian.Uint64(raw[:8])
	data := make([]byte, len(raw)-8)
	copy(data, raw[8:])
	return key, data, nil
}

type meta struct {
	trimPoint types.Offset
	sealed    bool
	sequencer *types.GenerationalNodeId
}

func metaKey(id types.LogletId) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// encodeMeta/decodeMeta use a fixed 18-byte layout: trimPoint(8) sealed(1)
// hasSequencer(1) node(4) generation(4).
func encodeMeta(m meta) []byte {
	buf := make([]byte, 18)
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.trimPoint))
	if m.sealed {
		buf[8] = 1
	}
	if m.sequencer != nil {
		buf[9] = 1
		binary.BigEndian.PutUint32(buf[10:14], m.sequencer.Node)
		binary.BigEndian.PutUint32(buf[14:18], m.sequencer.Generation)
	}
	return buf
}

func decodeMeta(raw []byte) (meta, error) {
	if len(raw) < 18 {
		return meta{}, fmt.Errorf("%w: truncated meta record", types.ErrCorrupt)
	}
	m := meta{
		trimPoint: types.Offset(binary.BigEndian.Uint64(raw[0:8])),
		sealed:    raw[8] == 1,
	}
	if raw[9] == 1 {
		m.sequencer = &types.GenerationalNodeId{
			Node:       binary.BigEndian.Uint32(raw[10:14]),
			Generation: binary.BigEndian.Uint32(raw[14:18]),
		}
	}
	return m, nil
}
