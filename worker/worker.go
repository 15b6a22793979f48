// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package worker is the per-loglet worker: the select-driven event loop that
// is the sole local authority for one loglet on a node. It accepts
// store/seal/trim/read/info requests over the types.Envelope contract,
// coordinates with a types.LogStore, and publishes tail/seal notifications
// through logletstate.State.
//
// The loop itself follows the teacher's single-writer-plus-background-
// goroutine discipline (wal.go's runRotate paired with mutateStateLocked):
// here the worker goroutine is the one writer of staging/known-tail locals
// and of LogletState's local tail, seal flag and sequencer, and store/seal
// completions report back to it over channels. Disposable read/trim tasks
// answer their peers directly; a trim task also advances the trim point
// through LogletState's serialized writer.
package worker

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/logletserver/loglet/logletstate"
	"github.com/logletserver/loglet/tailtracker"
	"github.com/logletserver/loglet/types"
)

// Worker is the per-loglet state machine described in §4.2.
type Worker struct {
	id    types.LogletId
	store types.LogStore
	state *logletstate.State

	tracker    *tailtracker.Tracker
	trackerSub *tailtracker.Subscription

	logger  log.Logger
	metrics *workerMetrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	storeCh   chan types.Envelope[types.StoreRequest]
	releaseCh chan types.Envelope[types.ReleaseRequest]
	sealCh    chan types.Envelope[types.SealRequest]
	infoCh    chan types.Envelope[types.GetLogletInfoRequest]
	recordsCh chan types.Envelope[types.GetRecordsRequest]
	trimCh    chan types.Envelope[types.TrimRequest]

	storeCompletions chan storeCompletionEvent
	sealCompletion   chan error
	sealWaiterDone   chan struct{}
	// lastStoreDone is closed once the latest enqueued store's completion has
	// been posted, so completions reach the loop in enqueue order.
	lastStoreDone chan struct{}

	// staging_local_tail: §4.2. Moves only on successful enqueue.
	stagingLocalTail types.Offset
	// known_global_tail: cached max of tracker updates and per-request hints.
	knownGlobalTail types.Offset

	sealingInProgress bool
	sealFailCh        chan struct{}

	byteBudgetDefault uint64
}

type storeCompletionEvent struct {
	pending *pendingStore
	err     error
}

type pendingStore struct {
	lastOffset types.Offset
	resp       types.ResponseHandle
}

// Start loads (or initializes) LogletState from store and launches the
// worker's goroutine, returning a Handle for enqueueing requests.
func Start(ctx context.Context, id types.LogletId, store types.LogStore, tracker *tailtracker.Tracker, opts ...Option) (*Handle, error) {
	trimPoint, localTail, sequencer, sealed, err := store.LoadState(ctx, id)
	if err != nil {
		return nil, err
	}
	state := logletstate.Restore(localTail, sealed, trimPoint, sequencer)

	wctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		id:      id,
		store:   store,
		state:   state,
		tracker: tracker,
		logger:  log.NewNopLogger(),
		metrics: newWorkerMetrics(prometheus.NewRegistry()),
		ctx:     wctx,
		cancel:  cancel,
		done:    make(chan struct{}),

		storeCh:   make(chan types.Envelope[types.StoreRequest], inboxCapacity),
		releaseCh: make(chan types.Envelope[types.ReleaseRequest], inboxCapacity),
		sealCh:    make(chan types.Envelope[types.SealRequest], inboxCapacity),
		infoCh:    make(chan types.Envelope[types.GetLogletInfoRequest], inboxCapacity),
		recordsCh: make(chan types.Envelope[types.GetRecordsRequest], inboxCapacity),
		trimCh:    make(chan types.Envelope[types.TrimRequest], inboxCapacity),

		storeCompletions: make(chan storeCompletionEvent, inboxCapacity),
		sealCompletion:   make(chan error, 1),
		sealWaiterDone:   make(chan struct{}, inboxCapacity),

		stagingLocalTail: localTail,
		knownGlobalTail:  tracker.Current(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.trackerSub = tracker.Subscribe()

	go w.run()
	return &Handle{w: w}, nil
}

// run is the biased select loop from §4.2/§5. Every pass first drains
// completion/notification channels in strict priority order (non-blocking),
// falling through to a single blocking select over everything only once
// nothing is immediately ready — this is the hand-rolled priority §9 calls
// for where the host language's select has no native bias.
func (w *Worker) run() {
	defer close(w.done)
	defer w.trackerSub.Cancel()

	for {
		if w.drainOnePriorityEvent() {
			continue
		}

		select {
		case <-w.ctx.Done():
			return
		case ev := <-w.storeCompletions:
			w.handleStoreCompletion(ev)
		case err := <-w.sealCompletion:
			w.handleSealCompletion(err)
		case <-w.sealWaiterDone:
		case offset := <-w.trackerSub.C:
			w.handleTrackerUpdate(offset)
		case env := <-w.releaseCh:
			w.handleRelease(env)
		case env := <-w.sealCh:
			w.handleSeal(env)
		case env := <-w.infoCh:
			w.handleGetLogletInfo(env)
		case env := <-w.recordsCh:
			w.handleGetRecords(env)
		case env := <-w.trimCh:
			w.handleTrim(env)
		case env := <-w.storeCh:
			w.handleStore(env)
		}
	}
}

// drainOnePriorityEvent non-blockingly checks every event source in
// priority order and handles at most one. It returns true if it handled
// something, so run() can loop back to the top and re-check from priority 1
// again before considering anything lower.
func (w *Worker) drainOnePriorityEvent() bool {
	select {
	case <-w.ctx.Done():
		return false // caller's blocking select will also see this and return
	default:
	}

	select {
	case ev := <-w.storeCompletions:
		w.handleStoreCompletion(ev)
		return true
	default:
	}

	select {
	case err := <-w.sealCompletion:
		w.handleSealCompletion(err)
		return true
	default:
	}

	select {
	case <-w.sealWaiterDone:
		return true
	default:
	}

	select {
	case offset := <-w.trackerSub.C:
		w.handleTrackerUpdate(offset)
		return true
	default:
	}

	select {
	case env := <-w.releaseCh:
		w.handleRelease(env)
		return true
	default:
	}

	select {
	case env := <-w.sealCh:
		w.handleSeal(env)
		return true
	default:
	}

	select {
	case env := <-w.infoCh:
		w.handleGetLogletInfo(env)
		return true
	default:
	}

	select {
	case env := <-w.recordsCh:
		w.handleGetRecords(env)
		return true
	default:
	}

	select {
	case env := <-w.trimCh:
		w.handleTrim(env)
		return true
	default:
	}

	select {
	case env := <-w.storeCh:
		w.handleStore(env)
		return true
	default:
	}

	return false
}

func (w *Worker) nextOkOffset() types.Offset {
	return types.MaxOffset(w.stagingLocalTail, w.knownGlobalTail)
}

// handleStore implements §4.2 Store handling.
func (w *Worker) handleStore(env types.Envelope[types.StoreRequest]) {
	req := env.Body()
	peer := env.Peer()
	w.updateKnownGlobalTail(req.KnownGlobalTail)

	if w.state.IsSealed() && !req.Flags.IgnoreSeal {
		w.respondStore(env, types.StatusSealed)
		return
	}
	if w.sealingInProgress {
		w.respondStore(env, types.StatusSealing)
		return
	}
	if req.Expired(time.Now()) {
		w.respondStore(env, types.StatusDropped)
		return
	}
	if !req.Valid() {
		w.respondStore(env, types.StatusMalformed)
		return
	}

	if seq := w.state.Sequencer(); seq != nil && !seq.Equal(req.Sequencer) {
		w.respondStore(env, types.StatusSequencerMismatch)
		return
	}

	nextOk := w.nextOkOffset()
	if req.FirstOffset < nextOk && !peer.Equal(req.Sequencer) {
		w.respondStore(env, types.StatusSequencerMismatch)
		return
	}
	if req.FirstOffset > nextOk {
		w.respondStore(env, types.StatusOutOfBounds)
		return
	}

	lastOffset, _ := req.LastOffset()
	persistSequencer := w.state.Sequencer() == nil

	tok, err := w.store.EnqueueStore(w.ctx, w.id, req, persistSequencer)
	if err != nil {
		level.Warn(w.logger).Log("msg", "store enqueue failed, log store disabled", "loglet", w.id, "err", err)
		w.respondStore(env, types.StatusDisabled)
		return
	}

	if persistSequencer {
		w.state.SetSequencer(req.Sequencer)
	}
	w.stagingLocalTail = types.MaxOffset(w.stagingLocalTail, lastOffset.Next())

	pending := &pendingStore{
		lastOffset: lastOffset,
		resp:       env.PrepareResponse(types.StoredResponse{Status: types.StatusOk}),
	}
	prev := w.lastStoreDone
	done := make(chan struct{})
	w.lastStoreDone = done
	go func(tok types.CompletionToken, pending *pendingStore) {
		err := <-tok
		if prev != nil {
			<-prev
		}
		w.storeCompletions <- storeCompletionEvent{pending: pending, err: err}
		close(done)
	}(tok, pending)
}

func (w *Worker) respondStore(env types.Envelope[types.StoreRequest], status types.Status) {
	w.metrics.storesAccepted.WithLabelValues(status.String()).Inc()
	env.Respond(types.StoredResponse{LocalTail: w.state.LocalTail().Offset, Status: status})
}

func (w *Worker) handleStoreCompletion(ev storeCompletionEvent) {
	if ev.err != nil {
		level.Warn(w.logger).Log("msg", "store completion failed, log store disabled", "loglet", w.id, "err", ev.err)
		w.metrics.storesAccepted.WithLabelValues(types.StatusDisabled.String()).Inc()
		ev.pending.resp.Send(types.StoredResponse{LocalTail: w.state.LocalTail().Offset, Status: types.StatusDisabled})
		return
	}
	newTail := types.MaxOffset(w.state.LocalTail().Offset, ev.pending.lastOffset.Next())
	w.state.AdvanceLocalTail(newTail)
	w.metrics.storesAccepted.WithLabelValues(types.StatusOk.String()).Inc()
	ev.pending.resp.Send(types.StoredResponse{LocalTail: newTail, Status: types.StatusOk})
}

// handleSeal implements §4.2 Seal handling.
func (w *Worker) handleSeal(env types.Envelope[types.SealRequest]) {
	w.updateKnownGlobalTail(env.Body().KnownGlobalTail)

	if w.state.IsSealed() {
		w.sealingInProgress = false
		tail := w.state.LocalTail()
		env.Respond(types.SealedResponse{LocalTail: tail.Offset, Status: types.StatusOk})
		return
	}

	if w.sealingInProgress {
		w.spawnSealWaiter(env, w.sealFailCh)
		return
	}

	w.sealingInProgress = true
	w.sealFailCh = make(chan struct{})

	tok, err := w.store.EnqueueSeal(w.ctx, w.id, types.SealRequest{LogletId: w.id, KnownGlobalTail: w.knownGlobalTail})
	if err != nil {
		level.Warn(w.logger).Log("msg", "seal enqueue failed, log store disabled", "loglet", w.id, "err", err)
		w.sealingInProgress = false
		tail := w.state.LocalTail()
		env.Respond(types.SealedResponse{LocalTail: tail.Offset, Status: types.StatusDisabled})
		return
	}

	w.spawnSealWaiter(env, w.sealFailCh)
	go func(tok types.CompletionToken) {
		err := <-tok
		w.sealCompletion <- err
	}(tok)
}

func (w *Worker) spawnSealWaiter(env types.Envelope[types.SealRequest], failCh chan struct{}) {
	resp := env.PrepareResponse(types.SealedResponse{Status: types.StatusOk})
	go func() {
		select {
		case <-w.state.WaitForSeal():
			tail := w.state.LocalTail()
			resp.Send(types.SealedResponse{LocalTail: tail.Offset, Status: types.StatusOk})
		case <-failCh:
			tail := w.state.LocalTail()
			resp.Send(types.SealedResponse{LocalTail: tail.Offset, Status: types.StatusDisabled})
		}
		w.sealWaiterDone <- struct{}{}
	}()
}

func (w *Worker) handleSealCompletion(err error) {
	if err != nil {
		level.Warn(w.logger).Log("msg", "seal completion failed, log store disabled", "loglet", w.id, "err", err)
		close(w.sealFailCh)
		w.sealingInProgress = false
		return
	}
	w.state.Seal()
	w.metrics.sealsCompleted.Inc()
	w.sealingInProgress = false
}

// handleRelease implements §4.2 Release handling: no response is sent.
func (w *Worker) handleRelease(env types.Envelope[types.ReleaseRequest]) {
	w.updateKnownGlobalTail(env.Body().KnownGlobalTail)
}

func (w *Worker) updateKnownGlobalTail(hint types.Offset) {
	w.knownGlobalTail = types.MaxOffset(w.knownGlobalTail, hint)
	w.tracker.MaybeUpdate(w.knownGlobalTail)
}

func (w *Worker) handleTrackerUpdate(offset types.Offset) {
	w.knownGlobalTail = types.MaxOffset(w.knownGlobalTail, offset)
}

// handleGetLogletInfo implements §4.2 GetLogletInfo handling.
func (w *Worker) handleGetLogletInfo(env types.Envelope[types.GetLogletInfoRequest]) {
	w.updateKnownGlobalTail(env.Body().KnownGlobalTail)

	tail := w.state.LocalTail()
	resp := types.LogletInfoResponse{
		LocalTail: tail.Offset,
		TrimPoint: w.state.TrimPoint(),
		Sealed:    tail.Sealed,
		Status:    types.StatusOk,
	}
	// Best-effort: a congested peer loses this reply rather than stalling
	// the worker loop (§4.2).
	env.TryRespond(resp)
}
