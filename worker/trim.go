// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"github.com/go-kit/log/level"

	"github.com/logletserver/loglet/types"
)

// handleTrim implements §4.2's Trim handling: the entire body — the
// high-watermark validation, clipping, the in-memory trim-point update, and
// the store call — runs on a disposable task so a slow or queued store
// write never blocks Store/Seal/Read processing for the loglet.
func (w *Worker) handleTrim(env types.Envelope[types.TrimRequest]) {
	req := env.Body()
	w.updateKnownGlobalTail(req.KnownGlobalTail)
	knownGlobalTail := w.knownGlobalTail

	resp := env.PrepareResponse(types.TrimmedResponse{Status: types.StatusOk})
	go w.runTrim(req, knownGlobalTail, resp)
}

// runTrim is the disposable Trim sub-task. It reads LogletState through its
// lock-free snapshot accessors and the known-global-tail value the worker
// goroutine captured for it, so it is safe to run concurrently with the
// worker's own goroutine.
func (w *Worker) runTrim(req types.TrimRequest, knownGlobalTail types.Offset, resp types.ResponseHandle) {
	tail := w.state.LocalTail()

	highWatermark := types.MaxOffset(knownGlobalTail, tail.Offset)
	if req.TrimPoint < types.OldestOffset || req.TrimPoint >= highWatermark {
		w.metrics.trimsCompleted.WithLabelValues(types.StatusMalformed.String()).Inc()
		resp.Send(types.TrimmedResponse{LocalTail: tail.Offset, Sealed: tail.Sealed, Status: types.StatusMalformed})
		return
	}

	newTrim := req.TrimPoint
	if tail.Offset != types.InvalidOffset {
		newTrim = types.MinOffset(newTrim, tail.Offset.Prev())
	}

	if !w.state.UpdateTrimPoint(newTrim) {
		w.metrics.trimsCompleted.WithLabelValues(types.StatusOk.String()).Inc()
		resp.Send(types.TrimmedResponse{LocalTail: tail.Offset, Sealed: tail.Sealed, Status: types.StatusOk})
		return
	}

	tok, err := w.store.EnqueueTrim(w.ctx, w.id, newTrim)
	if err != nil {
		level.Warn(w.logger).Log("msg", "trim enqueue failed, log store disabled", "loglet", w.id, "err", err)
		w.metrics.trimsCompleted.WithLabelValues(types.StatusDisabled.String()).Inc()
		resp.Send(types.TrimmedResponse{LocalTail: tail.Offset, Sealed: tail.Sealed, Status: types.StatusDisabled})
		return
	}

	err = <-tok
	status := types.StatusOk
	if err != nil {
		level.Warn(w.logger).Log("msg", "trim completion failed, log store disabled", "loglet", w.id, "err", err)
		status = types.StatusDisabled
	}
	w.metrics.trimsCompleted.WithLabelValues(status.String()).Inc()
	resp.Send(types.TrimmedResponse{LocalTail: tail.Offset, Sealed: tail.Sealed, Status: status})
}
