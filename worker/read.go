// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"github.com/go-kit/log/level"

	"github.com/logletserver/loglet/types"
)

// handleGetRecords implements §4.2/§9's GetRecords handling: validation
// happens inline on the worker goroutine, but the actual store read and
// record shaping runs on a disposable task so a slow or large read never
// blocks Store/Seal traffic for the loglet.
func (w *Worker) handleGetRecords(env types.Envelope[types.GetRecordsRequest]) {
	req := env.Body()
	w.updateKnownGlobalTail(req.KnownGlobalTail)

	if !req.Valid() {
		env.Respond(types.RecordsResponse{Status: types.StatusMalformed})
		return
	}

	tail := w.state.LocalTail()
	trimPoint := w.state.TrimPoint()
	budget := req.ByteBudget
	if budget == 0 {
		budget = w.byteBudgetDefault
	}

	w.metrics.readsDispatched.Inc()
	resp := env.PrepareResponse(types.RecordsResponse{Status: types.StatusOk})
	go w.runRead(req, trimPoint, tail, budget, resp)
}

// runRead is the disposable GetRecords sub-task. Besides the parameters it
// was handed it reads only Worker fields fixed at Start (store, ctx, id,
// logger), so it is safe to run concurrently with the worker's own goroutine.
func (w *Worker) runRead(req types.GetRecordsRequest, trimPoint types.Offset, tail types.TailView, budget uint64, resp types.ResponseHandle) {
	from := req.FromOffset
	to := req.ToOffset
	if to >= tail.Offset {
		if tail.Offset == types.InvalidOffset {
			to = types.InvalidOffset
		} else {
			to = tail.Offset.Prev()
		}
	}

	if from > to {
		resp.Send(types.RecordsResponse{
			LocalTail:  tail.Offset,
			NextOffset: from,
			Sealed:     tail.Sealed,
			Status:     types.StatusOk,
		})
		return
	}

	raw, err := w.store.ReadRecords(w.ctx, w.id, types.MaxOffset(from, trimPoint.Next()), to)
	if err != nil {
		level.Warn(w.logger).Log("msg", "read failed, log store disabled", "loglet", w.id, "err", err)
		resp.Send(types.RecordsResponse{LocalTail: tail.Offset, Sealed: tail.Sealed, Status: types.StatusDisabled})
		return
	}

	records := make([]types.RecordEntry, 0, len(raw)+2)
	next := from

	if from <= trimPoint {
		gapTo := types.MinOffset(to, trimPoint)
		records = append(records, types.RecordEntry{Offset: from, Kind: types.RecordTrimGap, To: gapTo})
		next = gapTo.Next()
	}

	var consumed uint64
	var filteredGapStart types.Offset
	inFilteredGap := false

	flushFilteredGap := func(upTo types.Offset) {
		if inFilteredGap {
			records = append(records, types.RecordEntry{Offset: filteredGapStart, Kind: types.RecordFilteredGap, To: upTo})
			inFilteredGap = false
		}
	}

	for _, r := range raw {
		if r.Offset < next {
			continue
		}
		if !req.Filter.Matches(r.Key) {
			if !inFilteredGap {
				filteredGapStart = r.Offset
				inFilteredGap = true
			}
			next = r.Offset.Next()
			continue
		}

		// The byte budget is a soft limit: the first matching record is
		// always included so a too-small budget can never starve a
		// reader entirely (§4.2).
		if budget != 0 && consumed != 0 && consumed+uint64(len(r.Data)) > budget {
			flushFilteredGap(r.Offset.Prev())
			break
		}

		flushFilteredGap(r.Offset.Prev())
		records = append(records, types.RecordEntry{Offset: r.Offset, Kind: types.RecordData, Data: r.Data, Key: r.Key})
		consumed += uint64(len(r.Data))
		next = r.Offset.Next()
	}
	flushFilteredGap(to)

	resp.Send(types.RecordsResponse{
		LocalTail:  tail.Offset,
		NextOffset: next,
		Sealed:     tail.Sealed,
		Records:    records,
		Status:     types.StatusOk,
	})
}
