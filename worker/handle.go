// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import "github.com/logletserver/loglet/types"

// Handle is the externally visible reference to a running Worker. All
// methods are non-blocking: a full inbox means the caller's peer is
// congested and gets told so immediately rather than stalling on a send.
type Handle struct {
	w *Worker
}

// EnqueueStore submits env for handling. It returns false if the store
// inbox is full.
func (h *Handle) EnqueueStore(env types.Envelope[types.StoreRequest]) bool {
	select {
	case h.w.storeCh <- env:
		return true
	default:
		return false
	}
}

// EnqueueSeal submits env for handling. It returns false if the seal inbox
// is full.
func (h *Handle) EnqueueSeal(env types.Envelope[types.SealRequest]) bool {
	select {
	case h.w.sealCh <- env:
		return true
	default:
		return false
	}
}

// EnqueueRelease submits env for handling. It returns false if the release
// inbox is full.
func (h *Handle) EnqueueRelease(env types.Envelope[types.ReleaseRequest]) bool {
	select {
	case h.w.releaseCh <- env:
		return true
	default:
		return false
	}
}

// EnqueueGetLogletInfo submits env for handling. It returns false if the
// info inbox is full.
func (h *Handle) EnqueueGetLogletInfo(env types.Envelope[types.GetLogletInfoRequest]) bool {
	select {
	case h.w.infoCh <- env:
		return true
	default:
		return false
	}
}

// EnqueueGetRecords submits env for handling. It returns false if the
// records inbox is full.
func (h *Handle) EnqueueGetRecords(env types.Envelope[types.GetRecordsRequest]) bool {
	select {
	case h.w.recordsCh <- env:
		return true
	default:
		return false
	}
}

// EnqueueTrim submits env for handling. It returns false if the trim inbox
// is full.
func (h *Handle) EnqueueTrim(env types.Envelope[types.TrimRequest]) bool {
	select {
	case h.w.trimCh <- env:
		return true
	default:
		return false
	}
}

// Cancel stops the worker's goroutine. The returned channel closes once the
// loop has fully exited.
func (h *Handle) Cancel() <-chan struct{} {
	h.w.cancel()
	return h.w.done
}
