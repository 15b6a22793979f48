// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package rpcenvelope is a minimal in-process stand-in for the RPC
// transport spec.md §6 places outside the worker's scope. It exists so
// tests and benchmarks can drive the worker without a real network stack,
// the way the teacher's wal_stubs_test.go stands in for a real disk with a
// testStorage fixture.
package rpcenvelope

import "github.com/logletserver/loglet/types"

// Envelope is the concrete, in-process types.Envelope used by tests and the
// bench command. Responses are delivered over a buffered Go channel that
// the test harness reads back.
type Envelope[T any] struct {
	peer types.GenerationalNodeId
	body T
	ch   chan any
}

// New creates an Envelope carrying body, attributed to peer, with room for
// a single response.
func New[T any](peer types.GenerationalNodeId, body T) *Envelope[T] {
	return &Envelope[T]{peer: peer, body: body, ch: make(chan any, 1)}
}

func (e *Envelope[T]) Peer() types.GenerationalNodeId { return e.peer }
func (e *Envelope[T]) Body() T                        { return e.body }

// PrepareResponse captures e's channel into a ResponseHandle. def is
// unused here (the in-process transport never needs a default placeholder
// response) but kept to satisfy the contract's shape.
func (e *Envelope[T]) PrepareResponse(def any) types.ResponseHandle {
	return &responseHandle{ch: e.ch}
}

func (e *Envelope[T]) Respond(body any) {
	e.ch <- body
}

// TryRespond is the non-blocking variant: since the channel is 1-buffered,
// a second send on an already-delivered envelope is dropped rather than
// blocking.
func (e *Envelope[T]) TryRespond(body any) {
	select {
	case e.ch <- body:
	default:
	}
}

// Response blocks for the test harness's eventual single reply.
func (e *Envelope[T]) Response() any {
	return <-e.ch
}

type responseHandle struct {
	ch chan any
}

func (h *responseHandle) Send(body any) {
	select {
	case h.ch <- body:
	default:
	}
}
