// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// inboxCapacity bounds the per-kind mailboxes. §9's design notes accept a
// bounded substitution for the conceptually unbounded inboxes as long as
// requests are never reordered across kinds; memory pressure is expected to
// be bounded by upstream connection flow control exactly as the notes
// describe, so a generous fixed capacity stands in for "unbounded" here
// rather than a dynamically growing queue, which would need its own
// blocking/wakeup machinery layered awkwardly on top of select.
const inboxCapacity = 4096

// Option configures a Worker at Start time.
type Option func(*Worker)

// WithLogger sets the structured logger used for debug/warn conditions.
func WithLogger(l log.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithRegisterer sets the prometheus.Registerer metrics are registered
// against. Defaults to a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(w *Worker) { w.metrics = newWorkerMetrics(reg) }
}

// WithByteBudgetDefault sets the GetRecords byte budget used when a request
// doesn't specify one. Zero (the default) means unbounded.
func WithByteBudgetDefault(n uint64) Option {
	return func(w *Worker) { w.byteBudgetDefault = n }
}
