// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package boltstore

import (
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Store at Open time, the same functional-option shape
// the teacher's walOpt uses.
type Option func(*Store)

// WithLogger sets the structured logger used for warn/error conditions.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRegisterer sets the prometheus.Registerer metrics are registered
// against. Defaults to a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) { s.reg = reg }
}

// WithQueueDepth bounds how many pending mutating ops a single loglet will
// admit before EnqueueStore/EnqueueSeal/EnqueueTrim block the caller. This is
// the store's batching capacity and therefore the worker's backpressure
// point (§5).
func WithQueueDepth(n int) Option {
	return func(s *Store) { s.queueDepth = n }
}
