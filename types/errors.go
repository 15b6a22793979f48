// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package types

import "errors"

var (
	// ErrNotFound is returned by a log store when an offset has no record and
	// is not covered by a trim or filtered gap.
	ErrNotFound = errors.New("record not found")
	// ErrCorrupt is returned by a log store that detects on-disk corruption.
	ErrCorrupt = errors.New("log store corrupt")
	// ErrClosed is returned by a log store after shutdown.
	ErrClosed = errors.New("closed")
	// ErrDisabled is returned by a log store that has tripped its fail-safe
	// and will accept no further mutations.
	ErrDisabled = errors.New("log store disabled")
	// ErrOutOfRange is returned for a trim/read index outside any segment the
	// store holds.
	ErrOutOfRange = errors.New("index out of range")
)
