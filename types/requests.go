// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package types

import "time"

// StoreFlags carries per-request admission flags decoded from the wire.
type StoreFlags struct {
	// IgnoreSeal marks a repair store. Worker.handleStore skips the
	// sealed-loglet rejection for such a store and then admits it like any
	// other store; a seal in progress still rejects it. There is no separate
	// repair admission path.
	IgnoreSeal bool
}

// StoreRequest is the body of a Store request.
type StoreRequest struct {
	LogletId  LogletId
	Sequencer GenerationalNodeId

	FirstOffset Offset
	Payloads    [][]byte
	// Keys carries one routing/filter key per payload, parallel to Payloads.
	// GetRecords' KeyFilter matches against these. Left nil, every key is 0,
	// so a KeyFilterWithin read selects the record only if its range
	// includes 0.
	Keys   []uint64
	Flags  StoreFlags
	Expiry time.Time

	KnownGlobalTail Offset
	// KnownArchived is accepted and recorded but no operation in this spec
	// gates behavior on it.
	KnownArchived Offset
}

// LastOffset computes first_offset + len(payloads) - 1. The second return
// value is false when the request has no payloads, i.e. last_offset is not
// computable.
func (r StoreRequest) LastOffset() (Offset, bool) {
	if len(r.Payloads) == 0 {
		return InvalidOffset, false
	}
	return r.FirstOffset + Offset(len(r.Payloads)) - 1, true
}

// Valid reports the structural validity check from §3: non-empty payloads,
// a real first_offset, and a computable last_offset.
func (r StoreRequest) Valid() bool {
	if len(r.Payloads) == 0 {
		return false
	}
	if !r.FirstOffset.IsValid() {
		return false
	}
	_, ok := r.LastOffset()
	return ok
}

// KeyAt returns the routing key for payload i, or 0 if Keys wasn't supplied
// for that index.
func (r StoreRequest) KeyAt(i int) uint64 {
	if i < 0 || i >= len(r.Keys) {
		return 0
	}
	return r.Keys[i]
}

// Expired reports whether the request's expiry deadline has passed as of now.
func (r StoreRequest) Expired(now time.Time) bool {
	return !r.Expiry.IsZero() && now.After(r.Expiry)
}

// SealRequest is the body of a Seal request.
type SealRequest struct {
	LogletId        LogletId
	KnownGlobalTail Offset
}

// ReleaseRequest is the body of a Release request.
type ReleaseRequest struct {
	LogletId        LogletId
	KnownGlobalTail Offset
}

// GetLogletInfoRequest is the body of a GetLogletInfo request.
type GetLogletInfoRequest struct {
	LogletId        LogletId
	KnownGlobalTail Offset
}

// KeyFilterKind selects how a read range is filtered.
type KeyFilterKind int

const (
	// KeyFilterAny matches every record.
	KeyFilterAny KeyFilterKind = iota
	// KeyFilterWithin matches records whose key falls in [Low, High].
	KeyFilterWithin
)

// KeyFilter restricts a GetRecords read to records whose key passes it.
type KeyFilter struct {
	Kind KeyFilterKind
	Low  uint64
	High uint64
}

// Matches reports whether key passes the filter.
func (f KeyFilter) Matches(key uint64) bool {
	switch f.Kind {
	case KeyFilterWithin:
		return key >= f.Low && key <= f.High
	default:
		return true
	}
}

// GetRecordsRequest is the body of a GetRecords request.
type GetRecordsRequest struct {
	LogletId        LogletId
	KnownGlobalTail Offset

	FromOffset Offset
	ToOffset   Offset
	Filter     KeyFilter
	// ByteBudget bounds cumulative decoded size; zero means unbounded.
	ByteBudget uint64
}

// Valid reports the structural validity check from §4.2: from <= to.
func (r GetRecordsRequest) Valid() bool {
	return r.FromOffset <= r.ToOffset
}

// TrimRequest is the body of a Trim request.
type TrimRequest struct {
	LogletId        LogletId
	KnownGlobalTail Offset
	TrimPoint       Offset
}
