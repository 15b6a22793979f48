// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package types

import (
	"testing"

	fuzz "github.com/google/gofuzz"
)

// TestStoreRequestValidNeverPanics fuzzes structurally-random StoreRequests
// through Valid()/LastOffset() looking for panics or inconsistent results,
// the same kind of defensive fuzz the teacher could run over frame headers.
func TestStoreRequestValidNeverPanics(t *testing.T) {
	f := fuzz.New().NilChance(0.2).NumElements(0, 4)
	for i := 0; i < 2000; i++ {
		var req StoreRequest
		f.Fuzz(&req)

		valid := req.Valid()
		last, ok := req.LastOffset()
		if len(req.Payloads) == 0 {
			if valid {
				t.Fatalf("empty payloads reported valid: %+v", req)
			}
			if ok {
				t.Fatalf("empty payloads produced a last offset: %+v", req)
			}
			continue
		}
		if !req.FirstOffset.IsValid() && valid {
			t.Fatalf("invalid first_offset reported valid: %+v", req)
		}
		if ok && last < req.FirstOffset {
			t.Fatalf("last offset %v before first offset %v", last, req.FirstOffset)
		}
	}
}

// TestGetRecordsRequestValidNeverPanics fuzzes read ranges, checking Valid()
// agrees with the from<=to invariant it documents.
func TestGetRecordsRequestValidNeverPanics(t *testing.T) {
	f := fuzz.New().NumElements(0, 4)
	for i := 0; i < 2000; i++ {
		var req GetRecordsRequest
		f.Fuzz(&req)

		got := req.Valid()
		want := req.FromOffset <= req.ToOffset
		if got != want {
			t.Fatalf("Valid()=%v want %v for %+v", got, want, req)
		}
	}
}
