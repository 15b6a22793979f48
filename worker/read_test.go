// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/logletserver/loglet/rpcenvelope"
	"github.com/logletserver/loglet/types"
)

// TestGetRecordsAppliesFilterAndByteBudget is scenario 3 from §8: a read
// with a key filter and a byte budget must coalesce filtered-out records
// into a gap and always return at least one matching record even when the
// budget would otherwise exclude it.
func TestGetRecordsAppliesFilterAndByteBudget(t *testing.T) {
	store := newStubStore()
	h, stop := startTestWorker(t, store)
	defer stop()

	p := peer()
	storeEnv := rpcenvelope.New(p, types.StoreRequest{
		Sequencer:   p,
		FirstOffset: types.OldestOffset,
		Payloads:    [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")},
		Keys:        []uint64{1, 2, 1, 2},
	})
	require.True(t, h.EnqueueStore(storeEnv))
	storeResp := waitResponse(t, storeEnv).(types.StoredResponse)
	require.Equal(t, types.StatusOk, storeResp.Status)

	readEnv := rpcenvelope.New(p, types.GetRecordsRequest{
		FromOffset: types.OldestOffset,
		ToOffset:   types.OldestOffset + 3,
		Filter:     types.KeyFilter{Kind: types.KeyFilterWithin, Low: 1, High: 1},
		ByteBudget: 1, // smaller than any single record: still returns the first match
	})
	require.True(t, h.EnqueueGetRecords(readEnv))
	resp := waitResponse(t, readEnv).(types.RecordsResponse)
	require.Equal(t, types.StatusOk, resp.Status)

	var dataCount, gapCount int
	for _, r := range resp.Records {
		switch r.Kind {
		case types.RecordData:
			dataCount++
			require.Equal(t, uint64(1), r.Key)
		case types.RecordFilteredGap:
			gapCount++
		}
	}
	require.GreaterOrEqual(t, dataCount, 1)
	require.GreaterOrEqual(t, gapCount, 1)
}

func TestGetRecordsBeyondTailReturnsEmptyNextOffset(t *testing.T) {
	store := newStubStore()
	h, stop := startTestWorker(t, store)
	defer stop()

	readEnv := rpcenvelope.New(peer(), types.GetRecordsRequest{
		FromOffset: types.OldestOffset,
		ToOffset:   types.OldestOffset + 10,
	})
	require.True(t, h.EnqueueGetRecords(readEnv))
	resp := waitResponse(t, readEnv).(types.RecordsResponse)
	require.Equal(t, types.StatusOk, resp.Status)
	require.Empty(t, resp.Records)
	require.Equal(t, types.OldestOffset, resp.NextOffset)
}
