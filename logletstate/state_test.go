// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package logletstate

import (
	"testing"
	"time"

	"github.com/logletserver/loglet/types"
	"github.com/stretchr/testify/require"
)

func TestNewStateIsOpenAtOldest(t *testing.T) {
	s := New()
	require.Equal(t, types.OldestOffset, s.LocalTail().Offset)
	require.False(t, s.IsSealed())
	require.Equal(t, types.InvalidOffset, s.TrimPoint())
	require.Nil(t, s.Sequencer())
}

func TestAdvanceLocalTailMonotone(t *testing.T) {
	s := New()
	s.AdvanceLocalTail(5)
	require.Equal(t, types.Offset(5), s.LocalTail().Offset)
	s.AdvanceLocalTail(5) // idempotent
	require.Equal(t, types.Offset(5), s.LocalTail().Offset)
}

func TestAdvanceLocalTailBackwardPanics(t *testing.T) {
	s := New()
	s.AdvanceLocalTail(5)
	require.Panics(t, func() { s.AdvanceLocalTail(4) })
}

func TestSetSequencerOnceThenIdempotent(t *testing.T) {
	s := New()
	id := types.GenerationalNodeId{Node: 1, Generation: 1}
	require.True(t, s.SetSequencer(id))
	require.False(t, s.SetSequencer(id), "already set to the same id is a no-op")
	require.True(t, s.Sequencer().Equal(id))
}

func TestSetSequencerMismatchPanics(t *testing.T) {
	s := New()
	s.SetSequencer(types.GenerationalNodeId{Node: 1, Generation: 1})
	require.Panics(t, func() {
		s.SetSequencer(types.GenerationalNodeId{Node: 2, Generation: 1})
	})
}

func TestUpdateTrimPointOnlyAdvances(t *testing.T) {
	s := New()
	require.True(t, s.UpdateTrimPoint(3))
	require.False(t, s.UpdateTrimPoint(2))
	require.False(t, s.UpdateTrimPoint(3))
	require.Equal(t, types.Offset(3), s.TrimPoint())
}

func TestSealIsRetroactive(t *testing.T) {
	s := New()
	s.AdvanceLocalTail(3)
	s.Seal()
	require.True(t, s.IsSealed())

	select {
	case <-s.WaitForSeal():
	default:
		t.Fatal("wait for seal should complete immediately once sealed")
	}

	// Sealing twice is a no-op, not a second close panic.
	require.NotPanics(t, func() { s.Seal() })
}

func TestSubscribeTailObservesAdvance(t *testing.T) {
	s := New()
	sub := s.SubscribeTail()
	defer sub.Cancel()

	s.AdvanceLocalTail(9)
	select {
	case got := <-sub.C:
		require.Equal(t, types.Offset(9), got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tail advance notification")
	}
}

func TestRestoreSeedsFromPersistedValues(t *testing.T) {
	seq := types.GenerationalNodeId{Node: 7, Generation: 2}
	s := Restore(7, true, 6, &seq)
	require.Equal(t, types.Offset(7), s.LocalTail().Offset)
	require.True(t, s.IsSealed())
	require.Equal(t, types.Offset(6), s.TrimPoint())
	require.True(t, s.Sequencer().Equal(seq))

	select {
	case <-s.WaitForSeal():
	default:
		t.Fatal("restoring a sealed loglet must retroactively satisfy WaitForSeal")
	}
}
