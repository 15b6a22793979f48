// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package tailtracker

import (
	"testing"

	"github.com/logletserver/loglet/types"
	"github.com/stretchr/testify/require"
)

func TestMaybeUpdateNeverRegresses(t *testing.T) {
	tr := New()
	tr.MaybeUpdate(types.Offset(5))
	require.Equal(t, types.Offset(5), tr.Current())

	tr.MaybeUpdate(types.Offset(3))
	require.Equal(t, types.Offset(5), tr.Current(), "must not regress")

	tr.MaybeUpdate(types.Offset(10))
	require.Equal(t, types.Offset(10), tr.Current())
}

func TestSubscribeObservesAdvances(t *testing.T) {
	tr := New()
	sub := tr.Subscribe()
	defer sub.Cancel()

	tr.MaybeUpdate(types.Offset(7))
	require.Equal(t, types.Offset(7), <-sub.C)
}

func TestSubscribeAfterUpdateDoesNotMissCurrent(t *testing.T) {
	tr := New()
	tr.MaybeUpdate(types.Offset(42))

	// A subscriber that joins after the update must still be able to
	// observe the latest value via Current(), even though it missed the
	// notification itself.
	sub := tr.Subscribe()
	defer sub.Cancel()
	require.Equal(t, types.Offset(42), tr.Current())
}
