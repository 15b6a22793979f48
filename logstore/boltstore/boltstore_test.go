// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package boltstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/logletserver/loglet/types"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "loglet.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func waitToken(t *testing.T, tok types.CompletionToken) error {
	t.Helper()
	select {
	case err := <-tok:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("completion token never resolved")
		return nil
	}
}

func TestStoreThenReadRoundTrips(t *testing.T) {
	s, _ := tempStore(t)
	ctx := context.Background()
	loglet := types.LogletId(1)

	tok, err := s.EnqueueStore(ctx, loglet, types.StoreRequest{
		FirstOffset: 1,
		Payloads:    [][]byte{[]byte("a"), []byte("b")},
		Keys:        []uint64{1, 2},
	}, false)
	require.NoError(t, err)
	require.NoError(t, waitToken(t, tok))

	recs, err := s.ReadRecords(ctx, loglet, 1, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, []byte("a"), recs[0].Data)
	require.Equal(t, []byte("b"), recs[1].Data)
}

func TestRestartPreservesTrimPointAndLocalTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loglet.db")
	ctx := context.Background()
	loglet := types.LogletId(1)

	s, err := Open(path)
	require.NoError(t, err)

	tok, err := s.EnqueueStore(ctx, loglet, types.StoreRequest{
		FirstOffset: 5,
		Payloads:    [][]byte{[]byte("x"), []byte("y")},
	}, true)
	require.NoError(t, err)
	require.NoError(t, waitToken(t, tok))

	tok, err = s.EnqueueTrim(ctx, loglet, 5)
	require.NoError(t, err)
	require.NoError(t, waitToken(t, tok))
	require.NoError(t, s.Close())

	// Reopen against the same file: scenario 6 from §8.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	trimPoint, localTail, _, sealed, err := s2.LoadState(ctx, loglet)
	require.NoError(t, err)
	require.Equal(t, types.Offset(5), trimPoint)
	require.Equal(t, types.Offset(7), localTail)
	require.False(t, sealed)
}

func TestDisableRejectsFurtherMutationsButNotReads(t *testing.T) {
	s, _ := tempStore(t)
	ctx := context.Background()
	loglet := types.LogletId(9)

	tok, err := s.EnqueueStore(ctx, loglet, types.StoreRequest{
		FirstOffset: 1,
		Payloads:    [][]byte{[]byte("z")},
	}, false)
	require.NoError(t, err)
	require.NoError(t, waitToken(t, tok))

	s.Disable(loglet)

	_, err = s.EnqueueStore(ctx, loglet, types.StoreRequest{
		FirstOffset: 2,
		Payloads:    [][]byte{[]byte("w")},
	}, false)
	require.ErrorIs(t, err, types.ErrDisabled)

	recs, err := s.ReadRecords(ctx, loglet, 1, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
