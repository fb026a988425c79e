package shard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-shard/queue"
	"github.com/ethereum-optimism/infra/op-shard/types"
)

func TestQueueSinkPushesImmediately(t *testing.T) {
	store, redisServer := newTestStore(t)
	ctx := context.Background()
	keys := queue.KeysFor("ci", "run")
	sink := newQueueSink(store, keys, "pkg/a_test.go", 4)

	require.NoError(t, sink.Stat(ctx, types.StatRecord{Test: "TestA", Status: types.TestStatusPass}))
	list, err := redisServer.List(keys.Stat)
	require.NoError(t, err)
	require.Len(t, list, 1, "stat is visible before the item finishes")

	rec, err := types.DecodeStat(list[0])
	require.NoError(t, err)
	assert.Equal(t, "pkg/a_test.go", rec.File)
	assert.Equal(t, 4, rec.Worker)
	assert.Equal(t, types.WireVersion, rec.Version)

	require.NoError(t, sink.Failure(ctx, types.FailureRecord{Description: "TestA", File: "other_test.go", Worker: 2}))
	list, err = redisServer.List(keys.Failure)
	require.NoError(t, err)
	failure, err := types.DecodeFailure(list[0])
	require.NoError(t, err)
	assert.Equal(t, "other_test.go", failure.File, "explicit values are kept")
	assert.Equal(t, 2, failure.Worker)
	assert.NoError(t, sink.Err())
}

func TestQueueSinkRemembersFirstError(t *testing.T) {
	store, _ := newTestStore(t)
	sink := newQueueSink(&failingStore{Store: store, pushErr: errStoreDown}, queue.KeysFor("", "run"), "a_test.go", 1)

	err := sink.Stat(context.Background(), types.StatRecord{Test: "TestA", Status: types.TestStatusPass})
	require.ErrorIs(t, err, errStoreDown)
	_ = sink.Failure(context.Background(), types.FailureRecord{Description: "TestA"})
	assert.ErrorIs(t, sink.Err(), errStoreDown)
	assert.ErrorContains(t, sink.Err(), "stat record")
}
