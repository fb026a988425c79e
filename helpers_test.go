package shard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-shard/queue"
	"github.com/ethereum-optimism/infra/op-shard/runner"
	"github.com/ethereum-optimism/infra/op-shard/types"
)

func newTestStore(t *testing.T) (*queue.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	redisServer, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(redisServer.Close)

	client, err := queue.NewRedisClient(redisURL(redisServer), false)
	require.NoError(t, err)
	store := queue.NewRedisStore(client)
	t.Cleanup(func() { _ = store.Close() })
	return store, redisServer
}

func redisURL(s *miniredis.Miniredis) string {
	return fmt.Sprintf("redis://%s/0", s.Addr())
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

// writeTestFile creates a file of exactly size bytes under dir
func writeTestFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644))
	return path
}

// fakeEngine passes every file except those listed in fail, emitting one
// stat record per file and a failure record for failing ones.
type fakeEngine struct {
	mu      sync.Mutex
	fail    map[string]bool
	errs    map[string]error
	panics  map[string]bool
	claimed map[string]int
	worker  int
}

func newFakeEngine(worker int) *fakeEngine {
	return &fakeEngine{
		fail:    make(map[string]bool),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
		claimed: make(map[string]int),
		worker:  worker,
	}
}

func (e *fakeEngine) Run(ctx context.Context, file string, sink runner.Sink) (bool, error) {
	e.mu.Lock()
	e.claimed[file]++
	failing, err, panics := e.fail[file], e.errs[file], e.panics[file]
	e.mu.Unlock()

	if panics {
		panic("engine exploded on " + file)
	}
	if err != nil {
		return false, err
	}
	status := types.TestStatusPass
	if failing {
		status = types.TestStatusFail
	}
	name := "Test" + strings.TrimSuffix(filepath.Base(file), "_test.go")
	if err := sink.Stat(ctx, types.StatRecord{Test: name, Status: status, Worker: e.worker}); err != nil {
		return false, err
	}
	if failing {
		if err := sink.Failure(ctx, types.FailureRecord{
			Description: name,
			Position:    file + ":3",
			Exception:   types.Exception{Class: runner.AssertionClass, Message: "expected true"},
			Worker:      e.worker,
		}); err != nil {
			return false, err
		}
	}
	return !failing, nil
}

// failingStore wraps a store and fails the chosen operations
type failingStore struct {
	queue.Store
	popErr  error
	pushErr error
}

func (s *failingStore) Pop(ctx context.Context, key string) (string, bool, error) {
	if s.popErr != nil {
		return "", false, s.popErr
	}
	return s.Store.Pop(ctx, key)
}

func (s *failingStore) Push(ctx context.Context, key string, values ...string) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	return s.Store.Push(ctx, key, values...)
}

var errStoreDown = errors.New("connection refused")
