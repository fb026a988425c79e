package shard

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-shard/queue"
	"github.com/ethereum-optimism/infra/op-shard/runner"
	"github.com/ethereum-optimism/infra/op-shard/types"
)

var _ runner.Sink = (*queueSink)(nil)

// queueSink pushes every record for one work item onto the run's result
// queues as soon as it is produced. It remembers the first push error so
// the worker can stop even when the engine swallowed it.
type queueSink struct {
	store  queue.Store
	keys   queue.Keys
	file   string
	worker int
	err    error
}

func newQueueSink(store queue.Store, keys queue.Keys, file string, worker int) *queueSink {
	return &queueSink{store: store, keys: keys, file: file, worker: worker}
}

func (s *queueSink) Stat(ctx context.Context, rec types.StatRecord) error {
	s.stamp(&rec.File, &rec.Worker)
	raw, err := types.EncodeStat(rec)
	if err != nil {
		return s.fail(err)
	}
	if err := s.store.Push(ctx, s.keys.Stat, raw); err != nil {
		return s.fail(fmt.Errorf("failed to push stat record: %w", err))
	}
	return nil
}

func (s *queueSink) Failure(ctx context.Context, rec types.FailureRecord) error {
	s.stamp(&rec.File, &rec.Worker)
	raw, err := types.EncodeFailure(rec)
	if err != nil {
		return s.fail(err)
	}
	if err := s.store.Push(ctx, s.keys.Failure, raw); err != nil {
		return s.fail(fmt.Errorf("failed to push failure record: %w", err))
	}
	return nil
}

// Err returns the first error the sink hit
func (s *queueSink) Err() error {
	return s.err
}

func (s *queueSink) stamp(file *string, worker *int) {
	if *file == "" {
		*file = s.file
	}
	if *worker == 0 {
		*worker = s.worker
	}
}

func (s *queueSink) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}
