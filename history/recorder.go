package history

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

type failureKey struct {
	file string
	test string
}

// Recorder collects the records a leader drains and writes them as one run
// in a single transaction.
type Recorder struct {
	conn     Connection
	log      log.Logger
	run      Run
	results  []TestResult
	failures map[failureKey]string
	order    []failureKey
}

func NewRecorder(conn Connection, logger log.Logger, runID string, workers int, startedAt time.Time) *Recorder {
	return &Recorder{
		conn: conn,
		log:  logger,
		run: Run{
			ID:        runID,
			StartedAt: startedAt,
			Workers:   workers,
		},
		failures: make(map[failureKey]string),
	}
}

func (r *Recorder) AddStat(rec types.StatRecord) {
	r.results = append(r.results, TestResult{
		RunID:   r.run.ID,
		File:    rec.File,
		Name:    rec.Test,
		Status:  string(rec.Status),
		Runtime: rec.Elapsed.Seconds(),
		Worker:  rec.Worker,
	})
}

// AddFailure attaches a failure's message to the matching test result.
// Failures with no matching stat, such as build failures, become results
// of their own.
func (r *Recorder) AddFailure(rec types.FailureRecord) {
	key := failureKey{file: rec.File, test: rec.Description}
	if _, ok := r.failures[key]; !ok {
		r.order = append(r.order, key)
	}
	r.failures[key] = rec.Exception.Message
}

// Flush writes the run and its results. Nothing is written when any insert fails.
func (r *Recorder) Flush(ctx context.Context, files int, success bool, finishedAt time.Time) (err error) {
	r.run.Files = files
	r.run.Success = success
	r.run.FinishedAt = finishedAt

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = tx.InsertRun(ctx, r.run); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	seen := make(map[failureKey]bool, len(r.failures))
	for _, tr := range r.results {
		key := failureKey{file: tr.File, test: tr.Name}
		if msg, ok := r.failures[key]; ok && !seen[key] {
			tr.Message = msg
			seen[key] = true
		}
		if _, err = tx.InsertTestResult(ctx, tr); err != nil {
			return fmt.Errorf("failed to insert test result: %w", err)
		}
	}
	for _, key := range r.order {
		if seen[key] {
			continue
		}
		msg := r.failures[key]
		if _, err = tx.InsertTestResult(ctx, TestResult{
			RunID:   r.run.ID,
			File:    key.file,
			Name:    key.test,
			Status:  string(types.TestStatusFail),
			Message: msg,
		}); err != nil {
			return fmt.Errorf("failed to insert test result: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	r.log.Info("recorded run history", "run", r.run.ID, "results", len(r.results))
	return nil
}
