package shard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-shard/exitcodes"
	"github.com/ethereum-optimism/infra/op-shard/history"
	"github.com/ethereum-optimism/infra/op-shard/metrics"
	"github.com/ethereum-optimism/infra/op-shard/queue"
	"github.com/ethereum-optimism/infra/op-shard/reporting"
	"github.com/ethereum-optimism/infra/op-shard/testlist"
	"github.com/ethereum-optimism/infra/op-shard/types"
)

// cleanupTimeout bounds the key deletion that runs after every leader exit,
// including interrupted ones.
const cleanupTimeout = 10 * time.Second

// Leader enqueues a run's work, spawns its workers and reports the results.
type Leader struct {
	cfg      *Config
	store    queue.Store
	launcher WorkerLauncher
	reporter *reporting.Reporter
	history  history.Connection
	log      log.Logger
	tracer   trace.Tracer
	newRunID func() string
}

// NewLeader creates a leader writing its report to out. historyConn may be
// nil to skip recording run history.
func NewLeader(cfg *Config, store queue.Store, launcher WorkerLauncher, out io.Writer, historyConn history.Connection) (*Leader, error) {
	bt, err := reporting.NewBacktraceFormatter(cfg.ExclusionPatterns, cfg.InclusionPatterns)
	if err != nil {
		return nil, err
	}
	return &Leader{
		cfg:      cfg,
		store:    store,
		launcher: launcher,
		reporter: reporting.NewReporter(out, bt, cfg.FullBacktrace),
		history:  historyConn,
		log:      cfg.Log.New("component", "leader"),
		tracer:   otel.Tracer("leader"),
		newRunID: uuid.NewString,
	}, nil
}

// Start runs the whole sharded run and returns the process exit code:
// 0 when every worker exited 0 and 1 otherwise. Queue store errors are
// returned as a RuntimeError. The run's keys are deleted on every path.
func (l *Leader) Start(ctx context.Context) (int, error) {
	started := time.Now()
	runID := l.newRunID()
	keys := queue.KeysFor(l.cfg.RedisNamespace, runID)
	defer l.cleanup(keys)

	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("run %s", runID),
		trace.WithAttributes(attribute.Int("workers", l.cfg.Parallel)))
	defer span.End()

	l.reporter.RunStarted(runID)
	l.log.Info("Starting sharded run", "run_id", runID, "workers", l.cfg.Parallel)

	files, err := l.enqueue(ctx, keys)
	if err != nil {
		metrics.RecordErrorDetails("leader.enqueue", err)
		return exitcodes.RuntimeErr, NewRuntimeError(err)
	}

	codes, err := l.launcher.Launch(ctx, runID, l.cfg.Parallel)
	if err != nil {
		return exitcodes.RuntimeErr, NewRuntimeError(fmt.Errorf("failed to launch workers: %w", err))
	}
	outcomes, success := l.classify(codes)

	var recorder *history.Recorder
	if l.history != nil {
		recorder = history.NewRecorder(l.history, l.log, runID, l.cfg.Parallel, started)
	}
	if err := l.drain(ctx, keys, recorder); err != nil {
		metrics.RecordErrorDetails("leader.drain", err)
		return exitcodes.RuntimeErr, NewRuntimeError(err)
	}

	duration := time.Since(started)
	l.reporter.Summary(outcomes, duration)
	metrics.RecordRun(success, duration)
	l.publish(ctx, runID, recorder, files, success)

	l.log.Info("Sharded run finished", "run_id", runID, "success", success, "duration", duration)
	if !success {
		return exitcodes.TestFailure, nil
	}
	return exitcodes.Success, nil
}

// enqueue orders the work items and pushes all of them before any worker
// is spawned.
func (l *Leader) enqueue(ctx context.Context, keys queue.Keys) (int, error) {
	paths, err := testlist.ExpandPaths(l.cfg.Paths)
	if err != nil {
		return 0, fmt.Errorf("failed to expand test paths: %w", err)
	}
	files, err := testlist.OrderBySize(paths)
	if err != nil {
		return 0, fmt.Errorf("failed to order test files: %w", err)
	}
	if err := l.store.Push(ctx, keys.ToRun, files...); err != nil {
		return 0, fmt.Errorf("failed to enqueue work: %w", err)
	}
	metrics.RecordEnqueued(len(files))
	l.log.Info("Enqueued work", "files", len(files))
	return len(files), nil
}

func (l *Leader) classify(codes []int) ([]reporting.WorkerOutcome, bool) {
	success := true
	outcomes := make([]reporting.WorkerOutcome, len(codes))
	for i, code := range codes {
		metrics.RecordWorkerExit(code)
		status := reporting.WorkerPassed
		switch {
		case code == exitcodes.Success:
		case code == l.cfg.FailureExitCode:
			status = reporting.WorkerFailed
		default:
			status = reporting.WorkerError
			l.log.Warn("Worker exited abnormally", "worker", i+1, "exit_code", code)
		}
		if code != exitcodes.Success {
			success = false
		}
		outcomes[i] = reporting.WorkerOutcome{Index: i + 1, ExitCode: code, Status: status}
	}
	return outcomes, success
}

// drain prints every stat record in arrival order, then the failures.
func (l *Leader) drain(ctx context.Context, keys queue.Keys, recorder *history.Recorder) error {
	for {
		raw, ok, err := l.store.Pop(ctx, keys.Stat)
		if err != nil {
			return fmt.Errorf("failed to drain stats: %w", err)
		}
		if !ok {
			break
		}
		rec, err := types.DecodeStat(raw)
		if err != nil {
			l.log.Warn("Unreadable stat record", "err", err)
			l.reporter.Raw(raw)
			continue
		}
		l.reporter.Stat(rec)
		metrics.RecordStat(rec.Status)
		if recorder != nil {
			recorder.AddStat(rec)
		}
	}

	n, err := l.store.Len(ctx, keys.Failure)
	if err != nil {
		return fmt.Errorf("failed to read failures: %w", err)
	}
	if n == 0 {
		return nil
	}
	l.reporter.FailuresHeader()
	for {
		raw, ok, err := l.store.Pop(ctx, keys.Failure)
		if err != nil {
			return fmt.Errorf("failed to drain failures: %w", err)
		}
		if !ok {
			return nil
		}
		rec, err := types.DecodeFailure(raw)
		if err != nil {
			l.log.Warn("Unreadable failure record", "err", err)
			l.reporter.Raw(raw)
			continue
		}
		l.reporter.Failure(rec)
		metrics.RecordFailure(rec.Exception.Class)
		if recorder != nil {
			recorder.AddFailure(rec)
		}
	}
}

// publish pushes metrics and run history. Neither changes the run's result.
func (l *Leader) publish(ctx context.Context, runID string, recorder *history.Recorder, files int, success bool) {
	if recorder != nil {
		if err := recorder.Flush(ctx, files, success, time.Now()); err != nil {
			metrics.RecordErrorDetails("leader.history", err)
			l.log.Error("Failed to record run history", "err", err)
		}
	}
	if l.cfg.MetricsPushgateway != "" {
		if err := metrics.Push(ctx, l.cfg.MetricsPushgateway, runID, "leader"); err != nil {
			l.log.Error("Failed to push metrics", "err", err)
		}
	}
}

func (l *Leader) cleanup(keys queue.Keys) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := l.store.Delete(ctx, keys.All()...); err != nil {
		l.log.Error("Failed to delete run keys", "err", err)
	}
}
