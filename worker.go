package shard

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-shard/exitcodes"
	"github.com/ethereum-optimism/infra/op-shard/metrics"
	"github.com/ethereum-optimism/infra/op-shard/queue"
	"github.com/ethereum-optimism/infra/op-shard/runner"
	"github.com/ethereum-optimism/infra/op-shard/types"
)

// Worker claims test files from a run's queue until it is empty.
type Worker struct {
	store           queue.Store
	keys            queue.Keys
	engine          runner.Engine
	index           int
	failureExitCode int
	log             log.Logger
}

func NewWorker(store queue.Store, keys queue.Keys, engine runner.Engine, index int, failureExitCode int, logger log.Logger) *Worker {
	return &Worker{
		store:           store,
		keys:            keys,
		engine:          engine,
		index:           index,
		failureExitCode: failureExitCode,
		log:             logger.New("component", "worker", "worker", index),
	}
}

// Run processes work items until the queue is empty. The exit code is 0
// when every item passed and the failure exit code otherwise. Queue store
// errors abort the loop as a RuntimeError.
func (w *Worker) Run(ctx context.Context) (int, error) {
	success := true
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return exitcodes.RuntimeErr, NewRuntimeError(fmt.Errorf("worker interrupted: %w", err))
		}
		file, ok, err := w.store.Pop(ctx, w.keys.ToRun)
		if err != nil {
			metrics.RecordErrorDetails("worker.pop", err)
			return exitcodes.RuntimeErr, NewRuntimeError(fmt.Errorf("failed to claim work item: %w", err))
		}
		if !ok {
			break
		}

		w.log.Debug("Claimed work item", "file", file)
		passed, err := w.runItem(ctx, file)
		if err != nil {
			metrics.RecordErrorDetails("worker.push", err)
			return exitcodes.RuntimeErr, NewRuntimeError(err)
		}
		metrics.RecordFileProcessed(passed)
		processed++
		success = success && passed
	}

	w.log.Info("Work queue drained", "processed", processed, "success", success)
	if success {
		return exitcodes.Success, nil
	}
	return w.failureExitCode, nil
}

// runItem runs one file. A failing engine is reported as a failure record
// for the file; only errors talking to the queue store are returned.
func (w *Worker) runItem(ctx context.Context, file string) (passed bool, err error) {
	sink := newQueueSink(w.store, w.keys, file, w.index)

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Engine panicked", "file", file, "panic", r)
			passed = false
			err = w.reportEngineFailure(ctx, sink, types.Exception{
				Class:     runner.PanicClass,
				Message:   fmt.Sprint(r),
				Backtrace: stackFrames(debug.Stack()),
			})
		}
	}()

	passed, runErr := w.engine.Run(ctx, file, sink)
	if sinkErr := sink.Err(); sinkErr != nil {
		return false, sinkErr
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("running %s: %w", file, runErr)
		}
		w.log.Warn("Engine failed to run file", "file", file, "err", runErr)
		return false, w.reportEngineFailure(ctx, sink, types.Exception{
			Class:   errorClass(runErr),
			Message: runErr.Error(),
		})
	}
	return passed, nil
}

func (w *Worker) reportEngineFailure(ctx context.Context, sink *queueSink, exception types.Exception) error {
	if exception.Backtrace == nil {
		exception.Backtrace = []string{}
	}
	return sink.Failure(ctx, types.FailureRecord{
		Description: sink.file,
		Position:    sink.file,
		Exception:   exception,
	})
}

// errorClass names the Go type of the outermost error in err's chain that
// is not a plain fmt or errors wrapper.
func errorClass(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		name := strings.TrimPrefix(fmt.Sprintf("%T", e), "*")
		if strings.HasPrefix(name, "fmt.") || strings.HasPrefix(name, "errors.") {
			continue
		}
		return name
	}
	return "error"
}

// stackFrames turns a debug.Stack dump into "file:line in func" frames
func stackFrames(stack []byte) []string {
	lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
	var frames []string
	for i := 1; i+1 < len(lines); i += 2 {
		fn := strings.TrimSpace(lines[i])
		loc := strings.TrimSpace(lines[i+1])
		if idx := strings.LastIndex(loc, " +0x"); idx >= 0 {
			loc = loc[:idx]
		}
		if paren := strings.LastIndex(fn, "("); paren > 0 {
			fn = fn[:paren]
		}
		frames = append(frames, fmt.Sprintf("%s in %s", loc, fn))
	}
	return frames
}
