package shard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-shard/exitcodes"
	"github.com/ethereum-optimism/infra/op-shard/history"
	"github.com/ethereum-optimism/infra/op-shard/metrics"
	"github.com/ethereum-optimism/infra/op-shard/queue"
	"github.com/ethereum-optimism/infra/op-shard/runner"
)

// Service implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = (*Service)(nil)

// Service runs one leader or worker to completion.
type Service struct {
	cfg        *Config
	out        io.Writer
	errOut     io.Writer
	executable string

	running          atomic.Bool
	shutdownCallback context.CancelCauseFunc
}

// New creates the service. out receives the report and errOut the
// workers' stderr.
func New(cfg *Config, out, errOut io.Writer, shutdownCallback context.CancelCauseFunc) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own executable: %w", err)
	}
	cfg.Log.Debug("Creating op-shard with config",
		"mode", cfg.Mode,
		"run_id", cfg.RunID,
		"parallel", cfg.Parallel,
		"paths", cfg.Paths)
	return &Service{
		cfg:              cfg,
		out:              out,
		errOut:           errOut,
		executable:       exe,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the configured mode. A failed run is returned as a
// TestFailureError carrying the exit code, a broken one as a RuntimeError.
// Start implements the cliapp.Lifecycle interface.
func (s *Service) Start(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	code, err := s.Run(ctx)
	if err != nil {
		s.cfg.Log.Error("Run aborted", "mode", s.cfg.Mode, "err", err)
		return err
	}
	if code != exitcodes.Success {
		return NewTestFailureError(fmt.Sprintf("%s finished with exit code %d", s.cfg.Mode, code), code)
	}

	go func() {
		s.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (s *Service) Stop(ctx context.Context) error {
	s.running.Store(false)
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (s *Service) Stopped() bool {
	return !s.running.Load()
}

// Run connects to the queue store and dispatches to leader or worker mode.
func (s *Service) Run(ctx context.Context) (int, error) {
	client, err := queue.NewRedisClient(s.cfg.RedisURL, s.cfg.RedisCluster)
	if err != nil {
		return exitcodes.RuntimeErr, NewRuntimeError(err)
	}
	store := queue.NewRedisStore(client)
	defer store.Close()
	if err := queue.CheckConnection(ctx, client); err != nil {
		metrics.RecordErrorDetails("redis.connect", err)
		return exitcodes.RuntimeErr, NewRuntimeError(err)
	}

	switch s.cfg.Mode {
	case ModeWorker:
		return s.runWorker(ctx, store)
	case ModeLeader:
		return s.runLeader(ctx, store)
	default:
		return exitcodes.RuntimeErr, NewRuntimeError(fmt.Errorf("%w: %q", ErrInvalidMode, s.cfg.Mode))
	}
}

func (s *Service) runWorker(ctx context.Context, store queue.Store) (int, error) {
	index := runner.WorkerIndex()
	engine := runner.NewGoTestEngine(s.cfg.GoBinary, s.cfg.Timeout, index, s.cfg.Log)
	keys := queue.KeysFor(s.cfg.RedisNamespace, s.cfg.RunID)
	worker := NewWorker(store, keys, engine, index, s.cfg.FailureExitCode, s.cfg.Log)

	code, err := worker.Run(ctx)
	if s.cfg.MetricsPushgateway != "" {
		if pushErr := metrics.Push(ctx, s.cfg.MetricsPushgateway, s.cfg.RunID, fmt.Sprintf("worker-%d", index)); pushErr != nil {
			s.cfg.Log.Error("Failed to push metrics", "err", pushErr)
		}
	}
	return code, err
}

func (s *Service) runLeader(ctx context.Context, store queue.Store) (int, error) {
	launcher, err := NewProcessLauncher(s.executable, s.cfg.Command, s.cfg.ForwardArgs, s.errOut, s.cfg.MaxRunTime, s.cfg.Log)
	if err != nil {
		return exitcodes.RuntimeErr, NewRuntimeError(err)
	}

	var historyConn history.Connection
	if s.cfg.HistoryDBURL != "" {
		db, err := history.New(ctx, s.cfg.HistoryDBURL)
		if err != nil {
			return exitcodes.RuntimeErr, NewRuntimeError(err)
		}
		defer db.Close()
		historyConn = db
	}

	leader, err := NewLeader(s.cfg, store, launcher, s.out, historyConn)
	if err != nil {
		return exitcodes.RuntimeErr, NewRuntimeError(err)
	}
	return leader.Start(ctx)
}
