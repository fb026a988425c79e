package shard

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-shard/flags"
)

// Mode is the role this process plays in a run
type Mode string

const (
	ModeLeader Mode = "leader"
	ModeWorker Mode = "worker"
)

// FileConfig is the optional YAML config file. Command line flags win over
// anything set here.
type FileConfig struct {
	Redis           RedisConfig     `yaml:"redis"`
	GoBinary        string          `yaml:"go_binary"`
	Timeout         time.Duration   `yaml:"timeout"`
	FailureExitCode int             `yaml:"failure_exit_code"`
	MaxRunTime      time.Duration   `yaml:"max_run_time"`
	Backtrace       BacktraceConfig `yaml:"backtrace"`
	Metrics         MetricsConfig   `yaml:"metrics"`
	History         HistoryConfig   `yaml:"history"`
}

type RedisConfig struct {
	URL       string `yaml:"url"`
	Cluster   bool   `yaml:"cluster"`
	Namespace string `yaml:"namespace"`
}

type BacktraceConfig struct {
	Full              bool     `yaml:"full"`
	ExclusionPatterns []string `yaml:"exclusion_patterns"`
	InclusionPatterns []string `yaml:"inclusion_patterns"`
}

type MetricsConfig struct {
	Pushgateway string `yaml:"pushgateway"`
}

type HistoryConfig struct {
	DBURL string `yaml:"db_url"`
}

// LoadFile reads and validates a YAML config file
func LoadFile(file string) (*FileConfig, error) {
	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	cfg := &FileConfig{}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", file, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", file, err)
	}
	return cfg, nil
}

func (c *FileConfig) Validate() error {
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.MaxRunTime < 0 {
		return errors.New("max_run_time must not be negative")
	}
	if c.FailureExitCode < 0 || c.FailureExitCode > 255 {
		return fmt.Errorf("failure_exit_code %d out of range", c.FailureExitCode)
	}
	return nil
}

// Config holds the application configuration
type Config struct {
	Mode               Mode
	RunID              string        // Worker mode: the run to claim work from
	Parallel           int           // Leader mode: number of workers to spawn
	Command            string        // Leader mode: optional worker command template
	Paths              []string      // Leader mode: test files and directories to run
	ForwardArgs        []string      // Arguments passed on to every worker
	RedisURL           string
	RedisCluster       bool
	RedisNamespace     string
	GoBinary           string
	Timeout            time.Duration // Timeout for the tests of one file
	FailureExitCode    int           // Worker exit code when any test failed
	MaxRunTime         time.Duration // Leader mode: kill workers after this long, 0 disables
	FullBacktrace      bool
	ExclusionPatterns  []string // nil selects the default backtrace exclusions
	InclusionPatterns  []string
	MetricsPushgateway string
	HistoryDBURL       string
	Log                log.Logger
}

// NewConfig creates a new Config from cli context. rawArgs are the process
// arguments without the program name; they are forwarded to workers with
// the mode flags removed.
func NewConfig(ctx *cli.Context, log log.Logger, rawArgs []string) (*Config, error) {
	if err := flags.CheckMode(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMode, err)
	}

	file := &FileConfig{}
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		var err error
		if file, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		RedisURL:           pickString(ctx, flags.RedisURL, file.Redis.URL),
		RedisCluster:       pickBool(ctx, flags.RedisCluster, file.Redis.Cluster),
		RedisNamespace:     pickString(ctx, flags.RedisNamespace, file.Redis.Namespace),
		GoBinary:           pickString(ctx, flags.GoBinary, file.GoBinary),
		Timeout:            pickDuration(ctx, flags.Timeout, file.Timeout),
		MaxRunTime:         pickDuration(ctx, flags.MaxRunTime, file.MaxRunTime),
		FullBacktrace:      pickBool(ctx, flags.FullBacktrace, file.Backtrace.Full),
		ExclusionPatterns:  file.Backtrace.ExclusionPatterns,
		InclusionPatterns:  file.Backtrace.InclusionPatterns,
		MetricsPushgateway: pickString(ctx, flags.MetricsPushgateway, file.Metrics.Pushgateway),
		HistoryDBURL:       pickString(ctx, flags.HistoryDBURL, file.History.DBURL),
		ForwardArgs:        StripModeArgs(rawArgs),
		Log:                log,
	}

	cfg.FailureExitCode = ctx.Int(flags.FailureExitCode.Name)
	if !ctx.IsSet(flags.FailureExitCode.Name) && file.FailureExitCode != 0 {
		cfg.FailureExitCode = file.FailureExitCode
	}
	if cfg.FailureExitCode <= 0 || cfg.FailureExitCode > 255 {
		return nil, fmt.Errorf("failure exit code must be between 1 and 255, got %d", cfg.FailureExitCode)
	}
	if cfg.Timeout < 0 || cfg.MaxRunTime < 0 {
		return nil, errors.New("timeouts must not be negative")
	}

	if ctx.IsSet(flags.ID.Name) {
		cfg.Mode = ModeWorker
		cfg.RunID = ctx.String(flags.ID.Name)
		if cfg.RunID == "" {
			return nil, fmt.Errorf("%w: run id must not be empty", ErrInvalidMode)
		}
		return cfg, nil
	}

	cfg.Mode = ModeLeader
	cfg.Parallel = ctx.Int(flags.Parallel.Name)
	if cfg.Parallel < 1 {
		return nil, fmt.Errorf("%w: parallel must be at least 1, got %d", ErrInvalidMode, cfg.Parallel)
	}
	cfg.Command = ctx.String(flags.Command.Name)
	cfg.Paths = ctx.Args().Slice()
	return cfg, nil
}

func pickString(ctx *cli.Context, f *cli.StringFlag, fromFile string) string {
	if !ctx.IsSet(f.Name) && fromFile != "" {
		return fromFile
	}
	return ctx.String(f.Name)
}

func pickBool(ctx *cli.Context, f *cli.BoolFlag, fromFile bool) bool {
	if !ctx.IsSet(f.Name) {
		return fromFile || ctx.Bool(f.Name)
	}
	return ctx.Bool(f.Name)
}

func pickDuration(ctx *cli.Context, f *cli.DurationFlag, fromFile time.Duration) time.Duration {
	if !ctx.IsSet(f.Name) && fromFile != 0 {
		return fromFile
	}
	return ctx.Duration(f.Name)
}
