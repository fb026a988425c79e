package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "OP_SHARD"

// Mode flags select leader or worker mode. They deliberately have no env
// vars: workers inherit the leader's environment and must only see the
// mode the leader passes on the command line.
var (
	Parallel = &cli.IntFlag{
		Name:  "parallel",
		Usage: "Run as leader and spawn this many worker processes",
	}
	ID = &cli.StringFlag{
		Name:  "id",
		Usage: "Run as a worker for the given run ID",
	}
	Command = &cli.StringFlag{
		Name: "command",
		Usage: "Command template used by the leader to start each worker, run through 'sh -c'. " +
			"Available fields: {{.RunID}}, {{.Index}}, {{.Args}}",
	}
)

var (
	RedisURL = &cli.StringFlag{
		Name:    "redis.url",
		Value:   "redis://127.0.0.1:6379/0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_URL"),
		Usage:   "URL of the redis server holding the work and result queues",
	}
	RedisCluster = &cli.BoolFlag{
		Name:    "redis.cluster",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_CLUSTER"),
		Usage:   "Treat redis.url as a redis cluster URL",
	}
	RedisNamespace = &cli.StringFlag{
		Name:    "redis.namespace",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REDIS_NAMESPACE"),
		Usage:   "Optional prefix for every queue key",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   10 * time.Minute,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for the tests of a single file (e.g. '5m')",
	}
	FailureExitCode = &cli.IntFlag{
		Name:    "failure-exit-code",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAILURE_EXIT_CODE"),
		Usage:   "Exit code a worker uses when any of its tests failed",
	}
	FullBacktrace = &cli.BoolFlag{
		Name:    "full-backtrace",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FULL_BACKTRACE"),
		Usage:   "Show failure backtraces without filtering runtime and testing frames",
	}
	MaxRunTime = &cli.DurationFlag{
		Name:    "max-run-time",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_RUN_TIME"),
		Usage:   "Kill workers still running after this long (e.g. '1h'). 0 waits forever.",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to an optional YAML config file (eg. 'op-shard.yaml')",
	}
	MetricsPushgateway = &cli.StringFlag{
		Name:    "metrics.pushgateway",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METRICS_PUSHGATEWAY"),
		Usage:   "Prometheus pushgateway URL that run metrics are pushed to",
	}
	HistoryDBURL = &cli.StringFlag{
		Name:    "history.db-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY_DB_URL"),
		Usage:   "Postgres URL to record run history in",
	}
)

var ModeFlags = []cli.Flag{
	Parallel,
	ID,
	Command,
}

var optionalFlags = []cli.Flag{
	RedisURL,
	RedisCluster,
	RedisNamespace,
	GoBinary,
	Timeout,
	FailureExitCode,
	FullBacktrace,
	MaxRunTime,
	ConfigFile,
	MetricsPushgateway,
	HistoryDBURL,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(append([]cli.Flag{}, ModeFlags...), optionalFlags...)
}

// IsModeFlag reports whether name is one of the leader/worker selection flags
func IsModeFlag(name string) bool {
	for _, f := range ModeFlags {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}
	return false
}

// CheckMode enforces that exactly one of --parallel and --id is given.
func CheckMode(ctx *cli.Context) error {
	hasParallel := ctx.IsSet(Parallel.Name)
	hasID := ctx.IsSet(ID.Name)
	switch {
	case hasParallel && hasID:
		return fmt.Errorf("flags %s and %s are mutually exclusive", Parallel.Name, ID.Name)
	case !hasParallel && !hasID:
		return fmt.Errorf("one of the flags %s or %s is required", Parallel.Name, ID.Name)
	case hasID && ctx.IsSet(Command.Name):
		return fmt.Errorf("flag %s is only valid with %s", Command.Name, Parallel.Name)
	}
	return opflags.CheckRequiredXor(ctx)
}
