package runner

import "time"

// Test execution constants
const (
	// Default go binary name
	DefaultGoBinary = "go"

	// Test command arguments
	TestCommand = "test"
	JSONFlag    = "-json"
	VerboseFlag = "-v"
	TimeoutFlag = "-timeout"
	CountFlag   = "-count"
	RunFlag     = "-run"

	// Test count to disable caching
	DisableCacheCount = "1"

	// go test -json actions
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPass        = "pass"
	ActionFail        = "fail"
	ActionSkip        = "skip"
	ActionOutput      = "output"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"

	// Exception classes attached to failure records
	AssertionClass    = "testing.T"
	PanicClass        = "panic"
	RuntimeErrorClass = "runtime.Error"
	BuildErrorClass   = "build.Error"
	TimeoutClass      = "timeout"

	// ParallelEnvVar carries the worker's parallel index: empty for the
	// first worker, otherwise the 1-based index.
	ParallelEnvVar = "TEST_ENV_NUMBER"

	defaultStderrTailBytes = 64 * 1024
	maxEventLineBytes      = 16 * 1024 * 1024
	stderrTruncatedNote    = "(stderr truncated)"
)

// DefaultTestTimeout is handed to go test when no per-file timeout is configured
const DefaultTestTimeout = 10 * time.Minute
