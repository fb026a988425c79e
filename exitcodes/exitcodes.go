// Package exitcodes defines the standard exit codes used by op-shard.
package exitcodes

// Exit code constants used by op-shard.
//
// * Success (0): the leader's workers all exited cleanly, or a worker's tests all passed
// * TestFailure (1): at least one worker failed, or a worker saw a failing test
// * RuntimeErr (2): configuration errors, an unreachable queue store, or other operational failures
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Runtime errors
)
