// Package runner is the test execution engine used by op-shard workers.
//
// The main components are:
//   - Engine: runs the tests declared in one _test.go file and reports each outcome to a Sink
//   - GoTestEngine: the Engine backed by `go test -json`
//   - eventCollector: turns the go test -json stream into stat and failure records as events arrive
//   - BuildFailure: extracts description, position, exception class, message and backtrace
//     from a failing test's output
//
// Records are handed to the Sink as soon as the corresponding test finishes, never buffered
// until the end of the file.
package runner
