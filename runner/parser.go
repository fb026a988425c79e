package runner

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

// TestEvent represents a test event from go test -json output
type TestEvent struct {
	Time       time.Time
	Action     string
	Package    string
	ImportPath string
	Test       string
	Elapsed    float64
	Output     string
}

// Sink receives records as soon as a test completes.
type Sink interface {
	Stat(ctx context.Context, rec types.StatRecord) error
	Failure(ctx context.Context, rec types.FailureRecord) error
}

// eventCollector consumes one go test -json stream for a single file.
type eventCollector struct {
	file   string
	pkg    string
	worker int
	sink   Sink

	outputs        map[string][]string
	running        map[string]time.Time
	failingSubtest map[string]bool
	pkgOutput      []string

	failed        bool
	pkgFailed     bool
	failuresSent  int
	testsFinished int
}

func newEventCollector(file, pkg string, worker int, sink Sink) *eventCollector {
	return &eventCollector{
		file:           file,
		pkg:            pkg,
		worker:         worker,
		sink:           sink,
		outputs:        make(map[string][]string),
		running:        make(map[string]time.Time),
		failingSubtest: make(map[string]bool),
	}
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	return event, nil
}

// Consume handles one line of go test output. Lines that are not JSON
// events (build errors printed before the test binary runs) are kept as
// package output.
func (c *eventCollector) Consume(ctx context.Context, line []byte) error {
	event, err := parseTestEvent(line)
	if err != nil || event.Action == "" {
		c.pkgOutput = append(c.pkgOutput, string(line)+"\n")
		return nil
	}

	if event.Test == "" {
		switch event.Action {
		case ActionOutput, ActionBuildOutput:
			c.pkgOutput = append(c.pkgOutput, event.Output)
		case ActionFail, ActionBuildFail:
			c.pkgFailed = true
		}
		return nil
	}

	switch event.Action {
	case ActionRun, ActionStart:
		c.running[event.Test] = event.Time
	case ActionOutput:
		c.outputs[event.Test] = append(c.outputs[event.Test], event.Output)
	case ActionPass, ActionSkip, ActionFail:
		return c.complete(ctx, event, c.outputs[event.Test])
	}
	return nil
}

func (c *eventCollector) complete(ctx context.Context, event TestEvent, output []string) error {
	delete(c.outputs, event.Test)
	delete(c.running, event.Test)
	c.testsFinished++

	status := types.TestStatus(event.Action)
	if err := c.sink.Stat(ctx, types.StatRecord{
		File:    c.file,
		Package: c.pkg,
		Test:    event.Test,
		Status:  status,
		Elapsed: time.Duration(event.Elapsed * float64(time.Second)),
		Worker:  c.worker,
	}); err != nil {
		return err
	}
	if status != types.TestStatusFail {
		return nil
	}

	c.failed = true
	if parent, _, ok := cutLast(event.Test, "/"); ok {
		c.markFailingSubtest(parent)
	}
	// A parent fails whenever one of its subtests does; only report it when
	// it has something of its own to say.
	if c.failingSubtest[event.Test] && !hasOwnFailure(output) {
		return nil
	}
	return c.sendFailure(ctx, BuildFailure(event.Test, c.file, output))
}

func (c *eventCollector) markFailingSubtest(name string) {
	for {
		c.failingSubtest[name] = true
		parent, _, ok := cutLast(name, "/")
		if !ok {
			return
		}
		name = parent
	}
}

func (c *eventCollector) sendFailure(ctx context.Context, rec types.FailureRecord) error {
	rec.Worker = c.worker
	c.failuresSent++
	return c.sink.Failure(ctx, rec)
}

// Finish reports what the stream alone could not: tests that never
// completed because the binary died, and packages that failed to build.
// It returns whether every test in the file passed.
func (c *eventCollector) Finish(ctx context.Context, exitCode int, stderr string) (bool, error) {
	// Deepest first so a dying subtest marks its parents before they are reported.
	pending := make([]string, 0, len(c.running))
	for test := range c.running {
		pending = append(pending, test)
	}
	sort.Slice(pending, func(i, j int) bool {
		di, dj := strings.Count(pending[i], "/"), strings.Count(pending[j], "/")
		if di != dj {
			return di > dj
		}
		return pending[i] < pending[j]
	})
	for _, test := range pending {
		output := c.outputs[test]
		if !c.failingSubtest[test] && !hasOwnFailure(output) {
			// the panic that killed the binary is usually attributed to the package
			output = append(append([]string{}, output...), c.pkgOutput...)
		}
		if err := c.complete(ctx, TestEvent{Action: ActionFail, Test: test}, output); err != nil {
			return false, err
		}
	}

	if exitCode == 0 && !c.pkgFailed {
		return !c.failed, nil
	}
	if c.failuresSent > 0 {
		return false, nil
	}

	// Nothing attributable to a single test: report the file as a whole.
	output := append(append([]string{}, c.pkgOutput...), stderr)
	rec := BuildFailure(c.file, c.file, output)
	if c.testsFinished == 0 {
		rec.Exception.Class = BuildErrorClass
	}
	if err := c.sendFailure(ctx, rec); err != nil {
		return false, err
	}
	return false, nil
}

func hasOwnFailure(output []string) bool {
	for _, line := range cleanOutput(output) {
		if locationLineRe.MatchString(line) || strings.HasPrefix(strings.TrimSpace(line), "panic: ") {
			return true
		}
	}
	return false
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
