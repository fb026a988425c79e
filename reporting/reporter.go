package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

// WorkerStatus classifies how a worker process ended
type WorkerStatus string

const (
	WorkerPassed WorkerStatus = "pass"
	WorkerFailed WorkerStatus = "fail"  // exited with the test failure code
	WorkerError  WorkerStatus = "error" // crashed, was killed, or exited with another code
)

// WorkerOutcome is one spawned worker's exit
type WorkerOutcome struct {
	Index    int
	ExitCode int
	Status   WorkerStatus
}

// Reporter renders a run's records to the output stream.
type Reporter struct {
	out           io.Writer
	bt            *BacktraceFormatter
	fullBacktrace bool

	passed, failed, skipped int
	failures                int
}

func NewReporter(out io.Writer, bt *BacktraceFormatter, fullBacktrace bool) *Reporter {
	return &Reporter{
		out:           out,
		bt:            bt,
		fullBacktrace: fullBacktrace,
	}
}

func (r *Reporter) RunStarted(runID string) {
	fmt.Fprintf(r.out, "ID: %s\n", runID)
}

// Stat prints one stat record in arrival order
func (r *Reporter) Stat(rec types.StatRecord) {
	switch rec.Status {
	case types.TestStatusPass:
		r.passed++
	case types.TestStatusFail:
		r.failed++
	case types.TestStatusSkip:
		r.skipped++
	}
	fmt.Fprintln(r.out, rec.String())
}

// Raw prints a record that could not be decoded, so nothing a worker
// pushed is silently lost.
func (r *Reporter) Raw(raw string) {
	fmt.Fprintln(r.out, raw)
}

func (r *Reporter) FailuresHeader() {
	fmt.Fprintln(r.out, "Failures:")
}

// Failure prints one failure followed by its filtered backtrace
func (r *Reporter) Failure(rec types.FailureRecord) {
	r.failures++
	DumpFailure(r.out, rec)
	DumpBacktrace(r.out, r.bt, rec.Exception, r.fullBacktrace)
}

// Counts returns the tallies of stat records and failures seen so far
func (r *Reporter) Counts() (passed, failed, skipped, failures int) {
	return r.passed, r.failed, r.skipped, r.failures
}

// Summary prints a table of worker exits and test totals.
func (r *Reporter) Summary(workers []WorkerOutcome, duration time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Sharded Test Results (%s)", types.FormatDuration(duration))
	t.AppendHeader(table.Row{"Worker", "Exit Code", "Result"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Worker", Align: text.AlignRight},
		{Name: "Exit Code", Align: text.AlignRight},
	})
	for _, w := range workers {
		t.AppendRow(table.Row{w.Index, w.ExitCode, statusString(w.Status)})
	}
	t.AppendFooter(table.Row{
		"Tests",
		fmt.Sprintf("%d passed, %d failed, %d skipped", r.passed, r.failed, r.skipped),
		fmt.Sprintf("%d failures", r.failures),
	})
	fmt.Fprintln(r.out)
	t.Render()
}

func statusString(status WorkerStatus) string {
	switch status {
	case WorkerPassed:
		return "✓ pass"
	case WorkerFailed:
		return "✗ fail"
	default:
		return "✗ worker error"
	}
}
