package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

// assertionClassPrefix marks exception classes raised by the test
// framework's own assertion machinery. Those read better without a class
// line; genuine faults keep theirs.
const assertionClassPrefix = "testing."

// IsAssertionClass reports whether class comes from the assertion machinery
func IsAssertionClass(class string) bool {
	return strings.HasPrefix(class, assertionClassPrefix)
}

// DumpFailure writes the header block of one failure.
func DumpFailure(w io.Writer, failure types.FailureRecord) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "* %s\n", failure.Description)
	fmt.Fprintf(w, "\tFailure/Error: %s\n", failure.Position)
	if !IsAssertionClass(failure.Exception.Class) {
		fmt.Fprintf(w, "\t%s:\n", failure.Exception.Class)
	}
	if failure.Exception.Message == "" {
		return
	}
	for _, line := range strings.Split(failure.Exception.Message, "\n") {
		fmt.Fprintf(w, "\t  %s\n", line)
	}
}

// DumpBacktrace writes the filtered backtrace of an exception.
func DumpBacktrace(w io.Writer, bt *BacktraceFormatter, exception types.Exception, full bool) {
	for _, line := range bt.Format(exception.Backtrace, full) {
		fmt.Fprintf(w, "\t%s\n", line)
	}
}
