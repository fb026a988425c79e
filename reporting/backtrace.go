package reporting

import (
	"fmt"
	"regexp"
)

// DefaultExclusionPatterns hide frames from the Go runtime, the testing
// package and testify's own assertion helpers.
var DefaultExclusionPatterns = []string{
	`/src/runtime/`,
	`/src/testing/`,
	`/src/reflect/`,
	`github\.com/stretchr/testify/`,
	` in runtime\.`,
	` in testing\.`,
	` in created by testing\.`,
	` in panic$`,
}

// BacktraceFormatter filters raw backtrace frames for display. A frame is
// dropped when it matches an exclusion pattern and no inclusion pattern.
type BacktraceFormatter struct {
	exclusion []*regexp.Regexp
	inclusion []*regexp.Regexp
}

// NewBacktraceFormatter compiles the given patterns. A nil exclusion list
// selects DefaultExclusionPatterns.
func NewBacktraceFormatter(exclusion, inclusion []string) (*BacktraceFormatter, error) {
	if exclusion == nil {
		exclusion = DefaultExclusionPatterns
	}
	f := &BacktraceFormatter{}
	for _, p := range exclusion {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid backtrace exclusion pattern %q: %w", p, err)
		}
		f.exclusion = append(f.exclusion, re)
	}
	for _, p := range inclusion {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid backtrace inclusion pattern %q: %w", p, err)
		}
		f.inclusion = append(f.inclusion, re)
	}
	return f, nil
}

// Format returns the frames to show. With full set every frame is kept.
// When filtering would hide every frame the backtrace is shown unfiltered.
func (f *BacktraceFormatter) Format(backtrace []string, full bool) []string {
	if full {
		return backtrace
	}
	var kept []string
	for _, frame := range backtrace {
		if f.excluded(frame) {
			continue
		}
		kept = append(kept, frame)
	}
	if len(kept) == 0 {
		return backtrace
	}
	return kept
}

func (f *BacktraceFormatter) excluded(frame string) bool {
	for _, re := range f.inclusion {
		if re.MatchString(frame) {
			return false
		}
	}
	for _, re := range f.exclusion {
		if re.MatchString(frame) {
			return true
		}
	}
	return false
}
