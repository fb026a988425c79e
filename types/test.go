package types

import (
	"fmt"
	"time"
)

// TestStatus represents the possible states of a completed test
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// IsValid reports whether s is one of the known statuses
func (s TestStatus) IsValid() bool {
	switch s {
	case TestStatusPass, TestStatusFail, TestStatusSkip:
		return true
	}
	return false
}

// FormatDuration renders a test duration the way the reports show it
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
