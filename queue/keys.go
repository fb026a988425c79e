package queue

import "fmt"

const (
	toRunPrefix   = "to_run_"
	statPrefix    = "stat_"
	failurePrefix = "failure_"
)

// Keys names the three lists that belong to one run.
type Keys struct {
	ToRun   string
	Stat    string
	Failure string
}

// KeysFor returns the keys for runID, optionally prefixed by "<namespace>:".
func KeysFor(namespace, runID string) Keys {
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	return Keys{
		ToRun:   fmt.Sprintf("%s%s%s", prefix, toRunPrefix, runID),
		Stat:    fmt.Sprintf("%s%s%s", prefix, statPrefix, runID),
		Failure: fmt.Sprintf("%s%s%s", prefix, failurePrefix, runID),
	}
}

func (k Keys) All() []string {
	return []string{k.ToRun, k.Stat, k.Failure}
}
