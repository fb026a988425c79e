package shard

import (
	"strings"

	"github.com/ethereum-optimism/infra/op-shard/flags"
)

// StripModeArgs removes the mode flags (--parallel, --id, --command) and
// their values from args so the remainder can be forwarded to workers.
// Both the "--flag value" and "--flag=value" forms are handled. Everything
// after a bare "--" is kept verbatim.
func StripModeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		name, hasValue, ok := parseFlagArg(arg)
		if !ok || !flags.IsModeFlag(name) {
			out = append(out, arg)
			continue
		}
		if !hasValue && i+1 < len(args) {
			i++
		}
	}
	return out
}

// parseFlagArg splits "-name", "--name" and "--name=value"
func parseFlagArg(arg string) (name string, hasValue bool, ok bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", false, false
	}
	name = strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
	if name == "" {
		return "", false, false
	}
	if before, _, found := strings.Cut(name, "="); found {
		return before, true, true
	}
	return name, false, true
}

// shellQuote quotes args for inclusion in an 'sh -c' command line
func shellQuote(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && strings.Trim(a, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./=:@,+") == "" {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
