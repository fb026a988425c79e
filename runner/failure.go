package runner

import (
	"regexp"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-shard/types"
)

var (
	// "    foo_test.go:42: message" as printed by t.Error and friends, or
	// "./foo_test.go:42:7: message" from the compiler
	locationLineRe = regexp.MustCompile(`^\s*([\w./\\-]+\.go:\d+)(?::\d+)?:(?: (.*))?$`)
	// "\t/path/to/foo_test.go:42 +0x1d" inside a goroutine dump
	frameLocationRe = regexp.MustCompile(`^\s+(\S+\.go:\d+)(?: \+0x[0-9a-f]+)?$`)
	goroutineRe     = regexp.MustCompile(`^goroutine \d+ \[[^\]]*\]:$`)
	bareLocationRe  = regexp.MustCompile(`^\S+\.go:\d+$`)
	recoveredRe     = regexp.MustCompile(`\s\[recovered[^\]]*\]$`)
	callArgsRe      = regexp.MustCompile(`^(.+)\([^()]*\)$`)
	noiseLineRe     = regexp.MustCompile(`^\s*(=== (RUN|PAUSE|CONT|NAME)|--- (FAIL|PASS|SKIP):)|^(FAIL|PASS|ok)(\s|$)|^exit status \d+$`)
)

// BuildFailure turns the output go test attributed to a failing test into a
// failure record. Panics keep their goroutine stack as the backtrace;
// assertion failures use testify's Error Trace when present and the
// reported locations otherwise.
func BuildFailure(test, file string, output []string) types.FailureRecord {
	lines := cleanOutput(output)

	rec := types.FailureRecord{
		Description: test,
		File:        file,
	}
	if idx := panicIndex(lines); idx >= 0 {
		rec.Exception, rec.Position = buildPanic(lines, idx)
	} else {
		rec.Exception, rec.Position = buildAssertion(lines)
	}
	if rec.Position == "" {
		rec.Position = file
	}
	if rec.Exception.Message == "" {
		rec.Exception.Message = "test failed without output"
	}
	return rec
}

func cleanOutput(output []string) []string {
	var lines []string
	for _, chunk := range output {
		chunk = stripansi.Strip(chunk)
		for _, line := range strings.Split(strings.TrimRight(chunk, "\n"), "\n") {
			line = strings.TrimRight(line, " \r")
			if noiseLineRe.MatchString(line) {
				continue
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func panicIndex(lines []string) int {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "panic: ") {
			return i
		}
	}
	return -1
}

func buildPanic(lines []string, idx int) (types.Exception, string) {
	value := strings.TrimPrefix(strings.TrimSpace(lines[idx]), "panic: ")
	value = recoveredRe.ReplaceAllString(value, "")

	class := PanicClass
	switch {
	case strings.HasPrefix(value, "runtime error:"):
		class = RuntimeErrorClass
	case strings.HasPrefix(value, "test timed out"):
		class = TimeoutClass
	}

	message := []string{value}
	stack := len(lines)
	for i := idx + 1; i < len(lines); i++ {
		if goroutineRe.MatchString(lines[i]) {
			stack = i
			break
		}
		text := strings.TrimSpace(lines[i])
		if text == "" || strings.HasPrefix(text, "panic: ") {
			continue
		}
		message = append(message, text)
	}

	var frames []string
	position := ""
	for i := stack + 1; i+1 < len(lines); i++ {
		fn := strings.TrimSpace(lines[i])
		if fn == "" {
			break
		}
		m := frameLocationRe.FindStringSubmatch(lines[i+1])
		if m == nil {
			continue
		}
		if c := callArgsRe.FindStringSubmatch(fn); c != nil {
			fn = c[1]
		}
		frames = append(frames, m[1]+" in "+fn)
		if position == "" && strings.Contains(m[1], "_test.go:") {
			position = m[1]
		}
		i++
	}

	if position == "" {
		for _, line := range lines[:idx] {
			if m := locationLineRe.FindStringSubmatch(line); m != nil {
				position = m[1]
				break
			}
		}
	}

	return types.Exception{
		Class:     class,
		Message:   strings.Join(message, "\n"),
		Backtrace: frames,
	}, position
}

func buildAssertion(lines []string) (types.Exception, string) {
	var (
		position  string
		message   []string
		trace     []string
		locations []string
		inTrace   bool
	)
	seen := make(map[string]struct{})

	for _, line := range lines {
		if m := locationLineRe.FindStringSubmatch(line); m != nil {
			loc := m[1]
			if position == "" {
				position = loc
			}
			if _, ok := seen[loc]; !ok {
				seen[loc] = struct{}{}
				locations = append(locations, loc)
			}
			inTrace = false
			if text := strings.TrimSpace(m[2]); text != "" {
				message = append(message, text)
			}
			continue
		}

		text := strings.TrimSpace(strings.ReplaceAll(line, "\t", " "))
		if text == "" {
			continue
		}
		if v, ok := strings.CutPrefix(text, "Error Trace:"); ok {
			inTrace = true
			if v = strings.TrimSpace(v); v != "" {
				trace = append(trace, v)
			}
			continue
		}
		if inTrace && bareLocationRe.MatchString(text) {
			trace = append(trace, text)
			continue
		}
		inTrace = false
		message = append(message, text)
	}

	backtrace := trace
	if len(backtrace) == 0 {
		backtrace = locations
	}
	return types.Exception{
		Class:     AssertionClass,
		Message:   strings.Join(message, "\n"),
		Backtrace: backtrace,
	}, position
}
