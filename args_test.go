package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripModeArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "separate values",
			args:     []string{"--parallel", "4", "--redis.url", "redis://r:6379/0", "./pkg"},
			expected: []string{"--redis.url", "redis://r:6379/0", "./pkg"},
		},
		{
			name:     "equals form",
			args:     []string{"--parallel=4", "--command=run {{.RunID}}", "a_test.go"},
			expected: []string{"a_test.go"},
		},
		{
			name:     "single dash",
			args:     []string{"-parallel", "2", "-timeout", "1m"},
			expected: []string{"-timeout", "1m"},
		},
		{
			name:     "worker id",
			args:     []string{"--id", "42", "b_test.go"},
			expected: []string{"b_test.go"},
		},
		{
			name:     "after terminator",
			args:     []string{"--parallel", "2", "--", "--parallel", "x"},
			expected: []string{"--", "--parallel", "x"},
		},
		{
			name:     "trailing flag without value",
			args:     []string{"a_test.go", "--parallel"},
			expected: []string{"a_test.go"},
		},
		{
			name:     "nothing to strip",
			args:     nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripModeArgs(tt.args))
		})
	}
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "--redis.url redis://h:6379/0 ./pkg", shellQuote([]string{"--redis.url", "redis://h:6379/0", "./pkg"}))
	assert.Equal(t, `'a b' 'it'\''s' ''`, shellQuote([]string{"a b", "it's", ""}))
}
