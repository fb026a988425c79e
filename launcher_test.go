package shard

import (
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestProcessLauncherCommandTemplate(t *testing.T) {
	requireShell(t)
	tests := []struct {
		name     string
		command  string
		args     []string
		count    int
		expected []int
	}{
		{
			name:     "exit codes are collected per worker",
			command:  "exit 3",
			count:    2,
			expected: []int{3, 3},
		},
		{
			name:     "parallel index env var",
			command:  `if [ -z "$TEST_ENV_NUMBER" ]; then exit 10; else exit "$TEST_ENV_NUMBER"; fi`,
			count:    3,
			expected: []int{10, 2, 3},
		},
		{
			name:     "template fields",
			command:  `[ "{{.RunID}}" = "run-1" ] || exit 99; exit $(( {{.Index}} + 20 ))`,
			count:    2,
			expected: []int{20, 21},
		},
		{
			name:     "forwarded args are shell quoted",
			command:  `set -- {{.Args}}; [ "$#" = 2 ] && [ "$1" = "a b" ] && [ "$2" = "--redis.url" ]`,
			args:     []string{"a b", "--redis.url"},
			count:    1,
			expected: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewProcessLauncher("unused", tt.command, tt.args, io.Discard, 0, testLogger())
			require.NoError(t, err)
			codes, err := l.Launch(context.Background(), "run-1", tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, codes)
		})
	}
}

func TestProcessLauncherDefaultCommand(t *testing.T) {
	trueBin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}

	l, err := NewProcessLauncher(trueBin, "", []string{"./pkg"}, io.Discard, 0, testLogger())
	require.NoError(t, err)
	codes, err := l.Launch(context.Background(), "run-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, codes)

	l, err = NewProcessLauncher(falseBin, "", nil, io.Discard, 0, testLogger())
	require.NoError(t, err)
	codes, err = l.Launch(context.Background(), "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, codes)
}

func TestProcessLauncherDefaultCommandArgs(t *testing.T) {
	l, err := NewProcessLauncher("/bin/op-shard", "", []string{"--redis.url", "redis://h/0", "./pkg"}, io.Discard, 0, testLogger())
	require.NoError(t, err)
	cmd, err := l.buildCommand(context.Background(), "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/op-shard", "--id", "run-1", "--redis.url", "redis://h/0", "./pkg"}, cmd.Args)
	assert.Contains(t, cmd.Env, "TEST_ENV_NUMBER=2")
	assert.Nil(t, cmd.Stdout)
}

func TestProcessLauncherMaxRunTime(t *testing.T) {
	requireShell(t)
	l, err := NewProcessLauncher("unused", "exec sleep 30", nil, io.Discard, 200*time.Millisecond, testLogger())
	require.NoError(t, err)

	start := time.Now()
	codes, err := l.Launch(context.Background(), "run-1", 2)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 20*time.Second)
	assert.Equal(t, []int{KilledExitCode, KilledExitCode}, codes)
}

func TestProcessLauncherMissingExecutable(t *testing.T) {
	l, err := NewProcessLauncher(filepath.Join(t.TempDir(), "missing"), "", nil, io.Discard, 0, testLogger())
	require.NoError(t, err)
	codes, err := l.Launch(context.Background(), "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{KilledExitCode}, codes)
}

func TestProcessLauncherRejectsNonPositiveCount(t *testing.T) {
	l, err := NewProcessLauncher("unused", "exit 0", nil, io.Discard, 0, testLogger())
	require.NoError(t, err)
	for _, count := range []int{0, -3} {
		codes, err := l.Launch(context.Background(), "run-1", count)
		require.ErrorContains(t, err, "worker count must be at least 1")
		assert.Nil(t, codes)
	}
}

func TestProcessLauncherInvalidTemplate(t *testing.T) {
	_, err := NewProcessLauncher("unused", "{{.RunID", nil, io.Discard, 0, testLogger())
	require.Error(t, err)

	l, err := NewProcessLauncher("unused", "{{.Missing}}", nil, io.Discard, 0, testLogger())
	require.NoError(t, err)
	_, err = l.Launch(context.Background(), "run-1", 1)
	require.Error(t, err)
}

func TestParallelIndex(t *testing.T) {
	assert.Equal(t, "", parallelIndex(0))
	assert.Equal(t, "2", parallelIndex(1))
	assert.Equal(t, "5", parallelIndex(4))
}
