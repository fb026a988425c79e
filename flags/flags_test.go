package flags

import (
	"strings"
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range append(append([]cli.Flag{}, ModeFlags...), optionalFlags...) {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()

			if IsModeFlag(flagName) {
				require.Empty(t, envFlags, "mode flags must not be settable from the environment")
				return
			}
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.True(t, strings.HasPrefix(envFlags[0], EnvVarPrefix+"_"))
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
		})
	}
}

func TestCheckMode(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"leader", []string{"app", "--parallel", "2"}, ""},
		{"leader with command", []string{"app", "--parallel", "2", "--command", "echo"}, ""},
		{"worker", []string{"app", "--id", "42"}, ""},
		{"both", []string{"app", "--id", "1", "--parallel", "2"}, "mutually exclusive"},
		{"neither", []string{"app"}, "is required"},
		{"worker with command", []string{"app", "--id", "1", "--command", "echo"}, "only valid with parallel"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var checkErr error
			app := &cli.App{
				Flags: Flags,
				Action: func(ctx *cli.Context) error {
					checkErr = CheckMode(ctx)
					return nil
				},
			}
			require.NoError(t, app.Run(tc.args))
			if tc.wantErr == "" {
				assert.NoError(t, checkErr)
			} else {
				assert.ErrorContains(t, checkErr, tc.wantErr)
			}
		})
	}
}

func TestIsModeFlag(t *testing.T) {
	assert.True(t, IsModeFlag("parallel"))
	assert.True(t, IsModeFlag("id"))
	assert.True(t, IsModeFlag("command"))
	assert.False(t, IsModeFlag("redis.url"))
}
