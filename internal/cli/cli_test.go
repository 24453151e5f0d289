package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/valuegrid/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want *Invocation
	}{
		{
			name: "run with positional paths and flags",
			args: []string{"--log-level", "DEBUG", "run", "-c", "engine.hcl", "--view", "pv", "--cycles", "3", "--cycle-interval", "1s", "--nodes", "4", "views/"},
			want: &Invocation{Command: CommandRun, Config: &app.Config{
				ConfigPaths:      []string{"engine.hcl", "views/"},
				View:             "pv",
				Cycles:           3,
				CycleInterval:    time.Second,
				CalculationNodes: 4,
				LogFormat:        "json",
				LogLevel:         "debug",
			}},
		},
		{
			name: "cache server",
			args: []string{"cache-server", "--listen", ":9000", "--log-format", "text", "--healthcheck-port", "8080"},
			want: &Invocation{Command: CommandCacheServer, Config: &app.Config{
				CacheAddr:       ":9000",
				Cycles:          1,
				LogFormat:       "text",
				LogLevel:        "info",
				HealthcheckPort: 8080,
			}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, exit, err := Parse(tc.args, &bytes.Buffer{})
			require.NoError(t, err)
			assert.False(t, exit)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Help(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"run", "--help"}} {
		out := &bytes.Buffer{}
		inv, exit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, inv)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "unknown flag", args: []string{"run", "--bogus"}, wantMsg: "unknown flag: --bogus"},
		{name: "no configuration", args: []string{"run"}, wantMsg: "at least one configuration path is required"},
		{name: "bad log format", args: []string{"--log-format", "xml", "run", "grid.hcl"}, wantMsg: `invalid log format "xml"`},
		{name: "cache server takes no arguments", args: []string{"cache-server", "extra"}, wantMsg: "unknown command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			require.Error(t, err)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}
