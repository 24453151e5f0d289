package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/valuegrid/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// A syntax error is guaranteed to cause a panic during the loading phase
	// inside app.NewApp().
	invalidHCL := `
		view "pv" {
			calc_config "default" {
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0600), "failed to set up test file")

	out := &bytes.Buffer{}
	runErr := run(context.Background(), out, []string{"run", filePath})

	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")
	require.Contains(t, runErr.Error(), "application startup panicked")
	require.Contains(t, runErr.Error(), "failed to load configuration")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, []string{"run", "--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_ComputesView(t *testing.T) {
	t.Parallel()

	config := `
security "SEC~AAPL" {
  kind     = "equity"
  currency = "USD"
}

market_data "SEC~AAPL" { price = 190.5 }

portfolio "PF~main" {
  node "PN~root" {
    position "POS~1" {
      security = "SEC~AAPL"
      quantity = 100
    }
  }
}

view "pv" {
  calc_config "default" {
    requirement "PresentValue" {
      target_type = "PORTFOLIO"
      target      = "PF~main"
    }
  }
}
`
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "main.hcl"), []byte(config), 0600))

	out := &testutil.SafeBuffer{}
	err := run(context.Background(), out, []string{"--log-level", "warn", "run", tempDir})

	require.NoError(t, err)
	require.Contains(t, out.String(), "19050")
}
