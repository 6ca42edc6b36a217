package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powengine/pkg/pow/core"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseUint(t *testing.T) {
	v, err := parseUint("seed-hi", "0xff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), v)

	v, err = parseUint("seed-hi", "42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = parseUint("seed-hi", "nope")
	assert.ErrorContains(t, err, "--seed-hi")
}

func TestWorkFlagsDifficulty(t *testing.T) {
	f := WorkFlags{Bits: 20}
	difficulty, class, err := f.difficulty()
	require.NoError(t, err)
	assert.Equal(t, core.BitDifficulty(20), difficulty)
	assert.Equal(t, uint8(20), class)

	f.Difficulty = "0xfffff00000000000"
	difficulty, class, err = f.difficulty()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xfffff00000000000), difficulty)
	assert.Equal(t, uint8(20), class)
}

func TestSolveCommandWithEmulator(t *testing.T) {
	out, err := run(t, "solve", "--emulator", "--driver", "opencl", "--threads", "64",
		"--seed-hi", "7", "--bits", "12", "--lookup", "12", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Solution")
	assert.Contains(t, out, "valid")
}

func TestValidateCommandRejectsBadSolution(t *testing.T) {
	_, err := run(t, "validate", "--driver", "cpu", "--seed-hi", "1",
		"--bits", "30", "--lookup", "12", "--solution-hi", "3", "--solution-lo", "5", "--quick")
	assert.ErrorContains(t, err, "does not solve")
}

func TestDevicesCommandWithEmulator(t *testing.T) {
	out, err := run(t, "devices", "--emulator")
	require.NoError(t, err)
	assert.Contains(t, out, "OpenCL devices (1)")
	assert.Contains(t, out, "Best driver")
}

func TestInvalidTableSizeIsReported(t *testing.T) {
	_, err := run(t, "solve", "--driver", "cpu", "--table-size", "1000", "--bits", "4")
	assert.ErrorContains(t, err, "generic error")
}
