package utils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseWith(t *testing.T, args ...string) map[string]string {
	t.Helper()
	original := os.Args
	t.Cleanup(func() { os.Args = original })
	os.Args = append([]string{"imagededup"}, args...)
	return ParseArguments()
}

func TestParseArgumentsCommand(t *testing.T) {
	args := parseWith(t, "detect", "--folder=/photos")
	assert.Equal(t, "detect", args["command"])
	assert.Equal(t, "/photos", args["folder"])
}

func TestParseArgumentsEqualsAndSpaceForms(t *testing.T) {
	args := parseWith(t, "clean", "--folder", "/photos", "--threshold=0.95")
	assert.Equal(t, "clean", args["command"])
	assert.Equal(t, "/photos", args["folder"])
	assert.Equal(t, "0.95", args["threshold"])
}

func TestParseArgumentsBareBooleanFlags(t *testing.T) {
	args := parseWith(t, "clean", "--folder=/photos", "--yes", "--debug")
	assert.Equal(t, "true", args["yes"])
	assert.Equal(t, "true", args["debug"])
}

func TestParseArgumentsNoCommand(t *testing.T) {
	args := parseWith(t, "--folder=/photos")
	_, hasCommand := args["command"]
	assert.False(t, hasCommand)
}

func TestParseThreshold(t *testing.T) {
	value, err := ParseThreshold("0.92")
	require.NoError(t, err)
	assert.Equal(t, 0.92, value)

	value, err = ParseThreshold("1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, value)

	for _, bad := range []string{"0", "-0.5", "1.1", "abc", ""} {
		_, err := ParseThreshold(bad)
		assert.Error(t, err, "threshold %q should be rejected", bad)
	}
}
