package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRejectsBadLevel(t *testing.T) {
	_, err := Setup(Config{Level: "loud"})
	require.Error(t, err)
}

func TestSetupRejectsUnknownOutputAndFormat(t *testing.T) {
	_, err := Setup(Config{Output: "syslog"})
	require.Error(t, err)
	_, err = Setup(Config{Format: "xml"})
	require.Error(t, err)
	_, err = Setup(Config{Output: "file"})
	require.Error(t, err)
}

func TestSetupBadFormatDoesNotOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	_, err := Setup(Config{Format: "xml", Output: "file", FilePath: path})
	require.Error(t, err)
	assert.NoFileExists(t, path)
	assert.NoDirExists(t, filepath.Dir(path))
}

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")
	logger, err := Setup(Config{Level: "warn", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "test").Msg("kept")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), `"component":"test"`)
}

func TestForTest(t *testing.T) {
	logger := ForTest(t)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	logger.Debug().Msg("visible with -v")
}
