package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")

	closer, logger, err := FileLogger(logrus.InfoLevel, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	logger.WithField("tenant_id", "t1").Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"tenant_id":"t1"`)
}

func TestConsoleLogger_Level(t *testing.T) {
	require.Equal(t, logrus.WarnLevel, ConsoleLogger(logrus.WarnLevel).GetLevel())
}
