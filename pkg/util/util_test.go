package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedClock(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	c := NewFixedClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(time.Second)
	assert.Equal(t, start.Add(time.Second), c.Now())

	fired := <-c.After(time.Minute)
	assert.Equal(t, start.Add(time.Second+time.Minute), fired)
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")

	logger, err := NewLoggerWithFile(path, "debug")
	require.NoError(t, err)
	logger.Info("book_created")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"book_created"`)
	assert.Contains(t, string(data), `"ts":`)

	_, err = NewLogger("loud")
	assert.Error(t, err)
}
