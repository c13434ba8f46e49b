package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Logger_Levels_And_Fields(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	logger := NewLogger(WARN)
	logger.SetOutput(&buf)

	logger.Info("hidden")
	req.Empty(buf.String())

	logger.WithFields(map[string]interface{}{"b": 2, "a": 1}).Warn("shown %d", 7)
	req.Contains(buf.String(), "[WARN] shown 7 [a=1, b=2]")

	// Children share the level of their parent
	child := logger.WithField("k", "v")
	logger.SetLevel(DEBUG)
	buf.Reset()
	child.Debug("now visible")
	req.Contains(buf.String(), "[DEBUG] now visible [k=v]")
}

func Test_ParseLogLevel(t *testing.T) {
	req := require.New(t)

	level, err := ParseLogLevel("Warning")
	req.NoError(err)
	req.Equal(WARN, level)

	level, err = ParseLogLevel("")
	req.NoError(err)
	req.Equal(INFO, level)

	_, err = ParseLogLevel("loud")
	req.Error(err)
}
