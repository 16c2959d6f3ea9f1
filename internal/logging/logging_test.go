package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ddedalus/syringe-pump/config"
)

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "command", "irun")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "command=irun")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("exchange", "prompt", ":")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "exchange", line["msg"])
	assert.Equal(t, ":", line["prompt"])
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pumplink.log")
	logger, closer, err := New(config.LoggingConfig{Level: "info", Format: "logfmt", File: path}, os.Stderr)
	require.NoError(t, err)

	logger.Info("opened", "port", "/dev/ttyACM0")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=opened")
	assert.Contains(t, string(data), "port=/dev/ttyACM0")
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "loud", Format: "text"}, os.Stderr)
	assert.Error(t, err)

	_, _, err = New(config.LoggingConfig{Level: "info", Format: "xml"}, os.Stderr)
	assert.Error(t, err)
}
