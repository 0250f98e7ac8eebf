package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restohub/ingest/pkg/logger"
)

func TestNew_JSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json"}, "webhook-ingest", &buf)

	log.Info("webhook received", "provider", "careem")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "webhook received", record["msg"])
	assert.Equal(t, "careem", record["provider"])
	assert.Equal(t, "webhook-ingest", record["service"])
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "text"}, "", &buf)

	log.Info("started")
	assert.Contains(t, buf.String(), "msg=started")
	assert.NotContains(t, buf.String(), "service=")
}

func TestNew_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "warn", Format: "text"}, "", &buf)

	log.Info("dropped")
	log.Debug("dropped too")
	assert.Empty(t, buf.String())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "bogus", Format: "text"}, "", &buf)

	log.Debug("dropped")
	assert.Empty(t, buf.String())
	log.Info("kept")
	assert.Contains(t, buf.String(), "kept")
}
