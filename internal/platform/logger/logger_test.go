package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reyu/internal/platform/config"
)

func TestNew_ProductionUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Server: config.Server{Environment: "production"}, Log: config.Log{Level: "info"}}

	newWithWriter(&buf, cfg).Info("listing created", "listing_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "listing created", line["msg"])
	assert.Equal(t, "reyu", line["service"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Log: config.Log{Level: "warn", Format: "text"}}

	l := newWithWriter(&buf, cfg)
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
