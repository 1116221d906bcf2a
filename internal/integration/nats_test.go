package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ir-server/ir-server/internal/config"
	"github.com/ir-server/ir-server/internal/server"
)

var _ server.EventSink = (*NATSPublisher)(nil)

func configForTest() config.NATSConfig {
	return config.NATSConfig{
		URL:               "nats://127.0.0.1:4222",
		Subject:           "ir.events",
		ReconnectInterval: time.Second,
	}
}

func TestEventMessageShape(t *testing.T) {
	msg := eventMessage{
		Remote:  "sony-tv",
		Button:  "KEY_POWER",
		Code:    "0000000000000a90",
		Repeat:  2,
		Release: true,
		Time:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "sony-tv", decoded["remote"])
	assert.Equal(t, "KEY_POWER", decoded["button"])
	assert.Equal(t, "0000000000000a90", decoded["code"])
	assert.Equal(t, float64(2), decoded["repeat"])
	assert.Equal(t, true, decoded["release"])
	assert.Equal(t, "2026-08-01T12:00:00Z", decoded["time"])
}

func TestConnectFailureIsAnError(t *testing.T) {
	cfg := configForTest()
	cfg.URL = "nats://127.0.0.1:1" // nothing listens here
	cfg.MaxReconnects = 0

	_, err := NewNATSPublisher(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}
