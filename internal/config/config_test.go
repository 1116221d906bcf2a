package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "null", cfg.Driver.Name)
	assert.Equal(t, "/var/run/lirc/lircd", cfg.Listen.Output)
	assert.Equal(t, uint32(600), cfg.Events.RepeatMax)
	assert.Equal(t, "release", cfg.Events.ReleaseSuffix)
	assert.Equal(t, 5*time.Second, cfg.Peers.ReconnectInterval)
	assert.Equal(t, "ir.events", cfg.Integration.NATS.Subject)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Events.AllowSimulate)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ird.yml")
	data := `
driver:
  name: mode2
  device: /dev/lirc0
remotes:
  path: /etc/ir-server/remotes.conf
listen:
  output: /run/ir-server/sock
  tcp: "0.0.0.0:8765"
peers:
  connect:
    - 10.0.0.2:8765
  reconnect_interval: 3s
events:
  release: true
  release_suffix: _EVUP
  repeat_max: 50
  timeout: 250ms
  allow_simulate: true
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mode2", cfg.Driver.Name)
	assert.Equal(t, "/dev/lirc0", cfg.Driver.Device)
	assert.Equal(t, "/run/ir-server/sock", cfg.Listen.Output)
	assert.Equal(t, "0.0.0.0:8765", cfg.Listen.TCP)
	assert.Equal(t, []string{"10.0.0.2:8765"}, cfg.Peers.Connect)
	assert.Equal(t, 3*time.Second, cfg.Peers.ReconnectInterval)
	assert.True(t, cfg.Events.Release)
	assert.Equal(t, "_EVUP", cfg.Events.ReleaseSuffix)
	assert.Equal(t, uint32(50), cfg.Events.RepeatMax)
	assert.Equal(t, 250*time.Millisecond, cfg.Events.Timeout)
	assert.True(t, cfg.Events.AllowSimulate)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IRD_DRIVER", "simulate")
	t.Setenv("IRD_OUTPUT", "/tmp/ird.sock")
	t.Setenv("IRD_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "simulate", cfg.Driver.Name)
	assert.Equal(t, "/tmp/ird.sock", cfg.Listen.Output)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ird.yml")
	require.NoError(t, os.WriteFile(path, []byte("driver: [not a mapping"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateNullDriverNeedsPeers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.Peers.Connect = []string{"10.0.0.2:8765"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateDeviceOutputCollision(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Driver.Name = "mode2"
	cfg.Driver.Device = cfg.Listen.Output
	cfg.Remotes.Path = "/etc/ir-server/remotes.conf"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be the same file")
}

func TestValidateRequiresRemotesForHardware(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Driver.Name = "mode2"
	cfg.Driver.Device = "/dev/lirc0"

	require.Error(t, cfg.Validate())
	cfg.Remotes.Path = "/etc/ir-server/remotes.conf"
	assert.NoError(t, cfg.Validate())
}
