package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	Driver      DriverConfig      `yaml:"driver"`
	Remotes     RemotesConfig     `yaml:"remotes"`
	Listen      ListenConfig      `yaml:"listen"`
	Peers       PeersConfig       `yaml:"peers"`
	Events      EventsConfig      `yaml:"events"`
	API         APIConfig         `yaml:"api"`
	Integration IntegrationConfig `yaml:"integration"`
	Log         LogConfig         `yaml:"log"`
}

// DriverConfig selects the hardware backend
type DriverConfig struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
}

// RemotesConfig locates the remote definition file
type RemotesConfig struct {
	Path string `yaml:"path"`
}

// ListenConfig configures the control sockets
type ListenConfig struct {
	// Output is the Unix-domain socket path, always served.
	Output string `yaml:"output"`
	// TCP is an optional host:port listener; empty disables it.
	TCP string `yaml:"tcp"`
	// SocketMode is the octal permission applied to the Unix socket.
	SocketMode os.FileMode `yaml:"socket_mode"`
}

// PeersConfig configures outbound connections to other daemons
type PeersConfig struct {
	// Connect lists host:port addresses of peer daemons whose decoded
	// events are merged into the local broadcast stream.
	Connect []string `yaml:"connect"`
	// ReconnectInterval is the fixed backoff between connection attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// EventsConfig tunes decoding and broadcast behavior
type EventsConfig struct {
	// Release enables synthesized release events.
	Release bool `yaml:"release"`
	// ReleaseSuffix is the marker token appended to release broadcast lines.
	ReleaseSuffix string `yaml:"release_suffix"`
	// RepeatMax caps the repeat counter for a held button.
	RepeatMax uint32 `yaml:"repeat_max"`
	// Timeout, when set, replaces the per-remote gap-derived window used
	// to decide that a held button was let go.
	Timeout time.Duration `yaml:"timeout"`
	// AllowSimulate permits the SIMULATE directive.
	AllowSimulate bool `yaml:"allow_simulate"`
}

// APIConfig configures the read-only HTTP status API
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// IntegrationConfig configures outbound event publishing
type IntegrationConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig represents the NATS publisher configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Subject           string        `yaml:"subject"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from file. An empty path yields the defaults,
// to be overridden by command-line flags.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if driver := os.Getenv("IRD_DRIVER"); driver != "" {
		c.Driver.Name = driver
	}
	if device := os.Getenv("IRD_DEVICE"); device != "" {
		c.Driver.Device = device
	}
	if output := os.Getenv("IRD_OUTPUT"); output != "" {
		c.Listen.Output = output
	}
	if remotes := os.Getenv("IRD_REMOTES"); remotes != "" {
		c.Remotes.Path = remotes
	}
	if natsURL := os.Getenv("IRD_NATS_URL"); natsURL != "" {
		c.Integration.NATS.URL = natsURL
	}
	if logLevel := os.Getenv("IRD_LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}
}

func (c *Config) setDefaults() {
	if c.Driver.Name == "" {
		c.Driver.Name = "null"
	}
	if c.Listen.Output == "" {
		c.Listen.Output = "/var/run/lirc/lircd"
	}
	if c.Listen.SocketMode == 0 {
		c.Listen.SocketMode = 0o666
	}
	if c.Peers.ReconnectInterval == 0 {
		c.Peers.ReconnectInterval = 5 * time.Second
	}
	if c.Events.ReleaseSuffix == "" {
		c.Events.ReleaseSuffix = "release"
	}
	if c.Events.RepeatMax == 0 {
		c.Events.RepeatMax = 600
	}
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:8765"
	}
	if c.Integration.NATS.Subject == "" {
		c.Integration.NATS.Subject = "ir.events"
	}
	if c.Integration.NATS.MaxReconnects == 0 {
		c.Integration.NATS.MaxReconnects = 10
	}
	if c.Integration.NATS.ReconnectInterval == 0 {
		c.Integration.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the fatal startup conditions that must abort before the
// core loop starts.
func (c *Config) Validate() error {
	if c.Driver.Name == "null" && len(c.Peers.Connect) == 0 {
		return fmt.Errorf("no usable hardware driver and no peers specified")
	}
	if c.Driver.Device != "" && c.Driver.Device == c.Listen.Output {
		return fmt.Errorf("device and output must not be the same file: %s", c.Listen.Output)
	}
	if c.Remotes.Path == "" && c.Driver.Name != "null" {
		return fmt.Errorf("no remotes config file specified")
	}
	return nil
}
