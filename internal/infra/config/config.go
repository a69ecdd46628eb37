// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration, shared by the relay
// daemon and the player. Each binary reads the sections it needs.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Channels []ChannelConfig `yaml:"channels" validate:"required,min=1,dive"`
	Player   PlayerConfig    `yaml:"player"`
}

// ServerConfig represents relayd server configuration.
type ServerConfig struct {
	Addr      string `yaml:"addr" default:":3000"`
	PublicURL string `yaml:"public_url" validate:"omitempty,url"`
}

// ChannelConfig represents one independently playable audio relay.
type ChannelConfig struct {
	Name       string          `yaml:"name" validate:"required,alphanum"`
	SourceName string          `yaml:"source_name" validate:"required"`
	Upstream   UpstreamConfig  `yaml:"upstream"`
	Transport  TransportConfig `yaml:"transport"`
}

// UpstreamConfig points at the authoritative broadcast server for a channel.
type UpstreamConfig struct {
	StatusURL string `yaml:"status_url" validate:"omitempty,url"`
	StreamURL string `yaml:"stream_url" validate:"omitempty,url"`
}

// TransportConfig selects how the player discovers metadata for a channel.
// Settings are decoded by the metadata source factory according to Type.
type TransportConfig struct {
	Type     string         `yaml:"type" default:"pull" validate:"oneof=pull push"`
	Settings map[string]any `yaml:"settings"`
}

// PlayerConfig represents player-side configuration.
type PlayerConfig struct {
	VolumeFile  string `yaml:"volume_file" default:"volume.json"`
	HistorySize int    `yaml:"history_size" default:"3" validate:"gte=1,lte=100"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
// These match the knobs the deployment already sets for the container.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if seen[ch.Name] {
			return errors.Newf("duplicate channel name: %s", ch.Name)
		}
		seen[ch.Name] = true
	}

	return nil
}

// Channel returns the channel configuration by name.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}
