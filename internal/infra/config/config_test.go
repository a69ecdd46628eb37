package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validChannels() []ChannelConfig {
	return []ChannelConfig{
		{
			Name:       "vapor",
			SourceName: "Vaporwave Radio",
			Upstream: UpstreamConfig{
				StatusURL: "http://icecast:8000/status-json.xsl",
				StreamURL: "http://icecast:8000/vapor.ogg",
			},
			Transport: TransportConfig{Type: "push"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: Config{
				Channels: validChannels(),
				Player:   PlayerConfig{HistorySize: 3},
			},
			wantErr: false,
		},
		{
			name:    "no channels",
			config:  Config{Player: PlayerConfig{HistorySize: 3}},
			wantErr: true,
			errMsg:  "Channels",
		},
		{
			name: "missing source name",
			config: Config{
				Channels: []ChannelConfig{{Name: "vapor", Transport: TransportConfig{Type: "pull"}}},
				Player:   PlayerConfig{HistorySize: 3},
			},
			wantErr: true,
			errMsg:  "SourceName",
		},
		{
			name: "bad transport type",
			config: Config{
				Channels: []ChannelConfig{{
					Name:       "vapor",
					SourceName: "Vaporwave Radio",
					Transport:  TransportConfig{Type: "carrier-pigeon"},
				}},
				Player: PlayerConfig{HistorySize: 3},
			},
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name: "duplicate channel name",
			config: Config{
				Channels: append(validChannels(), validChannels()...),
				Player:   PlayerConfig{HistorySize: 3},
			},
			wantErr: true,
			errMsg:  "duplicate channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  addr: ":3000"
  public_url: "https://radio.example.com"
channels:
  - name: vapor
    source_name: "Vaporwave Radio"
    upstream:
      status_url: "http://icecast:8000/status-json.xsl"
      stream_url: "http://icecast:8000/vapor.ogg"
    transport:
      type: push
      settings:
        endpoint: "https://radio.example.com/vapor/live"
  - name: chip
    source_name: "Chiptune Radio"
    transport:
      type: pull
      settings:
        interval_sec: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Len(t, cfg.Channels, 2)

	ch, ok := cfg.Channel("vapor")
	require.True(t, ok)
	assert.Equal(t, "Vaporwave Radio", ch.SourceName)
	assert.Equal(t, "push", ch.Transport.Type)
	assert.Equal(t, "https://radio.example.com/vapor/live", ch.Transport.Settings["endpoint"])

	// Defaults reach nested fields too.
	assert.Equal(t, 3, cfg.Player.HistorySize)
	assert.Equal(t, "volume.json", cfg.Player.VolumeFile)

	_, ok = cfg.Channel("missing")
	assert.False(t, ok)
}

func TestLoad_EnvOverride(t *testing.T) {
	yaml := `
channels:
  - name: vapor
    source_name: "Vaporwave Radio"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	t.Setenv("PORT", "8081")
	t.Setenv("PUBLIC_URL", "https://other.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, "https://other.example.com", cfg.Server.PublicURL)
}
