package metadata

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/ruohki/krelez/internal/infra/config"
)

// PullSettings are the transport settings for type "pull".
type PullSettings struct {
	Endpoint    string `mapstructure:"endpoint"`
	IntervalSec int    `mapstructure:"interval_sec"`
}

// PushSettings are the transport settings for type "push".
type PushSettings struct {
	Endpoint string `mapstructure:"endpoint"`
}

// NewSourceFromConfig creates the metadata source for one channel from its
// transport block. When the settings leave the endpoint empty it is derived
// from the public base URL and the channel name, matching the paths relayd
// serves.
func NewSourceFromConfig(ch config.ChannelConfig, publicURL string) (Source, error) {
	switch ch.Transport.Type {
	case "pull", "":
		var s PullSettings
		if err := mapstructure.Decode(ch.Transport.Settings, &s); err != nil {
			return nil, errors.Wrapf(err, "invalid pull settings for channel %s", ch.Name)
		}
		endpoint := s.Endpoint
		if endpoint == "" {
			endpoint = channelURL(publicURL, ch.Name, "metadata")
		}
		if endpoint == "" {
			return nil, errors.Newf("channel %s: pull transport needs an endpoint or a public_url", ch.Name)
		}
		interval := time.Duration(s.IntervalSec) * time.Second
		zlog.Info().Msgf("channel %s: pull metadata from %s every %v", ch.Name, endpoint, orDefault(interval))
		return NewPullSource(endpoint, interval), nil

	case "push":
		var s PushSettings
		if err := mapstructure.Decode(ch.Transport.Settings, &s); err != nil {
			return nil, errors.Wrapf(err, "invalid push settings for channel %s", ch.Name)
		}
		endpoint := s.Endpoint
		if endpoint == "" {
			endpoint = channelURL(publicURL, ch.Name, "live")
		}
		if endpoint == "" {
			return nil, errors.Newf("channel %s: push transport needs an endpoint or a public_url", ch.Name)
		}
		zlog.Info().Msgf("channel %s: push metadata from %s", ch.Name, endpoint)
		return NewPushSource(endpoint), nil

	default:
		return nil, errors.Newf("unsupported transport type: %s (channel %s)", ch.Transport.Type, ch.Name)
	}
}

func channelURL(publicURL, channel, leaf string) string {
	if publicURL == "" {
		return ""
	}
	return strings.TrimSuffix(publicURL, "/") + "/" + channel + "/" + leaf
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPullInterval
	}
	return d
}
