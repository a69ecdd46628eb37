// Package audio plays a channel's compressed stream through the system
// speaker.
package audio

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"
)

const (
	speakerBuffer = 250 * time.Millisecond

	// Perceptual volume curve: the slider position is raised to this
	// exponent before mapping onto a dB range, so the low end of the
	// slider is actually usable.
	volumeCurveExponent = 0.5
	minVolumeDB         = -10.0
)

// Output implements the playback controller's audio transport on top of the
// beep speaker. One Output owns at most one live stream at a time.
type Output struct {
	streamURL string
	client    *http.Client

	mu       sync.Mutex
	ctrl     *beep.Ctrl
	volNode  *effects.Volume
	streamer beep.StreamSeekCloser
	done     chan error

	volume float64
	muted  bool
}

// NewOutput creates an audio output for one stream URL. The URL should point
// at the MP3 rendition; the lossless Ogg is left to clients that can afford
// it.
func NewOutput(streamURL string) *Output {
	return &Output{
		streamURL: streamURL,
		// No client timeout: the stream plays indefinitely.
		client: &http.Client{},
		done:   make(chan error, 1),
	}
}

// Start connects to the stream and begins playback. Any failure before
// audio is actually running is returned to the caller; the controller
// treats it as a rejected play attempt.
func (o *Output) Start(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.streamURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to connect to stream")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return errors.Newf("stream endpoint returned %d", resp.StatusCode)
	}

	streamer, format, err := mp3.Decode(resp.Body)
	if err != nil {
		resp.Body.Close()
		return errors.Wrap(err, "failed to decode stream")
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(speakerBuffer)); err != nil {
		streamer.Close()
		return errors.Wrap(err, "failed to initialize speaker")
	}

	o.mu.Lock()
	o.streamer = streamer
	o.ctrl = &beep.Ctrl{Streamer: streamer}
	o.volNode = &effects.Volume{
		Streamer: o.ctrl,
		Base:     2,
		Volume:   dbFor(o.volume),
		Silent:   o.muted || o.volume == 0,
	}
	o.done = make(chan error, 1)
	done := o.done
	node := o.volNode
	o.mu.Unlock()

	speaker.Play(beep.Seq(node, beep.Callback(func() {
		// Fires when the stream drains on its own: end of stream when the
		// decoder finished cleanly, transport error otherwise.
		select {
		case done <- streamer.Err():
		default:
		}
	})))

	zlog.Info().Msgf("audio: playing %s (%d Hz)", o.streamURL, format.SampleRate)
	return nil
}

// Pause suspends audio output without tearing the stream down.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctrl == nil {
		return
	}
	speaker.Lock()
	o.ctrl.Paused = true
	speaker.Unlock()
}

// Resume continues a paused stream.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ctrl == nil {
		return errors.New("no stream to resume")
	}
	speaker.Lock()
	o.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Stop tears the stream down. The Done channel does not fire for an
// explicit stop.
func (o *Output) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	speaker.Clear()
	if o.streamer != nil {
		if err := o.streamer.Close(); err != nil {
			zlog.Debug().Msgf("audio: close failed: %v", err)
		}
		o.streamer = nil
	}
	o.ctrl = nil
	o.volNode = nil
}

// SetVolume applies the slider position and mute flag. Mute silences the
// output without disturbing the applied volume position.
func (o *Output) SetVolume(volume float64, muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.volume = volume
	o.muted = muted
	if o.volNode == nil {
		return
	}
	speaker.Lock()
	o.volNode.Volume = dbFor(volume)
	o.volNode.Silent = muted || volume == 0
	speaker.Unlock()
}

// Done delivers one error when playback stops on its own.
func (o *Output) Done() <-chan error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// dbFor maps a slider position in [0,1] onto the beep volume exponent.
func dbFor(volume float64) float64 {
	if volume <= 0 {
		return minVolumeDB
	}
	if volume > 1 {
		volume = 1
	}
	return minVolumeDB * (1 - math.Pow(volume, volumeCurveExponent))
}
