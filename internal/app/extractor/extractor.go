// Package extractor keeps per-channel "now playing" metadata synchronized
// with the upstream relay by reading the Ogg byte stream itself and decoding
// the Vorbis comments carried in-band.
package extractor

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	zlog "github.com/rs/zerolog/log"

	"github.com/ruohki/krelez/internal/infra/vorbis"
)

// minUpdateGap rate-limits distinct metadata updates. Encoders repeat
// comment headers across pages; anything more frequent is noise.
const minUpdateGap = 5 * time.Second

// seenLimit caps the deduplication set before it is cleared wholesale.
const seenLimit = 100

var (
	metricUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krelez_metadata_updates_total",
		Help: "Distinct metadata updates accepted per channel.",
	}, []string{"channel"})
	metricReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krelez_stream_reconnects_total",
		Help: "Upstream stream reconnect attempts per channel.",
	}, []string{"channel"})
	metricSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "krelez_live_subscribers",
		Help: "Currently connected live metadata subscribers per channel.",
	}, []string{"channel"})
)

// Channel extracts and republishes metadata for one relay.
type Channel struct {
	name      string
	streamURL string
	client    *http.Client

	mu      sync.RWMutex
	current *vorbis.Metadata

	subsMu sync.RWMutex
	subs   map[string]chan vorbis.Metadata

	// Deduplication and pacing state, touched only by the run goroutine.
	seen     map[string]bool
	lastEmit time.Time
	hasFirst bool

	minBackoff time.Duration
	maxBackoff time.Duration

	now func() time.Time
}

// NewChannel creates the extractor for one channel.
func NewChannel(name, streamURL string) *Channel {
	return &Channel{
		name:      name,
		streamURL: streamURL,
		// Dial timeout only; the stream itself is read indefinitely.
		client: &http.Client{Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		}},
		subs:       make(map[string]chan vorbis.Metadata),
		seen:       make(map[string]bool),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		now:        time.Now,
	}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Run connects to the upstream stream and keeps reconnecting with bounded
// backoff until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.minBackoff
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := c.process(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > time.Minute {
			bo.Reset()
		}

		metricReconnects.WithLabelValues(c.name).Inc()
		wait := bo.NextBackOff()
		zlog.Warn().Msgf("channel %s: stream processor stopped, reconnecting: wait=%v err=%v", c.name, wait, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// process holds one upstream connection, scanning the byte stream for
// comment packets until the connection fails.
func (c *Channel) process(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.streamURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to connect to stream")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("stream endpoint returned %d", resp.StatusCode)
	}

	zlog.Info().Msgf("channel %s: connected to stream, listening for metadata", c.name)

	scanner := vorbis.NewScanner()
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, m := range scanner.Scan(buf[:n]) {
				c.consider(m)
			}
		}
		if err != nil {
			if err == io.EOF {
				return errors.New("stream ended")
			}
			return errors.Wrap(err, "failed to read stream chunk")
		}
	}
}

// consider accepts a decoded comment block if it is genuinely new and not
// arriving faster than the pacing gap. The very first block is always taken
// so listeners see something immediately.
func (c *Channel) consider(m *vorbis.Metadata) {
	display := m.Display()

	if !c.hasFirst {
		c.hasFirst = true
	} else {
		if c.seen[display] || c.now().Sub(c.lastEmit) < minUpdateGap {
			return
		}
	}

	c.seen[display] = true
	if len(c.seen) > seenLimit {
		c.seen = make(map[string]bool)
		c.seen[display] = true
	}
	c.lastEmit = c.now()

	c.Publish(*m)
}

// Publish records m as the channel's current metadata and notifies live
// subscribers. The stream processor calls this after deduplication and
// pacing; alternative feeds may call it directly.
func (c *Channel) Publish(m vorbis.Metadata) {
	zlog.Info().Msgf("channel %s: %s", c.name, m.Display())
	metricUpdates.WithLabelValues(c.name).Inc()

	c.mu.Lock()
	c.current = &m
	c.mu.Unlock()

	c.broadcast(m)
}

// Current returns the latest metadata, or false before the first block.
func (c *Channel) Current() (vorbis.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return vorbis.Metadata{}, false
	}
	return *c.current, true
}

// Subscribe registers a live metadata subscriber and returns its id and
// delivery channel. Slow subscribers lose updates rather than block the
// stream processor.
func (c *Channel) Subscribe() (string, <-chan vorbis.Metadata) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := uuid.New().String()
	ch := make(chan vorbis.Metadata, 8)
	c.subs[id] = ch
	metricSubscribers.WithLabelValues(c.name).Inc()
	return id, ch
}

// Unsubscribe removes a subscriber. Idempotent.
func (c *Channel) Unsubscribe(id string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if _, ok := c.subs[id]; !ok {
		return
	}
	delete(c.subs, id)
	metricSubscribers.WithLabelValues(c.name).Dec()
}

func (c *Channel) broadcast(m vorbis.Metadata) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for id, ch := range c.subs {
		select {
		case ch <- m:
		default:
			zlog.Debug().Msgf("channel %s: dropping update for slow subscriber %s", c.name, id)
		}
	}
}
