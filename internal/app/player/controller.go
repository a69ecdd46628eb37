package player

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/ruohki/krelez/internal/app/metadata"
	"github.com/ruohki/krelez/internal/domain/history"
	"github.com/ruohki/krelez/internal/domain/track"
	"github.com/ruohki/krelez/internal/infra/store"
)

// Output is the real, fallible audio transport. Start and Resume block until
// the transport has accepted or rejected playback; Done delivers one error
// when output later stops on its own (nil at end of stream).
type Output interface {
	Start(ctx context.Context) error
	Pause()
	Resume() error
	Stop()
	SetVolume(volume float64, muted bool)
	Done() <-chan error
}

// Snapshot is the externally observable state of a controller.
type Snapshot struct {
	Status         Status
	Volume         float64
	Muted          bool
	ElapsedSeconds int
	CurrentTrack   *track.Track
	History        []history.Entry
}

// Controller owns play/pause/mute/volume for one channel and gates the
// metadata subscription: a channel polls or holds a push stream open only
// while its audio is actually playing. Two channels are fully independent
// controller instances with no shared state beyond the volume store.
type Controller struct {
	mu sync.Mutex

	channel string
	output  Output
	source  metadata.Source
	ledger  *history.Ledger
	volumes *store.VolumeStore

	status  Status
	volume  float64
	muted   bool
	elapsed int

	currentTrack *track.Track
	lastID       string

	// handle is non-nil iff status == Playing.
	handle      *metadata.Handle
	tickCancel  func()
	watchCancel func()

	tickEvery time.Duration
	now       func() time.Time

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller for one channel. The initial volume is
// read from the store (0.7 when nothing usable is stored).
func NewController(channel string, output Output, source metadata.Source, volumes *store.VolumeStore, historySize int) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		channel:   channel,
		output:    output,
		source:    source,
		ledger:    history.NewLedger(historySize),
		volumes:   volumes,
		status:    StatusIdle,
		volume:    volumes.Volume(channel),
		tickEvery: time.Second,
		now:       time.Now,
		eventCh:   make(chan Event, 16),
		ctx:       ctx,
		cancel:    cancel,
	}
	output.SetVolume(c.volume, c.muted)
	return c
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// Play starts or resumes playback. Transport rejection (blocked autoplay,
// unreachable stream) is logged and surfaced as an event, never returned:
// the user simply sees audio not start and may try again.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusPlaying:
		return
	case StatusPaused:
		c.resumeLocked()
	default:
		c.startLocked()
	}
}

// Pause pauses playback, releases the metadata subscription, and preserves
// elapsed time and the current track and history.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPlaying {
		return
	}

	c.output.Pause()
	c.releaseSubscriptionLocked()
	c.stopTickerLocked()
	c.status = StatusPaused
	c.sendEventLocked(Event{Type: EventStateChanged, Status: c.status, Track: c.currentTrack})
}

// SetVolume updates and persists the channel volume. Valid in any state.
func (c *Controller) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.volume = v
	c.output.SetVolume(c.volume, c.muted)
	if err := c.volumes.SetVolume(c.channel, v); err != nil {
		zlog.Warn().Msgf("channel %s: failed to persist volume: %v", c.channel, err)
	}
}

// ToggleMute flips mute. Mute is an output multiplier only; the stored
// volume value is never rewritten by muting.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.muted = !c.muted
	c.output.SetVolume(c.volume, c.muted)
}

// Snapshot returns the externally observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tr *track.Track
	if c.currentTrack != nil {
		cp := *c.currentTrack
		tr = &cp
	}
	return Snapshot{
		Status:         c.status,
		Volume:         c.volume,
		Muted:          c.muted,
		ElapsedSeconds: c.elapsed,
		CurrentTrack:   tr,
		History:        c.ledger.Entries(),
	}
}

// Close stops playback and releases all resources.
func (c *Controller) Close() {
	c.mu.Lock()
	c.releaseSubscriptionLocked()
	c.stopTickerLocked()
	c.stopWatcherLocked()
	if c.status == StatusPlaying || c.status == StatusPaused {
		c.output.Stop()
	}
	c.status = StatusIdle
	c.mu.Unlock()

	c.cancel()
	close(c.eventCh)
}

// startLocked drives Idle → Playing. The transition is optimistic then
// corrected: the state does not become Playing until the transport has
// confirmed the start.
func (c *Controller) startLocked() {
	if err := c.output.Start(c.ctx); err != nil {
		zlog.Warn().Msgf("channel %s: playback rejected: %v", c.channel, err)
		c.status = StatusIdle
		c.sendEventLocked(Event{Type: EventPlaybackRejected, Status: c.status, Track: c.currentTrack})
		return
	}

	c.status = StatusPlaying
	c.subscribeLocked()
	c.startTickerLocked()
	c.startWatcherLocked()
	c.sendEventLocked(Event{Type: EventStateChanged, Status: c.status, Track: c.currentTrack})
}

// resumeLocked drives Paused → Playing with a fresh metadata subscription;
// pull timers restart their cadence from zero and push streams reopen.
// On rejection the controller stays Paused with elapsed time intact.
func (c *Controller) resumeLocked() {
	if err := c.output.Resume(); err != nil {
		zlog.Warn().Msgf("channel %s: resume rejected: %v", c.channel, err)
		c.sendEventLocked(Event{Type: EventPlaybackRejected, Status: c.status, Track: c.currentTrack})
		return
	}

	c.status = StatusPlaying
	c.subscribeLocked()
	c.startTickerLocked()
	c.sendEventLocked(Event{Type: EventStateChanged, Status: c.status, Track: c.currentTrack})
}

// onOutputDone handles the transport terminating on its own, from end of
// stream or a transport error. Elapsed time resets and the subscription is
// released, but the last-known track and history stay visible until a new
// play cycle overwrites them. Errored is transient; the controller signals
// it and settles in Idle, ready for another manual play attempt.
func (c *Controller) onOutputDone(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusPlaying && c.status != StatusPaused {
		return
	}

	if err != nil {
		zlog.Warn().Msgf("channel %s: playback failed: %v", c.channel, err)
	} else {
		zlog.Info().Msgf("channel %s: stream ended", c.channel)
	}

	c.releaseSubscriptionLocked()
	c.stopTickerLocked()
	c.stopWatcherLocked()
	c.output.Stop()
	c.elapsed = 0

	c.status = StatusErrored
	c.sendEventLocked(Event{Type: EventPlaybackStopped, Status: c.status, Track: c.currentTrack})
	c.status = StatusIdle
	c.sendEventLocked(Event{Type: EventStateChanged, Status: c.status, Track: c.currentTrack})
}

// onMetadata receives deliveries from the live subscription. Records from a
// stale handle are discarded by identity so a late response can never
// corrupt the state of a subscription started afterwards.
func (c *Controller) onMetadata(h *metadata.Handle, raw metadata.RawMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle == nil || c.handle.ID() != h.ID() {
		return
	}

	d := metadata.Detect(raw, c.lastID)
	if !d.Changed {
		return
	}

	if c.currentTrack != nil {
		c.ledger.Record(*c.currentTrack, c.now())
	}
	tr := d.Track
	c.currentTrack = &tr
	c.lastID = d.ID

	zlog.Info().Msgf("channel %s: now playing: %s", c.channel, tr.Label())
	c.sendEventLocked(Event{Type: EventTrackChanged, Status: c.status, Track: c.currentTrack})
}

func (c *Controller) subscribeLocked() {
	h, err := c.source.Subscribe(c.ctx, c.onMetadata)
	if err != nil {
		// Metadata failures never take playback down; audio keeps playing
		// with the last-known (or loading) display.
		zlog.Warn().Msgf("channel %s: metadata subscribe failed: %v", c.channel, err)
		return
	}
	c.handle = h
}

func (c *Controller) releaseSubscriptionLocked() {
	if c.handle == nil {
		return
	}
	c.source.Unsubscribe(c.handle)
	c.handle = nil
}

// startTickerLocked runs the per-second elapsed counter. The goroutine is
// cancelled on pause and on terminal transitions, not merely skipped.
func (c *Controller) startTickerLocked() {
	c.stopTickerLocked()

	ctx, cancel := context.WithCancel(c.ctx)
	c.tickCancel = cancel

	go func() {
		ticker := time.NewTicker(c.tickEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.tick()
			}
		}
	}()
}

func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusPlaying {
		c.elapsed++
	}
}

func (c *Controller) stopTickerLocked() {
	if c.tickCancel != nil {
		c.tickCancel()
		c.tickCancel = nil
	}
}

// startWatcherLocked watches the output's Done channel for the lifetime of
// one play cycle, across pause and resume.
func (c *Controller) startWatcherLocked() {
	c.stopWatcherLocked()

	ctx, cancel := context.WithCancel(c.ctx)
	c.watchCancel = cancel

	done := c.output.Done()
	go func() {
		select {
		case <-ctx.Done():
		case err := <-done:
			c.onOutputDone(err)
		}
	}()
}

func (c *Controller) stopWatcherLocked() {
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
}

// sendEventLocked sends an event without blocking.
func (c *Controller) sendEventLocked(e Event) {
	select {
	case c.eventCh <- e:
	case <-c.ctx.Done():
	default:
	}
}
