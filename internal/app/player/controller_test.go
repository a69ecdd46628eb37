package player

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruohki/krelez/internal/app/metadata"
	"github.com/ruohki/krelez/internal/infra/store"
)

// fakeOutput is a scriptable audio transport.
type fakeOutput struct {
	mu        sync.Mutex
	startErr  error
	resumeErr error
	started   int
	paused    int
	resumed   int
	stopped   int
	volume    float64
	muted     bool
	done      chan error
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{done: make(chan error, 1)}
}

func (o *fakeOutput) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startErr != nil {
		return o.startErr
	}
	o.started++
	return nil
}

func (o *fakeOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused++
}

func (o *fakeOutput) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resumeErr != nil {
		return o.resumeErr
	}
	o.resumed++
	return nil
}

func (o *fakeOutput) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped++
}

func (o *fakeOutput) SetVolume(volume float64, muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = volume
	o.muted = muted
}

func (o *fakeOutput) Done() <-chan error { return o.done }

func (o *fakeOutput) effectiveVolume() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume, o.muted
}

// fakeSource hands deliveries to whatever handle is currently subscribed and
// remembers every handle it issued so tests can replay stale deliveries.
type fakeSource struct {
	mu      sync.Mutex
	deliver metadata.Handler
	handles []*metadata.Handle
	live    map[string]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{live: make(map[string]bool)}
}

func (s *fakeSource) Subscribe(ctx context.Context, deliver metadata.Handler) (*metadata.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, cancel := context.WithCancel(ctx)
	h := metadata.NewHandle(cancel)
	s.deliver = deliver
	s.handles = append(s.handles, h)
	s.live[h.ID()] = true
	return h, nil
}

func (s *fakeSource) Unsubscribe(h *metadata.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h != nil {
		s.live[h.ID()] = false
	}
}

// emit delivers a payload attributed to the given handle.
func (s *fakeSource) emit(h *metadata.Handle, raw metadata.RawMetadata) {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()
	deliver(h, raw)
}

func (s *fakeSource) latest() *metadata.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[len(s.handles)-1]
}

func (s *fakeSource) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, alive := range s.live {
		if alive {
			n++
		}
	}
	return n
}

func newTestController(t *testing.T) (*Controller, *fakeOutput, *fakeSource) {
	t.Helper()
	out := newFakeOutput()
	src := newFakeSource()
	volumes := store.NewVolumeStore(filepath.Join(t.TempDir(), "volume.json"))
	c := NewController("vapor", out, src, volumes, 3)
	t.Cleanup(c.Close)
	return c, out, src
}

func TestController_PlayPauseResume(t *testing.T) {
	c, out, src := newTestController(t)

	assert.Equal(t, StatusIdle, c.Snapshot().Status)

	c.Play()
	assert.Equal(t, StatusPlaying, c.Snapshot().Status)
	assert.Equal(t, 1, src.liveCount())

	c.Pause()
	assert.Equal(t, StatusPaused, c.Snapshot().Status)
	assert.Equal(t, 0, src.liveCount())

	c.Play()
	assert.Equal(t, StatusPlaying, c.Snapshot().Status)
	assert.Equal(t, 1, src.liveCount())

	out.mu.Lock()
	assert.Equal(t, 1, out.started)
	assert.Equal(t, 1, out.paused)
	assert.Equal(t, 1, out.resumed)
	out.mu.Unlock()
}

func TestController_PlayRejected(t *testing.T) {
	c, out, src := newTestController(t)
	out.startErr = errors.New("autoplay blocked")

	c.Play()

	// Rejection falls back to Idle; no subscription was created.
	assert.Equal(t, StatusIdle, c.Snapshot().Status)
	assert.Equal(t, 0, src.liveCount())
}

func TestController_PausePreservesElapsed(t *testing.T) {
	c, _, _ := newTestController(t)

	c.Play()
	for i := 0; i < 42; i++ {
		c.tick()
	}
	assert.Equal(t, 42, c.Snapshot().ElapsedSeconds)

	c.Pause()
	assert.Equal(t, 42, c.Snapshot().ElapsedSeconds)

	// Ticks while paused do not advance the counter.
	c.tick()
	assert.Equal(t, 42, c.Snapshot().ElapsedSeconds)

	c.Play()
	c.tick()
	assert.Equal(t, 43, c.Snapshot().ElapsedSeconds)
}

func TestController_TrackChangeAndHistory(t *testing.T) {
	c, _, src := newTestController(t)

	c.Play()
	h := src.latest()

	// First payload only sets the current track; nothing is archived yet.
	src.emit(h, metadata.RawMetadata{Artist: "A", Title: "X"})
	snap := c.Snapshot()
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "X", snap.CurrentTrack.Title)
	assert.Empty(t, snap.History)

	// The duplicate payload the pull transport resends every tick.
	src.emit(h, metadata.RawMetadata{Artist: "A", Title: "X"})
	assert.Empty(t, c.Snapshot().History)

	src.emit(h, metadata.RawMetadata{Artist: "A", Title: "Y"})
	snap = c.Snapshot()
	assert.Equal(t, "Y", snap.CurrentTrack.Title)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "X", snap.History[0].Track.Title)

	// History keeps only the three most recently superseded tracks.
	for _, title := range []string{"Z", "W", "V"} {
		src.emit(h, metadata.RawMetadata{Artist: "A", Title: title})
	}
	snap = c.Snapshot()
	require.Len(t, snap.History, 3)
	assert.Equal(t, "W", snap.History[0].Track.Title)
	assert.Equal(t, "Z", snap.History[1].Track.Title)
	assert.Equal(t, "Y", snap.History[2].Track.Title)
}

func TestController_StaleHandleDiscarded(t *testing.T) {
	c, _, src := newTestController(t)

	c.Play()
	h1 := src.latest()
	src.emit(h1, metadata.RawMetadata{Artist: "A", Title: "X"})

	c.Pause()
	c.Play()
	h2 := src.latest()
	require.NotEqual(t, h1.ID(), h2.ID())

	// A late response from the stale handle must not mutate state.
	src.emit(h1, metadata.RawMetadata{Artist: "A", Title: "STALE"})
	assert.Equal(t, "X", c.Snapshot().CurrentTrack.Title)
	assert.Empty(t, c.Snapshot().History)

	src.emit(h2, metadata.RawMetadata{Artist: "A", Title: "Y"})
	assert.Equal(t, "Y", c.Snapshot().CurrentTrack.Title)
}

func TestController_OutputEndResetsElapsedKeepsTrack(t *testing.T) {
	c, out, src := newTestController(t)

	c.Play()
	h := src.latest()
	src.emit(h, metadata.RawMetadata{Artist: "A", Title: "X"})
	src.emit(h, metadata.RawMetadata{Artist: "A", Title: "Y"})
	for i := 0; i < 10; i++ {
		c.tick()
	}

	out.done <- errors.New("stream stalled")

	waitForStatus(t, c, StatusIdle)
	snap := c.Snapshot()
	assert.Equal(t, 0, snap.ElapsedSeconds)
	assert.Equal(t, 0, src.liveCount())

	// Last-known track and history stay visible.
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "Y", snap.CurrentTrack.Title)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "X", snap.History[0].Track.Title)
}

func TestController_MuteNeverRewritesStoredVolume(t *testing.T) {
	out := newFakeOutput()
	src := newFakeSource()
	path := filepath.Join(t.TempDir(), "volume.json")
	volumes := store.NewVolumeStore(path)
	c := NewController("vapor", out, src, volumes, 3)
	defer c.Close()

	c.SetVolume(0.4)
	c.ToggleMute()
	v, muted := out.effectiveVolume()
	assert.Equal(t, 0.4, v)
	assert.True(t, muted)

	c.ToggleMute()
	v, muted = out.effectiveVolume()
	assert.Equal(t, 0.4, v)
	assert.False(t, muted)

	// The persisted value was untouched by the mute round trip.
	assert.Equal(t, 0.4, store.NewVolumeStore(path).Volume("vapor"))
}

func TestController_VolumeSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.json")

	c1 := NewController("vapor", newFakeOutput(), newFakeSource(), store.NewVolumeStore(path), 3)
	c1.SetVolume(0.25)
	c1.Close()

	c2 := NewController("vapor", newFakeOutput(), newFakeSource(), store.NewVolumeStore(path), 3)
	defer c2.Close()
	assert.Equal(t, 0.25, c2.Snapshot().Volume)
}

func TestController_DefaultVolume(t *testing.T) {
	c, _, _ := newTestController(t)
	assert.Equal(t, store.DefaultVolume, c.Snapshot().Volume)
}

func waitForStatus(t *testing.T, c *Controller, want Status) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Snapshot().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller never reached status %v (got %v)", want, c.Snapshot().Status)
}
