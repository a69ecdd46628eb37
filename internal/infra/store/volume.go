// Package store persists user preferences across player sessions.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// DefaultVolume is used when no stored value exists or the stored value is
// unusable. Matches what listeners expect from a fresh install.
const DefaultVolume = 0.7

// VolumeStore keeps a per-channel volume setting in a small JSON file.
// Concurrent writers (two player processes) are last-write-wins; volume is a
// preference, not correctness-critical state.
type VolumeStore struct {
	mu      sync.Mutex
	path    string
	volumes map[string]float64
}

// NewVolumeStore opens the store at path, loading any existing file.
// A missing or corrupt file is not an error; it just means defaults.
func NewVolumeStore(path string) *VolumeStore {
	s := &VolumeStore{path: path, volumes: make(map[string]float64)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zlog.Warn().Msgf("volume store unreadable, starting fresh: %v", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.volumes); err != nil {
		zlog.Warn().Msgf("volume store corrupt, starting fresh: %v", err)
		s.volumes = make(map[string]float64)
	}
	return s
}

// Volume returns the stored volume for a channel, or DefaultVolume when the
// channel has no usable stored value.
func (s *VolumeStore) Volume(channel string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.volumes[channel]
	if !ok || v < 0 || v > 1 {
		return DefaultVolume
	}
	return v
}

// SetVolume stores the volume for a channel and writes the file immediately.
// Values are clamped to [0,1].
func (s *VolumeStore) SetVolume(channel string, volume float64) error {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.volumes[channel] = volume
	return s.flushLocked()
}

// flushLocked writes the file via a temp file and rename so a crash mid-write
// never leaves a truncated store behind.
func (s *VolumeStore) flushLocked() error {
	data, err := json.MarshalIndent(s.volumes, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode volume store")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "failed to create volume store directory")
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write volume store")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "failed to replace volume store")
	}
	return nil
}
