// Package player provides playback control for one channel, keeping the
// audio transport and the metadata subscription in lockstep.
package player

// Status represents the playback status.
type Status int

const (
	StatusIdle    Status = iota // No audio playing
	StatusPlaying               // Audio playing, metadata subscription live
	StatusPaused                // Audio paused, elapsed time preserved
	StatusErrored               // Transient: output ended or failed, about to reset to idle
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}
