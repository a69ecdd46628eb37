package player

import "github.com/ruohki/krelez/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventStateChanged      EventType = iota // Playback status changed
	EventTrackChanged                       // A genuinely new track became current
	EventPlaybackRejected                   // The audio transport refused to start or resume
	EventPlaybackStopped                    // Output ended or failed on its own
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStateChanged:
		return "state_changed"
	case EventTrackChanged:
		return "track_changed"
	case EventPlaybackRejected:
		return "playback_rejected"
	case EventPlaybackStopped:
		return "playback_stopped"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	Status Status
	Track  *track.Track // Current track (nil until first metadata)
}
