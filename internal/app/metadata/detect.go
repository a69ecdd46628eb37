package metadata

import "github.com/ruohki/krelez/internal/domain/track"

// Detection is the outcome of comparing a raw payload against the last
// known track identity.
type Detection struct {
	Changed bool
	Track   track.Track
	ID      string
}

// Detect decides whether raw represents a new track versus a repeat of the
// one identified by lastID. A payload lacking both artist and title is not a
// valid track and never counts as a change; this guards against upstream
// payloads for channels temporarily off-air. Comparison is by computed track
// identity only, so byte-identical repeats resent every poll tick are never
// treated as new plays.
func Detect(raw RawMetadata, lastID string) Detection {
	tr := track.Track{Artist: raw.Artist, Title: raw.Title}
	if tr.IsZero() {
		return Detection{}
	}

	id := tr.ID()
	if id == lastID {
		return Detection{Changed: false, Track: tr, ID: id}
	}
	return Detection{Changed: true, Track: tr, ID: id}
}
