// Package track provides the Track domain entity.
package track

import "strings"

// idSeparator joins artist and title into a track identity. NUL cannot be
// typed into a tag editor, but upstream metadata is untrusted bytes, so any
// occurrence in either field is escaped before joining.
const idSeparator = "\x00"

// Track represents the artist/title pair currently broadcast on a channel.
// Tracks are immutable value objects; equality is identity-based via ID.
type Track struct {
	Artist string // Artist name as delivered by the upstream
	Title  string // Track title as delivered by the upstream
}

// escape protects the separator (and the escape character itself) inside a
// field so that ("A", "B\x00C") and ("A\x00B", "C") never collide.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, idSeparator, `\0`)
}

// ID returns the computed identity of the track. Identity is derived, never
// stored, so two tracks with the same fields are always the same track.
func (t Track) ID() string {
	return escape(t.Artist) + idSeparator + escape(t.Title)
}

// Equal reports whether two tracks have the same identity.
func (t Track) Equal(other Track) bool {
	return t.ID() == other.ID()
}

// IsZero reports whether the track carries no usable fields. A payload with
// neither artist nor title is not a valid track (channel temporarily off-air).
func (t Track) IsZero() bool {
	return t.Artist == "" && t.Title == ""
}

// Label returns the human-readable "Artist — Title" form. Either side may be
// absent on upstreams that only tag one field.
func (t Track) Label() string {
	switch {
	case t.Artist == "":
		return t.Title
	case t.Title == "":
		return t.Artist
	default:
		return t.Artist + " — " + t.Title
	}
}
