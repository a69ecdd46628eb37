// Package vorbis extracts Vorbis comment metadata from a raw Ogg byte stream.
//
// Icecast relays carry track tags in-band as Vorbis comment packets. The
// scanner keeps a small rolling window over the stream and yields every
// comment block it can decode; callers deduplicate across windows.
package vorbis

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"
	"time"
)

// maxBuffer bounds the rolling window. Comment packets sit near page
// boundaries, so a 16 KiB tail is enough to never split one.
const maxBuffer = 16 * 1024

// Comment packet markers: packet type byte (1 = identification-adjacent
// initial comments, 3 = comment header) followed by the "vorbis" magic.
var markers = [][]byte{
	{0x01, 'v', 'o', 'r', 'b', 'i', 's'},
	{0x03, 'v', 'o', 'r', 'b', 'i', 's'},
}

// Metadata is one decoded Vorbis comment block.
type Metadata struct {
	Title      string            `json:"title"`
	Artist     string            `json:"artist,omitempty"`
	Album      string            `json:"album,omitempty"`
	Genre      string            `json:"genre,omitempty"`
	Other      map[string]string `json:"other,omitempty"`
	LastUpdate int64             `json:"last_update"` // Unix milliseconds
}

// Complete reports whether the block carries enough to display. Blocks with
// neither a title nor an artist are vendor-only headers and are skipped.
func (m *Metadata) Complete() bool {
	return m.Title != "" || m.Artist != ""
}

// Display renders the block as a stable single-line string. Used both for
// logging and as the deduplication key across scanner windows.
func (m *Metadata) Display() string {
	var parts []string
	if m.Artist != "" {
		parts = append(parts, "Artist: "+strings.TrimSpace(m.Artist))
	}
	if m.Title != "" {
		parts = append(parts, "Title: "+strings.TrimSpace(m.Title))
	}
	if m.Album != "" {
		parts = append(parts, "Album: "+strings.TrimSpace(m.Album))
	}
	if m.Genre != "" {
		parts = append(parts, "Genre: "+strings.TrimSpace(m.Genre))
	}
	keys := make([]string, 0, len(m.Other))
	for k := range m.Other {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+": "+strings.TrimSpace(m.Other[k]))
	}
	return strings.Join(parts, " | ")
}

func (m *Metadata) apply(key, value string) {
	switch strings.ToLower(key) {
	case "artist":
		m.Artist = value
	case "title":
		m.Title = value
	case "album":
		m.Album = value
	case "genre":
		m.Genre = value
	default:
		if m.Other == nil {
			m.Other = make(map[string]string)
		}
		m.Other[key] = value
	}
}

// Scanner accumulates stream chunks and decodes comment blocks from them.
// Not safe for concurrent use.
type Scanner struct {
	buf []byte
	now func() time.Time
}

// NewScanner creates a scanner.
func NewScanner() *Scanner {
	return &Scanner{now: time.Now}
}

// Scan appends a chunk and returns every complete comment block currently
// decodable from the window. The same block can be returned again on the
// next chunk until it slides out of the window; callers dedupe by Display.
func (s *Scanner) Scan(chunk []byte) []*Metadata {
	s.buf = append(s.buf, chunk...)

	var found []*Metadata
	for _, pos := range commentStarts(s.buf) {
		if m := parseComments(s.buf[pos:], s.now); m != nil && m.Complete() {
			found = append(found, m)
		}
	}

	if len(s.buf) > maxBuffer {
		s.buf = append([]byte(nil), s.buf[len(s.buf)-maxBuffer:]...)
	}

	return found
}

// commentStarts returns offsets just past the packet type byte for every
// comment marker in buf.
func commentStarts(buf []byte) []int {
	var positions []int
	for _, pat := range markers {
		start := 0
		for {
			i := bytes.Index(buf[start:], pat)
			if i < 0 {
				break
			}
			abs := start + i + 1 // skip the packet type byte
			positions = append(positions, abs)
			start = abs
		}
	}
	return positions
}

// parseComments decodes a comment block starting at the "vorbis" magic:
// vendor string, then a little-endian u32 count of length-prefixed
// "key=value" comments. Returns nil on any truncation.
func parseComments(in []byte, now func() time.Time) *Metadata {
	in, ok := expect(in, []byte("vorbis"))
	if !ok {
		return nil
	}

	// Vendor string is length-prefixed like a comment, value discarded.
	in, _, ok = readString(in)
	if !ok {
		return nil
	}

	in, count, ok := readU32(in)
	if !ok {
		return nil
	}

	m := &Metadata{LastUpdate: now().UnixMilli()}
	applied := false
	for i := uint32(0); i < count; i++ {
		var raw string
		in, raw, ok = readString(in)
		if !ok {
			break
		}
		key, value, split := strings.Cut(raw, "=")
		if !split {
			continue
		}
		m.apply(strings.TrimSpace(key), strings.TrimSpace(value))
		applied = true
	}

	if !applied {
		return nil
	}
	return m
}

func expect(in, prefix []byte) ([]byte, bool) {
	if !bytes.HasPrefix(in, prefix) {
		return in, false
	}
	return in[len(prefix):], true
}

func readU32(in []byte) ([]byte, uint32, bool) {
	if len(in) < 4 {
		return in, 0, false
	}
	return in[4:], binary.LittleEndian.Uint32(in), true
}

func readString(in []byte) ([]byte, string, bool) {
	in, n, ok := readU32(in)
	if !ok || uint32(len(in)) < n {
		return in, "", false
	}
	return in[n:], string(in[:n]), true
}
