// Package presenter derives UI-observable state from a playback snapshot.
package presenter

import (
	"fmt"
	"unicode/utf8"

	"github.com/ruohki/krelez/internal/app/player"
)

// LoadingLabel is shown until the first successful metadata fetch. Under
// prolonged upstream unavailability it simply stays, which is the intended
// behavior rather than an error state.
const LoadingLabel = "Loading..."

// DefaultLabelWidth is the display width beyond which a label scrolls.
const DefaultLabelWidth = 48

// View is the consumer contract the engine satisfies: what a display renders
// for one channel.
type View struct {
	Status  string
	Label   string
	Marquee bool // Label exceeds the display width and should scroll
	Elapsed string
	Volume  float64
	Muted   bool
	History []string
}

// Render derives a View from a playback snapshot. width <= 0 uses
// DefaultLabelWidth.
func Render(snap player.Snapshot, width int) View {
	if width <= 0 {
		width = DefaultLabelWidth
	}

	label := LoadingLabel
	marquee := false
	if snap.CurrentTrack != nil {
		label = snap.CurrentTrack.Label()
		marquee = utf8.RuneCountInString(label) > width
	}

	hist := make([]string, 0, len(snap.History))
	for _, e := range snap.History {
		hist = append(hist, e.Track.Label())
	}

	return View{
		Status:  snap.Status.String(),
		Label:   label,
		Marquee: marquee,
		Elapsed: formatElapsed(snap.ElapsedSeconds),
		Volume:  snap.Volume,
		Muted:   snap.Muted,
		History: hist,
	}
}

// formatElapsed renders seconds as m:ss, growing to h:mm:ss past an hour.
func formatElapsed(seconds int) string {
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
