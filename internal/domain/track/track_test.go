package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrack_ID(t *testing.T) {
	tests := []struct {
		name string
		a    Track
		b    Track
		same bool
	}{
		{
			name: "identical fields",
			a:    Track{Artist: "Macross 82-99", Title: "Horsey"},
			b:    Track{Artist: "Macross 82-99", Title: "Horsey"},
			same: true,
		},
		{
			name: "different title",
			a:    Track{Artist: "Macross 82-99", Title: "Horsey"},
			b:    Track{Artist: "Macross 82-99", Title: "Fun Tonight"},
			same: false,
		},
		{
			name: "shifted field boundary",
			a:    Track{Artist: "A", Title: "BC"},
			b:    Track{Artist: "AB", Title: "C"},
			same: false,
		},
		{
			name: "separator inside a field",
			a:    Track{Artist: "A\x00B", Title: "C"},
			b:    Track{Artist: "A", Title: "B\x00C"},
			same: false,
		},
		{
			name: "escape character inside a field",
			a:    Track{Artist: `A\`, Title: "B"},
			b:    Track{Artist: "A", Title: `\B`},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.same {
				assert.Equal(t, tt.a.ID(), tt.b.ID())
				assert.True(t, tt.a.Equal(tt.b))
			} else {
				assert.NotEqual(t, tt.a.ID(), tt.b.ID())
				assert.False(t, tt.a.Equal(tt.b))
			}
		})
	}
}

func TestTrack_IsZero(t *testing.T) {
	assert.True(t, Track{}.IsZero())
	assert.False(t, Track{Title: "Horsey"}.IsZero())
	assert.False(t, Track{Artist: "Macross 82-99"}.IsZero())
}

func TestTrack_Label(t *testing.T) {
	assert.Equal(t, "Macross 82-99 — Horsey", Track{Artist: "Macross 82-99", Title: "Horsey"}.Label())
	assert.Equal(t, "Horsey", Track{Title: "Horsey"}.Label())
	assert.Equal(t, "Macross 82-99", Track{Artist: "Macross 82-99"}.Label())
}
