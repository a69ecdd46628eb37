package extractor

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruohki/krelez/internal/infra/vorbis"
)

func commentPacket(comments ...string) []byte {
	buf := []byte{0x03}
	buf = append(buf, []byte("vorbis")...)
	vendor := "krelez test"
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vendor)))
	buf = append(buf, vendor...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(comments)))
	for _, c := range comments {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(c)))
		buf = append(buf, c...)
	}
	return buf
}

func metadataFor(comments ...string) *vorbis.Metadata {
	s := vorbis.NewScanner()
	found := s.Scan(commentPacket(comments...))
	if len(found) == 0 {
		panic("test packet did not decode")
	}
	return found[0]
}

func TestChannel_ConsiderFirstBlockImmediately(t *testing.T) {
	c := NewChannel("vapor", "http://unused")

	c.consider(metadataFor("ARTIST=A", "TITLE=X"))

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "X", cur.Title)
}

func TestChannel_ConsiderDeduplicates(t *testing.T) {
	c := NewChannel("vapor", "http://unused")
	clock := time.Now()
	c.now = func() time.Time { return clock }

	_, updates := c.Subscribe()

	c.consider(metadataFor("ARTIST=A", "TITLE=X"))
	clock = clock.Add(time.Minute)
	// Encoders repeat the same comment block across pages.
	c.consider(metadataFor("ARTIST=A", "TITLE=X"))
	clock = clock.Add(time.Minute)
	c.consider(metadataFor("ARTIST=A", "TITLE=Y"))

	assert.Len(t, updates, 2)
	first := <-updates
	second := <-updates
	assert.Equal(t, "X", first.Title)
	assert.Equal(t, "Y", second.Title)
}

func TestChannel_ConsiderRateLimited(t *testing.T) {
	c := NewChannel("vapor", "http://unused")
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.consider(metadataFor("ARTIST=A", "TITLE=X"))
	clock = clock.Add(time.Second)
	c.consider(metadataFor("ARTIST=A", "TITLE=Y"))

	// The second distinct block arrived under the pacing gap and is held back.
	cur, _ := c.Current()
	assert.Equal(t, "X", cur.Title)

	clock = clock.Add(10 * time.Second)
	c.consider(metadataFor("ARTIST=A", "TITLE=Y"))
	cur, _ = c.Current()
	assert.Equal(t, "Y", cur.Title)
}

func TestChannel_SubscribeUnsubscribe(t *testing.T) {
	c := NewChannel("vapor", "http://unused")

	id, updates := c.Subscribe()
	c.consider(metadataFor("ARTIST=A", "TITLE=X"))
	assert.Len(t, updates, 1)

	c.Unsubscribe(id)
	c.Unsubscribe(id) // idempotent

	clock := time.Now().Add(time.Minute)
	c.now = func() time.Time { return clock }
	c.consider(metadataFor("ARTIST=A", "TITLE=Y"))
	assert.Len(t, updates, 1)
}

func TestChannel_ProcessReadsStream(t *testing.T) {
	pkt := commentPacket("ARTIST=Macross 82-99", "TITLE=Horsey")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/ogg")
		// Interleave audio-ish bytes around the comment packet.
		w.Write(make([]byte, 512))
		w.Write(pkt)
		w.Write(make([]byte, 512))
	}))
	defer server.Close()

	c := NewChannel("vapor", server.URL)

	// The connection ends after the body, so process returns an error; the
	// metadata must have been captured regardless.
	err := c.process(context.Background())
	require.Error(t, err)

	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "Horsey", cur.Title)
	assert.Equal(t, "Macross 82-99", cur.Artist)
}

func TestChannel_ProcessUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewChannel("vapor", server.URL)
	assert.Error(t, c.process(context.Background()))
}
