// Package metadata discovers the current track for a channel over pull
// polling or push subscription and detects track changes.
package metadata

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// RawMetadata is one metadata record as delivered by either transport.
// Extra upstream fields are ignored; only artist and title matter here.
type RawMetadata struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// Handler receives metadata deliveries for a subscription. It is called from
// the source's own goroutine; receivers that share state with other
// goroutines must guard it themselves.
type Handler func(h *Handle, raw RawMetadata)

// Source abstracts "get current track" over the two transports. The rest of
// the engine never knows which transport a channel uses.
type Source interface {
	// Subscribe starts delivering metadata records until the handle is
	// unsubscribed or ctx is cancelled.
	Subscribe(ctx context.Context, deliver Handler) (*Handle, error)
	// Unsubscribe releases the subscription. Idempotent; no deliveries are
	// made for a handle once Unsubscribe has returned.
	Unsubscribe(h *Handle)
}

// Handle identifies one live subscription. Deliveries carry their handle so
// a receiver can discard late records from a stale subscription by comparing
// identity rather than a boolean.
type Handle struct {
	id     string
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewHandle creates a subscription handle. Used by source implementations
// and by test doubles standing in for a source.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{id: uuid.New().String(), cancel: cancel}
}

// ID returns the unique subscription identifier.
func (h *Handle) ID() string {
	return h.id
}

// Closed reports whether the handle has been released.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

func (h *Handle) close() {
	h.closed.Store(true)
	h.cancel()
}

// send invokes deliver unless the handle was released. Sources call this
// instead of the handler directly so a racing Unsubscribe wins.
func (h *Handle) send(deliver Handler, raw RawMetadata) {
	if h.Closed() {
		return
	}
	deliver(h, raw)
}
