package metadata

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// PushSource holds one long-lived text/event-stream connection per
// subscription. A dropped connection is reopened by the source itself with
// bounded exponential backoff, so a flaky relay never silently stops updates
// for the rest of a listening session.
type PushSource struct {
	endpoint   string
	httpClient *http.Client
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewPushSource creates a push source for one channel endpoint.
func NewPushSource(endpoint string) *PushSource {
	// No overall client timeout: the event stream is meant to stay open.
	return &PushSource{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Subscribe opens the event stream and delivers each inbound message until
// the handle is unsubscribed. Per-message parse failures are logged and
// ignored; the stream stays open.
func (s *PushSource) Subscribe(ctx context.Context, deliver Handler) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := NewHandle(cancel)

	go s.run(ctx, h, deliver)

	return h, nil
}

// Unsubscribe closes the event stream. Idempotent.
func (s *PushSource) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.close()
}

func (s *PushSource) run(ctx context.Context, h *Handle, deliver Handler) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.minBackoff
	bo.MaxInterval = s.maxBackoff
	bo.MaxElapsedTime = 0 // retry for as long as the subscription lives

	for {
		started := time.Now()
		err := s.consume(ctx, h, deliver)
		if ctx.Err() != nil {
			return
		}
		// A connection that held for a while was healthy; start the next
		// retry sequence from the shortest interval again.
		if time.Since(started) > time.Minute {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		zlog.Warn().Msgf("event stream dropped, reconnecting: endpoint=%s wait=%v err=%v", s.endpoint, wait, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// consume opens one connection and dispatches messages until it fails or the
// context is cancelled.
func (s *PushSource) consume(ctx context.Context, h *Handle, deliver Handler) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to connect to event stream")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("event stream endpoint returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line ends one event.
			if data.Len() > 0 {
				s.dispatch(h, deliver, data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment.
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields are irrelevant to this feed.
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "event stream read failed")
	}
	return errors.New("event stream closed by server")
}

func (s *PushSource) dispatch(h *Handle, deliver Handler, payload string) {
	var raw RawMetadata
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		zlog.Warn().Msgf("ignoring malformed event payload: endpoint=%s err=%v", s.endpoint, err)
		return
	}
	h.send(deliver, raw)
}
