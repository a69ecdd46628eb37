package metadata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// DefaultPullInterval is the polling cadence when the channel config does
// not override it.
const DefaultPullInterval = 5 * time.Second

// PullSource polls a metadata endpoint at a fixed interval. There is no
// backoff on failure: the interval already rate-limits load and the upstream
// is assumed to recover on its own.
type PullSource struct {
	endpoint   string
	interval   time.Duration
	httpClient *http.Client
}

// NewPullSource creates a pull source for one channel endpoint.
func NewPullSource(endpoint string, interval time.Duration) *PullSource {
	if interval <= 0 {
		interval = DefaultPullInterval
	}
	return &PullSource{
		endpoint:   endpoint,
		interval:   interval,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Subscribe issues one immediate fetch, then refetches every interval until
// the handle is unsubscribed. Fetch failures are logged and swallowed; the
// next tick retries.
func (s *PullSource) Subscribe(ctx context.Context, deliver Handler) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)
	h := NewHandle(cancel)

	go func() {
		s.fetchInto(ctx, h, deliver)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fetchInto(ctx, h, deliver)
			}
		}
	}()

	return h, nil
}

// Unsubscribe releases the polling timer. Idempotent.
func (s *PullSource) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	h.close()
}

func (s *PullSource) fetchInto(ctx context.Context, h *Handle, deliver Handler) {
	raw, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		zlog.Warn().Msgf("metadata poll failed, will retry: endpoint=%s err=%v", s.endpoint, err)
		return
	}
	h.send(deliver, raw)
}

func (s *PullSource) fetch(ctx context.Context) (RawMetadata, error) {
	var raw RawMetadata

	req, err := http.NewRequestWithContext(ctx, "GET", s.endpoint, nil)
	if err != nil {
		return raw, errors.Wrap(err, "failed to create request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return raw, errors.Wrap(err, "failed to fetch metadata")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return raw, errors.Newf("metadata endpoint returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return raw, errors.Wrap(err, "failed to read response body")
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return raw, errors.Wrap(err, "failed to parse metadata payload")
	}

	return raw, nil
}
