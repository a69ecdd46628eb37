// Package icecast provides a client for the Icecast status aggregate.
package icecast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrSourceNotFound is returned when the aggregate has no entry for the
// requested source name, e.g. a channel temporarily off-air.
var ErrSourceNotFound = errors.New("source not found in upstream status")

// Source is one mount entry from the aggregate. Kept as a raw map so that
// every upstream field survives the round trip unchanged; only well-known
// fields get accessors.
type Source map[string]any

// Name returns the entry's server_name, or "" when absent.
func (s Source) Name() string {
	if v, ok := s["server_name"].(string); ok {
		return v
	}
	return ""
}

// SetListenURL rewrites the entry's public listen URL.
func (s Source) SetListenURL(url string) {
	s["listenurl"] = url
}

// statusDocument mirrors the upstream status-json.xsl envelope. The source
// field is a bare object with one mount and an array with several.
type statusDocument struct {
	Icestats struct {
		Source json.RawMessage `json:"source"`
	} `json:"icestats"`
}

// Client fetches and filters the upstream status aggregate.
type Client struct {
	statusURL  string
	httpClient *http.Client
}

// New creates a status client for one upstream.
func New(statusURL string) *Client {
	return &Client{
		statusURL:  statusURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Sources retrieves all active source entries from the upstream aggregate.
func (c *Client) Sources(ctx context.Context) ([]Source, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.statusURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch upstream status")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("upstream status returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var doc statusDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse upstream status")
	}
	if len(doc.Icestats.Source) == 0 {
		return nil, nil
	}

	// Array form first, then the single-mount object form.
	var many []Source
	if err := json.Unmarshal(doc.Icestats.Source, &many); err == nil {
		return many, nil
	}
	var one Source
	if err := json.Unmarshal(doc.Icestats.Source, &one); err != nil {
		return nil, errors.Wrap(err, "failed to parse source entries")
	}
	return []Source{one}, nil
}

// FindSource retrieves the entry whose server_name matches name.
// Returns ErrSourceNotFound when the aggregate has no such entry.
func (c *Client) FindSource(ctx context.Context, name string) (Source, error) {
	sources, err := c.Sources(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, errors.Wrapf(ErrSourceNotFound, "source %q", name)
}
