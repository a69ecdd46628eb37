// Package http implements the relayd HTTP surface: per-channel metadata
// pull and push endpoints and the upstream status passthrough.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/ruohki/krelez/internal/app/extractor"
	"github.com/ruohki/krelez/internal/infra/config"
	"github.com/ruohki/krelez/internal/infra/icecast"
)

// defaultKeepAlive is the SSE comment cadence that keeps intermediaries from
// reaping idle event streams.
const defaultKeepAlive = 30 * time.Second

// StatusClient is the slice of the icecast client the server needs.
type StatusClient interface {
	FindSource(ctx context.Context, name string) (icecast.Source, error)
}

// channelEntry binds one channel's extractor to its upstream status client.
type channelEntry struct {
	cfg      config.ChannelConfig
	metadata *extractor.Channel
	status   StatusClient
}

// Server serves the relayd HTTP API.
type Server struct {
	router    *mux.Router
	channels  map[string]channelEntry
	publicURL string
	keepAlive time.Duration
}

// NewServer builds the router for the given channels.
func NewServer(cfg *config.Config, channels map[string]*extractor.Channel) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		channels:  make(map[string]channelEntry),
		publicURL: strings.TrimSuffix(cfg.Server.PublicURL, "/"),
		keepAlive: defaultKeepAlive,
	}

	for _, ch := range cfg.Channels {
		entry := channelEntry{cfg: ch, metadata: channels[ch.Name]}
		if ch.Upstream.StatusURL != "" {
			entry.status = icecast.New(ch.Upstream.StatusURL)
		}
		s.channels[ch.Name] = entry
	}

	s.routes()
	return s
}

// Handler returns the root handler with CORS applied. The pages embedding
// the players are served from another origin.
func (s *Server) Handler() http.Handler {
	return corsGET(s.router)
}

func (s *Server) routes() {
	s.router.HandleFunc("/{channel}/metadata", s.handleMetadata).Methods(http.MethodGet)
	s.router.HandleFunc("/{channel}/live", s.handleLive).Methods(http.MethodGet)
	s.router.HandleFunc("/{channel}-status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
}

// handleMetadata serves the latest extracted metadata for pull polling.
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.channel(r)
	if !ok || entry.metadata == nil {
		http.NotFound(w, r)
		return
	}

	m, ok := entry.metadata.Current()
	if !ok {
		http.Error(w, "no metadata available", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// handleLive serves the push variant: one metadata record per SSE message,
// starting with the current snapshot when there is one.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.channel(r)
	if !ok || entry.metadata == nil {
		http.NotFound(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, updates := entry.metadata.Subscribe()
	defer entry.metadata.Unsubscribe(id)

	if m, ok := entry.metadata.Current(); ok {
		writeEvent(w, m)
	}
	flusher.Flush()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case m := <-updates:
			writeEvent(w, m)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleStatus is the status aggregation passthrough: it filters the
// upstream aggregate down to this channel's source and rewrites the listen
// URL to our own externally reachable stream path. A channel missing from
// the aggregate (temporarily off-air) is a 404 with a data-free JSON body,
// never a partial object.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.channel(r)
	if !ok || entry.status == nil {
		http.NotFound(w, r)
		return
	}

	src, err := entry.status.FindSource(r.Context(), entry.cfg.SourceName)
	if err != nil {
		if errors.Is(err, icecast.ErrSourceNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"icestats": map[string]any{}})
			return
		}
		zlog.Warn().Msgf("channel %s: upstream status fetch failed: %v", entry.cfg.Name, err)
		http.Error(w, "upstream status unavailable", http.StatusBadGateway)
		return
	}

	if s.publicURL != "" {
		src.SetListenURL(s.publicURL + "/" + entry.cfg.Name + "/stream")
	}
	writeJSON(w, http.StatusOK, map[string]any{"icestats": map[string]any{"source": src}})
}

func (s *Server) channel(r *http.Request) (channelEntry, bool) {
	name := mux.Vars(r)["channel"]
	entry, ok := s.channels[name]
	return entry, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Warn().Msgf("failed to encode response: %v", err)
	}
}

func writeEvent(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zlog.Warn().Msgf("failed to encode event: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// corsGET allows cross-origin GETs, which is all this API serves.
func corsGET(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
