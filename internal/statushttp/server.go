// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package statushttp serves the router's read-only introspection surface:
// Prometheus /metrics and a /healthz JSON endpoint reporting per-endpoint
// status. Neither is on the upstream tool-call path.
package statushttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/mcprouter/internal/router"
)

// SnapshotSource is the subset of *router.Supervisor the status server
// needs, narrowed to an interface for testability.
type SnapshotSource interface {
	Snapshot() []router.Snapshot
}

// Server serves /metrics and /healthz over plain HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Config configures a new Server.
type Config struct {
	Addr       string
	Registry   http.Handler // typically promhttp.HandlerFor(reg, ...)
	Supervisor SnapshotSource
	Logger     *slog.Logger
}

// statusResponse is the /healthz JSON body.
type statusResponse struct {
	Endpoints []endpointStatus `json:"endpoints"`
}

type endpointStatus struct {
	URL                 string     `json:"url"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastHeartbeat       *time.Time `json:"lastHeartbeat,omitempty"`
	ToolCount           int        `json:"toolCount"`
}

// NewServer builds a Server bound to addr but does not start listening
// until Start is called.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	if cfg.Registry != nil {
		mux.Handle("/metrics", cfg.Registry)
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/healthz", healthzHandler(cfg.Supervisor))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func healthzHandler(supervisor SnapshotSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshots := supervisor.Snapshot()
		resp := statusResponse{Endpoints: make([]endpointStatus, len(snapshots))}
		for i, s := range snapshots {
			entry := endpointStatus{
				URL:                 s.URL,
				Status:              string(s.Status),
				ConsecutiveFailures: s.ConsecutiveFailures,
				ToolCount:           s.ToolCount,
			}
			if !s.LastHeartbeat.IsZero() {
				t := s.LastHeartbeat
				entry.LastHeartbeat = &t
			}
			resp.Endpoints[i] = entry
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Start begins serving in the background. A listen failure is logged, not
// returned: the status surface is diagnostic, never load-bearing for the
// router's primary stdio protocol.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server exited", "error", err)
		}
	}()
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
