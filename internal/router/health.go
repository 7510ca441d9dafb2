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

package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	rlog "github.com/tombee/mcprouter/internal/log"
)

// HealthLoop periodically pings every endpoint and drives reconnection with
// exponential backoff. It also reacts synchronously to
// child-exit notifications registered on the Supervisor.
type HealthLoop struct {
	supervisor   *Supervisor
	pingInterval time.Duration
	maxBackoff   time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	backoffMu sync.Mutex
	backoff   map[string]time.Duration
	timers    map[string]*time.Timer
}

// HealthLoopConfig configures a HealthLoop.
type HealthLoopConfig struct {
	Supervisor          *Supervisor
	PingInterval        time.Duration
	MaxReconnectBackoff time.Duration
	Logger              *slog.Logger
}

// NewHealthLoop creates a HealthLoop and registers its child-exit callback
// on the supervisor.
func NewHealthLoop(cfg HealthLoopConfig) *HealthLoop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &HealthLoop{
		supervisor:   cfg.Supervisor,
		pingInterval: cfg.PingInterval,
		maxBackoff:   cfg.MaxReconnectBackoff,
		logger:       logger,
		backoff:      make(map[string]time.Duration),
		timers:       make(map[string]*time.Timer),
	}

	cfg.Supervisor.SetOnChildExit(h.onChildExit)

	return h
}

// onChildExit is the supervisor's exit callback: if the loop is running, it
// schedules an immediate reconnect for the endpoint that just exited,
// ignoring the normal tick cadence.
func (h *HealthLoop) onChildExit(url string) {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()

	if !running {
		return
	}

	h.logger.Info("child exit observed, scheduling immediate reconnect", rlog.EndpointKey, url)
	h.scheduleReconnect(url, 0)
}

// Start begins the ticker loop. Repeated calls are no-ops.
func (h *HealthLoop) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	stopCh := make(chan struct{})
	h.stopCh = stopCh
	h.mu.Unlock()

	go h.run(ctx, stopCh)
}

// run drives the ticker. A tick's work is bounded to one full sweep over
// every endpoint; if a sweep is still running when the next interval
// fires, the next tick is skipped.
func (h *HealthLoop) run(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

// tick runs one sweep of the per-endpoint ticker logic.
func (h *HealthLoop) tick(ctx context.Context) {
	defer h.supervisor.RefreshMetrics()

	for _, url := range h.supervisor.AllURLs() {
		status, ok := h.supervisor.Status(url)
		if !ok {
			continue
		}

		switch status {
		case StatusConnected:
			if h.supervisor.Ping(ctx, url) {
				h.clearBackoff(url)
			} else {
				h.scheduleReconnect(url, h.currentBackoff(url))
			}
		case StatusFailed, StatusDisconnected:
			h.scheduleReconnect(url, h.currentBackoff(url))
		case StatusConnecting:
			// no action
		}
	}
}

// scheduleReconnect arms a reconnect timer for url after delay, unless one
// is already pending.
func (h *HealthLoop) scheduleReconnect(url string, delay time.Duration) {
	h.backoffMu.Lock()
	if _, pending := h.timers[url]; pending {
		h.backoffMu.Unlock()
		return
	}

	timer := time.AfterFunc(delay, func() { h.fireReconnect(url) })
	h.timers[url] = timer
	h.backoffMu.Unlock()
}

// fireReconnect is the timer callback: steps 1-4.
func (h *HealthLoop) fireReconnect(url string) {
	h.backoffMu.Lock()
	delete(h.timers, url)
	h.backoffMu.Unlock()

	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if !running {
		return
	}

	if h.supervisor.Reconnect(context.Background(), url) {
		h.clearBackoff(url)
		return
	}

	next := h.bumpBackoff(url)
	h.scheduleReconnect(url, next)
}

func (h *HealthLoop) currentBackoff(url string) time.Duration {
	h.backoffMu.Lock()
	defer h.backoffMu.Unlock()

	b, ok := h.backoff[url]
	if !ok {
		b = time.Second
		h.backoff[url] = b
	}
	return b
}

func (h *HealthLoop) bumpBackoff(url string) time.Duration {
	h.backoffMu.Lock()
	defer h.backoffMu.Unlock()

	b, ok := h.backoff[url]
	if !ok {
		b = time.Second
	}
	b *= 2
	if b > h.maxBackoff {
		b = h.maxBackoff
	}
	h.backoff[url] = b
	return b
}

func (h *HealthLoop) clearBackoff(url string) {
	h.backoffMu.Lock()
	delete(h.backoff, url)
	h.backoffMu.Unlock()
}

// Running reports whether the loop is currently started.
func (h *HealthLoop) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Stop cancels the ticker and every pending reconnect timer, and clears all
// backoff state. Repeated calls are no-ops.
func (h *HealthLoop) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	stopCh := h.stopCh
	h.stopCh = nil
	h.mu.Unlock()

	close(stopCh)

	h.backoffMu.Lock()
	for url, timer := range h.timers {
		timer.Stop()
		delete(h.timers, url)
	}
	h.backoff = make(map[string]time.Duration)
	h.backoffMu.Unlock()
}
