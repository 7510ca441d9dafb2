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
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	rlog "github.com/tombee/mcprouter/internal/log"
	rerrors "github.com/tombee/mcprouter/pkg/errors"
)

// ChildSpec is the operator-configured command used to spawn the child
// process for every endpoint. The command and arguments are shared across
// endpoints; only the environment (built) varies.
type ChildSpec struct {
	Command string
	Args    []string
	// Env holds additional static KEY=VALUE entries applied to every child,
	// layered beneath the per-endpoint identity variables built by
	// buildChildEnv (operator-supplied, e.g. via --env or a --config file).
	Env []string
}

// OnChildExit is the supervisor's single-slot notification of a child
// process exiting.
type OnChildExit func(endpointURL string)

// Supervisor owns one child-process connection per configured endpoint. It
// is the sole mutator of EndpointRecord state.
type Supervisor struct {
	child    ChildSpec
	readOnly bool

	callTimeout time.Duration
	pingTimeout time.Duration

	factory ClientFactory

	limiter *CallRateLimiter

	logger  *slog.Logger
	metrics *Metrics

	mu        sync.RWMutex
	endpoints map[string]*EndpointRecord

	exitMu sync.Mutex
	onExit OnChildExit
}

// SupervisorConfig configures a new Supervisor.
type SupervisorConfig struct {
	Child ChildSpec
	// ReadOnly is forwarded to every child as MCPROUTER_READ_ONLY; the
	// router itself makes no authorization decision on it.
	ReadOnly    bool
	CallTimeout time.Duration
	PingTimeout time.Duration
	// Factory is injected so tests can substitute a fake DownstreamClient
	// without spawning a real subprocess. Defaults to DefaultClientFactory.
	Factory ClientFactory
	// Limiter throttles per-endpoint call throughput; nil disables limiting.
	Limiter *CallRateLimiter
	Logger  *slog.Logger
	// Metrics is optional; when nil, observations are silently skipped.
	Metrics *Metrics
}

// NewSupervisor creates a Supervisor with no endpoints registered yet.
// Call InitializeAll to populate it from the operator's mappings.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	factory := cfg.Factory
	if factory == nil {
		factory = DefaultClientFactory
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		child:       cfg.Child,
		readOnly:    cfg.ReadOnly,
		callTimeout: cfg.CallTimeout,
		pingTimeout: cfg.PingTimeout,
		factory:     factory,
		limiter:     cfg.Limiter,
		logger:      logger,
		metrics:     cfg.Metrics,
		endpoints:   make(map[string]*EndpointRecord),
	}
}

// SetOnChildExit registers the callback fired when the supervisor detects a
// child process exit. It replaces any previously registered callback.
func (s *Supervisor) SetOnChildExit(fn OnChildExit) {
	s.exitMu.Lock()
	defer s.exitMu.Unlock()
	s.onExit = fn
}

// InitializeAll dedupes mappings by normalized URL, creates a
// Connecting record for each survivor, and connects to all of them in
// parallel. It returns the number of endpoints that ended up Connected; a
// partial failure is not fatal, the caller decides whether the resulting
// count is acceptable.
func (s *Supervisor) InitializeAll(ctx context.Context, mappings []Mapping) (connected int) {
	kept, dropped := DedupeMappings(mappings)
	for _, d := range dropped {
		s.logger.Warn("dropping duplicate endpoint mapping", rlog.EndpointKey, d.URL)
	}

	s.mu.Lock()
	for _, m := range kept {
		s.endpoints[m.URL] = &EndpointRecord{
			URL:      m.URL,
			Identity: m.Identity,
			Status:   StatusConnecting,
		}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for _, m := range kept {
		m := m
		g.Go(func() error {
			connErr := s.connect(gctx, m.URL, m.Identity)
			if connErr != nil {
				s.logger.Error("endpoint connect failed", rlog.EndpointKey, m.URL, "error", connErr)
				return nil
			}
			mu.Lock()
			connected++
			mu.Unlock()
			return nil
		})
	}
	// errgroup.Wait's error is always nil here since connect failures are
	// swallowed per-endpoint.
	_ = g.Wait()

	return connected
}

// connect spawns the child for url, completes the MCP handshake, lists its
// tools, and transitions the record to Connected. On failure the record
// transitions to Failed and the error is returned.
func (s *Supervisor) connect(ctx context.Context, url, identity string) error {
	rec := s.lookup(url)
	if rec == nil {
		return fmt.Errorf("connect: unknown endpoint %s", url)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.Status = StatusConnecting

	client, err := s.factory(ctx, ClientConfig{
		EndpointURL: url,
		Command:     s.child.Command,
		Args:        s.child.Args,
		Env:         buildChildEnv(identity, s.readOnly, s.child.Env),
		CallTimeout: s.callTimeout,
	})
	if err != nil {
		rec.Status = StatusFailed
		return NewRouterError(ErrorCodeConnect, "failed to connect to endpoint").
			WithDetail(err.Error()).WithCause(err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		_ = client.Close()
		rec.Status = StatusFailed
		return NewRouterError(ErrorCodeConnect, "failed to list tools").
			WithDetail(err.Error()).WithCause(err)
	}

	rec.client = client
	rec.child = client.Process()
	rec.Tools = tools
	rec.Status = StatusConnected
	rec.LastHeartbeat = time.Now()
	rec.ConsecutiveFailures = 0

	s.watchChildExit(rec)

	return nil
}

// watchChildExit polls the child process for exit in the background.
// mcp-go's stdio transport doesn't expose a wait channel, so liveness is
// checked with a signal-0 poll rather than blocking on Cmd.Wait, which is
// already owned by the transport goroutine.
func (s *Supervisor) watchChildExit(rec *EndpointRecord) {
	proc := rec.child
	url := rec.URL
	if proc == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for range ticker.C {
			if proc.Alive() {
				continue
			}

			rec.mu.Lock()
			stillOurs := rec.child == proc
			if stillOurs {
				rec.Status = StatusDisconnected
				rec.child = nil
				rec.client = nil
			}
			rec.mu.Unlock()

			if stillOurs {
				s.logger.Warn("downstream child process exited", rlog.EndpointKey, url)
				s.fireChildExit(url)
			}
			return
		}
	}()
}

func (s *Supervisor) fireChildExit(url string) {
	s.exitMu.Lock()
	fn := s.onExit
	s.exitMu.Unlock()

	if fn != nil {
		fn(url)
	}
}

// lookup returns the endpoint record for url, or nil if unknown.
func (s *Supervisor) lookup(url string) *EndpointRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoints[url]
}

// Ping checks liveness of the named endpoint. An endpoint left Failed by
// an earlier ping failure is pinged again, so consecutive failures can reach
// PingFailureThreshold; a success returns it to Connected. Returns false
// without side effects if the endpoint has no live client or is in any
// other state.
func (s *Supervisor) Ping(ctx context.Context, url string) bool {
	rec := s.lookup(url)
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if (rec.Status != StatusConnected && rec.Status != StatusFailed) || rec.client == nil {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	err := rec.client.Ping(pingCtx)
	if err == nil {
		rec.Status = StatusConnected
		rec.LastHeartbeat = time.Now()
		rec.ConsecutiveFailures = 0
		return true
	}

	rec.ConsecutiveFailures++
	s.metrics.ObservePingFailure(url)
	if rec.ConsecutiveFailures >= PingFailureThreshold {
		rec.Status = StatusDisconnected
	} else {
		rec.Status = StatusFailed
	}
	return false
}

// Reconnect tears down and re-establishes the connection for url, guarded
// by the record's Reconnecting flag. Returns false immediately
// if a reconnect is already in flight for this endpoint.
func (s *Supervisor) Reconnect(ctx context.Context, url string) bool {
	rec := s.lookup(url)
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	if rec.Reconnecting {
		rec.mu.Unlock()
		return false
	}
	rec.Reconnecting = true
	identity := rec.Identity
	rec.mu.Unlock()

	defer func() {
		rec.mu.Lock()
		rec.Reconnecting = false
		rec.mu.Unlock()
	}()

	s.teardown(rec)

	if err := s.connect(ctx, url, identity); err != nil {
		s.logger.Warn("reconnect failed", rlog.EndpointKey, url, "error", err)
		s.metrics.ObserveReconnect(url, false)
		return false
	}
	s.metrics.ObserveReconnect(url, true)
	return true
}

// teardown best-effort closes the client, then signals the child process to
// exit gracefully before escalating to a kill.
func (s *Supervisor) teardown(rec *EndpointRecord) {
	rec.mu.Lock()
	client := rec.client
	proc := rec.child
	rec.client = nil
	rec.child = nil
	rec.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}

	if proc == nil || !proc.Alive() {
		return
	}

	_ = proc.Terminate()

	deadline := time.Now().Add(TeardownGracePeriod)
	for time.Now().Before(deadline) {
		if !proc.Alive() {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if proc.Alive() {
		_ = proc.Kill()
	}
}

// CallOnOne invokes a tool call on a single endpoint. If the endpoint is
// unknown or not Connected, it synthesizes a textual error result rather
// than returning a Go error; dispatch failures are always encoded in the
// result.
func (s *Supervisor) CallOnOne(ctx context.Context, url string, req ToolCallRequest, identity string) *ToolCallResult {
	rec := s.lookup(url)
	if rec == nil || rec.Status != StatusConnected {
		return TextResult(endpointUnavailableMessage(url, s.ConnectedURLs()), true)
	}

	rec.mu.Lock()
	client := rec.client
	rec.mu.Unlock()

	if client == nil {
		return TextResult(endpointUnavailableMessage(url, s.ConnectedURLs()), true)
	}

	if !s.limiter.Allow(url) {
		return TextResult(fmt.Sprintf("endpoint %q is rate limited, try again shortly", url), true)
	}

	result, err := client.CallTool(ctx, req)
	if err != nil {
		if isAuthFailure(err) {
			s.logger.Error("downstream authentication failure",
				rlog.EndpointKey, url,
				rlog.ToolKey, req.Name,
				"identity", identity,
				rlog.CorrelationIDKey, rlog.CorrelationIDFromContext(ctx),
			)
		}
		if terr, ok := rerrors.AsTimeout(err); ok {
			return TextResult(fmt.Sprintf("call to %s timed out after %s", url, terr.Duration), true)
		}
		return TextResult(fmt.Sprintf("call to %s failed: %s", url, err.Error()), true)
	}

	return result
}

// CallOnAll fans a tool call out to every currently Connected endpoint in
// parallel, concatenating their content. Result order is stabilized by
// endpoint URL for testability.
func (s *Supervisor) CallOnAll(ctx context.Context, req ToolCallRequest, identities map[string]string) *ToolCallResult {
	urls := s.ConnectedURLs()
	if len(urls) == 0 {
		return TextResult(noEndpointsConnectedMessage(), true)
	}

	type outcome struct {
		url    string
		result *ToolCallResult
	}

	outcomes := make([]outcome, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			outcomes[i] = outcome{url: url, result: s.CallOnOne(gctx, url, req, identities[url])}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].url < outcomes[j].url })

	agg := &ToolCallResult{}
	for _, o := range outcomes {
		agg.Content = append(agg.Content, o.result.Content...)
		if o.result.IsError {
			agg.IsError = true
		}
	}
	return agg
}

// ConnectedURLs returns the normalized URLs of every endpoint currently
// Connected with a live client, sorted for deterministic output.
func (s *Supervisor) ConnectedURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.endpoints))
	for url, rec := range s.endpoints {
		rec.mu.Lock()
		connected := rec.Status == StatusConnected && rec.client != nil
		rec.mu.Unlock()
		if connected {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

// AllURLs returns the normalized URLs of every configured endpoint,
// connected or not, sorted for deterministic output.
func (s *Supervisor) AllURLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	urls := make([]string, 0, len(s.endpoints))
	for url := range s.endpoints {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Tools returns the last-discovered tool list for url, or nil if the
// endpoint is unknown or has never connected.
func (s *Supervisor) Tools(url string) []ToolDefinition {
	rec := s.lookup(url)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.Tools
}

// Snapshot returns a read-only copy of every endpoint's state, sorted by
// URL, for the status introspection endpoint.
func (s *Supervisor) Snapshot() []Snapshot {
	s.mu.RLock()
	recs := make([]*EndpointRecord, 0, len(s.endpoints))
	for _, rec := range s.endpoints {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, len(recs))
	for i, rec := range recs {
		rec.mu.Lock()
		out[i] = Snapshot{
			URL:                 rec.URL,
			Status:              rec.Status,
			LastHeartbeat:       rec.LastHeartbeat,
			ConsecutiveFailures: rec.ConsecutiveFailures,
			ToolCount:           len(rec.Tools),
		}
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Status returns the current status of url, or ("", false) if unknown.
func (s *Supervisor) Status(url string) (EndpointStatus, bool) {
	rec := s.lookup(url)
	if rec == nil {
		return "", false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.Status, true
}

// RefreshMetrics updates the connected-endpoint gauge from current state.
// Called by the health loop once per tick.
func (s *Supervisor) RefreshMetrics() {
	s.metrics.SetEndpointsConnected(len(s.ConnectedURLs()))
}

// ShutdownAll tears down every endpoint in parallel and clears the
// endpoint map.
func (s *Supervisor) ShutdownAll() {
	s.mu.Lock()
	recs := make([]*EndpointRecord, 0, len(s.endpoints))
	for _, rec := range s.endpoints {
		recs = append(recs, rec)
	}
	s.endpoints = make(map[string]*EndpointRecord)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, rec := range recs {
		rec := rec
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.teardown(rec)
		}()
	}
	wg.Wait()
}

// buildChildEnv constructs the child process environment, layered on top of the router's own
// environment so ordinary PATH/HOME/etc. variables still reach the child.
func buildChildEnv(identity string, readOnly bool, extra []string) []string {
	env := os.Environ()
	env = append(env, extra...)

	if os.Getenv("AZURE_TOKEN_CREDENTIALS") == "" {
		env = append(env, "AZURE_TOKEN_CREDENTIALS=managedidentitycredential")
	}

	if identity != "" {
		env = append(env, "AZURE_CLIENT_ID="+identity)
	}

	env = append(env, fmt.Sprintf("MCPROUTER_READ_ONLY=%t", readOnly))

	return env
}
