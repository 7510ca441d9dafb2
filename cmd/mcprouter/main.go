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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	rlog "github.com/tombee/mcprouter/internal/log"
	"github.com/tombee/mcprouter/internal/router"
	"github.com/tombee/mcprouter/internal/routerconfig"
	"github.com/tombee/mcprouter/internal/statushttp"
	"github.com/tombee/mcprouter/internal/tracing"
	"github.com/tombee/mcprouter/internal/upstream"
	rerrors "github.com/tombee/mcprouter/pkg/errors"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	mappings            []string
	configPath          string
	command             string
	args                []string
	env                 []string
	readOnly            bool
	noReadOnly          bool
	pingInterval        time.Duration
	pingTimeout         time.Duration
	callTimeout         time.Duration
	maxReconnectBackoff time.Duration
	rateLimit           float64
	statusAddr          string
	logLevel            string
	logFormat           string
	logFile             string
}

func main() {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "mcprouter",
		Short: "Multiplex downstream MCP servers behind a single upstream endpoint",
		Long: `mcprouter supervises one child MCP server process per configured
endpoint, merges their tool schemas into a single upstream tool surface, and
dispatches call_tool requests either to one endpoint (routable tools) or to
every connected endpoint (fan-out tools).

Configuration example for an MCP client:
  {
    "mcpServers": {
      "mcprouter": {
        "command": "mcprouter",
        "args": ["--mapping", "https://c1.example=/sub/rg/id1", "--mapping", "https://c2.example=/sub/rg/id2", "--command", "kusto-mcp-server"]
      }
    }
  }`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.args = args
			if f.noReadOnly {
				f.readOnly = false
			}
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringArrayVar(&f.mappings, "mapping", nil, "endpoint mapping URL[=IDENTITY] (repeatable)")
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a YAML config file supplementing --mapping")
	cmd.Flags().StringVar(&f.command, "command", "", "child MCP server executable")
	cmd.Flags().StringArrayVar(&f.env, "env", nil, "additional child environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&f.readOnly, "read-only", true, "forward MCPROUTER_READ_ONLY=true to every child")
	cmd.Flags().BoolVar(&f.noReadOnly, "no-read-only", false, "negation of --read-only")
	cmd.Flags().DurationVar(&f.pingInterval, "ping-interval", 60*time.Second, "health-loop ping interval")
	cmd.Flags().DurationVar(&f.pingTimeout, "ping-timeout", 10*time.Second, "per-ping timeout")
	cmd.Flags().DurationVar(&f.callTimeout, "call-timeout", 30*time.Second, "per tool-call timeout")
	cmd.Flags().DurationVar(&f.maxReconnectBackoff, "max-reconnect-backoff", 300*time.Second, "reconnect backoff ceiling")
	cmd.Flags().Float64Var(&f.rateLimit, "rate-limit", 0, "max sustained calls/sec per endpoint (0 disables limiting)")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "127.0.0.1:9090", "listen address for /metrics and /healthz")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "overrides MCPROUTER_LOG_LEVEL (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "overrides LOG_FORMAT (json, text)")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "mirror logs to a session file under <dir>/logs/")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the mcprouter version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("mcprouter %s (%s)\n", version, commit)
			return nil
		},
	}
	cmd.AddCommand(versionCmd)

	if err := cmd.Execute(); err != nil {
		if cfgErr, ok := rerrors.AsConfig(err); ok {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", cfgErr)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	logCfg := rlog.FromEnv()
	if f.logLevel != "" {
		logCfg.Level = f.logLevel
	}
	if f.logFormat != "" {
		logCfg.Format = rlog.Format(f.logFormat)
	}

	if f.logFile != "" {
		mirrored, closeFile, err := rlog.MirrorFile(logCfg.Output, f.logFile, fmt.Sprintf("mcprouter-%d", os.Getpid()))
		if err != nil {
			return err
		}
		defer closeFile()
		logCfg.Output = mirrored
	}
	logger := rlog.New(logCfg)

	resolved, err := routerconfig.Resolve(routerconfig.CLI{
		ConfigPath: f.configPath,
		Mappings:   f.mappings,
		Command:    f.command,
		Args:       f.args,
		Env:        f.env,
	})
	if err != nil {
		return err
	}
	logger.Info("configuration resolved",
		"endpoints", len(resolved.Mappings),
		"command", resolved.Child.Command,
		"env", routerconfig.RedactEnv(resolved.Child.Env))

	traceProvider, err := tracing.NewProvider(ctx, "mcprouter", version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = traceProvider.Shutdown(shutdownCtx)
	}()

	registry := prometheus.NewRegistry()
	metrics := router.NewMetrics(registry)

	var limiter *router.CallRateLimiter
	if f.rateLimit > 0 {
		limiter = router.NewCallRateLimiter(f.rateLimit, int(f.rateLimit))
	}

	sup := router.NewSupervisor(router.SupervisorConfig{
		Child:       resolved.Child,
		ReadOnly:    f.readOnly,
		CallTimeout: f.callTimeout,
		PingTimeout: f.pingTimeout,
		Limiter:     limiter,
		Logger:      rlog.WithComponent(logger, "supervisor"),
		Metrics:     metrics,
	})

	connected := sup.InitializeAll(ctx, resolved.Mappings)
	if connected == 0 {
		return fmt.Errorf("no endpoints connected, see startup logs for per-endpoint errors")
	}
	logger.Info("supervisor initialized", "connected", connected, "total", len(resolved.Mappings))

	classifier := router.NewClassifier(sup, rlog.WithComponent(logger, "classifier"))
	classifier.Refresh()
	table := classifier.Table()
	if len(table.Merged) == 0 {
		return fmt.Errorf("no tools discovered from any connected endpoint")
	}
	logger.Info("tool surface classified", "tools", len(table.Merged), "routable", len(table.Routable), "fanout", len(table.FanOut))

	identities := buildIdentityLookup(resolved.Mappings)

	dispatcher := router.NewDispatcher(classifier, sup, rlog.WithComponent(logger, "dispatch"), metrics)

	upstreamServer := upstream.NewServer(upstream.Config{
		Name:       "mcprouter",
		Version:    version,
		Dispatcher: dispatcher,
		Identities: identities,
		Logger:     rlog.WithComponent(logger, "upstream"),
	})
	upstreamServer.SyncTools(table)

	healthLoop := router.NewHealthLoop(router.HealthLoopConfig{
		Supervisor:          sup,
		PingInterval:        f.pingInterval,
		MaxReconnectBackoff: f.maxReconnectBackoff,
		Logger:              rlog.WithComponent(logger, "health"),
	})
	healthLoop.Start(ctx)

	statusServer := statushttp.NewServer(statushttp.Config{
		Addr:       f.statusAddr,
		Registry:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Supervisor: sup,
		Logger:     rlog.WithComponent(logger, "status"),
	})
	statusServer.Start()

	// Only the first signal acts; later ones sit unread in the channel
	// buffer until the process exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, shutting down gracefully")

		healthLoop.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown error", "error", err)
		}

		sup.ShutdownAll()
		os.Exit(0)
	}()

	// Run blocks serving the upstream stdio protocol until the client
	// disconnects; a signal-driven shutdown exits the process directly
	// from the goroutine above rather than unwinding this call.
	if err := upstreamServer.Run(ctx); err != nil {
		return err
	}

	healthLoop.Stop()
	sup.ShutdownAll()
	return nil
}

// buildIdentityLookup returns a stable snapshot of each mapping's
// configured identity, keyed by normalized endpoint URL, for the
// dispatcher's auth-failure log context.
func buildIdentityLookup(mappings []router.Mapping) upstream.IdentityLookup {
	identities := make(map[string]string, len(mappings))
	for _, m := range mappings {
		identities[m.URL] = m.Identity
	}
	return func() map[string]string { return identities }
}
