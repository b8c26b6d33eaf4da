// mocknode runs a local stand-in CQC node for development and demos.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/cqc/internal/config"
	"github.com/danmuck/cqc/internal/logging"
	"github.com/danmuck/cqc/internal/mocknode"
	"github.com/danmuck/cqc/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := resolve(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "mocknode: %v\n", err)
		os.Exit(2)
	}
	logging.Install(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("mocknode stopped")
		os.Exit(1)
	}
}

func resolve(args []string, getenv func(string) string) (config.Config, error) {
	fs := pflag.NewFlagSet("mocknode", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "TOML or YAML config file")
	listen := fs.StringSlice("listen", nil, "listen addresses, one endpoint per port")
	maxQubits := fs.Int("max-qubits", 0, "live qubits per connection (0 = unlimited)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	logLevel := fs.String("log-level", "", "trace|debug|info|warn|error|off")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	if fs.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	logging.ApplyEnvOverrides(&cfg.Log, getenv)

	if fs.Changed("listen") {
		cfg.Node.Listen = *listen
	}
	if fs.Changed("max-qubits") {
		cfg.Node.MaxQubits = *maxQubits
	}
	if fs.Changed("metrics-addr") {
		cfg.Node.MetricsAddr = *metricsAddr
	}
	if fs.Changed("log-level") {
		lvl, ok := logging.ParseLevel(*logLevel)
		if !ok {
			return config.Config{}, fmt.Errorf("unknown log level %q", *logLevel)
		}
		cfg.Log.Level = lvl
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	svc := mocknode.NewService(cfg.NodeConfig())
	lns, err := svc.Listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.ServeAll(gctx, lns) })
	if addr := cfg.Node.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: observability.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info().Str("addr", addr).Msg("mocknode metrics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
