package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/additionsec/as-gateway/collector/internal/api"
	"github.com/additionsec/as-gateway/collector/internal/auth"
	"github.com/additionsec/as-gateway/collector/internal/config"
	"github.com/additionsec/as-gateway/collector/internal/metrics"
	"github.com/additionsec/as-gateway/collector/internal/output"
	"github.com/additionsec/as-gateway/collector/internal/receiver"
	"github.com/additionsec/as-gateway/collector/internal/store"
	"github.com/additionsec/as-gateway/collector/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "collector.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.Collector.LogLevel))

	slog.Info("as-collector starting",
		"config", *configPath,
		"listen", cfg.Collector.Listen,
		"tls", cfg.Collector.TLS.Enabled(),
		"output", cfg.Collector.Output.Type,
		"auth_mode", cfg.Collector.Auth.Mode,
		"store", cfg.Collector.Store.Backend,
		"ttl", cfg.Collector.Store.TTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("as-collector stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("as-collector shut down")
}

// run serves on the configured listen address until ctx is cancelled or a
// component fails.
func run(ctx context.Context, cfg *config.Config) error {
	ln, err := net.Listen("tcp", cfg.Collector.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Collector.Listen, err)
	}
	return serve(ctx, cfg, ln)
}

// serve runs the collector on ln, over TLS when configured.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	c := cfg.Collector

	st, err := openStore(c.Store)
	if err != nil {
		ln.Close()
		return err
	}
	defer st.Close()

	out, err := openOutput(c)
	if err != nil {
		ln.Close()
		return err
	}
	if out != nil {
		defer out.Close()
	}

	m := metrics.New()
	hub := ws.New(st, c.StreamInterval, ws.WithClientGauge(m.StreamClients))

	srv := &http.Server{
		Handler:           newRouter(cfg, st, m, hub, out),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.Run(ctx, st, c.Store.TTL)
		return nil
	})
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		var err error
		if c.TLS.Enabled() {
			slog.Info("HTTPS server listening", "addr", ln.Addr().String(), "cert", c.TLS.CertFile)
			err = srv.ServeTLS(ln, c.TLS.CertFile, c.TLS.KeyFile)
		} else {
			slog.Info("HTTP server listening", "addr", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(c config.StoreConfig) (store.Store, error) {
	switch c.Backend {
	case "bolt":
		st, err := store.OpenBolt(c.Path, c.TTL)
		if err != nil {
			return nil, err
		}
		slog.Info("store: bolt opened", "path", c.Path)
		return st, nil
	default:
		return store.NewMemory(c.TTL), nil
	}
}

// openOutput builds the forwarding pipeline, or returns nil for output type none.
func openOutput(c config.CollectorConfig) (*output.Pipeline, error) {
	if c.Output.Type == "none" {
		return nil, nil
	}
	return output.New(c.Transform, c.Output)
}

// newRouter wires every collector route. Ingestion, ping, and health stay
// open to devices; the report API is behind the API key middleware. A nil
// out disables forwarding.
func newRouter(cfg *config.Config, st store.Store, m *metrics.Metrics, hub *ws.Hub, out *output.Pipeline) *mux.Router {
	c := cfg.Collector

	r := mux.NewRouter()
	r.Use(m.Middleware)

	opts := receiver.Options{
		Limits:       receiver.LimitsFromConfig(c.Limits),
		MaxBodyBytes: c.MaxBodyBytes,
		SaveIP:       c.SaveIP,
		OnAccept:     hub.Publish,
	}
	if out != nil {
		opts.Output = out
	}
	receiver.New(st, m, opts).Register(r)

	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(auth.APIKey(c.Auth.Mode, c.Auth.EffectiveHeader(), c.Auth.Key()))
	api.New(st).Register(protected)
	protected.Handle("/v1/stream", hub)

	return r
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
