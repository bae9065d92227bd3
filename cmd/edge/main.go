package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/4Bfast/costs-hub-edge/config"
	"github.com/4Bfast/costs-hub-edge/eventing"
	"github.com/4Bfast/costs-hub-edge/logger"
	"github.com/4Bfast/costs-hub-edge/metrics"
	"github.com/4Bfast/costs-hub-edge/notify"
	"github.com/4Bfast/costs-hub-edge/resilience"
	"github.com/4Bfast/costs-hub-edge/store"
	"github.com/4Bfast/costs-hub-edge/strategy"
	"github.com/4Bfast/costs-hub-edge/syncqueue"
	"github.com/4Bfast/costs-hub-edge/telemetry"
	"github.com/4Bfast/costs-hub-edge/upstream"
	"github.com/4Bfast/costs-hub-edge/worker"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "costshub-edge",
	Short: "Offline-first caching edge for the costs-hub app",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the edge gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	rootCmd.AddCommand(serveCmd)
}

func newLogger(cfg config.Config) logger.Logger {
	if cfg.LogFormat == "json" {
		return logger.NewJSONLogger()
	}
	return logger.NewConsoleLogger()
}

func newRegistry(cfg config.Config, rdb *redis.Client) (store.Registry, error) {
	switch cfg.Cache.Backend {
	case "sqlite":
		return store.NewSQLite(cfg.Cache.SQLitePath)
	case "redis":
		return store.NewRedis(rdb), nil
	default:
		return store.NewMemory(), nil
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := telemetry.New(ctx, cfg.Telemetry.Endpoint, "costshub-edge", log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	registry, err := newRegistry(cfg, rdb)
	if err != nil {
		return err
	}
	defer registry.Close()

	registerer := prometheus.NewRegistry()
	registerer.MustRegister(collectors.NewGoCollector())
	edgeMetrics := metrics.New(registerer)

	fetcher, err := upstream.New(cfg.Upstream, log,
		upstream.WithRequestTimeout(cfg.RequestTimeout.Std()),
		upstream.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())),
	)
	if err != nil {
		return err
	}

	base, err := url.Parse(cfg.Upstream)
	if err != nil {
		return err
	}
	passthrough := httputil.NewSingleHostReverseProxy(base)

	var events eventing.Client
	if rdb != nil {
		events = eventing.NewRedis(rdb, log)
	}

	var notifier notify.Notifier
	if len(cfg.Notifications.URLs) > 0 {
		notifier, err = notify.NewShoutrrrNotifier(cfg.Notifications.URLs...)
		if err != nil {
			return err
		}
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	selector := strategy.NewDefaultSelector(cfg.Cache.APIPrefix)
	for _, rule := range selector.Rules() {
		log.Debug("route rule %s -> %s", rule.Name, rule.Strategy)
	}

	w, err := worker.New(worker.Options{
		Registry:     registry,
		Version:      cfg.Cache.Version,
		Selector:     selector,
		Fetcher:      fetcher,
		Passthrough:  passthrough,
		Precache:     cfg.Precache,
		FallbackPath: cfg.OfflineFallback,
		QueuePolicy: syncqueue.Policy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			Backoff: resilience.RetryConfig{
				InitialBackoff:    cfg.Queue.InitialBackoff.Std(),
				MaxBackoff:        cfg.Queue.MaxBackoff.Std(),
				BackoffMultiplier: 2.0,
				Jitter:            true,
			},
		},
		Events:   events,
		Notifier: notifier,
		Logger:   log,
		Metrics:  edgeMetrics,
	})
	if err != nil {
		return err
	}

	if err := w.Start(ctx, cfg.Queue.ReplayInterval.Std()); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/-/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/-/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/", w)

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s, fronting %s", cfg.Listen, cfg.Upstream)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
