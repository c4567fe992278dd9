// Command macrod hosts a macro router behind net/http. It serves a small
// built-in demo application, or a route table loaded from a YAML/JSON config
// file binding the demo handlers by name, and exposes Prometheus metrics on
// a separate listener.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/externref/macro/config"
	"github.com/externref/macro/message"
	"github.com/externref/macro/metric"
	"github.com/externref/macro/pkg/httpbridge"
	"github.com/externref/macro/router"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a routes config file (YAML or JSON)")
		addr        = flag.String("addr", ":8000", "listen address for the application")
		metricsAddr = flag.String("metrics-addr", ":9090", "listen address for Prometheus metrics")
		logLevel    = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(*configPath, *addr, *metricsAddr, logger); err != nil {
		logger.Error("macrod exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func run(configPath, addr, metricsAddr string, logger *slog.Logger) error {
	metrics := metric.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	rt := router.New(router.WithLogger(logger), router.WithMetrics(metrics))
	if err := registerRoutes(rt, configPath); err != nil {
		return err
	}
	logger.Info("routes registered", "templates", rt.Templates())

	appServer := &http.Server{
		Addr:         addr,
		Handler:      httpbridge.New(rt, httpbridge.WithLogger(logger)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("application listening", "addr", addr)
		if err := appServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := appServer.Shutdown(shutdownCtx)
		if merr := metricsServer.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	})

	return group.Wait()
}

// registerRoutes wires the demo handlers, either directly or through a
// config file that binds them by name
func registerRoutes(rt *router.Router, configPath string) error {
	handlers := demoHandlers()

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return cfg.Apply(rt, handlers)
	}

	if err := rt.Get("/", handlers["index"]); err != nil {
		return err
	}
	if err := rt.Get("/html", handlers["html"]); err != nil {
		return err
	}
	if err := rt.Get("/json", handlers["json"]); err != nil {
		return err
	}
	if err := rt.Get("/redirect", handlers["redirect"]); err != nil {
		return err
	}
	if err := rt.Get("/stream", handlers["stream"]); err != nil {
		return err
	}
	return rt.Get("/items/{id}", handlers["item"],
		router.WithParamTypes(map[string]router.ParamType{"id": router.ParamInt}))
}

func demoHandlers() map[string]router.Handler {
	return map[string]router.Handler{
		"index": func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
			return message.Text("Hello, world!"), nil
		},
		"html": func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
			return message.HTML("<h1>Hello, world!</h1>"), nil
		},
		"json": func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
			return message.JSON(map[string]any{"message": "Hello, world!"})
		},
		"redirect": func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
			return message.Redirect("/"), nil
		},
		"stream": func(_ context.Context, _ *message.Request, _ router.Params) (*message.Response, error) {
			chunks := []any{[]byte("one\n"), []byte("two\n"), []byte("three\n")}
			return message.Stream(chunks, "text/plain; charset=utf-8"), nil
		},
		"item": func(_ context.Context, req *message.Request, params router.Params) (*message.Response, error) {
			return message.JSON(map[string]any{
				"id":    params.Int("id"),
				"query": req.Query(),
			})
		},
	}
}
