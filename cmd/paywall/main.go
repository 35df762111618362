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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	x402 "github.com/vitwit/x402-paywall"
	"github.com/vitwit/x402-paywall/api"
	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/config"
	"github.com/vitwit/x402-paywall/logger"
	"github.com/vitwit/x402-paywall/metrics"
	"github.com/vitwit/x402-paywall/payto"
	"github.com/vitwit/x402-paywall/schemes/exact"
	"github.com/vitwit/x402-paywall/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", map[string]any{"error": err})
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	processor, err := clients.NewStripeProcessor(cfg.StripeSecretKey)
	if err != nil {
		return err
	}

	facilitator := clients.NewFacilitatorClient(cfg.FacilitatorURL, cfg.FacilitatorAuthorization)

	network := types.Network(cfg.Network)
	server := x402.New(facilitator,
		x402.WithLogger(log),
		x402.WithMetrics(rec),
		x402.WithTimeout(cfg.Timeout),
	).Register(network, exact.NewEvmScheme())

	initialize(context.Background(), server, facilitator.BaseURL, log)

	resolver, err := payto.NewResolver(processor,
		payto.WithPrice(types.Price(cfg.Price)),
		payto.WithDepositNetwork(cfg.DepositNetwork),
		payto.WithLogger(log),
		payto.WithMetrics(rec),
	)
	if err != nil {
		return err
	}

	router, err := api.NewRouter(api.Deps{
		Server:   server,
		PayTo:    resolver.PayTo(),
		Network:  network,
		Price:    types.Price(cfg.Price),
		Logger:   log,
		Metrics:  rec,
		Gatherer: reg,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", map[string]any{
			"url":         cfg.PublicURL(),
			"network":     cfg.Network,
			"facilitator": cfg.FacilitatorURL,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initialize warms the supported kinds cache. A failure is logged and
// requirements are still built, just without facilitator extras.
func initialize(ctx context.Context, server *x402.ResourceServer, facilitatorURL string, log logger.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Initialize(ctx); err != nil {
		log.Warn("continuing without facilitator supported kinds", map[string]any{
			"facilitator": facilitatorURL,
			"error":       err,
		})
	}
}
