// Package main is the entry point for a standalone RTPS domain
// participant: it joins a domain, runs discovery and the metatraffic/
// default-traffic task group, and blocks until signaled to shut down.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/arc-self/rtps/internal/config"
	"github.com/arc-self/rtps/internal/eventbridge"
	"github.com/arc-self/rtps/internal/participant"
	"github.com/arc-self/rtps/internal/telemetry"
)

func main() {
	// ── Structured Logger ──────────────────────────────────────────────────
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	domainID := uint32(0)
	if v := os.Getenv("RTPS_DOMAIN_ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			logger.Fatal("parse RTPS_DOMAIN_ID", zap.Error(err))
		}
		domainID = uint32(n)
	}

	cfg, err := config.LoadFromEnv(domainID)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	// ── OpenTelemetry Metrics ──────────────────────────────────────────────
	var metrics *telemetry.ParticipantMetrics
	if cfg.OTLPMetricsEndpoint != "" {
		mp, err := telemetry.InitMeterProvider(ctx, "rtps-participant", cfg.OTLPMetricsEndpoint)
		if err != nil {
			logger.Error("OTel meter provider init failed", zap.Error(err))
		} else {
			defer mp.Shutdown(context.Background())
			logger.Info("OTel metrics initialized", zap.String("endpoint", cfg.OTLPMetricsEndpoint))
		}
		metrics, err = telemetry.NewParticipantMetrics(mp)
		if err != nil {
			logger.Fatal("participant metrics init failed", zap.Error(err))
		}
	} else {
		metrics, err = telemetry.NewParticipantMetrics(nil)
		if err != nil {
			logger.Fatal("participant metrics init failed", zap.Error(err))
		}
	}

	// ── Event Bridge (optional discovery side channel) ─────────────────────
	var eb *eventbridge.Client
	if cfg.EventBridgeURL != "" {
		eb, err = eventbridge.NewClient(cfg.EventBridgeURL, logger)
		if err != nil {
			logger.Error("event bridge connection failed, running without it", zap.Error(err))
			eb = nil
		}
	}

	// ── Domain Participant ──────────────────────────────────────────────────
	p, err := participant.New(cfg, logger, metrics, eb)
	if err != nil {
		logger.Fatal("participant init failed", zap.Error(err))
	}
	logger.Info("participant starting",
		zap.Uint32("domain_id", cfg.DomainID),
		zap.Uint32("participant_id", cfg.ParticipantID),
		zap.Stringer("guid", p.Guid),
	)

	p.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down")
	p.Stop()
}
