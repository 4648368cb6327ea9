// Copyright (C) 2025 Clinica Bonsana (jfbm74)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/jfbm74/glpi-analytics/pkg/logging"
	"github.com/jfbm74/glpi-analytics/services/analytics/config"
	"github.com/jfbm74/glpi-analytics/services/analytics/engine"
	"github.com/jfbm74/glpi-analytics/services/analytics/history"
	"github.com/jfbm74/glpi-analytics/services/analytics/monitor"
	"github.com/jfbm74/glpi-analytics/services/analytics/observability"
	"github.com/jfbm74/glpi-analytics/services/analytics/prompts"
	"github.com/jfbm74/glpi-analytics/services/analytics/routes"
	"github.com/jfbm74/glpi-analytics/services/llm"
)

// initTracer wires the OTLP exporter when a collector endpoint is
// configured. Without one the service runs untraced rather than
// refusing to start: small deployments of the dashboard have no
// collector at all.
func initTracer() (func(context.Context), error) {
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("glpi-analytics")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func newInvoker(cfg config.Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.LLMBackend {
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	default:
		client, err = llm.NewGeminiClient(context.Background())
		slog.Info("Using Gemini LLM backend")
	}
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute > 0 {
		client = llm.NewRateLimitedClient(client, cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}
	return client, nil
}

func main() {
	cfg := config.FromEnv()
	if path := os.Getenv("ANALYTICS_CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			log.Fatalf("failed to load config file: %v", err)
		}
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		log.Fatalf("invalid configuration: %v", problems)
	}

	appLogger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  cfg.LogDir,
		Service: "glpi-analytics",
		JSON:    true,
	})
	defer appLogger.Close()
	slog.SetDefault(appLogger.Slog())

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	invoker, err := newInvoker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize LLM client: %v", err)
	}

	// History persists next to the dashboard's other metrics data. A
	// broken store degrades to memory-only history, not a dead service.
	var ledgerOpts []history.Option
	store, err := history.OpenBadger(history.DefaultBadgerConfig(
		filepath.Join(cfg.MetricsDir, "history"), cfg.RetentionDays))
	if err != nil {
		slog.Warn("history persistence unavailable, running in-memory only", "error", err)
	} else {
		ledgerOpts = append(ledgerOpts, history.WithStore(store))
	}
	ledger := history.NewLedger(cfg.HistoryLimit, cfg.RetentionDays, appLogger.Slog(), ledgerOpts...)
	defer ledger.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	promptBuilder := prompts.NewBuilder()
	orchestrator := engine.New(engine.Options{
		Invoker: invoker,
		Prompts: promptBuilder,
		Ledger:  ledger,
		Metrics: metrics,
		Logger:  appLogger.Slog(),
		Config:  cfg,
	})
	healthMonitor := monitor.New(orchestrator, ledger, monitor.NewHostSampler(), cfg, appLogger.Slog())

	// Background janitors: expired cache entries hourly, history
	// retention daily.
	go func() {
		for range time.Tick(time.Hour) {
			if dropped := orchestrator.SweepCache(); dropped > 0 {
				slog.Info("cache sweep", "dropped", dropped)
			}
		}
	}()
	go func() {
		for range time.Tick(24 * time.Hour) {
			if pruned := ledger.Prune(); pruned > 0 {
				slog.Info("history pruned", "records", pruned)
			}
		}
	}()

	routes.RegisterValidators()
	router := gin.Default()
	router.Use(otelgin.Middleware("glpi-analytics"))
	routes.SetupRoutes(router, routes.Deps{
		Orchestrator: orchestrator,
		Ledger:       ledger,
		Monitor:      healthMonitor,
		Prompts:      promptBuilder,
		Invoker:      invoker,
		Config:       cfg,
	})

	slog.Info("starting the analytics server", "port", cfg.Port,
		"backend", cfg.LLMBackend, "model", invoker.Model(),
		"max_concurrent", cfg.MaxConcurrentAnalyses)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
