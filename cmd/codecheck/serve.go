// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/codecheck/services/codecheck"
	"github.com/AleutianAI/codecheck/services/codecheck/audit"
	"github.com/AleutianAI/codecheck/services/codecheck/observability"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the validation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "override the configured listen port")
	return cmd
}

// openAuditSink opens the configured audit store. Both returns are nil
// when auditing is disabled.
func (a *app) openAuditSink() (*audit.Store, validate.AuditSink, error) {
	if !a.cfg.Audit.Enabled {
		return nil, nil, nil
	}

	storeCfg := audit.DefaultConfig(a.cfg.Audit.Path)
	storeCfg.InMemory = a.cfg.Audit.InMemory
	storeCfg.Retention = a.cfg.Audit.Retention
	storeCfg.Logger = a.logger.Slog()

	store, err := audit.Open(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit store: %w", err)
	}
	var sink validate.AuditSink = store
	if a.cfg.Audit.LogRecords {
		sink = audit.MultiSink{store, audit.LogSink{Logger: a.logger.Slog()}}
	}
	return store, sink, nil
}

func (a *app) runServe(ctx context.Context) error {
	logger := a.logger.Slog()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := initTracer(ctx, a.cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	store, sink, err := a.openAuditSink()
	if err != nil {
		return err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close audit store", "error", err)
			}
		}()
	}

	opts, err := a.validatorOptions()
	if err != nil {
		return err
	}
	opts.AuditSink = sink
	opts.OnAuditError = metrics.AuditFailed
	validator := validate.NewValidator(opts)

	handlerCfg := codecheck.HandlerConfig{
		Validator:      validator,
		Metrics:        metrics,
		MaxSourceBytes: a.cfg.Limits.MaxSourceBytes,
		Logger:         logger,
	}
	if store != nil {
		handlerCfg.Audit = store
	}
	handlers := codecheck.NewHandlers(handlerCfg)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(a.cfg.Tracing.ServiceName))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	codecheck.RegisterRoutes(router.Group("/v1"), handlers,
		codecheck.NewLimiter(a.cfg.Limits.RatePerSecond, a.cfg.Limits.Burst))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("codecheck listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("catalog_version", validator.Catalog().Version()),
			slog.Bool("audit", store != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := validator.Drain(sctx); err != nil {
		logger.Warn("audit writes still pending at shutdown", "error", err)
	}
	return nil
}
