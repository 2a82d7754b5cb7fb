// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/auth/postgres"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/httpapi"
	"github.com/holomush/authd/internal/observability"
)

// newServeCmd creates the serve subcommand.
func newServeCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the authentication API",
		Long: `Serve the authentication routes over HTTP, plus metrics and health
probes on the metrics address. Stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, deps)
		},
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, deps *Deps) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	if err := cfg.RequireTokenSecret(); err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting authd",
		"http_addr", cfg.HTTP.Addr,
		"base_path", cfg.HTTP.BasePath,
		"metrics_addr", cfg.Metrics.Addr,
		"rotate_refresh", cfg.Refresh.Rotate,
		"expose_otp", cfg.OTP.ExposeCode,
	)
	if cfg.OTP.ExposeCode {
		logger.Warn("otp codes are returned in API responses; do not use in production")
	}

	pool, err := deps.OpenPool(ctx, cfg.Database.URL, cfg.Database.ConnectTimeout)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, pool.Ping)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		metrics = obsServer.Metrics()
	}

	svc, err := buildService(cfg, pool, logger, metrics)
	if err != nil {
		stopServer(obsServer, cfg)
		return err
	}

	apiOpts := httpapi.Options{
		BasePath:       cfg.HTTP.BasePath,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	}
	if metrics != nil {
		apiOpts.Observer = metrics
	}
	api, err := httpapi.New(svc, apiOpts)
	if err != nil {
		stopServer(obsServer, cfg)
		return err
	}

	apiServer := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, api.Handler())
	apiErrCh, err := apiServer.Start()
	if err != nil {
		stopServer(obsServer, cfg)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api")

	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	cmd.Println("authd started")
	logger.Info("authd ready", "http_addr", apiServer.Addr(), "metrics_addr", metricsAddr)
	deps.Started(apiServer.Addr(), metricsAddr)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return serverFailure(ctx)
}

// buildService wires the session engine onto the PostgreSQL repositories.
// metrics may be nil.
func buildService(cfg *config.Config, db postgres.DB, logger *slog.Logger, metrics *observability.Metrics) (*auth.Service, error) {
	codec, err := auth.NewJWTCodec([]byte(cfg.Token.Secret), cfg.Token.Issuer)
	if err != nil {
		return nil, err
	}

	opts := []auth.ServiceOption{
		auth.WithLogger(logger),
		auth.WithCodeSender(auth.LogSender{Logger: logger}),
	}
	if metrics != nil {
		opts = append(opts, auth.WithRecorder(metrics))
	}

	return auth.NewService(
		postgres.NewUserRepository(db),
		postgres.NewRefreshTokenRepository(db),
		postgres.NewOTPRepository(db),
		auth.NewArgon2idHasher(),
		codec,
		auth.ServiceConfig{
			AccessTokenTTL:      cfg.Token.AccessTTL,
			ExposeOTPCode:       cfg.OTP.ExposeCode,
			RotateRefreshTokens: cfg.Refresh.Rotate,
		},
		opts...,
	)
}

func stopServer(srv ObservabilityServer, cfg *config.Config) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx with a SERVER_FAILED cause when a server
// reports a serve error. It exits when an error arrives, the channel closes
// or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelCauseFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel(oops.Code("SERVER_FAILED").With("server", serverName).Wrap(err))
		}
	case <-ctx.Done():
	}
}

// serverFailure returns the serve error that ended ctx, or nil when ctx
// ended by cancellation.
func serverFailure(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return nil
	}
	return cause
}
