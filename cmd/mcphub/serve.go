package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/spf13/cobra"

	"github.com/vikashloomba/mcp-session-hub/internal/config"
	"github.com/vikashloomba/mcp-session-hub/internal/telemetry"
	"github.com/vikashloomba/mcp-session-hub/pkg/hubapi"
	"github.com/vikashloomba/mcp-session-hub/pkg/mcphub"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the hub HTTP API",
		Long: `Start the hub HTTP API and connect the endpoints listed in the endpoints file.

Endpoints connected by this command have no sampling or elicitation callback
handlers, so endpoint requests for completions or user input are refused.
Callbacks are available only to programs that embed pkg/mcphub or pkg/hubapi
and supply their own handlers.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides MCPHUB_ADDR)")
	cmd.Flags().String("endpoints", "", "YAML endpoints file connected at startup (overrides MCPHUB_ENDPOINTS_FILE)")
	cmd.Flags().Duration("timeout", 0, "Handshake and per-call timeout (overrides MCPHUB_TIMEOUT)")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origin, repeatable (overrides MCPHUB_CORS_ORIGINS)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides MCPHUB_LOG_LEVEL)")
	cmd.Flags().String("log-format", "", "Log format: text or json (overrides MCPHUB_LOG_FORMAT)")
	cmd.Flags().Bool("log-jsonrpc", false, "Log every JSON-RPC message at debug level")

	return cmd
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("endpoints") {
		cfg.EndpointsFile, _ = flags.GetString("endpoints")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("cors-origin") {
		cfg.CORSOrigins, _ = flags.GetStringSlice("cors-origin")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("log-jsonrpc") {
		cfg.LogJSONRPC, _ = flags.GetBool("log-jsonrpc")
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerProvider, shutdownTracing, err := telemetry.Setup(ctx, "mcphub", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	registry := mcphub.NewRegistry(&mcphub.Options{
		ClientName:     cfg.ClientName,
		ClientVersion:  version,
		Timeout:        cfg.Timeout,
		Logger:         logger,
		TracerProvider: tracerProvider,
		LogJSONRPC:     cfg.LogJSONRPC,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		registry.DisconnectAll(shutdownCtx)
		logger.Info("all endpoints disconnected")
	}()

	if cfg.EndpointsFile != "" {
		if err := connectEndpoints(ctx, registry, cfg.EndpointsFile, logger); err != nil {
			return err
		}
	}

	apiOpts := &hubapi.Options{
		Addr:            cfg.Addr,
		Logger:          logger,
		AllowedOrigins:  cfg.CORSOrigins,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}
	if cfg.APIToken != "" {
		apiOpts.TokenVerifier = staticTokenVerifier(cfg.APIToken)
	}
	api, err := hubapi.NewServer(registry, apiOpts)
	if err != nil {
		return err
	}

	if err := api.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("hub api stopped: %w", err)
	}
	return nil
}

// connectEndpoints connects every endpoint in path. Individual failures are
// logged and skipped.
func connectEndpoints(ctx context.Context, registry *mcphub.Registry, path string, logger *slog.Logger) error {
	endpoints, err := config.LoadEndpoints(path)
	if err != nil {
		return err
	}
	for _, ep := range endpoints {
		if err := registry.Connect(ctx, ep.ID, ep.URL, nil, nil); err != nil {
			logger.Warn("startup connect failed", "endpoint", ep.ID, "url", ep.URL, "error", err)
		}
	}
	return nil
}

func staticTokenVerifier(expected string) auth.TokenVerifier {
	return func(_ context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return nil, auth.ErrInvalidToken
		}
		return &auth.TokenInfo{Expiration: time.Now().Add(time.Hour)}, nil
	}
}
