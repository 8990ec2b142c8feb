package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danmuck/s7snet/internal/client"
	"github.com/danmuck/s7snet/internal/config"
	"github.com/danmuck/s7snet/internal/logging"
	"github.com/danmuck/s7snet/internal/observability"
	"github.com/danmuck/s7snet/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "s7s.toml"

type rootOptions struct {
	configPath  string
	address     string
	insecure    bool
	metricsAddr string
}

func (o *rootOptions) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", defaultConfigPath, "client config file (skipped when missing and --config is not set)")
	flags.StringVarP(&o.address, "address", "a", "", "server address host:port, overrides the config file")
	flags.BoolVar(&o.insecure, "insecure", false, "skip server certificate verification")
	flags.StringVar(&o.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
}

// resolveConfig loads the config file, applies env and flag overrides and
// fills a missing uuid.
func (o *rootOptions) resolveConfig(cmd *cobra.Command, getenv func(string) string, logger zerolog.Logger) (config.Client, error) {
	cfg := config.Default()
	loaded, err := config.Load(o.configPath)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		logger.Debug().Str("path", o.configPath).Msg("no config file, using defaults")
	default:
		return config.Client{}, err
	}

	config.ApplyEnv(&cfg, getenv)
	if addr := strings.TrimSpace(o.address); addr != "" {
		cfg.Session.Address = addr
	}
	if o.insecure {
		cfg.Session.TLS.InsecureSkipVerify = true
	}
	if strings.TrimSpace(cfg.Session.UUID) == "" {
		cfg.Session.UUID = uuid.NewString()
		logger.Warn().Str("uuid", cfg.Session.UUID).Msg("no installation uuid configured, generated one for this run")
	}
	if err := config.Validate(cfg); err != nil {
		return config.Client{}, err
	}
	return cfg, nil
}

type app struct {
	cfg     config.Client
	logger  zerolog.Logger
	reg     *prometheus.Registry
	metrics *observability.Metrics
}

func (o *rootOptions) newRuntime(cmd *cobra.Command, stderr io.Writer) (*app, error) {
	logger := logging.New(logging.ProfileRuntime, stderr)
	cfg, err := o.resolveConfig(cmd, os.Getenv, logger)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	return &app{
		cfg:     cfg,
		logger:  logger,
		reg:     reg,
		metrics: observability.NewMetrics(reg),
	}, nil
}

func (r *app) dial(ctx context.Context) (*client.Conn, error) {
	return client.DialWithRetry(ctx, r.cfg.Session, r.cfg.MaxConnectAttempts,
		client.WithLogger(r.logger),
		client.WithMetrics(r.metrics),
	)
}

// serveStatus exposes metrics and health for conn until ctx ends.
func (r *app) serveStatus(ctx context.Context, addr string, conn *client.Conn) {
	if strings.TrimSpace(addr) == "" {
		return
	}
	router := observability.NewRouter(r.reg, r.logger, func() observability.Status {
		return connStatus(conn)
	})
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		r.logger.Info().Str("addr", addr).Msg("serving status endpoint")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error().Err(err).Msg("status endpoint stopped")
		}
	}()
}

func connStatus(conn *client.Conn) observability.Status {
	state := conn.State()
	st := observability.Status{
		State:     state.String(),
		Connected: state == session.StateConnected,
	}
	if sess, ok := conn.Session(); ok {
		st.ServerCVID = sess.ServerCVID
		st.SID = sess.SID
	}
	if err := conn.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}
