// Package api provides the HTTP surface of the Argus ingestion gateway.
//
// It exposes the device-facing telemetry submission endpoint, read
// endpoints for dashboards, the administrative registry surface, and
// health/readiness probes.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arguswatcher/argus-ingest/internal/device"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/config"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/database"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/influxdb"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/logging"
	"github.com/arguswatcher/argus-ingest/internal/infrastructure/mqtt"
	"github.com/arguswatcher/argus-ingest/internal/ingest"
	"github.com/arguswatcher/argus-ingest/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Gateway  *ingest.Gateway
	Auth     *device.Authenticator
	Repo     device.Repository
	Store    telemetry.Store
	DB       *database.DB
	MQTT     *mqtt.Client     // optional: cross-instance invalidation fan-out
	Influx   *influxdb.Client // optional: time-series mirror, reported by readiness
	Version  string
}

// Server is the HTTP server for the ingestion gateway.
type Server struct {
	cfg     config.APIConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	gateway *ingest.Gateway
	auth    *device.Authenticator
	repo    device.Repository
	store   telemetry.Store
	db      *database.DB
	mqtt    *mqtt.Client
	influx  *influxdb.Client
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("ingestion gateway is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("device authenticator is required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("device repository is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("telemetry store is required")
	}
	// MQTT is optional; without it, invalidation is local-instance only.

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		gateway: deps.Gateway,
		auth:    deps.Auth,
		repo:    deps.Repo,
		store:   deps.Store,
		db:      deps.DB,
		mqtt:    deps.MQTT,
		influx:  deps.Influx,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting for in-flight
// requests before closing remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
