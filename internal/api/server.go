package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/config"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/logging"
	"github.com/aigrow/aigrow-device-server/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every monitored component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Database is the relational store as seen by the status endpoints.
type Database interface {
	HealthChecker
	Stats() sql.DBStats
}

// Broker is the MQTT connection as seen by the status endpoints.
type Broker interface {
	HealthChecker
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
// InfluxDB is optional; a nil value reports the mirror as disabled.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	DB       Database
	MQTT     Broker
	InfluxDB HealthChecker
	Stats    *ingest.Stats
	Version  string
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	db        Database
	mqtt      Broker
	influx    HealthChecker
	stats     *ingest.Stats
	version   string
	startTime time.Time

	server *http.Server
	addr   net.Addr
	mu     sync.Mutex
}

// New creates the status API server.
//
// The server is not started until Start is called.
//
// Parameters:
//   - deps: DB and Stats are required; MQTT and InfluxDB may be nil and
//     are then reported as unavailable and disabled respectively
//
// Returns:
//   - *Server: configured server ready to start
//   - error: if a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Stats == nil {
		return nil, fmt.Errorf("message stats are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Server{
		cfg:       deps.Config,
		logger:    logger,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		stats:     deps.Stats,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// A port already in use is reported here rather than logged later.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}
	s.addr = ln.Addr()

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}(s.server)

	s.logger.Info("API server started", "address", s.addr.String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It stops accepting connections and waits up to 10 seconds for in-flight
// requests to complete. Calling Close on a server that is not running is a
// no-op.
//
// Returns:
//   - error: if shutdown exceeds the grace period
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
