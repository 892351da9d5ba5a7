package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wesmun/nfc-core/internal/access"
	"github.com/wesmun/nfc-core/internal/auth"
	"github.com/wesmun/nfc-core/internal/infrastructure/config"
	"github.com/wesmun/nfc-core/internal/infrastructure/logging"
	"github.com/wesmun/nfc-core/internal/roster"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionReporter reports whether an optional side channel is connected.
type ConnectionReporter interface {
	IsConnected() bool
}

// DropCounter reports how many events the bus has discarded.
type DropCounter interface {
	Dropped() int64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Auth        config.AuthConfig
	Site        config.SiteConfig
	Logger      *logging.Logger
	AuthService *auth.Service
	Roster      *roster.Service

	// Hub receives events from the bus. If nil the server creates its own.
	Hub *Hub

	// Optional sources for GET /api/metrics.
	DB     *sql.DB
	MQTT   ConnectionReporter
	Influx ConnectionReporter
	Events DropCounter

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	authCfg config.AuthConfig
	site    config.SiteConfig
	logger  *logging.Logger
	auth    *auth.Service
	roster  *roster.Service
	gate    *access.Gate
	tickets *ticketLedger
	db      *sql.DB
	mqtt    ConnectionReporter
	influx  ConnectionReporter
	events  DropCounter
	version string
	server  *http.Server
	hub     *Hub
	ownHub  bool
	started time.Time
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.AuthService == nil {
		return nil, errors.New("auth service is required")
	}
	if deps.Roster == nil {
		return nil, errors.New("roster service is required")
	}
	if deps.Auth.Ticket.Secret == "" {
		return nil, errors.New("ticket secret is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		authCfg: deps.Auth,
		site:    deps.Site,
		logger:  deps.Logger.With("component", "api"),
		auth:    deps.AuthService,
		roster:  deps.Roster,
		gate:    access.NewGate(deps.AuthService),
		tickets: newTicketLedger(),
		db:      deps.DB,
		mqtt:    deps.MQTT,
		influx:  deps.Influx,
		events:  deps.Events,
		version: deps.Version,
		hub:     deps.Hub,
		started: time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(s.logger)
		s.ownHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub so it can be subscribed to the event bus.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the ticket ledger cleanup and the HTTP listener in background
// goroutines. Stop it with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.tickets.cleanLoop(srvCtx, s.authCfg.TicketTTL())

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
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

// Close gracefully shuts down the API server.
//
// It disconnects feed clients of an owned hub, then waits up to 10 seconds
// for in-flight requests to complete before forcing remaining connections shut.
func (s *Server) Close() error {
	if s.ownHub {
		s.hub.Close()
	}
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
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
		return errors.New("api server not started")
	}
	return nil
}
