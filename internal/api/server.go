package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/couch-control/internal/configentry"
	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/infrastructure/config"
	"github.com/nerrad567/couch-control/internal/infrastructure/logging"
	"github.com/nerrad567/couch-control/internal/integration"
	"github.com/nerrad567/couch-control/internal/schema"
	"github.com/nerrad567/couch-control/internal/service"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// Deps is everything the HTTP and WebSocket surface needs. Entries, Flows
// and Services may be nil; their routes then answer 404.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Registry    *entity.Registry
	States      *entity.StateMachine
	Integration *integration.Manager
	Entries     *configentry.Manager
	Flows       *configentry.Flows
	Services    *service.Registry
	Schema      *schema.Validator
	Version     string
}

// Server serves the couch_control REST routes, the config flow routes and
// the WebSocket command channel.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	registry    *entity.Registry
	states      *entity.StateMachine
	integration *integration.Manager
	entries     *configentry.Manager
	flows       *configentry.Flows
	services    *service.Registry
	schema      *schema.Validator
	version     string

	hub    *Hub
	server *http.Server
	stop   context.CancelFunc
}

// New checks deps and builds a Server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	var missing []error
	for name, ok := range map[string]bool{
		"logger":              deps.Logger != nil,
		"entity registry":     deps.Registry != nil,
		"state machine":       deps.States != nil,
		"integration":         deps.Integration != nil,
		"schema validator":    deps.Schema != nil,
		"security.jwt.secret": deps.Security.JWT.Secret != "",
	} {
		if !ok {
			missing = append(missing, fmt.Errorf("%s is required", name))
		}
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger.With("component", "api"),
		registry:    deps.Registry,
		states:      deps.States,
		integration: deps.Integration,
		entries:     deps.Entries,
		flows:       deps.Flows,
		services:    deps.Services,
		schema:      deps.Schema,
		version:     deps.Version,
		hub:         NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start binds the listen address, so a port clash is reported here, then
// serves in the background until Close. ctx bounds the WebSocket hub.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listening on %s: %w", addr, err)
	}

	hubCtx, stop := context.WithCancel(ctx)
	s.stop = stop
	go s.hub.Run(hubCtx)

	read := time.Duration(s.cfg.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api listening", "address", ln.Addr().String(), "tls", s.cfg.TLS.Enabled)
		var err error
		if s.cfg.TLS.Enabled {
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", "error", err)
		}
	}()
	return nil
}

// Close drops WebSocket clients, which disposes their subscriptions, then
// drains HTTP requests for up to shutdownGrace.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.stop != nil {
		s.stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}

// HealthCheck fails until Start has run.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
