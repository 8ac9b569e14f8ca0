package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/auth"
	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/infrastructure/config"
	"github.com/nerrad567/regsync/internal/infrastructure/logging"
	"github.com/nerrad567/regsync/internal/preset"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is an optional dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Engine   *engine.Engine
	Presets  *preset.Manager
	Accounts *auth.Accounts   // required when Security.AuthEnabled
	Audit    audit.Repository // optional

	// Checks are reported by name on /health; a failing check degrades the
	// status but never fails the request.
	Checks map[string]HealthChecker

	Site    string
	Role    string
	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware and the WebSocket hub.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	engine   *engine.Engine
	presets  *preset.Manager
	accounts *auth.Accounts
	checks   map[string]HealthChecker
	site     string
	role     string
	version  string

	auditRepo audit.Repository
	auditCh   chan *audit.AuditLog

	hub     *Hub
	tickets *ticketStore
	server  *http.Server
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Presets == nil {
		return nil, fmt.Errorf("preset manager is required")
	}
	if deps.Security.AuthEnabled && (deps.Accounts == nil || deps.Security.JWT.Secret == "") {
		return nil, fmt.Errorf("accounts and a JWT secret are required when auth is enabled")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		engine:    deps.Engine,
		presets:   deps.Presets,
		accounts:  deps.Accounts,
		checks:    deps.Checks,
		site:      deps.Site,
		role:      deps.Role,
		version:   deps.Version,
		auditRepo: deps.Audit,
		tickets:   newTicketStore(),
		hub:       NewHub(deps.WS, deps.Logger),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}
	s.subscribeEvents()
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the background workers and the HTTP listener.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)
	if s.auditCh != nil {
		go func() {
			defer close(s.done)
			s.drainAuditLog(srvCtx)
		}()
	} else {
		close(s.done)
	}

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
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
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

// Close gracefully shuts down the API server and flushes pending audit
// entries.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	<-s.done

	if err != nil {
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
