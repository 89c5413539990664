// Package api provides the HTTP control API and WebSocket event stream for a
// beamline.
//
// It exposes the shutter, saved stage positions, plate leveling and stage
// sweeps to operator consoles, and streams asset documents and state changes
// to subscribed WebSocket clients.
//
// The server follows the same lifecycle pattern as other infrastructure components:
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
	"sync"
	"time"

	"github.com/ssrltools/beamcore/internal/infrastructure/config"
	"github.com/ssrltools/beamcore/internal/infrastructure/logging"
	"github.com/ssrltools/beamcore/internal/leveling"
	"github.com/ssrltools/beamcore/internal/scan"
	"github.com/ssrltools/beamcore/internal/shutter"
	"github.com/ssrltools/beamcore/internal/stage"
	"github.com/ssrltools/beamcore/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Shutter is the beam shutter controlled through the API.
type Shutter interface {
	Name() string
	Choices() []string
	State(ctx context.Context) (shutter.State, error)
	Set(ctx context.Context, target string) (*status.Future, error)
}

// Samples is the saved stage position registry.
type Samples interface {
	Len() int
	LocList(sel stage.Selector) (map[string][]float64, error)
	SaveSample(ctx context.Context, idx int) error
	SaveCenter(ctx context.Context) error
	SetAllVertTheta(ctx context.Context) error
	MoveTo(ctx context.Context, sel stage.Selector) error
}

// LevelFunc levels the sample plate along one axis ("x" or "y").
type LevelFunc func(ctx context.Context, axis string) (leveling.Report, error)

// ScanFunc runs one stage sweep.
type ScanFunc func(ctx context.Context, req ScanRequest) (scan.Summary, error)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Shutter Shutter
	Samples Samples

	// Level and Scan are optional; their routes answer 503 without them.
	Level LevelFunc
	Scan  ScanFunc

	Health  func(context.Context) error
	Hub     *Hub // If set, the server uses this hub instead of creating its own
	Version string
}

// Server is the HTTP API server for a beamline.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	shutter Shutter
	samples Samples
	level   LevelFunc
	scan    ScanFunc
	health  func(context.Context) error
	version string
	started time.Time

	// motion serialises operations that move stage axes.
	motion sync.Mutex

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Shutter == nil {
		return nil, fmt.Errorf("shutter is required")
	}
	if deps.Samples == nil {
		return nil, fmt.Errorf("sample registry is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		shutter: deps.Shutter,
		samples: deps.Samples,
		level:   deps.Level,
		scan:    deps.Scan,
		health:  deps.Health,
		version: deps.Version,
		started: time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless one was injected) and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
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
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
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

// HealthCheck verifies the API server is running and responsive.
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
