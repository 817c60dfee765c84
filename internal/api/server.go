package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/feeding"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/infrastructure/config"
	"github.com/stablelink/stable-core/internal/infrastructure/logging"
	"github.com/stablelink/stable-core/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// FeedingService is the slice of the feeding orchestrator the owner
// socket drives.
type FeedingService interface {
	Start(ctx context.Context, horseID string, amountKg float64, userID string) (*feeding.Feeding, error)
}

// StreamService is the slice of the stream session service the
// transports drive.
type StreamService interface {
	Start(ctx context.Context, horseID, userID string) error
	Stop(ctx context.Context, horseID, userID string) error
	ActiveHorse(ctx context.Context, userID string) (string, error)
}

// SessionTracker is the occupancy tracker driven by connection
// lifecycle events.
type SessionTracker interface {
	Connect(ctx context.Context, connID, userID string) error
	Disconnect(connID string)
	Logout(ctx context.Context, connID string)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Devices  device.Repository
	Horses   horse.Repository
	Feedings FeedingService
	Streams  StreamService
	Sessions SessionTracker
	Relay    *relay.Relay
	Hub      *Hub     // If set, the server uses this hub instead of creating its own
	Metrics  *Metrics // Optional transport instruments
	// Placeholder is the JPEG served to viewers when a camera drops.
	// Optional; viewers close without a final frame when empty.
	Placeholder []byte
	Version     string
}

// Server is the HTTP and WebSocket server for StableLink Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	devices     device.Repository
	horses      horse.Repository
	feedings    FeedingService
	streams     StreamService
	sessions    SessionTracker
	relay       *relay.Relay
	placeholder []byte
	version     string
	server      *http.Server
	hub         *Hub
	metrics     *Metrics
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil || deps.Horses == nil {
		return nil, fmt.Errorf("device and horse repositories are required")
	}
	if deps.Feedings == nil || deps.Streams == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("feeding, stream, and session services are required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("frame relay is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		devices:     deps.Devices,
		horses:      deps.Horses,
		feedings:    deps.Feedings,
		streams:     deps.Streams,
		sessions:    deps.Sessions,
		relay:       deps.Relay,
		placeholder: deps.Placeholder,
		version:     deps.Version,
		hub:         deps.Hub,
		metrics:     deps.Metrics,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// The hub is usually injected: the domain services broadcast
	// through it, so main creates it before them.
	if s.hub == nil {
		s.hub = NewHub(s.logger, nil)
	}
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		// Viewer responses stream indefinitely; WriteTimeout would cut
		// them off, so only idle and read are bounded.
		IdleTimeout: time.Duration(s.cfg.Timeouts.Idle) * time.Second,
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
