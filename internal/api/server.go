// Package api provides the HTTP REST API and WebSocket server for
// SoundWeave Core.
//
// It exposes the entity registry, the discovery inbox, and hub status to
// user interfaces, and relays discovery events to WebSocket subscribers.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
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

	"github.com/soundweave/soundweave-core/internal/bridges/audionet"
	"github.com/soundweave/soundweave-core/internal/discovery"
	"github.com/soundweave/soundweave-core/internal/entity"
	"github.com/soundweave/soundweave-core/internal/infrastructure/config"
	"github.com/soundweave/soundweave-core/internal/infrastructure/logging"
	"github.com/soundweave/soundweave-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *entity.Registry
	Inbox    *discovery.Inbox

	// Coordinator and Bridge are optional; hub and scan endpoints return
	// 503 when the hub connection is not configured.
	Coordinator *audionet.Coordinator
	Bridge      *audionet.Bridge

	// MQTT is optional; health reporting degrades gracefully without it.
	MQTT *mqtt.Client

	// ExternalHub, when set, is used instead of a server-owned hub. This
	// lets other components broadcast to WebSocket clients before the
	// server exists.
	ExternalHub *Hub

	Version string
}

// Server is the HTTP API server for SoundWeave Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	registry    *entity.Registry
	inbox       *discovery.Inbox
	coordinator *audionet.Coordinator
	bridge      *audionet.Bridge
	mqtt        *mqtt.Client
	version     string

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("entity registry is required")
	}
	if deps.Inbox == nil {
		return nil, fmt.Errorf("discovery inbox is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		registry:    deps.Registry,
		inbox:       deps.Inbox,
		coordinator: deps.Coordinator,
		bridge:      deps.Bridge,
		mqtt:        deps.MQTT,
		version:     deps.Version,
		tickets:     newTicketStore(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Start begins listening for HTTP connections and relaying discovery events
// to WebSocket clients. It returns immediately; the listener runs in a
// background goroutine.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.hub.Run(runCtx)
	go s.cleanTicketsLoop(runCtx)
	s.relayInboxEvents()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "addr", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()

	return nil
}

// relayInboxEvents forwards discovery inbox changes to WebSocket clients
// subscribed to the discovery channel.
func (s *Server) relayInboxEvents() {
	s.inbox.Subscribe(func(ev discovery.Event) {
		s.hub.Broadcast(ChannelDiscovery, map[string]any{
			"event":     string(ev.Type),
			"id":        ev.Result.ID,
			"kind":      string(ev.Result.Kind),
			"label":     ev.Result.Label,
			"bridge_id": ev.Result.BridgeID,
		})
	})
}

// Close gracefully shuts down the server, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	return s.server.Shutdown(ctx)
}

// HealthCheck reports whether the server is able to serve requests.
func (s *Server) HealthCheck(_ context.Context) error {
	if s.server == nil {
		return fmt.Errorf("api: server not started")
	}
	return nil
}
