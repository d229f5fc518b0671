package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedmux/feedgate/internal/history"
	"github.com/feedmux/feedgate/internal/subscription"
	"github.com/feedmux/feedgate/internal/tenant"
	"github.com/feedmux/feedgate/internal/upstream"
)

// Config holds server settings.
type Config struct {
	Addr          string // Listen address, e.g. ":8080"
	ListenerQueue int    // Per-connection outbound queue size
}

// Server serves the REST and WebSocket surface.
type Server struct {
	cfg     Config
	mgr     *subscription.Manager
	tenants *tenant.Registry
	venue   *upstream.Client
	logger  *slog.Logger

	// Optional; nil when history recording is disabled.
	recorder *history.Recorder

	engine *gin.Engine
	srv    *http.Server

	connMu sync.Mutex
	conns  map[*wsClient]struct{}
}

// New builds a Server over the given core components. recorder may be nil.
func New(
	cfg Config,
	mgr *subscription.Manager,
	tenants *tenant.Registry,
	venue *upstream.Client,
	recorder *history.Recorder,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenerQueue <= 0 {
		cfg.ListenerQueue = 64
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		mgr:      mgr,
		tenants:  tenants,
		venue:    venue,
		recorder: recorder,
		logger:   logger,
		engine:   engine,
		conns:    make(map[*wsClient]struct{}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/stats", s.getStats)
		v1.GET("/upstream/status", s.getUpstreamStatus)

		v1.GET("/tenants", s.listTenants)
		v1.POST("/tenants", s.upsertTenant)
		v1.POST("/tenants/:tenant/suspend", s.suspendTenant)
		v1.POST("/tenants/:tenant/activate", s.activateTenant)

		v1.GET("/tenants/:tenant/subscriptions", s.listSubscriptions)
		v1.GET("/tenants/:tenant/ticks/:symbol", s.getTick)
		v1.GET("/tenants/:tenant/orderbooks/:symbol", s.getOrderBook)
		v1.GET("/tenants/:tenant/accounts/:account/positions", s.getPositions)
	}

	s.engine.GET("/ws", s.handleWebSocket)
}

// Start begins listening. Returns once the listener is running.
func (s *Server) Start(_ context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()

	s.logger.Info("server listening", "addr", s.cfg.Addr)
	return nil
}

// Stop closes all WebSocket connections and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")

	s.connMu.Lock()
	for c := range s.conns {
		c.close()
	}
	s.connMu.Unlock()

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) addConn(c *wsClient) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) removeConn(c *wsClient) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

func (s *Server) connCount() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}
