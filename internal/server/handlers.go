package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feedmux/feedgate/internal/model"
	"github.com/feedmux/feedgate/internal/version"
)

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"version":     version.String(),
		"connections": s.connCount(),
	})
}

func (s *Server) getStats(c *gin.Context) {
	resp := gin.H{"core": s.mgr.GetServiceStats()}
	if s.recorder != nil {
		resp["history"] = s.recorder.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getUpstreamStatus(c *gin.Context) {
	status, err := s.venue.GetStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// -----------------------------------------------------------------------------
// Tenant administration
// -----------------------------------------------------------------------------

func (s *Server) listTenants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tenants": s.tenants.List()})
}

func (s *Server) upsertTenant(c *gin.Context) {
	var t model.Tenant
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if t.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant id is required"})
		return
	}
	switch t.Status {
	case "", model.TenantActive, model.TenantSuspended:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + string(t.Status)})
		return
	}

	s.tenants.Upsert(t)
	stored, _ := s.tenants.GetTenant(t.ID)
	c.JSON(http.StatusOK, stored)
}

func (s *Server) suspendTenant(c *gin.Context) {
	s.setTenantStatus(c, model.TenantSuspended)
}

func (s *Server) activateTenant(c *gin.Context) {
	s.setTenantStatus(c, model.TenantActive)
}

func (s *Server) setTenantStatus(c *gin.Context, status model.TenantStatus) {
	id := c.Param("tenant")
	if !s.tenants.SetStatus(id, status) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant: " + id})
		return
	}
	s.logger.Info("tenant status changed", "tenant", id, "status", status)
	t, _ := s.tenants.GetTenant(id)
	c.JSON(http.StatusOK, t)
}

// -----------------------------------------------------------------------------
// Snapshot reads
// -----------------------------------------------------------------------------

func (s *Server) listSubscriptions(c *gin.Context) {
	id := c.Param("tenant")
	if _, ok := s.tenants.GetTenant(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant: " + id})
		return
	}
	keys := s.mgr.ListActiveKeys(id)
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

func (s *Server) getTick(c *gin.Context) {
	key := model.TickKey(c.Param("tenant"), c.Param("symbol"))
	u, ok := s.snapshot(c, key)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, u.Tick)
}

func (s *Server) getOrderBook(c *gin.Context) {
	key := model.OrderBookKey(c.Param("tenant"), c.Param("symbol"))
	u, ok := s.snapshot(c, key)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, u.OrderBook)
}

func (s *Server) getPositions(c *gin.Context) {
	key := model.PositionKey(c.Param("tenant"), c.Param("account"))
	u, ok := s.snapshot(c, key)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, u.Positions)
}

// snapshot resolves the latest stored update for key, writing the error
// response itself when there is nothing to serve.
func (s *Server) snapshot(c *gin.Context, key model.Key) (model.Update, bool) {
	if _, ok := s.tenants.GetTenant(key.Tenant); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant: " + key.Tenant})
		return model.Update{}, false
	}
	u, ok := s.mgr.GetSnapshot(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for " + key.String()})
		return model.Update{}, false
	}
	return u, true
}
