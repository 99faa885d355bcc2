// Package api exposes the coordinator over HTTP. Handlers translate
// between JSON and store operations; all state changes still go through
// the coordinator so tick semantics and journaling are preserved.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/warehouse-sim/warehouse-sim/sim"
	"github.com/warehouse-sim/warehouse-sim/sim/oracle"
)

// Server wires HTTP routes to a coordinator.
type Server struct {
	coord  *sim.Coordinator
	engine *gin.Engine
}

// NewServer builds the router. Release mode keeps gin's debug chatter
// out of the structured logs.
func NewServer(coord *sim.Coordinator) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{coord: coord, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.coord.Metrics().Registry, promhttp.HandlerOpts{})))

	s.engine.GET("/inventory", s.handleInventory)
	s.engine.GET("/agvs", s.handleAGVs)
	s.engine.GET("/tasks", s.handleTasks)
	s.engine.GET("/snapshot", s.handleSnapshot)
	s.engine.GET("/logs", s.handleLogs)

	s.engine.POST("/orders", s.handleSubmitOrder)
	s.engine.GET("/orders", s.handleListOrders)
	s.engine.GET("/orders/:id", s.handleGetOrder)
	s.engine.POST("/orders/:id/cancel", s.handleCancelOrder)

	s.engine.POST("/ask-agent", s.handleAskAgent)
	s.engine.POST("/execute-plan", s.handleExecutePlan)
	s.engine.POST("/tick", s.handleTick)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"tick":   s.coord.Clock(),
		"phase":  s.coord.Phase(),
	})
}

func (s *Server) handleInventory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": s.coord.Store().Products()})
}

func (s *Server) handleAGVs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agvs": s.coord.Store().AGVs()})
}

func (s *Server) handleTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"live":     s.coord.Store().LiveTasks(),
		"archived": s.coord.Store().ArchivedTasks(),
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.coord.Snapshot())
}

func (s *Server) handleLogs(c *gin.Context) {
	n := 50
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		n = parsed
	}
	c.JSON(http.StatusOK, gin.H{"entries": s.coord.RecentLogs(n)})
}

type orderRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	Priority   int    `json:"priority"`
	Lines      []struct {
		SKU      string `json:"sku" binding:"required"`
		Quantity int    `json:"quantity" binding:"required"`
	} `json:"lines" binding:"required"`
}

func (s *Server) handleSubmitOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	lines := make([]sim.LineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, sim.LineRequest{SKU: l.SKU, Quantity: l.Quantity})
	}
	order, err := s.coord.SubmitOrder(req.CustomerID, lines, req.Priority)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) handleListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.coord.Store().Orders()})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.coord.Store().OrderByID(c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	if err := s.coord.CancelOrder(c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": c.Param("id")})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// handleAskAgent never fails the request when the oracle is down: the
// reply carries a degraded flag and reason instead, so callers can keep
// operating on the deterministic path.
func (s *Server) handleAskAgent(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply := s.coord.AskAgent(c.Request.Context(), req.Question)
	if reply.Degraded {
		logrus.Warnf("ask-agent degraded: %s", reply.Reason)
	}
	c.JSON(http.StatusOK, reply)
}

type planRequest struct {
	Actions []oracle.Action `json:"actions" binding:"required"`
}

func (s *Server) handleExecutePlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results := s.coord.ExecutePlan(req.Actions)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type tickRequest struct {
	N int64 `json:"n"`
}

func (s *Server) handleTick(c *gin.Context) {
	req := tickRequest{N: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.N <= 0 {
		req.N = 1
	}
	if err := s.coord.Run(c.Request.Context(), req.N); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tick": s.coord.Clock()})
}

// renderError maps store errors onto HTTP statuses. Invariant
// violations surface as 500 so operators notice a halted simulation.
func (s *Server) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sim.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, sim.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, sim.ErrConflict), errors.Is(err, sim.ErrTaskNotCancellable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sim.ErrInsufficientStock), errors.Is(err, sim.ErrStockCapacity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		logrus.Errorf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
