// Package httpapi exposes the triage pipeline to the scraping front end
// and the panel over HTTP: detection events in, classifications out,
// plus sender queries, user actions and live stats.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
	"go.uber.org/zap"
)

// Server is the HTTP front door for the triage service.
type Server struct {
	service    *core.TriageService
	hub        *StatsHub
	logger     *zap.Logger
	listenAddr string
	router     *gin.Engine
	httpSrv    *http.Server
}

// NewServer creates the server and registers all routes.
func NewServer(service *core.TriageService, hub *StatsHub, logger *zap.Logger, listenAddr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		service:    service,
		hub:        hub,
		logger:     logger,
		listenAddr: listenAddr,
		router:     router,
	}

	metrics.Register()
	router.Use(metrics.Middleware())

	api := router.Group("/api/v1")
	{
		api.POST("/events", s.handleEvent)
		api.POST("/actions", s.handleAction)
		api.GET("/senders", s.handleRecentSenders)
		api.GET("/senders/:email/override", s.handleGetOverride)
		api.PUT("/senders/:email/override", s.handleSetOverride)
		api.GET("/stats", s.handleStats)
	}
	router.GET("/ws/stats", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
	router.GET("/metrics", metrics.Handler())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("HTTP API starting", zap.String("address", s.listenAddr))
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully and disconnects stats clients.
func (s *Server) Stop() error {
	s.hub.Close()
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleEvent(c *gin.Context) {
	var event core.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection event"})
		return
	}
	if event.Sender == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender is required"})
		return
	}

	classification, err := s.service.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		s.logger.Error("Failed to handle detection event",
			zap.Error(err),
			zap.String("sender", event.Sender))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"classification": classification})
}

type actionRequest struct {
	Email  string `json:"email" binding:"required"`
	Action string `json:"action" binding:"required"`
}

func (s *Server) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and action are required"})
		return
	}
	action, ok := core.ParseAction(req.Action)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	if err := s.service.PerformAction(c.Request.Context(), req.Email, action); err != nil {
		s.logger.Error("Failed to perform action",
			zap.Error(err),
			zap.String("email", req.Email),
			zap.String("action", string(action)))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleRecentSenders(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	profiles, err := s.service.RecentSenders(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list recent senders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list senders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"senders": profiles})
}

type overrideRequest struct {
	Classification string `json:"classification" binding:"required"`
}

func (s *Server) handleSetOverride(c *gin.Context) {
	email := c.Param("email")

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "classification is required"})
		return
	}
	category, ok := core.ParseCategory(req.Classification)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown classification %q", req.Classification)})
		return
	}

	if err := s.service.SetOverride(c.Request.Context(), email, category); err != nil {
		s.logger.Error("Failed to set override",
			zap.Error(err),
			zap.String("email", email))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set override"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"classification": category})
}

func (s *Server) handleGetOverride(c *gin.Context) {
	email := c.Param("email")

	category, ok, err := s.service.GetOverride(c.Request.Context(), email)
	if err != nil {
		s.logger.Error("Failed to get override",
			zap.Error(err),
			zap.String("email", email))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get override"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"classification": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"classification": category})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Stats())
}
