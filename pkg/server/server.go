// Package server exposes the monitoring engine over HTTP: session
// start/stop, the status read-model, and the health surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/apptwatch/apptwatch/pkg/automation"
	"github.com/apptwatch/apptwatch/pkg/monitor"
)

// Monitor is the slice of the scheduler the HTTP surface needs.
type Monitor interface {
	StartMonitoring(spec monitor.SessionSpec) (string, error)
	StopMonitoring(id string) int
	Status() []monitor.SessionStatus
}

// HealthSource reports browser health. Implemented by automation.Controller.
type HealthSource interface {
	Health() automation.Health
}

// Server hosts the HTTP API.
type Server struct {
	monitor Monitor
	health  HealthSource
	log     zerolog.Logger
	http    *http.Server
}

// New builds the server and its routes.
func New(m Monitor, h HealthSource, port int, log zerolog.Logger) *Server {
	s := &Server{
		monitor: m,
		health:  h,
		log:     log.With().Str("component", "http").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	return s
}

func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/monitor", s.startMonitoring)
		api.DELETE("/monitor", s.stopAll)
		api.DELETE("/monitor/:id", s.stopOne)
		api.GET("/status", s.status)
	}
	router.GET("/health", s.healthCheck)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) startMonitoring(c *gin.Context) {
	var spec monitor.SessionSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := s.monitor.StartMonitoring(spec)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": id})
}

func (s *Server) stopAll(c *gin.Context) {
	removed := s.monitor.StopMonitoring("")
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) stopOne(c *gin.Context) {
	removed := s.monitor.StopMonitoring(c.Param("id"))
	if removed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.monitor.Status()})
}

// healthCheck reports the engine's health surface. Degraded browser health
// flips the overall status but the endpoint itself always answers: the
// host process stays reachable for diagnosis even when the browser never
// launched.
func (s *Server) healthCheck(c *gin.Context) {
	health := s.health.Health()
	active := len(s.monitor.Status())

	status := "healthy"
	code := http.StatusOK
	if !health.BrowserOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"browserOk":      health.BrowserOK,
		"activeSessions": active,
		"lastLatencyMs":  health.LastLatencyMs,
	})
}
