package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sevir/agentrelay/internal/runner"
	"github.com/sevir/agentrelay/internal/session"
	"github.com/sevir/agentrelay/pkg/models"
)

func (s *Server) newGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/run", s.handleRun)
	r.POST("/stop/:id", s.handleStop)
	r.GET("/agents", s.handleAgents)
	r.GET("/health", s.handleHealth)
	r.GET("/version", s.handleVersion)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{})))

	return r
}

// handleRun streams one agent run as NDJSON. Validation failures and the
// admission conflict are plain JSON errors; once the first frame has been
// written, every later failure is reported in-stream by the runner.
func (s *Server) handleRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	command, err := runner.BuildCommand(s.config.Agents, s.config.DockerImage, req.CLI, req.Args, req.Env)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := runner.ResolveSessionID(req.SessionID)

	w := c.Writer
	enc := json.NewEncoder(w)
	started := false
	emit := func(ev models.Event) {
		if !started {
			started = true
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
		}
		// Encode appends the frame delimiter; flush so events reach the
		// caller as they are produced, not when the run ends.
		enc.Encode(ev)
		w.Flush()
	}

	if err := s.runner.Run(c.Request.Context(), id, command, req.Stdin, emit); err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "session already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// handleStop marks the stop flag for an active session and runs the
// termination escalation. The run's own completion path reports the
// stopped outcome and removes the session.
func (s *Server) handleStop(c *gin.Context) {
	id := c.Param("id")

	proc, ok := s.registry.RequestStop(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session: " + id})
		return
	}
	if proc != nil {
		proc.Terminate()
	}

	c.JSON(http.StatusOK, models.StopResponse{Status: "stopping", SessionID: id})
}

func (s *Server) handleAgents(c *gin.Context) {
	names := make([]string, 0, len(s.config.Agents))
	for name := range s.config.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	agents := make([]models.AgentInfo, 0, len(names))
	for _, name := range names {
		agents = append(agents, models.AgentInfo{Name: name, Path: s.config.Agents[name]})
	}

	c.JSON(http.StatusOK, gin.H{
		"agents":       agents,
		"docker_image": s.config.DockerImage,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"active_sessions": s.registry.Active(),
	})
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": s.version,
		"commit":  s.commit,
	})
}
