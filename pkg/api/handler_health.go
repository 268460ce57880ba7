package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleHealthz serves GET /healthz: a liveness check that never touches
// the database, so it stays green while a dependency recovers.
func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleReadyz serves GET /readyz: readiness gates on the database
// connection and (when configured) the channel supervisor's adapters.
func (s *Server) handleReadyz(c *gin.Context) {
	flags := gin.H{}
	ready := true

	if s.db != nil {
		if err := s.db.Pool.Ping(c.Request.Context()); err != nil {
			flags["database"] = false
			ready = false
		} else {
			flags["database"] = true
		}
	}

	if s.readiness != nil {
		for name, ok := range s.readiness() {
			flags[name] = ok
			if !ok {
				ready = false
			}
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": flags})
}
