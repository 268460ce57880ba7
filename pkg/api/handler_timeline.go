package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentctl/pkg/buffer"
)

// handleTimeline serves GET /plans/runs/:runId/timeline: the full ordered
// event history for a job across every session file, for plan/run replay
// in the dashboard.
func (s *Server) handleTimeline(c *gin.Context) {
	events, err := buffer.ReadAll(s.bufferBaseDir, c.Param("runId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runId": c.Param("runId"), "events": events})
}
