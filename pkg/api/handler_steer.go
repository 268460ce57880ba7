package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
)

// steerRequest is the body of POST /agents/:agentId/steer.
type steerRequest struct {
	Message  string `json:"message" binding:"required"`
	Priority string `json:"priority"`
}

// handleSteer serves POST /agents/:agentId/steer.
func (s *Server) handleSteer(c *gin.Context) {
	agentID := c.Param("agentId")

	agent, ok := s.lifecycleRegistry.Lookup(agentID)
	if !ok {
		writeError(c, ErrAgentNotFound)
		return
	}

	var req steerRequest
	if !bindJSON(c, &req) {
		return
	}

	priority := lifecycle.PriorityNormal
	if req.Priority == string(lifecycle.PriorityHigh) {
		priority = lifecycle.PriorityHigh
	}

	msg := lifecycle.SteeringMessage{
		ID: uuid.NewString(), AgentID: agentID, Message: req.Message,
		Priority: priority, Timestamp: time.Now(),
	}
	if err := agent.Steer(msg); err != nil {
		writeError(c, ErrAgentNotExecuting)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"steerMessageId": msg.ID, "status": "accepted"})
}
