package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// bindChannelRequest is the body of POST /agents/:agentId/channels.
type bindChannelRequest struct {
	ChannelType string `json:"channelType" binding:"required"`
	ChatID      string `json:"chatId" binding:"required"`
}

// handleListChannelBindings serves GET /agents/:agentId/channels.
func (s *Server) handleListChannelBindings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bindings": s.bindings.List(c.Param("agentId"))})
}

// handleCreateChannelBinding serves POST /agents/:agentId/channels.
func (s *Server) handleCreateChannelBinding(c *gin.Context) {
	agentID := c.Param("agentId")
	if _, ok := s.lifecycleRegistry.Lookup(agentID); !ok {
		writeError(c, ErrAgentNotFound)
		return
	}

	var req bindChannelRequest
	if !bindJSON(c, &req) {
		return
	}

	binding := s.bindings.Put(agentID, req.ChannelType, req.ChatID)
	c.JSON(http.StatusCreated, binding)
}

// handleDeleteChannelBinding serves
// DELETE /agents/:agentId/channels/:channelType/:chatId.
func (s *Server) handleDeleteChannelBinding(c *gin.Context) {
	err := s.bindings.Delete(c.Param("agentId"), c.Param("channelType"), c.Param("chatId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
