package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// approvalDecisionRequest is the body of
// POST /agents/:agentId/approvals/:approvalId/decision.
type approvalDecisionRequest struct {
	Decision string `json:"decision" binding:"required,oneof=APPROVED REJECTED"`
	Reason   string `json:"reason"`
}

var errUnknownDecision = errors.New("api: decision must be APPROVED or REJECTED")

// handleApprovalDecision serves POST
// /agents/:agentId/approvals/:approvalId/decision.
func (s *Server) handleApprovalDecision(c *gin.Context) {
	approvalID := c.Param("approvalId")

	var req approvalDecisionRequest
	if !bindJSON(c, &req) {
		return
	}

	var decision string
	switch req.Decision {
	case "APPROVED":
		decision = "a"
	case "REJECTED":
		decision = "r"
	default:
		writeError(c, errUnknownDecision)
		return
	}

	decided, err := s.approvals.DecideAuthenticated(c.Request.Context(), approvalID, decision, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": decided.ID, "status": string(decided.Status)})
}
