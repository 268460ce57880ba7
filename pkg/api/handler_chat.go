package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/pkg/jobs"
)

// chatRequest is the body of POST /agents/:agentId/chat.
type chatRequest struct {
	Text      string `json:"text" binding:"required"`
	SessionID string `json:"session_id"`
}

// handleChat serves POST /agents/:agentId/chat: enqueues a CHAT_RESPONSE
// job and, if wait=true, polls the job to completion up to a bounded cap
// before falling back to the async 202 shape.
func (s *Server) handleChat(c *gin.Context) {
	agentID := c.Param("agentId")

	agent, ok := s.lifecycleRegistry.Lookup(agentID)
	if !ok {
		writeError(c, ErrAgentNotFound)
		return
	}
	if !agent.IsReady() {
		writeError(c, ErrAgentNotExecuting)
		return
	}

	var req chatRequest
	if !bindJSON(c, &req) {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	payload, err := jobs.NewPayload(jobs.TypeChatResponse, jobs.ChatResponse{Prompt: req.Text, GoalType: "chat"})
	if err != nil {
		writeError(c, err)
		return
	}

	job, err := s.jobStore.Submit(c.Request.Context(), agentID, sessionID, 0, 3, 300, payload)
	if err != nil {
		writeError(c, err)
		return
	}

	status := string(job.Status)
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		if resp, done := s.awaitChatCompletion(c.Request.Context(), job.ID, waitDeadline(c, s.cfg)); done {
			c.JSON(http.StatusOK, gin.H{
				"job_id": job.ID, "session_id": sessionID, "status": string(resp.Status), "response": resp.Result,
			})
			return
		}
		status = string(jobs.StatusRunning)
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "session_id": sessionID, "status": status})
}

// waitDeadline derives the wait timeout from the `timeout` query parameter
// (seconds), clamped to [cfg.ChatMinWait, cfg.ChatMaxWait].
func waitDeadline(c *gin.Context, cfg Config) time.Duration {
	wait := cfg.ChatMaxWait
	if raw := c.Query("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait > cfg.ChatMaxWait {
		wait = cfg.ChatMaxWait
	}
	if wait < cfg.ChatMinWait {
		wait = cfg.ChatMinWait
	}
	return wait
}

// awaitChatCompletion polls the job store at cfg.ChatPollInterval until the
// job reaches a terminal status or deadline elapses.
func (s *Server) awaitChatCompletion(ctx context.Context, jobID string, deadline time.Duration) (jobs.Job, bool) {
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()
	ticker := time.NewTicker(s.cfg.ChatPollInterval)
	defer ticker.Stop()

	for {
		job, err := s.jobStore.Get(ctx, jobID)
		if err == nil && isTerminal(job.Status) {
			return job, true
		}

		select {
		case <-ctx.Done():
			return jobs.Job{}, false
		case <-timeout.C:
			return jobs.Job{}, false
		case <-ticker.C:
		}
	}
}

func isTerminal(status jobs.Status) bool {
	return status == jobs.StatusCompleted || status == jobs.StatusFailed || status == jobs.StatusDeadLetter
}
