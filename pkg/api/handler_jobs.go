package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
)

// handleListJobs serves GET /jobs?status=.
func (s *Server) handleListJobs(c *gin.Context) {
	status := jobs.Status(c.Query("status"))
	limit := 50

	list, err := s.jobStore.List(c.Request.Context(), status, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

// handleGetJob serves GET /jobs/:id.
func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.jobStore.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleRetryJob serves POST /jobs/:id/retry: forces a FAILED/DEAD_LETTER
// job back to SCHEDULED immediately, bypassing the backoff delay since a
// human explicitly asked for a retry now.
func (s *Server) handleRetryJob(c *gin.Context) {
	id := c.Param("id")

	job, err := s.jobStore.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if job.Status != jobs.StatusFailed && job.Status != jobs.StatusDeadLetter {
		writeError(c, errJobNotRetriable)
		return
	}

	// maxAttempts is forced to attempt+1 so the one extra attempt a human
	// asked for is always granted, even if the job already exhausted its
	// original budget and landed in DEAD_LETTER.
	if _, err := jobs.Fail(c.Request.Context(), s.jobStore.Repo(), id, job.Attempt, job.Attempt+1, ctlerrors.Transient, "", "manual retry", 0, 0); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": id, "status": "retrying"})
}
