package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/approval"
	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
)

// ErrAgentNotFound is returned by handlers that require a previously
// registered agent but found none.
var ErrAgentNotFound = errors.New("api: agent not found")

// ErrAgentNotExecuting is returned when steering or preempting an agent
// that is not currently EXECUTING.
var ErrAgentNotExecuting = errors.New("api: agent not executing")

// ErrBindingNotFound is returned by the channel-binding handlers.
var ErrBindingNotFound = errors.New("api: channel binding not found")

// errJobNotRetriable is returned by the retry endpoint for a job not in a
// retriable status.
var errJobNotRetriable = errors.New("api: job is not in a retriable status")

// bindJSON decodes the request body into dst, translating a
// http.MaxBytesReader overflow into 413 and any other decode failure into
// 400, and writes the response itself on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// writeError maps err to an HTTP status and JSON body, in the teacher's
// mapServiceError style (errors.Is/As chain, fall through to 500 with a
// logged cause).
func writeError(c *gin.Context, err error) {
	status, msg := classifyError(err)
	if status == http.StatusInternalServerError {
		slog.Error("api: unhandled error", "error", err, "path", c.FullPath())
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAgentNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, ErrBindingNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, ErrAgentNotExecuting), errors.Is(err, store.ErrStateConflict), errors.Is(err, errJobNotRetriable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, approval.ErrExpired):
		return http.StatusGone, err.Error()
	case errors.Is(err, approval.ErrStateConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, approval.ErrBadToken):
		return http.StatusForbidden, err.Error()
	}

	var invalid *lifecycle.InvalidTransition
	if errors.As(err, &invalid) {
		return http.StatusConflict, err.Error()
	}

	switch ctlerrors.Classify(err) {
	case ctlerrors.Permanent:
		return http.StatusBadRequest, err.Error()
	case ctlerrors.Timeout:
		return http.StatusGatewayTimeout, err.Error()
	case ctlerrors.Resource, ctlerrors.Transient:
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
