package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentctl/pkg/streaming"
)

// ginSink adapts a gin ResponseWriter into a streaming.Sink, flushing after
// every event so SSE consumers see it immediately rather than buffered.
type ginSink struct {
	c *gin.Context
}

func (s *ginSink) Send(ev streaming.Event) error {
	if _, err := fmt.Fprintf(s.c.Writer, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, ev.Data); err != nil {
		return err
	}
	flusher, ok := s.c.Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("api: response writer does not support flushing")
	}
	flusher.Flush()
	return nil
}

// handleStream serves GET /agents/:agentId/stream: an SSE feed of
// agent:state, agent:output and steer:ack events, honoring Last-Event-ID
// for reconnects.
func (s *Server) handleStream(c *gin.Context) {
	agentID := c.Param("agentId")

	p, _ := currentPrincipal(c)
	if !p.AllowsAgent(agentID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not authorized for this agent"})
		return
	}

	if _, ok := s.lifecycleRegistry.Lookup(agentID); !ok {
		writeError(c, ErrAgentNotFound)
		return
	}

	lastEventID := c.GetHeader("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = c.Query("lastEventId")
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	sink := &ginSink{c: c}
	conn, err := s.streamHub.Connect(agentID, sink, lastEventID)
	if err != nil {
		// Replay already wrote a partial response; nothing more to do but
		// close the connection from our side.
		return
	}
	defer conn.Close()

	<-c.Request.Context().Done()
}
