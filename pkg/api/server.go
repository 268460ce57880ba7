// Package api implements the Request Router (C14): the control plane's
// HTTP/REST surface over the job store, agent lifecycle registry, approval
// gate, streaming hub and channel bindings. Grounded on the teacher's
// cmd/tarsy/main.go gin.Default() wiring (the teacher's echo-based
// pkg/api/*.go files are dead code never referenced from main — see
// DESIGN.md) and on pkg/api/server.go's optional-field-plus-ValidateWiring
// shape, translated from echo.HandlerFunc to gin.HandlerFunc.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/approval"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
	"github.com/codeready-toolchain/agentctl/pkg/streaming"
)

// ReadinessFunc reports supplementary readiness checks (e.g. the channel
// supervisor's adapter health) beyond the database ping.
type ReadinessFunc func() map[string]bool

// Config configures a Server beyond the components it wires.
type Config struct {
	ListenAddr       string
	MaxBodyBytes     int64
	CSRFSecret       []byte
	SessionCookie    string
	ChatPollInterval time.Duration
	ChatMaxWait      time.Duration
	ChatMinWait      time.Duration
}

// Server is the Request Router.
type Server struct {
	cfg Config

	db                *store.Store
	jobStore          *jobs.Store
	lifecycleRegistry *lifecycle.Registry
	approvals         *approval.Gate
	streamHub         *streaming.Hub
	bindings          *BindingStore
	bufferBaseDir     string

	sessions    SessionStore
	credentials CredentialStore
	readiness   ReadinessFunc
	metrics     http.Handler

	router *gin.Engine
	http   *http.Server
}

// New builds a Server. Every component pointer must be non-nil except
// readiness, which is optional.
func New(cfg Config, db *store.Store, jobStore *jobs.Store, registry *lifecycle.Registry,
	approvals *approval.Gate, hub *streaming.Hub, bindings *BindingStore, bufferBaseDir string,
	sessions SessionStore, credentials CredentialStore) *Server {

	if cfg.ChatPollInterval <= 0 {
		cfg.ChatPollInterval = 250 * time.Millisecond
	}
	if cfg.ChatMaxWait <= 0 {
		cfg.ChatMaxWait = 30 * time.Second
	}
	if cfg.ChatMinWait <= 0 {
		cfg.ChatMinWait = 2 * time.Second
	}

	s := &Server{
		cfg: cfg, db: db, jobStore: jobStore, lifecycleRegistry: registry,
		approvals: approvals, streamHub: hub, bindings: bindings, bufferBaseDir: bufferBaseDir,
		sessions: sessions, credentials: credentials,
	}
	s.router = s.buildRouter()
	return s
}

// SetReadiness installs supplementary readiness checks.
func (s *Server) SetReadiness(fn ReadinessFunc) { s.readiness = fn }

// SetMetricsHandler mounts h (typically promhttp.Handler()) at /metrics.
// Called before any request is served; the route table is fixed at
// buildRouter time, so this must run before New's caller starts the server.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
	s.router = s.buildRouter()
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	auth := authMiddleware(s.sessions, s.credentials, s.cfg.SessionCookie)
	csrf := csrfMiddleware(s.cfg.CSRFSecret, s.cfg.SessionCookie)
	limitBody := maxBodyBytes(s.cfg.MaxBodyBytes)

	agents := r.Group("/agents", auth)
	{
		agents.POST("/:agentId/chat", limitBody, csrf, s.handleChat)
		agents.GET("/:agentId/stream", s.handleStream)
		agents.POST("/:agentId/steer", limitBody, csrf, s.handleSteer)
		agents.POST("/:agentId/approvals/:approvalId/decision", limitBody, csrf, s.handleApprovalDecision)
		agents.GET("/:agentId/channels", s.handleListChannelBindings)
		agents.POST("/:agentId/channels", limitBody, csrf, s.handleCreateChannelBinding)
		agents.DELETE("/:agentId/channels/:channelType/:chatId", csrf, s.handleDeleteChannelBinding)
	}

	jobsGroup := r.Group("/jobs", auth)
	{
		jobsGroup.GET("", s.handleListJobs)
		jobsGroup.GET("/:id", s.handleGetJob)
		jobsGroup.POST("/:id/retry", limitBody, csrf, s.handleRetryJob)
	}

	plans := r.Group("/plans", auth)
	{
		plans.GET("/runs/:runId/timeline", s.handleTimeline)
	}

	return r
}

// Handler exposes the underlying router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving on cfg.ListenAddr. It blocks until Shutdown is
// called or an unrecoverable listen error occurs.
func (s *Server) Start() error {
	s.http = &http.Server{Addr: s.cfg.ListenAddr, Handler: s.router}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
