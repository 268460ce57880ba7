package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agentctl/internal/config"
	"github.com/codeready-toolchain/agentctl/internal/metrics"
	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/api"
	"github.com/codeready-toolchain/agentctl/pkg/approval"
	"github.com/codeready-toolchain/agentctl/pkg/breaker"
	"github.com/codeready-toolchain/agentctl/pkg/channel"
	"github.com/codeready-toolchain/agentctl/pkg/dispatch"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
	"github.com/codeready-toolchain/agentctl/pkg/memory"
	"github.com/codeready-toolchain/agentctl/pkg/provider"
	"github.com/codeready-toolchain/agentctl/pkg/streaming"
	"github.com/codeready-toolchain/agentctl/pkg/worker"
)

func newServeCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Request Router, Worker Runtime, and Channel Supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			zapLogger, err := buildLogger(*logLevel)
			if err != nil {
				return err
			}
			defer zapLogger.Sync() //nolint:errcheck

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

// runServe assembles every long-lived component leaf-first (registry before
// hub before supervisor before worker before the router that fronts them
// all) and tears them down in reverse order on SIGINT/SIGTERM, mirroring
// the teacher's cmd/tarsy/main.go defer-stack shutdown generalized to more
// components.
func runServe(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.With("component", "controlplane")

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("connected to database")

	reg := metrics.New(prometheus.DefaultRegisterer)

	registry := lifecycle.NewRegistry()
	hub := streaming.New(cfg.Streaming.ReplayBufferSize)

	supervisor := channel.New(channel.Config{
		ProbeInterval: cfg.Channels.ProbeInterval, StaleAfter: cfg.Channels.StaleAfter,
		CircuitFailureThreshold: cfg.Channels.CircuitFailureThreshold, CircuitOpenDuration: cfg.Channels.CircuitOpenDuration,
	})

	bindings := api.NewBindingStore()
	jobStore := jobs.New(db.Jobs)
	approvals := approval.New(db.Approvals, []byte(cfg.API.CSRFSecret), approval.NewChannelNotifier(supervisor, bindings))

	dispatcher := dispatch.New(db.Sessions, jobStore, bindings, supervisor, 30*time.Minute)

	if cfg.Channels.SlackBotToken != "" {
		slackAdapter := channel.NewSlackAdapter(cfg.Channels.SlackBotToken, cfg.Channels.SlackChannel)
		slackAdapter.OnMessage(func(msg channel.InboundMessage) {
			if _, err := dispatcher.Dispatch(ctx, dispatch.RoutedMessage{
				ChannelType: msg.ChannelType, ChatID: msg.ChatID,
				UserAccountID: msg.UserAccountID, Message: msg.Text,
			}); err != nil {
				log.Error("dispatch failed", "channel", msg.ChannelType, "chat_id", msg.ChatID, "error", err)
			}
		})
		if err := supervisor.Register(slackAdapter); err != nil {
			return err
		}
	}

	router := provider.New()
	var anthropicSem provider.Semaphore
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		anthropicSem = provider.NewRedisSemaphore(redisClient, "provider:anthropic", 1, 5*time.Minute)
		log.Info("provider semaphore backed by redis", "addr", cfg.Redis.Addr)
	} else {
		anthropicSem = provider.NewSemaphore(1)
	}
	router.Register(&provider.Entry{
		ID: "anthropic", Backend: provider.NewAnthropicBackend(""), Priority: 0,
		Breaker: breaker.New(breaker.Config{
			Name:             "anthropic",
			FailureThreshold: uint32(cfg.Providers.FailureThreshold),
			OpenDuration:     cfg.Providers.OpenDuration,
			HalfOpenMax:      uint32(cfg.Providers.HalfOpenMax),
		}),
		Semaphore: anthropicSem,
	})

	workerRuntime := worker.New(worker.Config{
		Concurrency: cfg.Worker.Concurrency, PollInterval: cfg.Worker.PollInterval,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval, JobTimeout: 5 * time.Minute,
		BufferBaseDir: cfg.Buffer.BaseDir,
	}, jobStore)
	workerRuntime.RegisterHandler(jobs.TypeChatResponse, newChatHandler(chatHandlerDeps{
		router: router, registry: registry, hub: hub,
		bufferBaseDir: cfg.Buffer.BaseDir, acquireWait: cfg.Providers.AcquireTimeout,
	}))

	memoryPipeline := memory.New(db.Memory, &anthropicExtractor{router: router, acquireWait: cfg.Providers.AcquireTimeout}, hashEmbedder{})
	workerRuntime.RegisterHandler(jobs.TypeMemoryExtract, newMemoryExtractHandler(memoryPipeline))
	workerRuntime.RegisterHandler(jobs.TypeMarkdownSync, newMarkdownSyncHandler(memoryPipeline, db.MarkdownSync))
	workerRuntime.RegisterHandler(jobs.TypeCorrectionStrengthen, newCorrectionStrengthenHandler(db.Memory))

	reclaimThreshold := cfg.Worker.HeartbeatInterval * time.Duration(cfg.Worker.ReclaimMultiplier)

	cron := worker.NewCronScheduler()
	if err := cron.Register(ctx, worker.CronTask{
		Name: "approval_expiry", Spec: "@every 1m",
		Run: func(ctx context.Context) error { return approvals.ExpirePending(ctx) },
	}); err != nil {
		return err
	}
	if err := cron.Register(ctx, worker.CronTask{
		Name: "reclaim_stale_heartbeats", Spec: "@every " + reclaimThreshold.String(),
		Run: func(ctx context.Context) error {
			_, err := jobStore.ReclaimStaleHeartbeats(ctx, reclaimThreshold)
			return err
		},
	}); err != nil {
		return err
	}
	if err := cron.Register(ctx, worker.CronTask{
		Name: "session_retention", Spec: "@every " + cfg.Retention.CleanupInterval.String(),
		Run: func(ctx context.Context) error {
			cutoff := time.Now().AddDate(0, 0, -cfg.Retention.SessionRetentionDays)
			_, err := db.Sessions.SoftDeleteOlderThan(ctx, cutoff)
			return err
		},
	}); err != nil {
		return err
	}

	srv := api.New(api.Config{
		ListenAddr: cfg.API.ListenAddr, MaxBodyBytes: cfg.API.MaxBodyBytes,
		CSRFSecret: []byte(cfg.API.CSRFSecret), SessionCookie: cfg.API.SessionCookie,
	}, db, jobStore, registry, approvals, hub, bindings, cfg.Buffer.BaseDir,
		api.NewMemorySessionStore(), api.NewMemoryCredentialStore())
	srv.SetReadiness(func() map[string]bool {
		checks := make(map[string]bool)
		for _, snap := range supervisor.Snapshots() {
			checks[snap.ChannelType] = snap.State == channel.StateHealthy
		}
		return checks
	})
	srv.SetMetricsHandler(promhttp.Handler())

	if err := supervisor.StartAll(ctx); err != nil {
		log.Warn("channel supervisor start reported an error", "error", err)
	}
	workerRuntime.Start(ctx)
	cron.Start()
	go pollMetrics(ctx, reg, approvals, supervisor, hub, registry)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("request router listening", "addr", cfg.API.ListenAddr)
		serveErr <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("request router stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("request router shutdown error", "error", err)
	}
	workerRuntime.StopGracefully(cfg.Worker.ShutdownGrace)
	cron.Stop()
	supervisor.StopAll(shutdownCtx)

	log.Info("controlplane stopped")
	return nil
}
