package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackAdapter is the Slack channel adapter, grounded directly on the
// teacher's pkg/slack.Client wrapper around slack-go/slack.
type SlackAdapter struct {
	api       *goslack.Client
	channelID string
	log       *slog.Logger

	handler func(InboundMessage)
}

// NewSlackAdapter builds a Slack adapter posting to channelID.
func NewSlackAdapter(token, channelID string) *SlackAdapter {
	return &SlackAdapter{
		api:       goslack.New(token),
		channelID: channelID,
		log:       slog.With("component", "slack_adapter"),
	}
}

// ChannelType identifies this adapter.
func (a *SlackAdapter) ChannelType() string { return "slack" }

// Start is a no-op: the slack-go REST client has no persistent connection
// to establish (this module does not wire the RTM/Socket Mode client).
func (a *SlackAdapter) Start(ctx context.Context) error { return nil }

// Stop is a no-op for the same reason as Start.
func (a *SlackAdapter) Stop(ctx context.Context) error { return nil }

// HealthCheck verifies the token is valid by calling auth.test.
func (a *SlackAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth.test: %w", err)
	}
	return nil
}

// SendMessage posts text to chatID (a Slack channel or thread ts).
func (a *SlackAdapter) SendMessage(ctx context.Context, chatID, text string) error {
	opts := []goslack.MsgOption{goslack.MsgOptionText(text, false)}
	if chatID != "" {
		opts = append(opts, goslack.MsgOptionTS(chatID))
	}
	_, _, err := a.api.PostMessageContext(ctx, a.channelID, opts...)
	if err != nil {
		return fmt.Errorf("slack chat.postMessage: %w", err)
	}
	return nil
}

// SendApprovalRequest posts an approval card with approve/reject callback
// tokens rendered as plain text links (a full interactive-blocks
// implementation would register Slack button actions; this module emits
// the callback token text since the HTTP approval endpoint in pkg/api is
// the system of record for decisions).
func (a *SlackAdapter) SendApprovalRequest(ctx context.Context, chatID string, req ApprovalNotice) error {
	text := fmt.Sprintf("*Approval requested* [%s]\n%s\n%s\napprove: %s\nreject: %s",
		req.RiskLevel, req.Summary, req.Detail, req.ApproveToken, req.RejectToken)
	return a.SendMessage(ctx, chatID, text)
}

// OnMessage registers the inbound message handler. The Slack adapter runs
// no receive loop of its own; handler is invoked only through Deliver.
func (a *SlackAdapter) OnMessage(handler func(InboundMessage)) {
	a.handler = handler
}

// Deliver passes msg to the registered handler. The Request Router exposes
// no Slack webhook route, so nothing in this module calls Deliver.
func (a *SlackAdapter) Deliver(msg InboundMessage) {
	if a.handler != nil {
		a.handler(msg)
	}
}

// LongPollAdapter is a minimal adapter for channels without webhooks
// (and for tests), implementing HeartbeatAware so the supervisor applies
// the staleness check.
type LongPollAdapter struct {
	channelType string
	heartbeat   time.Time
	handler     func(InboundMessage)
	healthy     bool
}

// NewLongPollAdapter builds a stub long-poll adapter.
func NewLongPollAdapter(channelType string) *LongPollAdapter {
	return &LongPollAdapter{channelType: channelType, heartbeat: time.Now(), healthy: true}
}

func (a *LongPollAdapter) ChannelType() string { return a.channelType }

func (a *LongPollAdapter) Start(ctx context.Context) error {
	a.heartbeat = time.Now()
	return nil
}

func (a *LongPollAdapter) Stop(ctx context.Context) error { return nil }

func (a *LongPollAdapter) HealthCheck(ctx context.Context) error {
	if !a.healthy {
		return fmt.Errorf("longpoll: unhealthy")
	}
	return nil
}

func (a *LongPollAdapter) SendMessage(ctx context.Context, chatID, text string) error { return nil }

func (a *LongPollAdapter) SendApprovalRequest(ctx context.Context, chatID string, req ApprovalNotice) error {
	return nil
}

func (a *LongPollAdapter) OnMessage(handler func(InboundMessage)) { a.handler = handler }

// LastHeartbeatAt satisfies HeartbeatAware.
func (a *LongPollAdapter) LastHeartbeatAt() time.Time { return a.heartbeat }

// Poke simulates a heartbeat/poll tick, for tests.
func (a *LongPollAdapter) Poke() { a.heartbeat = time.Now() }

// SetHealthy toggles HealthCheck's outcome, for tests.
func (a *LongPollAdapter) SetHealthy(healthy bool) { a.healthy = healthy }

// Deliver simulates an inbound message arriving via the poll loop.
func (a *LongPollAdapter) Deliver(msg InboundMessage) {
	if a.handler != nil {
		a.handler(msg)
	}
}
