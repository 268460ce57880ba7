package approval

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/agentctl/pkg/channel"
)

// ChannelRef names one channel binding an agent owns (channelType, chatID).
type ChannelRef struct {
	ChannelType string
	ChatID      string
}

// ChannelLookup resolves the channels an agent is bound to, so a
// ChannelNotifier knows where to deliver an approval notice without the
// approval package depending on the Request Router's binding store
// directly.
type ChannelLookup interface {
	ChannelsForAgent(agentID string) []ChannelRef
}

// ChannelNotifier implements Notifier by forwarding approval notices to
// every channel an agent is bound to via the Channel Supervisor, mirroring
// the teacher's nil-safe pkg/slack.Service: channel delivery failures are
// logged, never propagated, since Create/Decide must still succeed even
// when every adapter is unreachable.
type ChannelNotifier struct {
	supervisor *channel.Supervisor
	lookup     ChannelLookup
	log        *slog.Logger
}

// NewChannelNotifier builds a ChannelNotifier.
func NewChannelNotifier(supervisor *channel.Supervisor, lookup ChannelLookup) *ChannelNotifier {
	return &ChannelNotifier{supervisor: supervisor, lookup: lookup, log: slog.With("component", "approval_channel_notifier")}
}

func (n *ChannelNotifier) NotifyApprovalRequested(ctx context.Context, req Request) error {
	notice := channel.ApprovalNotice{
		ApprovalID:   req.ID,
		Summary:      req.Summary,
		Detail:       req.Detail,
		RiskLevel:    string(req.RiskLevel),
		ApproveToken: req.ApproveToken,
		RejectToken:  req.RejectToken,
	}
	for _, ref := range n.lookup.ChannelsForAgent(req.AgentID) {
		if err := n.supervisor.SendApprovalRequest(ctx, ref.ChannelType, ref.ChatID, notice); err != nil {
			n.log.Warn("approval notice delivery failed", "approval_id", req.ID, "channel", ref.ChannelType, "error", err)
		}
	}
	return nil
}

func (n *ChannelNotifier) NotifyApprovalDecided(ctx context.Context, req Request) error {
	for _, ref := range n.lookup.ChannelsForAgent(req.AgentID) {
		text := "Approval " + req.ID + " " + string(req.Status)
		if err := n.supervisor.SendApprovalRequest(ctx, ref.ChannelType, ref.ChatID, channel.ApprovalNotice{
			ApprovalID: req.ID, Summary: text, RiskLevel: string(req.RiskLevel),
		}); err != nil {
			n.log.Warn("approval decision notice delivery failed", "approval_id", req.ID, "channel", ref.ChannelType, "error", err)
		}
	}
	return nil
}
