// Package dispatch implements the Message Dispatcher (C11): resolving an
// inbound channel message to an agent/session, enqueuing the chat-response
// job, and relaying the completed response back to the channel.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
)

// RoutedMessage is an inbound message already attributed to a channel/chat.
type RoutedMessage struct {
	ChannelType   string
	ChatID        string
	UserAccountID string
	Message       string
}

// Binding resolves (channelType, chatId) to an agent, per spec §4.11 step 1.
type Binding interface {
	// ResolveAgent returns the bound agent id, "" if no binding applies at
	// all (including no channel default).
	ResolveAgent(ctx context.Context, channelType, chatID string) (agentID string, err error)
}

// Relay delivers text back to the originating channel/chat.
type Relay interface {
	SendMessage(ctx context.Context, channelType, chatID, text string) error
}

// noAgentMessage is the fixed reply sent when no agent is bound (spec §4.11
// step 2: "reply on the channel with a fixed no-agent message; do not
// persist").
const noAgentMessage = "No agent is configured for this conversation yet."

// sessionExpirySlideFactor is lifted directly from the ambiguous source
// wording "elapsed > sessionMaxAge * 100": the distilled spec does not
// explain why a sliding-expiry window would be multiplied by 100, so this
// is implemented literally rather than silently reinterpreted. See
// DESIGN.md Open Question #1.
const sessionExpirySlideFactor = 100

// Dispatcher implements the Message Dispatcher.
type Dispatcher struct {
	sessions      *store.SessionRepository
	jobs          *jobs.Store
	binding       Binding
	relay         Relay
	sessionMaxAge time.Duration
	log           *slog.Logger
}

// New builds a Dispatcher.
func New(sessions *store.SessionRepository, jobStore *jobs.Store, binding Binding, relay Relay, sessionMaxAge time.Duration) *Dispatcher {
	return &Dispatcher{
		sessions: sessions, jobs: jobStore, binding: binding, relay: relay,
		sessionMaxAge: sessionMaxAge, log: slog.With("component", "dispatch"),
	}
}

// Dispatch runs the full resolve -> session -> enqueue pipeline (spec §4.11
// steps 1-5). Step 6 (persisting and relaying the reply) is not part of
// Dispatch: CompleteResponse performs it when called, and no component in
// this module calls CompleteResponse when a job finishes, so replies are
// neither appended to the session nor relayed on the channel.
func (d *Dispatcher) Dispatch(ctx context.Context, msg RoutedMessage) (jobs.Job, error) {
	agentID, err := d.binding.ResolveAgent(ctx, msg.ChannelType, msg.ChatID)
	if err != nil {
		return jobs.Job{}, err
	}
	if agentID == "" {
		if relayErr := d.relay.SendMessage(ctx, msg.ChannelType, msg.ChatID, noAgentMessage); relayErr != nil {
			d.log.Warn("failed to relay no-agent message", "error", relayErr)
		}
		return jobs.Job{}, nil
	}

	session, err := d.findOrCreateSession(ctx, agentID, msg.UserAccountID, msg.ChannelType, msg.ChatID)
	if err != nil {
		return jobs.Job{}, err
	}

	userMsg, _ := jsonMessage("user", msg.Message)
	if err := d.sessions.AppendMessage(ctx, session.ID, userMsg); err != nil {
		return jobs.Job{}, err
	}

	history, err := conversationHistory(session)
	if err != nil {
		return jobs.Job{}, err
	}

	payload, err := jobs.NewPayload(jobs.TypeChatResponse, jobs.ChatResponse{
		Prompt: msg.Message, ConversationHistory: history, GoalType: "chat",
	})
	if err != nil {
		return jobs.Job{}, err
	}

	return d.jobs.Submit(ctx, agentID, session.ID, 0, 3, 300, payload)
}

func (d *Dispatcher) findOrCreateSession(ctx context.Context, agentID, userAccountID, channelType, chatID string) (store.SessionRow, error) {
	row, err := d.sessions.FindActive(ctx, agentID, userAccountID, channelType, chatID)
	if err == nil {
		if d.expired(row) {
			if endErr := d.sessions.End(ctx, row.ID); endErr != nil {
				d.log.Warn("failed to end expired session", "session_id", row.ID, "error", endErr)
			}
		} else {
			return row, nil
		}
	}

	newRow := store.SessionRow{ID: uuid.NewString(), AgentID: agentID, UserAccountID: userAccountID, ChannelType: channelType, ChatID: chatID}
	if createErr := d.sessions.Create(ctx, newRow); createErr != nil {
		return store.SessionRow{}, createErr
	}
	return newRow, nil
}

func (d *Dispatcher) expired(row store.SessionRow) bool {
	if d.sessionMaxAge <= 0 {
		return false
	}
	return time.Since(row.UpdatedAt) > d.sessionMaxAge*sessionExpirySlideFactor
}

// CompleteResponse persists the assistant's reply to the session and
// relays it on the channel (spec §4.11 step 6).
func (d *Dispatcher) CompleteResponse(ctx context.Context, sessionID, channelType, chatID, responseText string) error {
	assistantMsg, err := jsonMessage("assistant", responseText)
	if err != nil {
		return err
	}
	if err := d.sessions.AppendMessage(ctx, sessionID, assistantMsg); err != nil {
		return err
	}
	return d.relay.SendMessage(ctx, channelType, chatID, responseText)
}

func jsonMessage(role, content string) ([]byte, error) {
	entry := []map[string]string{{"role": role, "content": content, "at": time.Now().Format(time.RFC3339Nano)}}
	return json.Marshal(entry)
}

func conversationHistory(row store.SessionRow) ([]string, error) {
	// Messages is a jsonb array of {role,content,at}; the dispatcher only
	// needs flattened text for the job payload, so this avoids decoding
	// into the full pkg/session.Message shape here.
	var raw []map[string]interface{}
	if len(row.Messages) > 0 {
		if err := json.Unmarshal(row.Messages, &raw); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		role, _ := m["role"].(string)
		content, _ := m["content"].(string)
		out = append(out, fmt.Sprintf("%s: %s", role, content))
	}
	return out, nil
}
