// Package session defines the shared Session/SessionMessage model used by
// the Message Dispatcher, Job Store payloads, and Request Router.
package session

import "time"

// Status is a Session's lifecycle status.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Role identifies who authored a SessionMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a Session's conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the conversational context between a user and an agent over a
// channel. At most one active Session may exist per (AgentID, UserAccountID,
// ChannelID+ChatID) tuple — enforced by internal/store's unique index.
type Session struct {
	ID            string    `json:"id"`
	AgentID       string    `json:"agent_id"`
	UserAccountID string    `json:"user_account_id"`
	ChannelType   string    `json:"channel_type"`
	ChatID        string    `json:"chat_id"`
	Status        Status    `json:"status"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to a caller outside the owning
// store (mirrors the teacher's Session.Clone used before broadcasting).
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

// AppendMessage appends a message and bumps UpdatedAt.
func (s *Session) AppendMessage(role Role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: at})
	s.UpdatedAt = at
}

// Key identifies the (agent, user, channel) tuple a Session is scoped to.
type Key struct {
	AgentID       string
	UserAccountID string
	ChannelType   string
	ChatID        string
}
