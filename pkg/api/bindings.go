package api

import (
	"context"
	"sync"
	"time"

	"github.com/codeready-toolchain/agentctl/pkg/approval"
)

// ChannelBinding attaches a channel conversation to the agent that answers
// it, the thing dispatch.Binding resolves against.
type ChannelBinding struct {
	AgentID     string    `json:"agentId"`
	ChannelType string    `json:"channelType"`
	ChatID      string    `json:"chatId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func bindingKey(channelType, chatID string) string { return channelType + "\x00" + chatID }

// BindingStore is a process-local registry of channel bindings, keyed by
// (channelType, chatId). It implements dispatch.Binding directly so the
// Message Dispatcher and the Request Router's CRUD endpoints share one
// source of truth, mirroring how pkg/lifecycle.Registry and pkg/skills.Index
// both use a mutex-guarded map rather than round-tripping to the database
// for data that is small, hot, and process-scoped.
type BindingStore struct {
	mu      sync.RWMutex
	byKey   map[string]ChannelBinding
	byAgent map[string]map[string]bool // agentID -> set of binding keys
	now     func() time.Time
}

// NewBindingStore builds an empty BindingStore.
func NewBindingStore() *BindingStore {
	return &BindingStore{
		byKey: make(map[string]ChannelBinding), byAgent: make(map[string]map[string]bool),
		now: time.Now,
	}
}

// ResolveAgent implements dispatch.Binding.
func (s *BindingStore) ResolveAgent(ctx context.Context, channelType, chatID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byKey[bindingKey(channelType, chatID)]
	if !ok {
		return "", nil
	}
	return b.AgentID, nil
}

// Put creates or replaces the binding for (channelType, chatID).
func (s *BindingStore) Put(agentID, channelType, chatID string) ChannelBinding {
	key := bindingKey(channelType, chatID)
	b := ChannelBinding{AgentID: agentID, ChannelType: channelType, ChatID: chatID, CreatedAt: s.now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byKey[key]; ok && old.AgentID != agentID {
		delete(s.byAgent[old.AgentID], key)
	}
	s.byKey[key] = b
	if s.byAgent[agentID] == nil {
		s.byAgent[agentID] = make(map[string]bool)
	}
	s.byAgent[agentID][key] = true
	return b
}

// List returns every binding for agentID.
func (s *BindingStore) List(agentID string) []ChannelBinding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChannelBinding, 0, len(s.byAgent[agentID]))
	for key := range s.byAgent[agentID] {
		out = append(out, s.byKey[key])
	}
	return out
}

// ChannelsForAgent implements approval.ChannelLookup, so the Approval Gate
// can deliver notices through whatever channels an agent is bound to
// without importing this package.
func (s *BindingStore) ChannelsForAgent(agentID string) []approval.ChannelRef {
	bindings := s.List(agentID)
	out := make([]approval.ChannelRef, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, approval.ChannelRef{ChannelType: b.ChannelType, ChatID: b.ChatID})
	}
	return out
}

// Delete removes the binding for (channelType, chatID) scoped to agentID.
// Returns ErrBindingNotFound if no such binding exists for that agent.
func (s *BindingStore) Delete(agentID, channelType, chatID string) error {
	key := bindingKey(channelType, chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byKey[key]
	if !ok || b.AgentID != agentID {
		return ErrBindingNotFound
	}
	delete(s.byKey, key)
	delete(s.byAgent[agentID], key)
	return nil
}
