package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingStore_ResolveAgent_UnboundReturnsEmpty(t *testing.T) {
	s := NewBindingStore()
	agentID, err := s.ResolveAgent(context.Background(), "slack", "C1")
	require.NoError(t, err)
	assert.Empty(t, agentID)
}

func TestBindingStore_PutThenResolve(t *testing.T) {
	s := NewBindingStore()
	s.Put("agent-1", "slack", "C1")
	agentID, err := s.ResolveAgent(context.Background(), "slack", "C1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", agentID)
}

func TestBindingStore_List_OnlyReturnsAgentsOwnBindings(t *testing.T) {
	s := NewBindingStore()
	s.Put("agent-1", "slack", "C1")
	s.Put("agent-2", "slack", "C2")
	s.Put("agent-1", "telegram", "T1")

	bindings := s.List("agent-1")
	assert.Len(t, bindings, 2)
}

func TestBindingStore_Put_ReplacingAgentMovesBindingOwnership(t *testing.T) {
	s := NewBindingStore()
	s.Put("agent-1", "slack", "C1")
	s.Put("agent-2", "slack", "C1")

	assert.Empty(t, s.List("agent-1"))
	assert.Len(t, s.List("agent-2"), 1)
}

func TestBindingStore_Delete_RemovesBinding(t *testing.T) {
	s := NewBindingStore()
	s.Put("agent-1", "slack", "C1")
	require.NoError(t, s.Delete("agent-1", "slack", "C1"))

	agentID, err := s.ResolveAgent(context.Background(), "slack", "C1")
	require.NoError(t, err)
	assert.Empty(t, agentID)
}

func TestBindingStore_Delete_WrongAgentReturnsNotFound(t *testing.T) {
	s := NewBindingStore()
	s.Put("agent-1", "slack", "C1")
	err := s.Delete("agent-2", "slack", "C1")
	assert.ErrorIs(t, err, ErrBindingNotFound)
}

func TestBindingStore_Delete_MissingReturnsNotFound(t *testing.T) {
	s := NewBindingStore()
	err := s.Delete("agent-1", "slack", "C1")
	assert.ErrorIs(t, err, ErrBindingNotFound)
}
