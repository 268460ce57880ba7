package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetOrCreate_ReturnsSameAgentOnSecondCall(t *testing.T) {
	r := NewRegistry()
	a1 := r.GetOrCreate("agent-1")
	a2 := r.GetOrCreate("agent-1")
	assert.Same(t, a1, a2)
}

func TestRegistry_Lookup_MissingAgent(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_Lookup_FoundAfterCreate(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("agent-1")
	a, ok := r.Lookup("agent-1")
	require.True(t, ok)
	assert.Equal(t, "agent-1", a.ID())
}

func TestRegistry_All_ReturnsEveryTrackedAgent(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreate("a")
	r.GetOrCreate("b")
	assert.Len(t, r.All(), 2)
}
