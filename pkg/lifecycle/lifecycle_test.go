package lifecycle

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_AllowedTable(t *testing.T) {
	allowed := []struct{ from, to State }{
		{Booting, Hydrating}, {Booting, Terminated},
		{Hydrating, Ready}, {Hydrating, Terminated},
		{Ready, Executing}, {Ready, Draining},
		{Executing, Draining}, {Executing, Terminated},
		{Draining, Terminated},
	}
	for _, tc := range allowed {
		a := New("a1")
		// drive to `from` via the shortest legal path
		driveTo(t, a, tc.from)
		err := a.Transition(tc.to, "test")
		assert.NoError(t, err, "%s -> %s should be allowed", tc.from, tc.to)
		assert.Equal(t, tc.to, a.State())
	}
}

func TestTransition_InvalidLeavesStateUnchanged(t *testing.T) {
	a := New("a1")
	err := a.Transition(Ready, "skip hydration")
	require.Error(t, err)
	var it *InvalidTransition
	require.ErrorAs(t, err, &it)
	assert.Equal(t, Booting, it.From)
	assert.Equal(t, Ready, it.To)
	assert.Equal(t, Booting, a.State())
}

func TestTransition_SelfTransitionInvalid(t *testing.T) {
	a := New("a1")
	require.NoError(t, a.Transition(Hydrating, ""))
	require.NoError(t, a.Transition(Ready, ""))
	err := a.Transition(Ready, "")
	assert.Error(t, err)
}

func TestTransition_ListenerFiresOnlyOnSuccess(t *testing.T) {
	a := New("a1")
	var calls int32
	a.OnTransition(func(evt TransitionEvent) {
		atomic.AddInt32(&calls, 1)
	})

	_ = a.Transition(Ready, "") // invalid, should not fire
	require.NoError(t, a.Transition(Hydrating, ""))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTransition_UnsubscribeStopsDelivery(t *testing.T) {
	a := New("a1")
	var calls int32
	unsub := a.OnTransition(func(evt TransitionEvent) {
		atomic.AddInt32(&calls, 1)
	})
	unsub()
	require.NoError(t, a.Transition(Hydrating, ""))
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestDerivedViews(t *testing.T) {
	a := New("a1")
	assert.False(t, a.IsReady())
	assert.True(t, a.IsAlive())
	assert.False(t, a.IsTerminal())

	driveTo(t, a, Ready)
	assert.True(t, a.IsReady())

	require.NoError(t, a.Transition(Draining, ""))
	require.NoError(t, a.Transition(Terminated, ""))
	assert.False(t, a.IsAlive())
	assert.True(t, a.IsTerminal())
}

func TestSteer_OnlyWhileExecuting(t *testing.T) {
	a := New("a1")
	err := a.Steer(SteeringMessage{Message: "hi"})
	assert.Error(t, err)

	driveTo(t, a, Executing)
	require.NoError(t, a.Steer(SteeringMessage{Message: "focus on X", Priority: PriorityNormal}))

	drained := a.DrainInbox()
	require.Len(t, drained, 1)
	assert.Equal(t, "focus on X", drained[0].Message)

	assert.Empty(t, a.DrainInbox())
}

func TestSteer_HighPriorityPreempts(t *testing.T) {
	a := New("a1")
	driveTo(t, a, Executing)
	sig := a.PreemptSignal()

	require.NoError(t, a.Steer(SteeringMessage{Message: "stop", Priority: PriorityHigh}))

	select {
	case <-sig:
	default:
		t.Fatal("expected preempt signal")
	}
}

func driveTo(t *testing.T, a *Agent, target State) {
	t.Helper()
	path := map[State][]State{
		Booting:    nil,
		Hydrating:  {Hydrating},
		Ready:      {Hydrating, Ready},
		Executing:  {Hydrating, Ready, Executing},
		Draining:   {Hydrating, Ready, Draining},
		Terminated: {Hydrating, Ready, Draining, Terminated},
	}[target]
	for _, s := range path {
		require.NoError(t, a.Transition(s, "setup"))
	}
}
