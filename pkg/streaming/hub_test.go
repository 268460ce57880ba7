package streaming

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (f *fakeSink) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink closed")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) all() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func TestBroadcast_MonotonicIDs(t *testing.T) {
	h := New(256)
	for i := 1; i <= 5; i++ {
		ev := h.Broadcast("A2", "agent:output", []byte("x"))
		assert.Equal(t, fmt.Sprintf("A2:%d", i), ev.ID)
		assert.EqualValues(t, i, ev.Counter)
	}
}

func TestConnect_ReplayFromLastEventID(t *testing.T) {
	h := New(256)
	for i := 1; i <= 5; i++ {
		h.Broadcast("A2", "agent:output", []byte("x"))
	}

	sink := &fakeSink{}
	conn, err := h.Connect("A2", sink, "A2:3")
	require.NoError(t, err)
	defer conn.Close()

	replayed := sink.all()
	require.Len(t, replayed, 2)
	assert.Equal(t, "A2:4", replayed[0].ID)
	assert.Equal(t, "A2:5", replayed[1].ID)
}

func TestConnect_NoLastEventID_NoReplay(t *testing.T) {
	h := New(256)
	h.Broadcast("A1", "x", nil)
	sink := &fakeSink{}
	conn, err := h.Connect("A1", sink, "")
	require.NoError(t, err)
	defer conn.Close()
	assert.Empty(t, sink.all())
}

func TestConnect_UnknownLastEventID_ReplaysAll(t *testing.T) {
	h := New(256)
	for i := 0; i < 3; i++ {
		h.Broadcast("A1", "x", nil)
	}
	sink := &fakeSink{}
	conn, err := h.Connect("A1", sink, "A1:999")
	require.NoError(t, err)
	defer conn.Close()
	assert.Len(t, sink.all(), 3)
}

func TestBroadcast_EvictsOldestWhenRingFull(t *testing.T) {
	h := New(2)
	h.Broadcast("A1", "x", nil)
	h.Broadcast("A1", "x", nil)
	h.Broadcast("A1", "x", nil)

	sink := &fakeSink{}
	conn, err := h.Connect("A1", sink, "")
	require.NoError(t, err)
	defer conn.Close()

	// reconnect with unknown (evicted) id triggers replay-all of remaining 2
	sink2 := &fakeSink{}
	conn2, err := h.Connect("A1", sink2, "A1:1")
	require.NoError(t, err)
	defer conn2.Close()
	replayed := sink2.all()
	require.Len(t, replayed, 2)
	assert.Equal(t, "A1:2", replayed[0].ID)
	assert.Equal(t, "A1:3", replayed[1].ID)
}

func TestBroadcast_FailedSinkRemoved(t *testing.T) {
	h := New(16)
	sink := &fakeSink{fail: true}
	conn, err := h.Connect("A1", sink, "")
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, 1, h.ConnectionCount("A1"))
	h.Broadcast("A1", "x", nil)
	assert.Equal(t, 0, h.ConnectionCount("A1"))
}

func TestDisconnectAll_DropsBufferAndCounter(t *testing.T) {
	h := New(16)
	h.Broadcast("A1", "x", nil)
	h.Broadcast("A1", "x", nil)
	h.DisconnectAll("A1")

	ev := h.Broadcast("A1", "x", nil)
	assert.Equal(t, "A1:1", ev.ID)
}

func TestBroadcast_PerAgentIndependentCounters(t *testing.T) {
	h := New(16)
	ev1 := h.Broadcast("A1", "x", nil)
	ev2 := h.Broadcast("A2", "x", nil)
	assert.Equal(t, "A1:1", ev1.ID)
	assert.Equal(t, "A2:1", ev2.ID)
}
