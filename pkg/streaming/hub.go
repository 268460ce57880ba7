// Package streaming implements the Streaming Hub: per-agent Server-Sent
// Events fan-out with monotonic event ids, a bounded replay ring buffer, and
// reconnect-from-Last-Event-ID. Grounded on the teacher's
// pkg/events.ConnectionManager (per-key mutex-guarded map, catchup-from-id),
// reworked for SSE instead of WebSocket frames.
package streaming

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Event is one broadcast event, already assigned its per-agent id.
type Event struct {
	AgentID string
	ID      string // "{agentId}:{counter}"
	Counter int64
	Type    string
	Data    []byte
}

// Sink receives broadcast events for one connection. Send must not block
// indefinitely: implementations should honor a write budget and return an
// error (or false from a bounded attempt) to be treated as failed.
type Sink interface {
	// Send delivers an event. Returning an error marks the connection
	// failed and it is removed.
	Send(Event) error
}

type connection struct {
	id   uint64
	sink Sink
}

type agentState struct {
	mu          sync.Mutex
	counter     int64
	ring        []Event
	ringHead    int
	ringSize    int
	ringCap     int
	connections []connection
	nextConnID  uint64
}

// Hub is the process-wide Streaming Hub, keyed by agent id.
type Hub struct {
	mu       sync.Mutex
	agents   map[string]*agentState
	ringCap  int
}

// New creates a Hub whose per-agent replay buffer holds up to ringCap
// events.
func New(ringCap int) *Hub {
	if ringCap < 1 {
		ringCap = 1
	}
	return &Hub{agents: make(map[string]*agentState), ringCap: ringCap}
}

func (h *Hub) state(agentID string) *agentState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.agents[agentID]
	if !ok {
		st = &agentState{ringCap: h.ringCap, ring: make([]Event, h.ringCap)}
		h.agents[agentID] = st
	}
	return st
}

// Connection is a handle returned by Connect; callers must call Close to
// unregister.
type Connection struct {
	hub     *Hub
	agentID string
	connID  uint64
}

// Close unregisters this connection eagerly.
func (c *Connection) Close() {
	st := c.hub.state(c.agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, conn := range st.connections {
		if conn.id == c.connID {
			st.connections = append(st.connections[:i], st.connections[i+1:]...)
			break
		}
	}
}

// ParseEventID splits "{agentId}:{counter}" into its parts.
func ParseEventID(id string) (agentID string, counter int64, ok bool) {
	idx := strings.LastIndex(id, ":")
	if idx < 0 {
		return "", 0, false
	}
	n, err := strconv.ParseInt(id[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return id[:idx], n, true
}

// Connect registers sink for agentID and, if lastEventID is non-empty,
// replays buffered events strictly after it (or the entire buffer if the
// id is not found — the "replay-all fallback"). Replay happens
// synchronously, before Connect returns, so callers are guaranteed not to
// miss or duplicate events relative to subsequent Broadcast calls.
func (h *Hub) Connect(agentID string, sink Sink, lastEventID string) (*Connection, error) {
	st := h.state(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()

	replay := st.bufferedEventsLocked()
	if lastEventID != "" {
		if idx := indexAfter(replay, lastEventID); idx >= 0 {
			replay = replay[idx:]
		}
		// else: not found -> replay-all fallback (replay stays as full buffer)
	}

	for _, ev := range replay {
		if err := sink.Send(ev); err != nil {
			return nil, fmt.Errorf("streaming: replay failed: %w", err)
		}
	}

	st.nextConnID++
	id := st.nextConnID
	st.connections = append(st.connections, connection{id: id, sink: sink})

	return &Connection{hub: h, agentID: agentID, connID: id}, nil
}

func indexAfter(events []Event, lastEventID string) int {
	for i, ev := range events {
		if ev.ID == lastEventID {
			return i + 1
		}
	}
	return -1
}

func (st *agentState) bufferedEventsLocked() []Event {
	if st.ringSize == 0 {
		return nil
	}
	out := make([]Event, 0, st.ringSize)
	start := (st.ringHead - st.ringSize + st.ringCap) % st.ringCap
	for i := 0; i < st.ringSize; i++ {
		out = append(out, st.ring[(start+i)%st.ringCap])
	}
	return out
}

// Broadcast assigns the next monotonic id for agentID, appends to the ring
// (evicting the oldest on overflow), and sends to every connected sink.
// Sinks whose Send fails are closed and removed.
func (h *Hub) Broadcast(agentID, typ string, data []byte) Event {
	st := h.state(agentID)
	st.mu.Lock()

	st.counter++
	ev := Event{
		AgentID: agentID,
		ID:      fmt.Sprintf("%s:%d", agentID, st.counter),
		Counter: st.counter,
		Type:    typ,
		Data:    append([]byte(nil), data...),
	}

	st.ring[st.ringHead] = ev
	st.ringHead = (st.ringHead + 1) % st.ringCap
	if st.ringSize < st.ringCap {
		st.ringSize++
	}

	conns := make([]connection, len(st.connections))
	copy(conns, st.connections)
	st.mu.Unlock()

	var failed []uint64
	for _, c := range conns {
		if err := c.sink.Send(ev); err != nil {
			failed = append(failed, c.id)
		}
	}

	if len(failed) > 0 {
		st.mu.Lock()
		st.connections = removeFailed(st.connections, failed)
		st.mu.Unlock()
	}

	return ev
}

func removeFailed(conns []connection, failed []uint64) []connection {
	failedSet := make(map[uint64]bool, len(failed))
	for _, id := range failed {
		failedSet[id] = true
	}
	kept := conns[:0:0]
	for _, c := range conns {
		if !failedSet[c.id] {
			kept = append(kept, c)
		}
	}
	return kept
}

// DisconnectAll closes every connection for agentID and drops its buffer
// and counter, as if the agent had never broadcast.
func (h *Hub) DisconnectAll(agentID string) {
	h.mu.Lock()
	delete(h.agents, agentID)
	h.mu.Unlock()
}

// ConnectionCount returns the number of live connections for agentID, for
// metrics.
func (h *Hub) ConnectionCount(agentID string) int {
	st := h.state(agentID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.connections)
}
