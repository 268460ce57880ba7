package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
	"github.com/codeready-toolchain/agentctl/pkg/breaker"
)

type fakeBackend struct {
	invoked int
	err     error
}

func (f *fakeBackend) Invoke(ctx context.Context, task Task) (Result, error) {
	f.invoked++
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Payload: []byte("ok")}, nil
}

func newEntry(id string, priority int, backendErr error, threshold uint32) (*Entry, *fakeBackend) {
	b := &fakeBackend{err: backendErr}
	return &Entry{
		ID: id, Backend: b, Priority: priority,
		Breaker: breaker.New(breaker.Config{Name: id, FailureThreshold: threshold, OpenDuration: time.Minute, HalfOpenMax: 1}),
	}, b
}

func TestRoute_PriorityOrder(t *testing.T) {
	r := New()
	e1, _ := newEntry("p1", 0, nil, 5)
	e2, _ := newEntry("p2", 1, nil, 5)
	r.Register(e2)
	r.Register(e1)

	sel, err := r.Route(context.Background(), Task{})
	require.NoError(t, err)
	assert.Equal(t, "p1", sel.Entry.ID)
}

func TestRoute_SkipsOpenBreaker(t *testing.T) {
	r := New()
	e1, b1 := newEntry("p1", 0, errors.New("boom"), 1)
	e2, _ := newEntry("p2", 1, nil, 5)
	r.Register(e1)
	r.Register(e2)

	var events []RouteEvent
	r.Subscribe(func(evt RouteEvent) { events = append(events, evt) })

	_, err := r.Invoke(context.Background(), Task{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, b1.invoked)
	require.Equal(t, breaker.Open, e1.Breaker.State())

	sel, err := r.Route(context.Background(), Task{})
	require.NoError(t, err)
	assert.Equal(t, "p2", sel.Entry.ID)

	var sawSkip bool
	for _, e := range events {
		if e.Type == RouteSkipped && e.ProviderID == "p1" {
			sawSkip = true
		}
	}
	assert.True(t, sawSkip)
}

func TestRoute_ExhaustedWhenAllOpen(t *testing.T) {
	r := New()
	e1, _ := newEntry("p1", 0, errors.New("x"), 1)
	r.Register(e1)
	_, _ = r.Invoke(context.Background(), Task{}, time.Second)
	require.Equal(t, breaker.Open, e1.Breaker.State())

	_, err := r.Route(context.Background(), Task{})
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
}

func TestInvoke_PermanentErrorDoesNotTripBreaker(t *testing.T) {
	r := New()
	e1, _ := newEntry("p1", 0, ctlerrors.WithClassification(errors.New("bad request"), ctlerrors.Permanent), 1)
	r.Register(e1)

	for i := 0; i < 5; i++ {
		_, err := r.Invoke(context.Background(), Task{}, time.Second)
		assert.Error(t, err)
	}
	assert.Equal(t, breaker.Closed, e1.Breaker.State())
}

func TestSemaphore_AcquireTimeout(t *testing.T) {
	sem := NewSemaphore(1)
	require.NoError(t, sem.Acquire(context.Background(), time.Second))

	err := sem.Acquire(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, ctlerrors.Resource, ctlerrors.Classify(err))

	sem.Release()
	require.NoError(t, sem.Acquire(context.Background(), time.Second))
}
