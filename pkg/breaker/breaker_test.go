package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

func TestBreaker_TripsAtFailureThreshold(t *testing.T) {
	b := New(Config{Name: "p1", FailureThreshold: 3, OpenDuration: 50 * time.Millisecond, HalfOpenMax: 1})

	fail := func(ctx context.Context) (interface{}, error) {
		return nil, ctlerrors.WithClassification(errors.New("boom"), ctlerrors.Transient)
	}

	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), fail)
		assert.Error(t, err)
		assert.Equal(t, Closed, b.State())
	}

	_, err := b.Execute(context.Background(), fail)
	assert.Error(t, err)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_OpenShortCircuits(t *testing.T) {
	b := New(Config{Name: "p1", FailureThreshold: 1, OpenDuration: time.Minute, HalfOpenMax: 1})
	_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, ctlerrors.WithClassification(errors.New("boom"), ctlerrors.Transient)
	})
	require.Equal(t, Open, b.State())

	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		t.Fatal("should not be called while open")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_PermanentErrorNeverTrips(t *testing.T) {
	b := New(Config{Name: "p1", FailureThreshold: 2, OpenDuration: time.Minute, HalfOpenMax: 1})

	for i := 0; i < 10; i++ {
		_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, ctlerrors.WithClassification(errors.New("bad request"), ctlerrors.Permanent)
		})
		assert.Error(t, err)
	}
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := New(Config{Name: "p1", FailureThreshold: 1, OpenDuration: 20 * time.Millisecond, HalfOpenMax: 1})

	_, _ = b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, ctlerrors.WithClassification(errors.New("boom"), ctlerrors.Transient)
	})
	require.Equal(t, Open, b.State())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, b.CanExecute())

	_, err := b.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}
