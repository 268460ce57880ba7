package ctlerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e statusErr) Error() string  { return "status error" }
func (e statusErr) StatusCode() int { return e.code }

func TestClassify_HTTPStatus(t *testing.T) {
	cases := map[int]Classification{
		429: Transient, 502: Transient, 503: Transient, 529: Transient,
		400: Permanent, 401: Permanent, 403: Permanent, 404: Permanent, 405: Permanent, 409: Permanent, 422: Permanent,
		408: Timeout, 504: Timeout,
	}
	for code, want := range cases {
		assert.Equal(t, want, Classify(statusErr{code: code}), "code %d", code)
	}
}

func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, Timeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, Timeout, Classify(context.Canceled))
}

func TestClassify_MessageSniffing(t *testing.T) {
	assert.Equal(t, Transient, Classify(errors.New("connection refused")))
	assert.Equal(t, Resource, Classify(errors.New("rate limit exceeded")))
	assert.Equal(t, Permanent, Classify(errors.New("validation failed: missing field")))
	assert.Equal(t, Unknown, Classify(errors.New("something odd happened")))
}

func TestClassify_ExplicitOverridesSniffing(t *testing.T) {
	err := WithClassification(errors.New("connection refused"), Permanent)
	assert.Equal(t, Permanent, Classify(err))
}

func TestClassification_Retriable(t *testing.T) {
	assert.True(t, Transient.Retriable())
	assert.False(t, Permanent.Retriable())
	assert.True(t, Unknown.Retriable())
}

func TestClassification_CountsTowardBreaker(t *testing.T) {
	assert.True(t, Transient.CountsTowardBreaker())
	assert.False(t, Permanent.CountsTowardBreaker())
	assert.True(t, Resource.CountsTowardBreaker())
}
