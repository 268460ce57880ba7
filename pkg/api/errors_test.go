package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/agentctl/internal/store"
	"github.com/codeready-toolchain/agentctl/pkg/approval"
	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
	}{
		{"agent not found maps to 404", ErrAgentNotFound, http.StatusNotFound},
		{"store not found maps to 404", fmt.Errorf("wrapped: %w", store.ErrNotFound), http.StatusNotFound},
		{"binding not found maps to 404", ErrBindingNotFound, http.StatusNotFound},
		{"agent not executing maps to 409", ErrAgentNotExecuting, http.StatusConflict},
		{"store state conflict maps to 409", store.ErrStateConflict, http.StatusConflict},
		{"expired approval maps to 410", approval.ErrExpired, http.StatusGone},
		{"approval conflict maps to 409", approval.ErrStateConflict, http.StatusConflict},
		{"bad approval token maps to 403", approval.ErrBadToken, http.StatusForbidden},
		{"invalid lifecycle transition maps to 409", &lifecycle.InvalidTransition{From: lifecycle.Ready, To: lifecycle.Booting}, http.StatusConflict},
		{"unknown error maps to 500", fmt.Errorf("something unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := classifyError(tt.err)
			assert.Equal(t, tt.expectCode, code)
		})
	}
}
