package api

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/agentctl/pkg/jobs"
)

func testContext(query string) *gin.Context {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/agents/a1/chat?"+query, nil)
	return c
}

func TestWaitDeadline_DefaultsToMaxWait(t *testing.T) {
	cfg := Config{ChatMaxWait: 30 * time.Second, ChatMinWait: 2 * time.Second}
	got := waitDeadline(testContext(""), cfg)
	assert.Equal(t, 30*time.Second, got)
}

func TestWaitDeadline_ClampedToMax(t *testing.T) {
	cfg := Config{ChatMaxWait: 30 * time.Second, ChatMinWait: 2 * time.Second}
	got := waitDeadline(testContext(url.Values{"timeout": {"120"}}.Encode()), cfg)
	assert.Equal(t, 30*time.Second, got)
}

func TestWaitDeadline_ClampedToMin(t *testing.T) {
	cfg := Config{ChatMaxWait: 30 * time.Second, ChatMinWait: 2 * time.Second}
	got := waitDeadline(testContext(url.Values{"timeout": {"1"}}.Encode()), cfg)
	assert.Equal(t, 2*time.Second, got)
}

func TestWaitDeadline_WithinRangeHonored(t *testing.T) {
	cfg := Config{ChatMaxWait: 30 * time.Second, ChatMinWait: 2 * time.Second}
	got := waitDeadline(testContext(url.Values{"timeout": {"10"}}.Encode()), cfg)
	assert.Equal(t, 10*time.Second, got)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, isTerminal(jobs.StatusCompleted))
	assert.True(t, isTerminal(jobs.StatusFailed))
	assert.True(t, isTerminal(jobs.StatusDeadLetter))
	assert.False(t, isTerminal(jobs.StatusRunning))
	assert.False(t, isTerminal(jobs.StatusScheduled))
}
