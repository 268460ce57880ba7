package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay_CapsAtMaxDelay(t *testing.T) {
	base := 1 * time.Second
	max := 10 * time.Second
	// 2^9 * 1s = 512s, far past the 10s cap; the ±20% jitter is applied
	// after the cap.
	d := BackoffDelay(10, base, max)
	assert.LessOrEqual(t, float64(d), float64(max)*1.2)
	assert.GreaterOrEqual(t, float64(d), float64(max)*0.8)
}

func TestBackoffDelay_JitterWithinTwentyPercent(t *testing.T) {
	base := 1 * time.Second
	max := 1 * time.Minute
	raw := float64(base) * 8 // attempt 4: 2^3
	for i := 0; i < 50; i++ {
		d := BackoffDelay(4, base, max)
		lower := raw * 0.8
		upper := raw * 1.2
		assert.GreaterOrEqual(t, float64(d), lower)
		assert.LessOrEqual(t, float64(d), upper)
	}
}

func TestBackoffDelay_AttemptOneIsBaseDelay(t *testing.T) {
	base := 2 * time.Second
	max := 1 * time.Minute
	d := BackoffDelay(1, base, max)
	assert.InDelta(t, float64(base), float64(d), float64(base)*0.2)
}

func TestPayload_ChatResponseRoundTrip(t *testing.T) {
	p, err := NewPayload(TypeChatResponse, ChatResponse{
		Prompt: "hello", ConversationHistory: []string{"hi"}, GoalType: "support",
	})
	require.NoError(t, err)

	raw, err := p.Marshal()
	require.NoError(t, err)

	var decoded Payload
	require.NoError(t, decoded.Unmarshal(raw))
	assert.Equal(t, TypeChatResponse, decoded.Type)

	cr, err := decoded.AsChatResponse()
	require.NoError(t, err)
	assert.Equal(t, "hello", cr.Prompt)
	assert.Equal(t, "support", cr.GoalType)
}

func TestPayload_WrongVariantFailsPermanent(t *testing.T) {
	p, err := NewPayload(TypeChatResponse, ChatResponse{Prompt: "x"})
	require.NoError(t, err)

	_, err = p.AsProactiveDetect()
	require.Error(t, err)
}

func TestPayload_MissingTypeTagFailsPermanent(t *testing.T) {
	var p Payload
	err := p.Unmarshal([]byte(`{"prompt":"hi"}`))
	require.Error(t, err)
}

func TestPayload_UnknownTagFailsPermanent(t *testing.T) {
	var p Payload
	require.NoError(t, p.Unmarshal([]byte(`{"type":"SOMETHING_UNKNOWN","x":1}`)))
	_, err := p.AsChatResponse()
	require.Error(t, err)
}
