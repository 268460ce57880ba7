package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/agentctl/internal/ctlerrors"
)

// AnthropicTaskPayload is the task payload shape the AnthropicBackend
// expects, decoded from Task.Payload.
type AnthropicTaskPayload struct {
	Model    string `json:"model"`
	System   string `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens int64 `json:"max_tokens"`
}

// AnthropicBackend is the LLM Provider Router backend over the Anthropic
// Messages API, grounded on the teacher's pkg/agent/llm_client.go
// conversation-message abstraction (role/content turns) generalized to the
// narrow Backend interface.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend builds a backend using apiKey (empty string reads
// ANTHROPIC_API_KEY from the environment per SDK default behavior).
func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

// Invoke decodes task.Payload as AnthropicTaskPayload, calls the Messages
// API, and returns the concatenated text content as Result.Payload.
func (b *AnthropicBackend) Invoke(ctx context.Context, task Task) (Result, error) {
	var in AnthropicTaskPayload
	if err := json.Unmarshal(task.Payload, &in); err != nil {
		return Result{}, ctlerrors.WithClassification(
			ctlerrors.FailedTo("anthropic_backend", "decode task payload", err), ctlerrors.Permanent)
	}
	if in.MaxTokens == 0 {
		in.MaxTokens = 4096
	}

	msgs := make([]anthropic.MessageParam, 0, len(in.Messages))
	for _, m := range in.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(in.Model),
		MaxTokens: in.MaxTokens,
		Messages:  msgs,
	})
	if err != nil {
		return Result{}, classifyAnthropicErr(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	out, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Result{}, ctlerrors.FailedTo("anthropic_backend", "marshal result", err)
	}
	return Result{Payload: out}, nil
}

func classifyAnthropicErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "rate_limit", "429"):
		return ctlerrors.WithClassification(fmt.Errorf("anthropic: %w", err), ctlerrors.Resource)
	case containsAny(msg, "overloaded", "529", "502", "503"):
		return ctlerrors.WithClassification(fmt.Errorf("anthropic: %w", err), ctlerrors.Transient)
	case containsAny(msg, "invalid_request", "authentication_error", "permission_error", "400", "401", "403", "404"):
		return ctlerrors.WithClassification(fmt.Errorf("anthropic: %w", err), ctlerrors.Permanent)
	case containsAny(msg, "timeout", "deadline"):
		return ctlerrors.WithClassification(fmt.Errorf("anthropic: %w", err), ctlerrors.Timeout)
	default:
		return fmt.Errorf("anthropic: %w", err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
