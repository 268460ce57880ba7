package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agentctl/pkg/buffer"
	"github.com/codeready-toolchain/agentctl/pkg/jobs"
	"github.com/codeready-toolchain/agentctl/pkg/lifecycle"
	"github.com/codeready-toolchain/agentctl/pkg/provider"
	"github.com/codeready-toolchain/agentctl/pkg/streaming"
	"github.com/codeready-toolchain/agentctl/pkg/worker"
)

// chatHandlerDeps bundles the components a CHAT_RESPONSE task needs beyond
// the job itself: where it routes to an LLM backend, where it streams
// progress, and where it keeps per-agent state.
type chatHandlerDeps struct {
	router        *provider.Router
	registry      *lifecycle.Registry
	hub           *streaming.Hub
	bufferBaseDir string
	acquireWait   time.Duration
}

// newChatHandler builds the CHAT_RESPONSE Worker Runtime handler: it moves
// the agent from READY to EXECUTING, appends an append-only buffer trail of
// the request/response turn, and broadcasts the response on the agent's
// stream. The agent stays in EXECUTING afterwards: the lifecycle table has
// no EXECUTING -> READY edge.
func newChatHandler(d chatHandlerDeps) worker.Handler {
	return func(ctx context.Context, job jobs.Job, cancel worker.CancelToken) (interface{}, error) {
		chat, err := job.Payload.AsChatResponse()
		if err != nil {
			return nil, err
		}

		agent := d.registry.GetOrCreate(job.AgentID)
		if !agent.IsReady() {
			return nil, fmt.Errorf("chat handler: agent %s is not ready (state %s)", job.AgentID, agent.State())
		}
		if agent.State() == lifecycle.Ready {
			if err := agent.Transition(lifecycle.Executing, "chat job claimed"); err != nil {
				return nil, err
			}
		}

		buf, err := buffer.Open(d.bufferBaseDir, job.ID)
		if err != nil {
			return nil, err
		}
		defer buf.Close()

		if _, err := buf.Append(job.ID, job.SessionID, job.AgentID, buffer.LLMRequest, chat, false); err != nil {
			return nil, err
		}

		payload := provider.AnthropicTaskPayload{
			Model:  "claude-sonnet-4-5",
			System: systemPromptFor(chat.GoalType, chat.SkillNames),
			Messages: []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			}{{Role: "user", Content: chat.Prompt}},
			MaxTokens: 1024,
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}

		result, err := d.router.Invoke(ctx, provider.Task{Type: "llm_chat", Payload: raw}, d.acquireWait)
		if err != nil {
			_, _ = buf.Append(job.ID, job.SessionID, job.AgentID, buffer.ErrorEvent, map[string]string{"error": err.Error()}, false)
			return nil, err
		}

		var decoded struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(result.Payload, &decoded); err != nil {
			return nil, err
		}
		text := decoded.Text

		if _, err := buf.Append(job.ID, job.SessionID, job.AgentID, buffer.LLMResponse, map[string]string{"text": text}, false); err != nil {
			return nil, err
		}

		d.hub.Broadcast(job.AgentID, "chat_response", []byte(text))

		return map[string]string{"response": text}, nil
	}
}

func systemPromptFor(goalType string, skillNames []string) string {
	if len(skillNames) == 0 {
		return fmt.Sprintf("You are an autonomous agent handling a %q request.", goalType)
	}
	return fmt.Sprintf("You are an autonomous agent handling a %q request with skills: %v.", goalType, skillNames)
}
