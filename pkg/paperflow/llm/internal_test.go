package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name        string
		client      *ClaudeCLI
		req         CompletionRequest
		contains    []string
		notContains []string
	}{
		{
			name:     "basic request",
			client:   NewClaudeCLI(),
			req:      Prompt("", "Hello"),
			contains: []string{"--print", "-p", "Hello"},
		},
		{
			name:     "with system prompt",
			client:   NewClaudeCLI(),
			req:      Prompt("Be concise", "Hi"),
			contains: []string{"--system-prompt", "Be concise"},
		},
		{
			name:     "model from client",
			client:   NewClaudeCLI(WithModel("sonnet")),
			req:      Prompt("", "Test"),
			contains: []string{"--model", "sonnet"},
		},
		{
			name:        "model from request overrides client",
			client:      NewClaudeCLI(WithModel("default-model")),
			req:         CompletionRequest{Model: "request-model", Messages: []Message{{Role: RoleUser, Content: "Test"}}},
			contains:    []string{"--model", "request-model"},
			notContains: []string{"default-model"},
		},
		{
			name:     "max tokens",
			client:   NewClaudeCLI(),
			req:      CompletionRequest{MaxTokens: 1000, Messages: []Message{{Role: RoleUser, Content: "Test"}}},
			contains: []string{"--max-tokens", "1000"},
		},
		{
			name:        "no system prompt flag when empty",
			client:      NewClaudeCLI(),
			req:         Prompt("", "Test"),
			notContains: []string{"--system-prompt", "--model", "--max-tokens"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.client.buildArgs(tt.req)
			for _, want := range tt.contains {
				assert.Contains(t, args, want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, args, unwanted)
			}
		})
	}
}

func TestBuildArgs_SchemaInSystemPrompt(t *testing.T) {
	c := NewClaudeCLI()
	req := Prompt("Extract fields.", "paper text").WithSchema(json.RawMessage(`{"type":"object"}`))

	args := c.buildArgs(req)

	var system string
	for i, a := range args {
		if a == "--system-prompt" && i+1 < len(args) {
			system = args[i+1]
		}
	}
	assert.Contains(t, system, "Extract fields.")
	assert.Contains(t, system, `{"type":"object"}`)
}

func TestBuildArgs_FlattensConversation(t *testing.T) {
	c := NewClaudeCLI()
	args := c.buildArgs(CompletionRequest{Messages: []Message{
		{Role: RoleUser, Content: "First"},
		{Role: RoleAssistant, Content: "Reply"},
		{Role: RoleUser, Content: "Second"},
	}})

	prompt := args[len(args)-1]
	assert.Contains(t, prompt, "First")
	assert.Contains(t, prompt, "Assistant: Reply")
	assert.Contains(t, prompt, "Second")
}

func TestParseResponse(t *testing.T) {
	c := NewClaudeCLI(WithModel("opus"))

	resp := c.parseResponse([]byte("  answer text \n"))

	assert.Equal(t, "answer text", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "opus", resp.Model)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Rate limit exceeded", true},
		{"request timeout", true},
		{"API overloaded", true},
		{"HTTP 503 Service Unavailable", true},
		{"error 529", true},
		{"invalid API key", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.msg))
		})
	}
}

func TestStreamEventUsage(t *testing.T) {
	var evt streamEvent
	err := json.Unmarshal([]byte(`{"type":"result","result":"hi","usage":{"input_tokens":3,"output_tokens":4}}`), &evt)
	assert.NoError(t, err)

	u := evt.usage()
	if assert.NotNil(t, u) {
		assert.Equal(t, 7, u.TotalTokens)
	}
	assert.Nil(t, streamEvent{}.usage())
}
