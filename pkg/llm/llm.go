// Package llm defines the uniform message/tool-call interface the
// orchestrator agent (C9) uses against any of several LLM vendors (C6). A
// vendor adapter translates these provider-agnostic types to and from its
// SDK's wire shapes; the orchestrator never depends on vendor-specific
// types. Responses are modeled as an ordered sequence of typed content
// blocks rather than raw text, per the "dynamic LLM output" design note.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role identifies the speaker of a ConversationMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is a tool's outcome, fed back to the model as part of the next
// user turn.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ConversationMessage is one role-tagged turn. Assistant messages may carry
// ToolCalls; tool-result turns are represented as a user-role message whose
// ToolResults are populated.
type ConversationMessage struct {
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolDefinition describes one tool exposed to the model: its name, a
// description the model uses to decide when to call it, and a JSON Schema
// for its input.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ChunkType discriminates the concrete type of a streamed Chunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkToolCall ChunkType = "tool_call"
	ChunkUsage    ChunkType = "usage"
	ChunkStop     ChunkType = "stop"
	ChunkErr      ChunkType = "error"
)

// Chunk is a single streamed event from a model call. It is a closed sum
// type: the unexported marker method means only this package's concrete
// chunk structs satisfy it, so callers must switch on Type() rather than
// pattern-match on an open interface.
type Chunk interface {
	Type() ChunkType
	chunk()
}

// TextChunk carries a fragment of assistant text.
type TextChunk struct{ Content string }

func (TextChunk) Type() ChunkType { return ChunkText }
func (TextChunk) chunk()         {}

// ToolCallChunk carries one completed tool invocation.
type ToolCallChunk struct{ Call ToolCall }

func (ToolCallChunk) Type() ChunkType { return ChunkToolCall }
func (ToolCallChunk) chunk()         {}

// UsageChunk reports token usage for the call.
type UsageChunk struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

func (UsageChunk) Type() ChunkType { return ChunkUsage }
func (UsageChunk) chunk()         {}

// StopChunk carries the provider's stop reason. A UsageChunk may still
// follow it before the stream closes.
type StopChunk struct{ Reason string }

func (StopChunk) Type() ChunkType { return ChunkStop }
func (StopChunk) chunk()         {}

// ErrorChunk carries a provider-reported error mid-stream.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (ErrorChunk) Type() ChunkType { return ChunkErr }
func (ErrorChunk) chunk()         {}

// GenerateInput is the request to a Client.
type GenerateInput struct {
	Messages    []ConversationMessage
	SystemPrompt string
	Tools       []ToolDefinition
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client is the vendor-agnostic capability a Client implementation exposes:
// a single Generate call returning a channel of typed chunks. Construction
// is vendor-specific (anthropic.New, openai.New); callers hold only this
// interface afterward.
type Client interface {
	// Name identifies the vendor ("anthropic", "openai", ...).
	Name() string
	// Model returns the concrete model identifier this client is configured
	// to use by default.
	Model() string
	// Generate issues one model call and streams its response as Chunks on
	// the returned channel. The channel is closed when the stream ends,
	// whether by a StopChunk, an ErrorChunk, or context cancellation.
	Generate(ctx context.Context, in *GenerateInput) (<-chan Chunk, error)
}

// ErrNoCredentials is returned by a vendor constructor when its required API
// key environment variable is unset.
var ErrNoCredentials = errors.New("llm: no credentials configured for vendor")

// Collect drains ch into a single ConversationMessage (role Assistant) plus
// any tool calls observed, for callers that prefer a synchronous
// request/response shape over consuming the channel directly. It returns an
// error if an ErrorChunk was observed.
func Collect(ch <-chan Chunk) (ConversationMessage, error) {
	msg := ConversationMessage{Role: RoleAssistant}
	var text string
	for c := range ch {
		switch v := c.(type) {
		case TextChunk:
			text += v.Content
		case ToolCallChunk:
			msg.ToolCalls = append(msg.ToolCalls, v.Call)
		case ErrorChunk:
			return msg, errors.New("llm: " + v.Message)
		}
	}
	msg.Content = text
	return msg, nil
}
