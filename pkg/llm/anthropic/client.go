// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// vendor-agnostic llm.Client interface, translating ConversationMessage and
// ToolDefinition into Anthropic Messages API params and streaming the
// response back as llm.Chunk values.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/autopipe/engine/pkg/llm"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// messagesClient is the subset of *sdk.MessageService this adapter uses, so
// tests can substitute a fake without a live API key.
type messagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) streamer
}

type streamer interface {
	Next() bool
	Current() sdk.MessageStreamEventUnion
	Err() error
	Close() error
}

// sdkMessagesClient adapts *ssestream.Stream[sdk.MessageStreamEventUnion],
// which already satisfies this shape structurally, into the streamer
// interface above via a thin wrapper so messagesClient stays mockable.
type sdkMessagesClient struct{ svc *sdk.MessageService }

func (c *sdkMessagesClient) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) streamer {
	return c.svc.NewStreaming(ctx, body, opts...)
}

// Client implements llm.Client on top of the Anthropic Messages API.
type Client struct {
	msg         messagesClient
	model       string
	maxTokens   int
	temperature float64
}

// New builds a Client from an explicit API key and default model.
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, llm.ErrNoCredentials
	}
	if model == "" {
		model = defaultModel
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Client{msg: &sdkMessagesClient{svc: &ac.Messages}, model: model, maxTokens: 4096}, nil
}

// NewFromEnv builds a Client reading ANTHROPIC_API_KEY and ANTHROPIC_MODEL.
func NewFromEnv() (*Client, error) {
	return New(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_MODEL"))
}

func (c *Client) Name() string  { return "anthropic" }
func (c *Client) Model() string { return c.model }

// Generate issues a streaming Messages.New call and translates incremental
// events into llm.Chunk values on the returned channel.
func (c *Client) Generate(ctx context.Context, in *llm.GenerateInput) (<-chan llm.Chunk, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	stream := c.msg.NewStreaming(ctx, *params)

	out := make(chan llm.Chunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		var toolName, toolID string
		var toolArgs []byte
		inToolBlock := false

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				block := event.ContentBlock
				if block.Type == "tool_use" {
					inToolBlock = true
					toolName = block.Name
					toolID = block.ID
					toolArgs = toolArgs[:0]
				}
			case "content_block_delta":
				delta := event.Delta
				if delta.Text != "" {
					out <- llm.TextChunk{Content: delta.Text}
				}
				if inToolBlock && delta.PartialJSON != "" {
					toolArgs = append(toolArgs, []byte(delta.PartialJSON)...)
				}
			case "content_block_stop":
				if inToolBlock {
					out <- llm.ToolCallChunk{Call: llm.ToolCall{
						ID:        toolID,
						Name:      toolName,
						Arguments: append(json.RawMessage{}, toolArgs...),
					}}
					inToolBlock = false
				}
			case "message_delta":
				if event.Delta.StopReason != "" {
					out <- llm.StopChunk{Reason: string(event.Delta.StopReason)}
				}
				if u := event.Usage; u.OutputTokens != 0 {
					out <- llm.UsageChunk{OutputTokens: int(u.OutputTokens)}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.ErrorChunk{Message: err.Error(), Retryable: isRetryable(err)}
		}
	}()
	return out, nil
}

func (c *Client) buildParams(in *llm.GenerateInput) (*sdk.MessageNewParams, error) {
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	model := in.Model
	if model == "" {
		model = c.model
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	msgs := make([]sdk.MessageParam, 0, len(in.Messages))
	for _, m := range in.Messages {
		blocks, err := encodeBlocks(m)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case llm.RoleUser, llm.RoleTool:
			msgs = append(msgs, sdk.NewUserMessage(blocks...))
		case llm.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
		}
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("at least one user/assistant message is required")
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if in.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: in.SystemPrompt}}
	}
	if t := in.Temperature; t > 0 {
		params.Temperature = sdk.Float(float64(t))
	}
	if len(in.Tools) > 0 {
		tools, err := encodeTools(in.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeBlocks(m llm.ConversationMessage) ([]sdk.ContentBlockParamUnion, error) {
	var blocks []sdk.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, sdk.NewTextBlock(m.Content))
	}
	for _, tc := range m.ToolCalls {
		var input any
		if len(tc.Arguments) > 0 {
			if err := json.Unmarshal(tc.Arguments, &input); err != nil {
				return nil, fmt.Errorf("tool call %s arguments: %w", tc.Name, err)
			}
		}
		blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
	}
	for _, tr := range m.ToolResults {
		blocks = append(blocks, sdk.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
	}
	return blocks, nil
}

func encodeTools(defs []llm.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schemaFields map[string]any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schemaFields); err != nil {
				return nil, fmt.Errorf("tool %s schema: %w", def.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schemaFields}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
	}
	return tools, nil
}

func isRetryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
