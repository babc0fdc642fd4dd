// Package openai adapts github.com/sashabaranov/go-openai to the
// vendor-agnostic llm.Client interface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	openailib "github.com/sashabaranov/go-openai"

	"github.com/autopipe/engine/pkg/llm"
)

const defaultModel = openailib.GPT4o

// Client implements llm.Client on top of the OpenAI Chat Completions API.
type Client struct {
	client *openailib.Client
	model  string
}

// New builds a Client from an explicit API key and default model.
func New(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, llm.ErrNoCredentials
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{client: openailib.NewClient(apiKey), model: model}, nil
}

// NewFromEnv builds a Client reading OPENAI_API_KEY and OPENAI_MODEL.
func NewFromEnv() (*Client, error) {
	return New(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_MODEL"))
}

func (c *Client) Name() string  { return "openai" }
func (c *Client) Model() string { return c.model }

// Generate issues a streaming ChatCompletion call and translates incremental
// deltas into llm.Chunk values on the returned channel.
func (c *Client) Generate(ctx context.Context, in *llm.GenerateInput) (<-chan llm.Chunk, error) {
	req, err := c.buildRequest(in)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, *req)
	if err != nil {
		return nil, fmt.Errorf("openai: create stream: %w", err)
	}

	out := make(chan llm.Chunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		// toolCalls accumulates incremental tool_call argument fragments by
		// index, since the OpenAI stream emits them piecemeal across deltas.
		type pending struct {
			id, name string
			args     []byte
		}
		toolCalls := map[int]*pending{}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				out <- llm.ErrorChunk{Message: err.Error(), Retryable: isRetryable(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.Delta.Content != "" {
				out <- llm.TextChunk{Content: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				p, ok := toolCalls[idx]
				if !ok {
					p = &pending{}
					toolCalls[idx] = p
				}
				if tc.ID != "" {
					p.id = tc.ID
				}
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.args = append(p.args, []byte(tc.Function.Arguments)...)
			}
			if choice.FinishReason != "" {
				for _, p := range toolCalls {
					out <- llm.ToolCallChunk{Call: llm.ToolCall{
						ID:        p.id,
						Name:      p.name,
						Arguments: append(json.RawMessage{}, p.args...),
					}}
				}
				out <- llm.StopChunk{Reason: string(choice.FinishReason)}
			}
			if resp.Usage != nil {
				out <- llm.UsageChunk{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) buildRequest(in *llm.GenerateInput) (*openailib.ChatCompletionRequest, error) {
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	model := in.Model
	if model == "" {
		model = c.model
	}

	msgs := make([]openailib.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.SystemPrompt != "" {
		msgs = append(msgs, openailib.ChatCompletionMessage{
			Role:    openailib.ChatMessageRoleSystem,
			Content: in.SystemPrompt,
		})
	}
	for _, m := range in.Messages {
		msgs = append(msgs, encodeMessage(m)...)
	}

	req := &openailib.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   true,
	}
	if in.Temperature > 0 {
		req.Temperature = in.Temperature
	}
	if in.MaxTokens > 0 {
		req.MaxTokens = in.MaxTokens
	}
	if len(in.Tools) > 0 {
		req.Tools = encodeTools(in.Tools)
	}
	return req, nil
}

func encodeMessage(m llm.ConversationMessage) []openailib.ChatCompletionMessage {
	var out []openailib.ChatCompletionMessage
	role := string(m.Role)
	if m.Role == llm.RoleTool {
		for _, tr := range m.ToolResults {
			out = append(out, openailib.ChatCompletionMessage{
				Role:       openailib.ChatMessageRoleTool,
				Content:    tr.Content,
				ToolCallID: tr.ToolCallID,
			})
		}
		return out
	}
	msg := openailib.ChatCompletionMessage{Role: role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openailib.ToolCall{
			ID:   tc.ID,
			Type: openailib.ToolTypeFunction,
			Function: openailib.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	out = append(out, msg)
	for _, tr := range m.ToolResults {
		out = append(out, openailib.ChatCompletionMessage{
			Role:       openailib.ChatMessageRoleTool,
			Content:    tr.Content,
			ToolCallID: tr.ToolCallID,
		})
	}
	return out
}

func encodeTools(defs []llm.ToolDefinition) []openailib.Tool {
	tools := make([]openailib.Tool, 0, len(defs))
	for _, def := range defs {
		var params any
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &params)
		}
		tools = append(tools, openailib.Tool{
			Type: openailib.ToolTypeFunction,
			Function: &openailib.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func isRetryable(err error) bool {
	var apiErr *openailib.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return false
}
