// Package openaicompat adapts any OpenAI Chat Completions-compatible backend
// (OpenAI itself, Ollama, vLLM, and other self-hosted servers) to the
// llmprovider contract using sashabaranov/go-openai, parameterized by a
// Quirks record instead of one file per vendor.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// Provider adapts openai.Client to llmprovider.Provider.
type Provider struct {
	client *openai.Client
	model  string
	opts   llmprovider.GenOptions
	quirks llmprovider.Quirks
}

// Config configures a Provider. BaseURL lets the same client target OpenAI
// itself or a compatible self-hosted endpoint (Ollama's /v1, vLLM, etc).
type Config struct {
	APIKey  string
	BaseURL string
}

// New builds a Provider bound to model.
func New(cfg Config, model string, opts llmprovider.GenOptions, quirks llmprovider.Quirks) *Provider {
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client: openai.NewClientWithConfig(oaCfg),
		model:  model,
		opts:   opts,
		quirks: quirks,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Close() error { return nil }

func (p *Provider) Stream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamEvent, error) {
	oaReq := p.buildRequest(req)

	stream, err := p.client.CreateChatCompletionStream(ctx, oaReq)
	if err != nil {
		return nil, llmprovider.NetworkError(err)
	}

	events := make(chan llmprovider.StreamEvent, 16)
	go p.run(ctx, stream, events)
	return events, nil
}

func (p *Provider) buildRequest(req llmprovider.Request) openai.ChatCompletionRequest {
	model := req.ModelID
	if model == "" {
		model = p.model
	}

	messages := toOpenAIMessages(req.SystemPrompt, req.Messages, p.quirks)

	oaReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: p.quirks.SendsUsageInStreamOptions,
		},
	}
	if req.Options.Temperature > 0 {
		oaReq.Temperature = float32(req.Options.Temperature)
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens > 0 {
		switch p.quirks.MaxTokensField {
		case "max_completion_tokens":
			oaReq.MaxCompletionTokens = maxTokens
		default:
			oaReq.MaxTokens = maxTokens
		}
	}
	if p.quirks.ThinkingFormat == llmprovider.ThinkingFormatEffort && req.Options.ThinkingLevel != llmprovider.ThinkingOff {
		oaReq.ReasoningEffort = string(req.Options.ThinkingLevel)
	}
	if len(req.Tools) > 0 {
		oaReq.Tools = toOpenAITools(req.Tools)
	}
	return oaReq
}

func toOpenAIMessages(systemPrompt string, messages []message.Message, q llmprovider.Quirks) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if systemPrompt != "" {
		role := openai.ChatMessageRoleSystem
		if q.SupportsDeveloperRole {
			role = "developer"
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: systemPrompt})
	}
	for _, m := range messages {
		switch m.Role {
		case message.RoleToolResult:
			msg := openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Text(),
				ToolCallID: m.ToolCallID,
			}
			if q.RequiresToolResultName {
				msg.Name = m.ToolName
			}
			out = append(out, msg)

		case message.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text()}
			for _, tc := range m.ToolCalls() {
				args := tc.ToolCallArgs
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ToolCallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.ToolCallName,
						Arguments: string(args),
					},
				})
			}
			out = append(out, msg)

		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text()})
		}
	}
	return out
}

func toOpenAITools(tools []tool.Definition) []openai.Tool {
	emptyParams := json.RawMessage(`{"type":"object","properties":{}}`)
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptyParams
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// toolCallAccum tracks one tool call's id and name across chunks, and
// whether its BlockStart has been sent, since go-openai delivers each by
// index rather than a stable id until the first chunk that names it.
// Argument fragments are forwarded as they arrive, not kept here.
type toolCallAccum struct {
	id, name string
	started  bool
}

func (p *Provider) run(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- llmprovider.StreamEvent) {
	defer close(events)
	defer stream.Close()

	toolCalls := map[int]*toolCallAccum{}
	var usage message.Usage
	textBlockStarted := false

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamError, Err: classifyError(err)})
			return
		}

		if resp.Usage != nil {
			usage.Input = resp.Usage.PromptTokens
			usage.Output = resp.Usage.CompletionTokens
			usage.Total = resp.Usage.TotalTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !textBlockStarted {
				textBlockStarted = true
				if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: 0, BlockKind: llmprovider.BlockText}) {
					return
				}
			}
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: 0, Text: delta.Content}) {
				return
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := toolCallIndex(tc)
			acc, ok := toolCalls[idx]
			if !ok {
				acc = &toolCallAccum{}
				toolCalls[idx] = acc
			}
			if tc.Function.Name != "" && !acc.started {
				acc.started = true
				acc.id = tc.ID
				acc.name = tc.Function.Name
				if !send(ctx, events, llmprovider.StreamEvent{
					Kind: llmprovider.StreamBlockStart, BlockIndex: idx + 1, BlockKind: llmprovider.BlockToolCall,
					ToolCallID: acc.id, ToolCallName: acc.name,
				}) {
					return
				}
			}
			if tc.Function.Arguments != "" {
				if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: idx + 1, ArgFragment: tc.Function.Arguments}) {
					return
				}
			}
		}

		if choice.FinishReason != "" {
			send(ctx, events, llmprovider.StreamEvent{
				Kind:       llmprovider.StreamDone,
				StopReason: toStopReason(choice.FinishReason),
				Usage:      usage,
			})
			return
		}
	}

	send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamDone, Usage: usage, StopReason: message.StopReasonStop})
}

func send(ctx context.Context, ch chan<- llmprovider.StreamEvent, ev llmprovider.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		select {
		case ch <- llmprovider.StreamEvent{Kind: llmprovider.StreamError, Err: llmprovider.CancelledError()}:
		default:
		}
		return false
	}
}

func toolCallIndex(tc openai.ToolCall) int {
	if tc.Index != nil {
		return *tc.Index
	}
	return 0
}

func toStopReason(reason openai.FinishReason) message.StopReason {
	switch reason {
	case openai.FinishReasonStop:
		return message.StopReasonStop
	case openai.FinishReasonLength:
		return message.StopReasonLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return message.StopReasonToolUse
	default:
		return message.StopReasonNone
	}
}

func classifyError(err error) *llmprovider.Error {
	if errors.Is(err, context.Canceled) {
		return llmprovider.CancelledError()
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return llmprovider.RateLimited(0, apiErr.Message)
		case http.StatusUnauthorized, http.StatusForbidden:
			return llmprovider.AuthError(apiErr.Message)
		}
		if message.IsOverflowText(apiErr.Message) {
			return llmprovider.ContextOverflowError(apiErr.Message)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return llmprovider.NetworkError(err)
		}
		code := ""
		if apiErr.Code != nil {
			if s, ok := apiErr.Code.(string); ok {
				code = s
			}
		}
		return llmprovider.APIError(code, apiErr.Message)
	}
	return llmprovider.NetworkError(err)
}
