// Package anthropicapi adapts Anthropic's Messages API to the llmprovider
// contract using the official anthropic-sdk-go client.
package anthropicapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// Provider adapts anthropic.Client to llmprovider.Provider.
type Provider struct {
	client anthropic.Client
	model  string
	opts   llmprovider.GenOptions
}

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
}

// New builds a Provider bound to model, using opts as defaults for
// generation settings not overridden per-request.
func New(cfg Config, model string, opts llmprovider.GenOptions) *Provider {
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{
		client: anthropic.NewClient(reqOpts...),
		model:  model,
		opts:   opts,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Close() error { return nil }

func (p *Provider) Stream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamEvent, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan llmprovider.StreamEvent, 16)
	go p.run(ctx, params, events)
	return events, nil
}

func (p *Provider) buildParams(req llmprovider.Request) (anthropic.MessageNewParams, error) {
	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropicapi: convert messages: %w", err)
	}
	if req.Cache.HistoryTail {
		markHistoryTailCache(messages)
	}

	model := req.ModelID
	if model == "" {
		model = p.model
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Options.Temperature)
	}
	if req.SystemPrompt != "" {
		block := anthropic.TextBlockParam{Type: "text", Text: req.SystemPrompt}
		if req.Cache.SystemPrompt {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools, req.Cache.ToolDefs)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropicapi: convert tools: %w", err)
		}
		params.Tools = tools
	}
	if req.Options.ThinkingLevel != llmprovider.ThinkingOff && req.Options.ThinkingLevel != "" {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingBudget(req.Options.ThinkingLevel))
	}
	return params, nil
}

func thinkingBudget(level llmprovider.ThinkingLevel) int64 {
	switch level {
	case llmprovider.ThinkingMinimal:
		return 1024
	case llmprovider.ThinkingLow:
		return 4096
	case llmprovider.ThinkingMedium:
		return 10000
	case llmprovider.ThinkingHigh:
		return 32000
	default:
		return 10000
	}
}

// markHistoryTailCache marks the last content block of the second-to-last
// message so a follow-up turn that only appends new messages still hits the
// cached prefix up through that point.
func markHistoryTailCache(messages []anthropic.MessageParam) {
	if len(messages) < 2 {
		return
	}
	tail := messages[len(messages)-2].Content
	if len(tail) == 0 {
		return
	}
	block := &tail[len(tail)-1]
	cc := anthropic.NewCacheControlEphemeralParam()
	switch {
	case block.OfText != nil:
		block.OfText.CacheControl = cc
	case block.OfToolResult != nil:
		block.OfToolResult.CacheControl = cc
	case block.OfToolUse != nil:
		block.OfToolUse.CacheControl = cc
	case block.OfThinking != nil:
		block.OfThinking.CacheControl = cc
	case block.OfImage != nil:
		block.OfImage.CacheControl = cc
	}
}

func toAnthropicMessages(messages []message.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case message.RoleToolResult:
			content := []anthropic.ToolResultBlockParamContentUnion{}
			for _, b := range m.Blocks {
				if b.Kind == message.KindText {
					content = append(content, anthropic.ToolResultBlockParamContentUnion{
						OfText: &anthropic.TextBlockParam{Text: b.Text},
					})
				}
			}
			result = append(result, anthropic.NewUserMessage(anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: m.ToolCallID,
					Content:   content,
					IsError:   anthropic.Bool(m.IsError),
				},
			}))

		case message.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.Blocks {
				switch b.Kind {
				case message.KindText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case message.KindThinking:
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfThinking: &anthropic.ThinkingBlockParam{Thinking: b.Text, Signature: b.ThinkingSignature},
					})
				case message.KindToolCall:
					var input any
					args := b.ToolCallArgs
					if len(args) == 0 {
						args = json.RawMessage("{}")
					}
					if err := json.Unmarshal(args, &input); err != nil {
						return nil, fmt.Errorf("tool call %s has invalid arguments: %w", b.ToolCallID, err)
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolCallID, input, b.ToolCallName))
				}
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))

		default: // RoleUser
			var blocks []anthropic.ContentBlockParamUnion
			for _, b := range m.Blocks {
				switch b.Kind {
				case message.KindText:
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case message.KindImage:
					blocks = append(blocks, anthropic.NewImageBlockBase64(b.ImageMediaType, string(b.ImageBytes)))
				}
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func toAnthropicTools(tools []tool.Definition, cache bool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		if err := json.Unmarshal(params, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", t.Name, err)
		}
		tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if tp.OfTool != nil {
			tp.OfTool.Description = anthropic.String(t.Description)
		}
		result = append(result, tp)
	}
	if cache && len(result) > 0 && result[len(result)-1].OfTool != nil {
		result[len(result)-1].OfTool.CacheControl = anthropic.NewCacheControlEphemeralParam()
	}
	return result, nil
}

// run drains the SDK's streaming iterator and translates each event into
// llmprovider.StreamEvent, tracking Anthropic's flat block index directly
// as our BlockIndex since both number blocks in emission order.
func (p *Provider) run(ctx context.Context, params anthropic.MessageNewParams, events chan<- llmprovider.StreamEvent) {
	defer close(events)

	stream := p.client.Messages.NewStreaming(ctx, params)
	stopReason := message.StopReasonStop

	for stream.Next() {
		ev := stream.Current()
		switch ev.Type {
		case "message_start":
			ms := ev.AsMessageStart()
			if !send(ctx, events, llmprovider.StreamEvent{
				Kind:             llmprovider.StreamInputUsage,
				InputTokens:      int(ms.Message.Usage.InputTokens),
				CacheReadTokens:  int(ms.Message.Usage.CacheReadInputTokens),
				CacheWriteTokens: int(ms.Message.Usage.CacheCreationInputTokens),
			}) {
				return
			}

		case "content_block_start":
			cbs := ev.AsContentBlockStart()
			block := cbs.ContentBlock
			var kind llmprovider.BlockKind
			var toolID, toolName string
			switch block.Type {
			case "text":
				kind = llmprovider.BlockText
			case "thinking":
				kind = llmprovider.BlockThinking
			case "tool_use":
				kind = llmprovider.BlockToolCall
				tu := block.AsToolUse()
				toolID, toolName = tu.ID, tu.Name
			default:
				continue
			}
			if !send(ctx, events, llmprovider.StreamEvent{
				Kind: llmprovider.StreamBlockStart, BlockIndex: int(cbs.Index), BlockKind: kind,
				ToolCallID: toolID, ToolCallName: toolName,
			}) {
				return
			}

		case "content_block_delta":
			cbd := ev.AsContentBlockDelta()
			delta := cbd.Delta
			var out llmprovider.StreamEvent
			switch delta.Type {
			case "text_delta":
				out = llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: int(cbd.Index), Text: delta.Text}
			case "thinking_delta":
				out = llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: int(cbd.Index), Text: delta.Thinking}
			case "input_json_delta":
				out = llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: int(cbd.Index), ArgFragment: delta.PartialJSON}
			default:
				continue
			}
			if !send(ctx, events, out) {
				return
			}

		case "content_block_stop":
			cbs := ev.AsContentBlockStop()
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStop, BlockIndex: int(cbs.Index)}) {
				return
			}

		case "message_delta":
			md := ev.AsMessageDelta()
			reason := toStopReason(string(md.Delta.StopReason))
			if reason != message.StopReasonNone {
				stopReason = reason
			}
			if !send(ctx, events, llmprovider.StreamEvent{
				Kind:  llmprovider.StreamUsage,
				Usage: message.Usage{Output: int(md.Usage.OutputTokens)},
				StopReason: reason,
			}) {
				return
			}

		case "message_stop":
			send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamDone, StopReason: stopReason})
			return
		}
	}

	if err := stream.Err(); err != nil {
		send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamError, Err: classifyError(err)})
	}
}

func toStopReason(raw string) message.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return message.StopReasonStop
	case "max_tokens":
		return message.StopReasonLength
	case "tool_use":
		return message.StopReasonToolUse
	default:
		return message.StopReasonNone
	}
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

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func classifyError(err error) *llmprovider.Error {
	if errors.Is(err, context.Canceled) {
		return llmprovider.CancelledError()
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Error()
		code := ""
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					msg = payload.Error.Message
				}
				code = payload.Error.Type
			}
		}
		switch apiErr.StatusCode {
		case 429:
			return llmprovider.RateLimited(0, msg)
		case 401, 403:
			return llmprovider.AuthError(msg)
		}
		if message.IsOverflowText(msg) {
			return llmprovider.ContextOverflowError(msg)
		}
		if apiErr.StatusCode >= 500 {
			return llmprovider.NetworkError(err)
		}
		return llmprovider.APIError(code, msg)
	}

	return llmprovider.NetworkError(err)
}
