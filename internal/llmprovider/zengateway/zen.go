// Package zengateway adapts the multi-vendor opencode.ai/zen gateway to the
// llmprovider contract. The gateway proxies several upstream wire formats
// (OpenAI chat completions, OpenAI responses, Anthropic messages, Gemini)
// behind one client, so this adapter dispatches on the endpoint the gateway
// reports rather than assuming a single shape.
package zengateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	zen "github.com/sacenox/go-opencode-ai-zen-sdk"

	"github.com/xonecas/agentcore/internal/llmprovider"
	"github.com/xonecas/agentcore/internal/message"
	"github.com/xonecas/agentcore/internal/tool"
)

// Provider adapts zen.Client to llmprovider.Provider.
type Provider struct {
	name        string
	client      *zen.Client
	model       string
	temperature float64
}

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
}

// New builds a Provider. baseURL defaults to the public gateway endpoint.
func New(name string, cfg Config, model string, opts llmprovider.GenOptions) (*Provider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://opencode.ai/zen/v1"
	}
	client, err := zen.NewClient(zen.Config{APIKey: cfg.APIKey, BaseURL: baseURL})
	if err != nil {
		return nil, err
	}
	return &Provider{name: name, client: client, model: model, temperature: opts.Temperature}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Close() error { return nil }

func (p *Provider) Stream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamEvent, error) {
	model := req.ModelID
	if model == "" {
		model = p.model
	}
	zreq := zen.NormalizedRequest{
		Model:    model,
		System:   req.SystemPrompt,
		Messages: toZenMessages(req.Messages),
		Tools:    toZenTools(req.Tools),
		Stream:   true,
	}
	temp := p.temperature
	if req.Options.Temperature > 0 {
		temp = req.Options.Temperature
	}
	if temp > 0 {
		zreq.Temperature = &temp
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 16000
	}
	zreq.MaxTokens = &maxTokens

	upstream, errs, err := p.client.UnifiedStreamNormalized(ctx, zreq)
	if err != nil {
		return nil, llmprovider.NetworkError(err)
	}

	events := make(chan llmprovider.StreamEvent, 16)
	go p.run(ctx, upstream, errs, events)
	return events, nil
}

// blockTracker records which blocks of the current stream have been opened,
// plus a count of Responses-endpoint function calls. Tool-call BlockIndex
// values are taken from the position each endpoint reports (Gemini part
// index, Responses output_index), not from this count.
type blockTracker struct {
	toolCallCount   int
	textStarted     bool
	thinkingStarted bool
}

func (p *Provider) run(ctx context.Context, upstream <-chan zen.UnifiedEvent, errs <-chan error, events chan<- llmprovider.StreamEvent) {
	defer close(events)
	bt := &blockTracker{}

	for {
		select {
		case ev, ok := <-upstream:
			if !ok {
				send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamDone, StopReason: message.StopReasonStop})
				return
			}
			if !p.dispatch(ctx, events, bt, ev) {
				return
			}

		case err, ok := <-errs:
			if ok && err != nil {
				send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamError, Err: classifyError(err)})
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

func (p *Provider) dispatch(ctx context.Context, events chan<- llmprovider.StreamEvent, bt *blockTracker, ev zen.UnifiedEvent) bool {
	data := ev.Data
	if len(data) == 0 || string(data) == "[DONE]" {
		return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamDone, StopReason: message.StopReasonStop})
	}

	switch ev.Endpoint {
	case zen.EndpointMessages:
		return p.dispatchAnthropic(ctx, events, bt, ev.Event, data)
	case zen.EndpointModels:
		return p.dispatchGemini(ctx, events, bt, data)
	case zen.EndpointResponses:
		return p.dispatchResponses(ctx, events, bt, ev.Event, data)
	default:
		return p.dispatchChatCompletions(ctx, events, bt, data)
	}
}

func (p *Provider) dispatchChatCompletions(ctx context.Context, events chan<- llmprovider.StreamEvent, bt *blockTracker, data json.RawMessage) bool {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return true
	}
	if usage, ok := chunk["usage"].(map[string]any); ok {
		if !send(ctx, events, llmprovider.StreamEvent{
			Kind: llmprovider.StreamUsage,
			Usage: message.Usage{
				Input:  getInt(usage, "prompt_tokens"),
				Output: getInt(usage, "completion_tokens"),
			},
		}) {
			return false
		}
	}
	choices, _ := chunk["choices"].([]any)
	var delta map[string]any
	if len(choices) > 0 {
		choice, _ := choices[0].(map[string]any)
		delta, _ = choice["delta"].(map[string]any)
	} else {
		delta, _ = chunk["delta"].(map[string]any)
	}
	if delta == nil {
		return true
	}
	return p.emitOpenAIShapedDelta(ctx, events, bt, delta)
}

func (p *Provider) emitOpenAIShapedDelta(ctx context.Context, events chan<- llmprovider.StreamEvent, bt *blockTracker, delta map[string]any) bool {
	reasoning := getString(delta, "reasoning")
	if reasoning == "" {
		reasoning = getString(delta, "reasoning_content")
	}
	if reasoning != "" {
		if !bt.thinkingStarted {
			bt.thinkingStarted = true
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: 0, BlockKind: llmprovider.BlockThinking}) {
				return false
			}
		}
		if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: 0, Text: reasoning}) {
			return false
		}
	}
	if content := getString(delta, "content"); content != "" {
		if !bt.textStarted {
			bt.textStarted = true
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: 1, BlockKind: llmprovider.BlockText}) {
				return false
			}
		}
		if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: 1, Text: content}) {
			return false
		}
	}

	toolCalls, _ := delta["tool_calls"].([]any)
	for _, tcRaw := range toolCalls {
		tc, _ := tcRaw.(map[string]any)
		idx := getInt(tc, "index") + 2
		id := getString(tc, "id")
		fn, _ := tc["function"].(map[string]any)
		name := getString(fn, "name")
		args := getString(fn, "arguments")

		if name != "" {
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: idx, BlockKind: llmprovider.BlockToolCall, ToolCallID: id, ToolCallName: name}) {
				return false
			}
		}
		if args != "" {
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: idx, ArgFragment: args}) {
				return false
			}
		}
	}
	return true
}

func (p *Provider) dispatchAnthropic(ctx context.Context, events chan<- llmprovider.StreamEvent, bt *blockTracker, event string, data json.RawMessage) bool {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return true
	}
	switch event {
	case "content_block_start":
		cb, _ := chunk["content_block"].(map[string]any)
		if getString(cb, "type") == "tool_use" {
			return send(ctx, events, llmprovider.StreamEvent{
				Kind: llmprovider.StreamBlockStart, BlockIndex: getInt(chunk, "index"), BlockKind: llmprovider.BlockToolCall,
				ToolCallID: getString(cb, "id"), ToolCallName: getString(cb, "name"),
			})
		}
		if getString(cb, "type") == "thinking" {
			return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: getInt(chunk, "index"), BlockKind: llmprovider.BlockThinking})
		}
		return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: getInt(chunk, "index"), BlockKind: llmprovider.BlockText})

	case "content_block_delta":
		idx := getInt(chunk, "index")
		delta, _ := chunk["delta"].(map[string]any)
		switch getString(delta, "type") {
		case "text_delta":
			return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: idx, Text: getString(delta, "text")})
		case "thinking_delta":
			return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: idx, Text: getString(delta, "thinking")})
		case "input_json_delta":
			return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: idx, ArgFragment: getString(delta, "partial_json")})
		}
		return true

	case "message_delta":
		if usage, ok := chunk["usage"].(map[string]any); ok {
			return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamUsage, Usage: message.Usage{
				Input: getInt(usage, "input_tokens"), Output: getInt(usage, "output_tokens"),
			}})
		}
		return true
	}
	return true
}

func (p *Provider) dispatchGemini(ctx context.Context, events chan<- llmprovider.StreamEvent, bt *blockTracker, data json.RawMessage) bool {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return true
	}
	candidates, _ := chunk["candidates"].([]any)
	if len(candidates) == 0 {
		return true
	}
	candidate, _ := candidates[0].(map[string]any)
	content, _ := candidate["content"].(map[string]any)
	parts, _ := content["parts"].([]any)
	for idx, partRaw := range parts {
		part, _ := partRaw.(map[string]any)
		if text := getString(part, "text"); text != "" {
			if !bt.textStarted {
				bt.textStarted = true
				if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: 0, BlockKind: llmprovider.BlockText}) {
					return false
				}
			}
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: 0, Text: text}) {
				return false
			}
		}
		if fc, ok := part["functionCall"].(map[string]any); ok {
			name := getString(fc, "name")
			blockIdx := idx + 1
			if name != "" {
				if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: blockIdx, BlockKind: llmprovider.BlockToolCall, ToolCallName: name}) {
					return false
				}
			}
			if args, ok := fc["args"]; ok {
				if argsJSON, err := json.Marshal(args); err == nil {
					if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: blockIdx, ArgFragment: string(argsJSON)}) {
						return false
					}
				}
			}
		}
	}
	if meta, ok := chunk["usageMetadata"].(map[string]any); ok {
		if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamUsage, Usage: message.Usage{
			Input: getInt(meta, "promptTokenCount"), Output: getInt(meta, "candidatesTokenCount"),
		}}) {
			return false
		}
	}
	return true
}

func (p *Provider) dispatchResponses(ctx context.Context, events chan<- llmprovider.StreamEvent, bt *blockTracker, event string, data json.RawMessage) bool {
	var chunk map[string]any
	if err := json.Unmarshal(data, &chunk); err != nil {
		return true
	}
	switch event {
	case "response.output_text.delta":
		if !bt.textStarted {
			bt.textStarted = true
			if !send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockStart, BlockIndex: 0, BlockKind: llmprovider.BlockText}) {
				return false
			}
		}
		return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: 0, Text: getString(chunk, "delta")})

	case "response.output_item.added":
		item, _ := chunk["item"].(map[string]any)
		if getString(item, "type") == "function_call" {
			bt.toolCallCount++
			return send(ctx, events, llmprovider.StreamEvent{
				Kind: llmprovider.StreamBlockStart, BlockIndex: getInt(chunk, "output_index") + 1, BlockKind: llmprovider.BlockToolCall,
				ToolCallID: getString(item, "call_id"), ToolCallName: getString(item, "name"),
			})
		}
		return true

	case "response.function_call_arguments.delta":
		return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamBlockDelta, BlockIndex: getInt(chunk, "output_index") + 1, ArgFragment: getString(chunk, "delta")})

	case "response.completed":
		resp, _ := chunk["response"].(map[string]any)
		if usage, ok := resp["usage"].(map[string]any); ok {
			return send(ctx, events, llmprovider.StreamEvent{Kind: llmprovider.StreamUsage, Usage: message.Usage{
				Input: getInt(usage, "input_tokens"), Output: getInt(usage, "output_tokens"),
			}})
		}
	}
	return true
}

func toZenMessages(messages []message.Message) []zen.NormalizedMessage {
	result := make([]zen.NormalizedMessage, 0, len(messages))
	for _, m := range messages {
		nm := zen.NormalizedMessage{Content: m.Text()}
		switch m.Role {
		case message.RoleAssistant:
			nm.Role = "assistant"
			for _, tc := range m.ToolCalls() {
				args := tc.ToolCallArgs
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				nm.ToolCalls = append(nm.ToolCalls, zen.NormalizedToolCall{ID: tc.ToolCallID, Name: tc.ToolCallName, Arguments: args})
			}
		case message.RoleToolResult:
			nm.Role = "tool"
			nm.ToolCallID = m.ToolCallID
		default:
			nm.Role = "user"
		}
		result = append(result, nm)
	}
	return result
}

func toZenTools(tools []tool.Definition) []zen.NormalizedTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]zen.NormalizedTool, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		result[i] = zen.NormalizedTool{Name: t.Name, Description: t.Description, Parameters: params}
	}
	return result
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return 0
}

func send(ctx context.Context, ch chan<- llmprovider.StreamEvent, ev llmprovider.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func classifyError(err error) *llmprovider.Error {
	var apiErr *zen.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return llmprovider.RateLimited(0, string(apiErr.Body))
		case 401, 403:
			return llmprovider.AuthError(string(apiErr.Body))
		}
		if apiErr.StatusCode >= 500 {
			return llmprovider.NetworkError(err)
		}
		return llmprovider.APIError("", string(apiErr.Body))
	}
	return llmprovider.NetworkError(err)
}
