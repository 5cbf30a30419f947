package llmprovider

// ThinkingFormat distinguishes how a vendor wants extended-thinking budget
// requested, since each OpenAI-compatible backend diverges here.
type ThinkingFormat string

const (
	ThinkingFormatNone        ThinkingFormat = "none"
	ThinkingFormatBudgetTokens ThinkingFormat = "budget_tokens" // Anthropic: thinking.budget_tokens
	ThinkingFormatEffort      ThinkingFormat = "effort"         // OpenAI o-series: reasoning_effort
)

// Quirks is a per-adapter record of vendor deviations from the otherwise
// shared request/response shape, used instead of string-matching on a
// vendor name scattered through the request path.
type Quirks struct {
	// SupportsDeveloperRole: use role "developer" instead of "system" for
	// the leading instruction message (OpenAI o-series).
	SupportsDeveloperRole bool

	// RequiresToolResultName: the tool-result message must repeat the
	// tool's name alongside its call id (some OpenAI-compatible servers).
	RequiresToolResultName bool

	// SendsUsageInStreamOptions: usage must be requested explicitly via
	// stream_options.include_usage and arrives on a final chunk with no
	// choices.
	SendsUsageInStreamOptions bool

	// MaxTokensField: which JSON field carries the output-token cap;
	// some servers have migrated from max_tokens to
	// max_completion_tokens.
	MaxTokensField string

	// ThinkingFormat: how to request hidden-reasoning budget, if at all.
	ThinkingFormat ThinkingFormat
}

// DefaultQuirks is the baseline OpenAI-compatible behavior.
var DefaultQuirks = Quirks{
	MaxTokensField: "max_tokens",
	ThinkingFormat: ThinkingFormatNone,
}
