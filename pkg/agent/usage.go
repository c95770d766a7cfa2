package agent

import "strconv"

// Event payload keys for token usage.
const (
	UsageInputTokensKey       = "usage_input_tokens"
	UsageOutputTokensKey      = "usage_output_tokens"
	UsageTotalTokensKey       = "usage_total_tokens"
	UsageReasoningTokensKey   = "usage_reasoning_tokens"
	UsageCacheCreateTokensKey = "usage_cache_creation_tokens"
	UsageCacheReadTokensKey   = "usage_cache_read_tokens"
)

// Usage captures token accounting for one agent call.
type Usage struct {
	InputTokens         int64 `json:"input_tokens,omitempty"`
	OutputTokens        int64 `json:"output_tokens,omitempty"`
	TotalTokens         int64 `json:"total_tokens,omitempty"`
	ReasoningTokens     int64 `json:"reasoning_tokens,omitempty"`
	CacheCreationTokens int64 `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int64 `json:"cache_read_tokens,omitempty"`
}

// IsZero reports whether all token counters are unset/zero.
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 &&
		u.OutputTokens == 0 &&
		u.TotalTokens == 0 &&
		u.ReasoningTokens == 0 &&
		u.CacheCreationTokens == 0 &&
		u.CacheReadTokens == 0
}

// AppendMetadata adds the usage counters to payload and returns it. A nil
// payload is allocated when there is anything to add.
func (u Usage) AppendMetadata(payload map[string]string) map[string]string {
	if u.IsZero() {
		return payload
	}
	if payload == nil {
		payload = make(map[string]string, 6)
	}

	payload[UsageInputTokensKey] = strconv.FormatInt(u.InputTokens, 10)
	payload[UsageOutputTokensKey] = strconv.FormatInt(u.OutputTokens, 10)
	payload[UsageTotalTokensKey] = strconv.FormatInt(u.TotalTokens, 10)
	payload[UsageReasoningTokensKey] = strconv.FormatInt(u.ReasoningTokens, 10)
	payload[UsageCacheCreateTokensKey] = strconv.FormatInt(u.CacheCreationTokens, 10)
	payload[UsageCacheReadTokensKey] = strconv.FormatInt(u.CacheReadTokens, 10)
	return payload
}
