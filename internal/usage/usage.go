// Package usage reads token counts out of recorded provider API responses,
// either a single JSON body or a server-sent event stream.
package usage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoUsage = errors.New("no token usage found")

type Usage struct {
	Model               string `json:"model,omitempty"`
	InputTokens         int64  `json:"input_tokens"`
	OutputTokens        int64  `json:"output_tokens"`
	CacheReadTokens     int64  `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int64  `json:"cache_creation_tokens,omitempty"`
}

// PromptTokens counts every input token, cached or not.
func (u Usage) PromptTokens() int64 {
	return u.InputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

func (u Usage) empty() bool {
	return u.PromptTokens() == 0 && u.OutputTokens == 0
}

// Parse detects the body format and extracts usage from it.
func Parse(data []byte) (Usage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Usage{}, ErrNoUsage
	}
	if bytes.HasPrefix(trimmed, []byte("data:")) || bytes.HasPrefix(trimmed, []byte("event:")) {
		return ParseStream(trimmed)
	}
	return ParseBody(trimmed)
}

func ParseBody(body []byte) (Usage, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Usage{}, fmt.Errorf("decode response: %w", err)
	}
	u := fromPayload(payload)
	if u.empty() {
		return u, ErrNoUsage
	}
	return u, nil
}

// ParseStream merges usage across SSE chunks. Later non-zero counts win,
// which matches providers that report input up front and output at the end.
func ParseStream(stream []byte) (Usage, error) {
	result := Usage{}
	for _, line := range strings.Split(string(stream), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		chunk := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if chunk == "" || chunk == "[DONE]" {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(chunk), &payload); err != nil {
			continue
		}
		u := fromPayload(payload)
		if u.Model != "" {
			result.Model = u.Model
		}
		if u.InputTokens > 0 {
			result.InputTokens = u.InputTokens
		}
		if u.OutputTokens > 0 {
			result.OutputTokens = u.OutputTokens
		}
		if u.CacheReadTokens > 0 {
			result.CacheReadTokens = u.CacheReadTokens
		}
		if u.CacheCreationTokens > 0 {
			result.CacheCreationTokens = u.CacheCreationTokens
		}
	}
	if result.empty() {
		return result, ErrNoUsage
	}
	return result, nil
}

func fromPayload(payload map[string]any) Usage {
	u := Usage{Model: asString(payload["model"])}
	if u.Model == "" {
		u.Model = asString(payload["modelVersion"])
	}
	// Anthropic streams carry usage inside message_start.
	if message, ok := payload["message"].(map[string]any); ok {
		if u.Model == "" {
			u.Model = asString(message["model"])
		}
		if nested, ok := message["usage"].(map[string]any); ok {
			u.merge(fromUsageMap(nested))
		}
	}
	if m, ok := payload["usage"].(map[string]any); ok {
		u.merge(fromUsageMap(m))
	}
	if m, ok := payload["usageMetadata"].(map[string]any); ok {
		u.InputTokens = asInt(m["promptTokenCount"])
		u.OutputTokens = asInt(m["candidatesTokenCount"]) + asInt(m["thoughtsTokenCount"])
		u.CacheReadTokens = asInt(m["cachedContentTokenCount"])
		if u.CacheReadTokens > 0 && u.InputTokens >= u.CacheReadTokens {
			u.InputTokens -= u.CacheReadTokens
		}
	}
	return u
}

func fromUsageMap(m map[string]any) Usage {
	u := Usage{
		InputTokens:         firstNonZero(asInt(m["input_tokens"]), asInt(m["prompt_tokens"])),
		OutputTokens:        firstNonZero(asInt(m["output_tokens"]), asInt(m["completion_tokens"])),
		CacheReadTokens:     asInt(m["cache_read_input_tokens"]),
		CacheCreationTokens: asInt(m["cache_creation_input_tokens"]),
	}
	// OpenAI reports cached tokens as a subset of prompt_tokens.
	if details, ok := m["prompt_tokens_details"].(map[string]any); ok {
		if cached := asInt(details["cached_tokens"]); cached > 0 && cached <= u.InputTokens {
			u.CacheReadTokens = cached
			u.InputTokens -= cached
		}
	}
	return u
}

func (u *Usage) merge(other Usage) {
	if other.InputTokens > 0 {
		u.InputTokens = other.InputTokens
	}
	if other.OutputTokens > 0 {
		u.OutputTokens = other.OutputTokens
	}
	if other.CacheReadTokens > 0 {
		u.CacheReadTokens = other.CacheReadTokens
	}
	if other.CacheCreationTokens > 0 {
		u.CacheCreationTokens = other.CacheCreationTokens
	}
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
