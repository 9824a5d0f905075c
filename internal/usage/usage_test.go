package usage

import (
	"errors"
	"testing"
)

func TestParseOpenAIBody(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","usage":{"prompt_tokens":1200,"completion_tokens":300,"prompt_tokens_details":{"cached_tokens":200}}}`)
	u, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if u.Model != "gpt-4o" || u.InputTokens != 1000 || u.CacheReadTokens != 200 || u.OutputTokens != 300 {
		t.Fatalf("unexpected usage: %+v", u)
	}
	if u.PromptTokens() != 1200 {
		t.Fatalf("PromptTokens() = %d, want 1200", u.PromptTokens())
	}
}

func TestParseAnthropicBody(t *testing.T) {
	body := []byte(`{"model":"claude-sonnet-4","usage":{"input_tokens":10,"output_tokens":5,"cache_read_input_tokens":90}}`)
	u, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if u.InputTokens != 10 || u.OutputTokens != 5 || u.CacheReadTokens != 90 || u.PromptTokens() != 100 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestParseGeminiBody(t *testing.T) {
	body := []byte(`{"modelVersion":"gemini-2.5-pro","usageMetadata":{"promptTokenCount":50,"candidatesTokenCount":20,"thoughtsTokenCount":5}}`)
	u, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if u.Model != "gemini-2.5-pro" || u.InputTokens != 50 || u.OutputTokens != 25 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestParseAnthropicStream(t *testing.T) {
	stream := []byte("event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"model\":\"claude-3.5-haiku\",\"usage\":{\"input_tokens\":12,\"output_tokens\":1}}}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":34}}\n\n" +
		"data: [DONE]\n")
	u, err := Parse(stream)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if u.Model != "claude-3.5-haiku" || u.InputTokens != 12 || u.OutputTokens != 34 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}

func TestParseNoUsage(t *testing.T) {
	for _, input := range []string{"", `{"id":"x"}`, "data: {\"type\":\"ping\"}\n"} {
		if _, err := Parse([]byte(input)); !errors.Is(err, ErrNoUsage) {
			t.Fatalf("Parse(%q) error = %v, want ErrNoUsage", input, err)
		}
	}
	if _, err := Parse([]byte("{not json")); err == nil || errors.Is(err, ErrNoUsage) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
