package llm

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// stubProvider returns a canned response and records the messages it saw.
type stubProvider struct {
	response string
	err      error
	messages []Message
}

func (s *stubProvider) Chat(_ context.Context, messages []Message) (string, error) {
	s.messages = messages
	return s.response, s.err
}

func (s *stubProvider) ChatStream(_ context.Context, messages []Message, fn func(string) error) error {
	s.messages = messages
	if s.err != nil {
		return s.err
	}
	for _, chunk := range strings.SplitAfter(s.response, " ") {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

func newTestAnalyzer(response string, err error) (*Analyzer, *stubProvider) {
	provider := &stubProvider{response: response, err: err}
	return NewAnalyzer(provider, DefaultAnalysisSettings()), provider
}

func TestAnalyzeParsesStrictJSON(t *testing.T) {
	analyzer, provider := newTestAnalyzer(`{
		"summary": "A short summary.",
		"key_points": ["first", "second"],
		"value_score": 7.5,
		"reading_time": 4,
		"language": "en",
		"tags": ["tech"]
	}`, nil)

	result, err := analyzer.Analyze(context.Background(), "Title", "Body text", "Example Feed")
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary != "A short summary." {
		t.Errorf("unexpected summary: %q", result.Summary)
	}
	if len(result.KeyPoints) != 2 {
		t.Errorf("expected 2 key points, got %d", len(result.KeyPoints))
	}
	if result.ValueScore != 7.5 {
		t.Errorf("unexpected value score: %v", result.ValueScore)
	}
	if result.Language != "en" {
		t.Errorf("unexpected language: %q", result.Language)
	}

	if len(provider.messages) != 2 {
		t.Fatalf("expected system + user messages, got %d", len(provider.messages))
	}
	if provider.messages[0].Role != "system" {
		t.Errorf("expected system message first, got %q", provider.messages[0].Role)
	}
	if !strings.Contains(provider.messages[1].Content, "Example Feed") {
		t.Error("expected feed name in user prompt")
	}
}

func TestAnalyzeStripsCodeFence(t *testing.T) {
	analyzer, _ := newTestAnalyzer("```json\n{\"summary\":\"fenced\",\"value_score\":6,\"reading_time\":3,\"language\":\"en\"}\n```", nil)

	result, err := analyzer.Analyze(context.Background(), "T", "body", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary != "fenced" {
		t.Errorf("expected fenced JSON parsed, got %q", result.Summary)
	}
}

func TestAnalyzeRejectsMalformedJSON(t *testing.T) {
	analyzer, _ := newTestAnalyzer("Sorry, I cannot analyze this article.", nil)

	if _, err := analyzer.Analyze(context.Background(), "T", "body", ""); err == nil {
		t.Error("expected parse error for non-JSON response")
	}
}

func TestAnalyzePropagatesProviderError(t *testing.T) {
	analyzer, _ := newTestAnalyzer("", fmt.Errorf("connection refused"))

	if _, err := analyzer.Analyze(context.Background(), "T", "body", ""); err == nil {
		t.Error("expected provider error to propagate")
	}
}

func TestAnalyzeClampsScoreAndNormalizesLanguage(t *testing.T) {
	analyzer, _ := newTestAnalyzer(`{"summary":"s","value_score":14.0,"reading_time":0,"language":"zh-Hans-CN"}`, nil)

	result, err := analyzer.Analyze(context.Background(), "T", "body", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.ValueScore != 10 {
		t.Errorf("expected score clamped to 10, got %v", result.ValueScore)
	}
	if result.ReadingTime != 1 {
		t.Errorf("expected reading time floored to 1, got %d", result.ReadingTime)
	}
	if result.Language != "zh" {
		t.Errorf("expected language normalized to zh, got %q", result.Language)
	}
}

func TestAnalyzeTruncatesLongContent(t *testing.T) {
	analyzer, provider := newTestAnalyzer(`{"summary":"s","value_score":5,"reading_time":2,"language":"en"}`, nil)

	long := strings.Repeat("x", 9000)
	if _, err := analyzer.Analyze(context.Background(), "T", long, ""); err != nil {
		t.Fatal(err)
	}

	userPrompt := provider.messages[1].Content
	if !strings.Contains(userPrompt, "[content truncated...]") {
		t.Error("expected truncation marker in prompt")
	}
	if strings.Contains(userPrompt, strings.Repeat("x", 8001)) {
		t.Error("expected content cut at the configured limit")
	}
}

func TestAnalyzeStream(t *testing.T) {
	analyzer, _ := newTestAnalyzer("chunk one two", nil)

	var got strings.Builder
	err := analyzer.AnalyzeStream(context.Background(), "T", "body", "", func(chunk string) error {
		got.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "chunk one two" {
		t.Errorf("unexpected streamed content: %q", got.String())
	}
}

func TestLoadAnalysisSettingsMissingFile(t *testing.T) {
	settings, err := LoadAnalysisSettings("/nonexistent/analysis.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if settings.MaxContentChars != 8000 {
		t.Errorf("expected defaults for missing file, got %+v", settings)
	}
}
