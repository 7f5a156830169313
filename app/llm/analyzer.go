package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

const defaultScoringCriteria = `- 9-10: breakthrough content, major news, deep original analysis
- 7-8: high-quality technical writing, valuable insight
- 5-6: general information, routine updates
- 3-4: old news, rehashed content, advertorial
- 1-2: spam or no substance`

// AnalysisResult is the structured outcome of analyzing one article.
type AnalysisResult struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ValueScore  float64  `json:"value_score"`
	ReadingTime int      `json:"reading_time"`
	Language    string   `json:"language"`
	Tags        []string `json:"tags"`
}

// Analyzer turns article text into a structured analysis via a chat provider.
type Analyzer struct {
	provider Provider
	settings AnalysisSettings
}

func NewAnalyzer(provider Provider, settings AnalysisSettings) *Analyzer {
	return &Analyzer{provider: provider, settings: settings}
}

// Analyze sends the article to the provider and parses the strict-JSON reply.
func (a *Analyzer) Analyze(ctx context.Context, title, content, feedName string) (*AnalysisResult, error) {
	response, err := a.provider.Chat(ctx, a.buildMessages(title, content, feedName))
	if err != nil {
		return nil, err
	}

	return a.parseResponse(response)
}

// AnalyzeStream streams raw response chunks through fn without parsing.
func (a *Analyzer) AnalyzeStream(ctx context.Context, title, content, feedName string, fn func(chunk string) error) error {
	return a.provider.ChatStream(ctx, a.buildMessages(title, content, feedName), fn)
}

func (a *Analyzer) buildMessages(title, content, feedName string) []Message {
	if runes := []rune(content); len(runes) > a.settings.MaxContentChars {
		content = string(runes[:a.settings.MaxContentChars]) + "\n\n[content truncated...]"
	}
	if feedName == "" {
		feedName = "unknown source"
	}

	userPrompt := fmt.Sprintf("Analyze the following article:\n\n**Title**: %s\n**Source**: %s\n\n**Body**:\n%s",
		title, feedName, content)

	return []Message{
		{Role: "system", Content: a.systemPrompt()},
		{Role: "user", Content: userPrompt},
	}
}

func (a *Analyzer) systemPrompt() string {
	criteria := a.settings.ScoringCriteria
	if criteria == "" {
		criteria = defaultScoringCriteria
	}

	summaryLanguage := "the article's own language"
	if a.settings.SummaryLanguage != "" {
		summaryLanguage = a.settings.SummaryLanguage
	}

	return fmt.Sprintf(`You are an article analysis assistant. Analyze the article the user provides and return a structured result.

## Output format (strict JSON, nothing else)
{
  "summary": "2-3 sentence summary in %s",
  "key_points": ["point 1", "point 2", "point 3"],
  "value_score": 7.5,
  "reading_time": 5,
  "language": "en",
  "tags": ["tech", "ai"]
}

## Value score rubric (1-10)
%s

## Rules
- Keep key points concise, at most %d
- reading_time is in minutes
- At most %d tags reflecting the topics
- language is the BCP 47 primary language tag of the article, e.g. "en" or "zh"
- Return ONLY the JSON object`, summaryLanguage, criteria, a.settings.MaxKeyPoints, a.settings.MaxTags)
}

func (a *Analyzer) parseResponse(response string) (*AnalysisResult, error) {
	cleaned := stripCodeFence(response)

	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis response as JSON: %w", err)
	}

	result.ValueScore = clampScore(result.ValueScore)
	if result.ReadingTime < 1 {
		result.ReadingTime = 1
	}
	result.Language = normalizeLanguage(result.Language)

	return &result, nil
}

// stripCodeFence removes a surrounding markdown code block, which some
// models add despite the strict-JSON instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}

	return score
}

// normalizeLanguage reduces whatever the model returned to a primary
// language subtag, falling back to "en" when it is unparseable.
func normalizeLanguage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return "en"
	}

	base, _ := tag.Base()
	return base.String()
}
