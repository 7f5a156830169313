package llm

import (
	"fmt"

	"github.com/taptao/FeedWise/app/cfg"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// NewProvider builds the chat provider selected by configuration.
func NewProvider(c *cfg.Cfg) (Provider, error) {
	switch c.LLMProvider {
	case "ollama":
		config := Config{
			Model:       c.OllamaModel,
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		}
		return NewOllamaProvider(config, c.OllamaHost), nil
	case "openai":
		if c.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		config := Config{
			Model:       c.OpenAIModel,
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		}
		return NewOpenAIProvider(config, c.OpenAIAPIKey, c.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", c.LLMProvider)
	}
}
