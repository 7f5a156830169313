package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AnalysisSettings tunes the analyzer prompt without rebuilding the binary.
type AnalysisSettings struct {
	// ScoringCriteria replaces the built-in value score rubric when set.
	ScoringCriteria string `yaml:"scoring_criteria"`
	// SummaryLanguage forces summaries into one language; empty keeps the
	// article's own language.
	SummaryLanguage string `yaml:"summary_language"`
	MaxKeyPoints    int    `yaml:"max_key_points"`
	MaxTags         int    `yaml:"max_tags"`
	MaxContentChars int    `yaml:"max_content_chars"`
}

// DefaultAnalysisSettings returns the settings used when no config file is
// provided.
func DefaultAnalysisSettings() AnalysisSettings {
	return AnalysisSettings{
		MaxKeyPoints:    5,
		MaxTags:         5,
		MaxContentChars: 8000,
	}
}

// LoadAnalysisSettings reads analyzer settings from a YAML file. A missing
// path yields the defaults.
func LoadAnalysisSettings(path string) (AnalysisSettings, error) {
	settings := DefaultAnalysisSettings()

	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read analysis config: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse analysis config: %w", err)
	}

	if settings.MaxKeyPoints <= 0 {
		settings.MaxKeyPoints = 5
	}
	if settings.MaxTags <= 0 {
		settings.MaxTags = 5
	}
	if settings.MaxContentChars <= 0 {
		settings.MaxContentChars = 8000
	}

	return settings, nil
}
