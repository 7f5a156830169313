package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

var _ AnalysisRepository = (*AnalysisRepo)(nil)

type AnalysisRepo struct {
	db *DB
}

func NewAnalysisRepository(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

func (r *AnalysisRepo) GetAnalysis(articleID string) (*Analysis, error) {
	var a Analysis
	var keyPoints, tags string

	err := r.db.QueryRow(`
		SELECT id, article_id, summary, key_points, value_score,
		       reading_time, language, tags, model_used, analyzed_at
		FROM article_analyses
		WHERE article_id = ?
	`, articleID).Scan(
		&a.ID, &a.ArticleID, &a.Summary, &keyPoints, &a.ValueScore,
		&a.ReadingTime, &a.Language, &tags, &a.ModelUsed, &a.AnalyzedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	if keyPoints != "" {
		if err := json.Unmarshal([]byte(keyPoints), &a.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to decode key points: %w", err)
		}
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}

	return &a, nil
}

// UpsertAnalysis writes the analysis for an article, replacing any
// previous result. Re-analysis never produces a second row.
func (r *AnalysisRepo) UpsertAnalysis(analysis *Analysis) error {
	keyPoints, err := json.Marshal(analysis.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to encode key points: %w", err)
	}
	tags, err := json.Marshal(analysis.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO article_analyses (
			article_id, summary, key_points, value_score, reading_time,
			language, tags, model_used, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (article_id) DO UPDATE SET
			summary = excluded.summary,
			key_points = excluded.key_points,
			value_score = excluded.value_score,
			reading_time = excluded.reading_time,
			language = excluded.language,
			tags = excluded.tags,
			model_used = excluded.model_used,
			analyzed_at = excluded.analyzed_at
	`, analysis.ArticleID, analysis.Summary, string(keyPoints), analysis.ValueScore,
		analysis.ReadingTime, analysis.Language, string(tags), analysis.ModelUsed,
		time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}

	return nil
}
