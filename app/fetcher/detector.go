// Package fetcher decides whether feed-provided article content is complete
// and retrieves the full article text when it is not.
package fetcher

import "strings"

// truncationMarkers are phrases feeds commonly append when an entry carries
// only an excerpt. Checked case-insensitively against the content tail.
var truncationMarkers = []string{
	"...",
	"…",
	"read more",
	"continue reading",
	"read the full article",
	"click to read more",
	"阅读更多",
	"查看全文",
	"点击阅读",
	"继续阅读",
	"展开全文",
	"[...]",
	"[…]",
}

const minContentLength = 500

// NeedsFullContent reports whether the content of an article looks truncated
// and the full text should be fetched from the source page. Rules are checked
// in order, first match wins:
//
//  1. empty content
//  2. content shorter than 500 characters
//  3. truncation marker within the last 100 characters
//  4. long title (> 50 chars) but short content (< 300 chars)
//  5. at most two paragraphs and content shorter than 800 characters
func NeedsFullContent(title, content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return true
	}

	runes := []rune(content)
	if len(runes) < minContentLength {
		return true
	}

	if hasTruncatedTail(runes) {
		return true
	}

	if len([]rune(title)) > 50 && len(runes) < 300 {
		return true
	}

	paragraphs := 0
	for _, p := range strings.Split(content, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}

	return paragraphs <= 2 && len(runes) < 800
}

// EstimateCompleteness scores how complete the content looks, in [0, 1].
// Longer content scores higher; a truncation marker in the tail halves the
// score. Display heuristic only.
func EstimateCompleteness(content string) float64 {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0.0
	}

	runes := []rune(content)

	var score float64
	switch length := len(runes); {
	case length < 200:
		score = 0.2
	case length < 500:
		score = 0.4
	case length < 1000:
		score = 0.6
	case length < 2000:
		score = 0.8
	default:
		score = 1.0
	}

	if hasTruncatedTail(runes) {
		score *= 0.5
	}

	return score
}

func hasTruncatedTail(runes []rune) bool {
	tail := runes
	if len(tail) > 100 {
		tail = tail[len(tail)-100:]
	}

	lowered := strings.ToLower(string(tail))
	for _, marker := range truncationMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}

	return false
}
