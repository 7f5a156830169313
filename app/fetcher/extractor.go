package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
)

const (
	fetchTimeout = 30 * time.Second
	maxPageSize  = 10 << 20
)

// Result carries the outcome of one full-text fetch attempt. Failures are
// values, not errors: callers branch on Success and persist Error.
type Result struct {
	Success     bool
	Content     string
	ContentHTML string
	WordCount   int
	Error       string
}

// Extractor downloads article pages and extracts their readable content.
type Extractor struct {
	httpClient *http.Client
	converter  *md.Converter
	userAgent  string
}

func NewExtractor(userAgent string) *Extractor {
	return &Extractor{
		httpClient: &http.Client{Timeout: fetchTimeout},
		converter:  md.NewConverter("", true, nil),
		userAgent:  userAgent,
	}
}

// Fetch downloads the page at url and extracts the main article content as
// markdown plus the readable HTML fragment. It never returns a Go error.
func (e *Extractor) Fetch(ctx context.Context, url string) Result {
	if url == "" {
		return failure("no URL to fetch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(fmt.Sprintf("invalid URL: %v", err))
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("download failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failure(fmt.Sprintf("download failed with status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return failure(fmt.Sprintf("failed to read page body: %v", err))
	}

	article, err := readability.FromReader(strings.NewReader(string(body)), resp.Request.URL)
	if err != nil {
		return failure(fmt.Sprintf("content extraction failed: %v", err))
	}
	if strings.TrimSpace(article.Content) == "" {
		return failure("no readable content found on page")
	}

	markdown, err := e.converter.ConvertString(article.Content)
	if err != nil {
		slog.Debug("Markdown conversion failed, falling back to plain text", "url", url, "error", err)
		markdown = article.TextContent
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return failure("extracted content is empty")
	}

	slog.Debug("Full content extracted", "url", url, "title", article.Title, "length", len(markdown))

	return Result{
		Success:     true,
		Content:     markdown,
		ContentHTML: article.Content,
		WordCount:   len(strings.Fields(markdown)),
	}
}

func failure(msg string) Result {
	return Result{Error: msg}
}
