// Package parser fetches and parses RSS/Atom feeds for previewing a feed
// before it is subscribed in FreshRSS.
package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	requestTimeout = 30 * time.Second
	maxFeedSize    = 10 << 20
)

type Parser struct {
	gofeedParser *gofeed.Parser
	httpClient   *http.Client
	userAgent    string
}

func NewParser(userAgent string) *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
		httpClient:   &http.Client{Timeout: requestTimeout},
		userAgent:    userAgent,
	}
}

// Preview downloads the feed at url and returns its metadata together with
// the first few entries.
func (p *Parser) Preview(ctx context.Context, url string, maxItems int) (*FeedPreview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed download failed with status %d", resp.StatusCode)
	}

	feed, err := p.gofeedParser.Parse(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	preview := &FeedPreview{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
		ItemCount:   len(feed.Items),
	}
	if feed.Image != nil {
		preview.IconURL = feed.Image.URL
	}
	if feed.UpdatedParsed != nil {
		preview.Updated = feed.UpdatedParsed
	}

	for i, item := range feed.Items {
		if i >= maxItems {
			break
		}
		preview.Items = append(preview.Items, previewItem(item))
	}

	return preview, nil
}

func previewItem(item *gofeed.Item) PreviewItem {
	entry := PreviewItem{
		GUID:        coalesce(item.GUID, item.Link),
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
	}
	if item.PublishedParsed != nil {
		entry.Published = item.PublishedParsed
	}
	if item.Author != nil {
		entry.Author = item.Author.Name
	}

	return entry
}

// coalesce returns the first non-empty string from the provided values.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
