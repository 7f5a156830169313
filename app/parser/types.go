package parser

import "time"

// FeedPreview summarizes a feed for display before subscribing.
type FeedPreview struct {
	Title       string        `json:"title"`
	Link        string        `json:"link"`
	Description string        `json:"description"`
	Language    string        `json:"language"`
	IconURL     string        `json:"icon_url,omitempty"`
	Updated     *time.Time    `json:"updated,omitempty"`
	ItemCount   int           `json:"item_count"`
	Items       []PreviewItem `json:"items"`
}

// PreviewItem is one entry of a previewed feed.
type PreviewItem struct {
	GUID        string     `json:"guid"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description"`
	Author      string     `json:"author,omitempty"`
	Published   *time.Time `json:"published,omitempty"`
}
