package reader

import "strings"

const (
	streamReadingList = "user/-/state/com.google/reading-list"
	tagRead           = "user/-/state/com.google/read"
	tagStarred        = "user/-/state/com.google/starred"
)

// Subscription is one feed registered in FreshRSS.
type Subscription struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	HTMLURL    string     `json:"htmlUrl"`
	IconURL    string     `json:"iconUrl"`
	Categories []Category `json:"categories"`
}

type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type subscriptionList struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

// Item is one article entry from a stream/contents response.
type Item struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Author     string      `json:"author"`
	Published  int64       `json:"published"`
	Categories []string    `json:"categories"`
	Canonical  []Link      `json:"canonical"`
	Alternate  []Link      `json:"alternate"`
	Summary    ItemContent `json:"summary"`
	Content    ItemContent `json:"content"`
	Origin     ItemOrigin  `json:"origin"`
}

type Link struct {
	Href string `json:"href"`
}

type ItemContent struct {
	Content string `json:"content"`
}

type ItemOrigin struct {
	StreamID string `json:"streamId"`
	Title    string `json:"title"`
	HTMLURL  string `json:"htmlUrl"`
}

type streamContents struct {
	Items        []Item `json:"items"`
	Continuation string `json:"continuation"`
}

// HTML returns the richest content variant the item carries.
func (i Item) HTML() string {
	if i.Content.Content != "" {
		return i.Content.Content
	}

	return i.Summary.Content
}

// URL returns the canonical article link, falling back to alternates.
func (i Item) URL() string {
	if len(i.Canonical) > 0 && i.Canonical[0].Href != "" {
		return i.Canonical[0].Href
	}
	if len(i.Alternate) > 0 {
		return i.Alternate[0].Href
	}

	return ""
}

// IsRead reports whether the read state tag is present.
func (i Item) IsRead() bool {
	return i.hasCategory("/state/com.google/read")
}

// IsStarred reports whether the starred state tag is present.
func (i Item) IsStarred() bool {
	return i.hasCategory("/state/com.google/starred")
}

func (i Item) hasCategory(suffix string) bool {
	for _, c := range i.Categories {
		if strings.HasSuffix(c, suffix) {
			return true
		}
	}

	return false
}
