package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    <image>
      <url>https://example.com/icon.png</url>
      <title>Test Feed</title>
      <link>https://example.com</link>
    </image>
    <item>
      <title>Test Item 1</title>
      <link>https://example.com/item1</link>
      <description>Test Item 1 Description</description>
      <guid>item-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <author>test@example.com (Test Author)</author>
    </item>
    <item>
      <title>Test Item 2</title>
      <link>https://example.com/item2</link>
      <description>Test Item 2 Description</description>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Test Item 3</title>
      <link>https://example.com/item3</link>
      <description>Test Item 3 Description</description>
      <guid>item-3</guid>
    </item>
  </channel>
</rss>`

func TestPreview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("Expected user agent 'test-agent', got '%s'", got)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeed)
	}))
	defer server.Close()

	parser := NewParser("test-agent")
	preview, err := parser.Preview(context.Background(), server.URL, 2)
	if err != nil {
		t.Fatal(err)
	}

	if preview.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got '%s'", preview.Title)
	}
	if preview.Language != "en-us" {
		t.Errorf("Expected language 'en-us', got '%s'", preview.Language)
	}
	if preview.IconURL != "https://example.com/icon.png" {
		t.Errorf("Expected icon URL 'https://example.com/icon.png', got '%s'", preview.IconURL)
	}
	if preview.ItemCount != 3 {
		t.Errorf("Expected item count 3, got %d", preview.ItemCount)
	}
	if len(preview.Items) != 2 {
		t.Fatalf("Expected 2 preview items, got %d", len(preview.Items))
	}

	item1 := preview.Items[0]
	if item1.Title != "Test Item 1" {
		t.Errorf("Expected first item title 'Test Item 1', got '%s'", item1.Title)
	}
	if item1.GUID != "item-1" {
		t.Errorf("Expected first item GUID 'item-1', got '%s'", item1.GUID)
	}
	if item1.Author != "Test Author" {
		t.Errorf("Expected first item author 'Test Author', got '%s'", item1.Author)
	}
	if item1.Published == nil {
		t.Error("Expected published date to be set")
	}

	// GUID falls back to the link when the feed omits it
	item2 := preview.Items[1]
	if item2.GUID != "https://example.com/item2" {
		t.Errorf("Expected GUID fallback to link, got '%s'", item2.GUID)
	}
}

func TestPreviewInvalidFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>not a feed</body></html>")
	}))
	defer server.Close()

	parser := NewParser("test-agent")
	if _, err := parser.Preview(context.Background(), server.URL, 5); err == nil {
		t.Error("Expected error for non-feed content")
	}
}

func TestPreviewHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	parser := NewParser("test-agent")
	if _, err := parser.Preview(context.Background(), server.URL, 5); err == nil {
		t.Error("Expected error for 404 response")
	}
}
