// Package reader implements a FreshRSS client speaking the Google Reader
// compatible API: ClientLogin authentication, subscription and stream
// listing, and read/star state edits.
package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	user       string
	password   string
	userAgent  string
	authToken  string
	httpClient *http.Client
}

func NewClient(baseURL, user, password, userAgent string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		user:       user,
		password:   password,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Login performs ClientLogin and caches the Auth token for subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("Email", c.user)
	form.Set("Passwd", c.password)

	endpoint := c.baseURL + "/accounts/ClientLogin"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected with status %d", resp.StatusCode)
	}

	for _, line := range strings.Split(string(body), "\n") {
		if token, ok := strings.CutPrefix(strings.TrimSpace(line), "Auth="); ok {
			c.authToken = token

			slog.Debug("FreshRSS login succeeded", "url", c.baseURL, "user", c.user)
			return nil
		}
	}

	return fmt.Errorf("login response contained no auth token")
}

// GetSubscriptions returns all feeds registered in FreshRSS.
func (c *Client) GetSubscriptions(ctx context.Context) ([]Subscription, error) {
	var list subscriptionList

	params := url.Values{"output": {"json"}}
	if err := c.getJSON(ctx, "/reader/api/0/subscription/list", params, &list); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	return list.Subscriptions, nil
}

// GetUnreadItems returns up to limit unread items from the reading list,
// newest first.
func (c *Client) GetUnreadItems(ctx context.Context, limit int) ([]Item, error) {
	return c.getStreamItems(ctx, limit, true)
}

// GetAllItems returns up to limit items from the reading list regardless of
// read state.
func (c *Client) GetAllItems(ctx context.Context, limit int) ([]Item, error) {
	return c.getStreamItems(ctx, limit, false)
}

func (c *Client) getStreamItems(ctx context.Context, limit int, excludeRead bool) ([]Item, error) {
	items := make([]Item, 0, limit)
	continuation := ""

	for len(items) < limit {
		batch := min(limit-len(items), 200)

		params := url.Values{
			"output": {"json"},
			"n":      {strconv.Itoa(batch)},
		}
		if excludeRead {
			params.Set("xt", tagRead)
		}
		if continuation != "" {
			params.Set("c", continuation)
		}

		var contents streamContents

		endpoint := "/reader/api/0/stream/contents/" + url.PathEscape(streamReadingList)
		if err := c.getJSON(ctx, endpoint, params, &contents); err != nil {
			return nil, fmt.Errorf("failed to read stream contents: %w", err)
		}

		items = append(items, contents.Items...)

		if contents.Continuation == "" || len(contents.Items) == 0 {
			break
		}
		continuation = contents.Continuation
	}

	if len(items) > limit {
		items = items[:limit]
	}

	return items, nil
}

// MarkRead adds the read state tag to the item.
func (c *Client) MarkRead(ctx context.Context, itemID string) error {
	return c.editTag(ctx, itemID, tagRead, "")
}

// MarkUnread removes the read state tag from the item.
func (c *Client) MarkUnread(ctx context.Context, itemID string) error {
	return c.editTag(ctx, itemID, "", tagRead)
}

// Star adds the starred state tag to the item.
func (c *Client) Star(ctx context.Context, itemID string) error {
	return c.editTag(ctx, itemID, tagStarred, "")
}

// Unstar removes the starred state tag from the item.
func (c *Client) Unstar(ctx context.Context, itemID string) error {
	return c.editTag(ctx, itemID, "", tagStarred)
}

func (c *Client) editTag(ctx context.Context, itemID, add, remove string) error {
	form := url.Values{"i": {itemID}}
	if add != "" {
		form.Set("a", add)
	}
	if remove != "" {
		form.Set("r", remove)
	}

	endpoint := c.baseURL + "/reader/api/0/edit-tag"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create edit-tag request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("edit-tag request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edit-tag rejected with status %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("request rejected with status %d, auth token may have expired", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.authToken != "" {
		req.Header.Set("Authorization", "GoogleLogin auth="+c.authToken)
	}
}
