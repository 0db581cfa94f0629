// Package emby implements the media-server gateway for Emby servers.
// Emby routes live under an /emby prefix and authenticate with an api_key
// query parameter.
package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/mediaserver"
)

const pageSize = 200

// Client talks to one Emby server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userID     string
	name       string
	logger     zerolog.Logger
}

// NewClient creates a new Emby client.
func NewClient(name, baseURL, apiKey, userID string, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userID:     userID,
		name:       name,
		logger:     logger.With().Str("component", "emby").Str("server", name).Logger(),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.name }

// ServerType returns the wire-protocol family.
func (c *Client) ServerType() string { return mediaserver.ServerTypeEmby }

// Ping verifies connectivity and key validity.
func (c *Client) Ping(ctx context.Context) error {
	var info struct {
		ServerName string `json:"ServerName"`
	}
	return c.getJSON(ctx, "/emby/System/Info", nil, &info)
}

// GetLibraries lists the user's library views.
func (c *Client) GetLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	var page struct {
		Items []mediaserver.Library `json:"Items"`
	}
	path := fmt.Sprintf("/emby/Users/%s/Views", c.userID)
	if err := c.getJSON(ctx, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Items, nil
}

// recursiveListing reports whether an include filter targets library-level
// types rather than the direct children of a series or season.
func recursiveListing(includeTypes string) bool {
	return strings.Contains(includeTypes, mediaserver.ItemTypeMovie) ||
		strings.Contains(includeTypes, mediaserver.ItemTypeSeries)
}

// GetItems returns all items under a parent, following pagination.
func (c *Client) GetItems(ctx context.Context, parentID, includeTypes string) ([]mediaserver.Item, error) {
	path := fmt.Sprintf("/emby/Users/%s/Items", c.userID)

	var all []mediaserver.Item
	start := 0
	for {
		params := url.Values{}
		if parentID != "" {
			params.Set("ParentId", parentID)
		}
		if includeTypes != "" {
			params.Set("IncludeItemTypes", includeTypes)
			// Library roots nest collections and folders, so movie and
			// series listings walk the whole subtree. Season and episode
			// listings address direct children of one item.
			params.Set("Recursive", strconv.FormatBool(recursiveListing(includeTypes)))
		}
		params.Set("Fields", "ProviderIds")
		params.Set("StartIndex", strconv.Itoa(start))
		params.Set("Limit", strconv.Itoa(pageSize))

		var page mediaserver.ItemsPage
		if err := c.getJSON(ctx, path, params, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)

		start += len(page.Items)
		if len(page.Items) == 0 || start >= page.TotalRecordCount {
			break
		}
	}

	return all, nil
}

// GetItem fetches one item with the fields the engine needs.
func (c *Client) GetItem(ctx context.Context, itemID string) (*mediaserver.Item, error) {
	path := fmt.Sprintf("/emby/Users/%s/Items/%s", c.userID, itemID)
	params := url.Values{}
	params.Set("Fields", "ChannelMappingInfo,ProviderIds,Overview,People,LockedFields")

	item := &mediaserver.Item{}
	if err := c.getJSON(ctx, path, params, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem posts the full item back.
func (c *Client) UpdateItem(ctx context.Context, item *mediaserver.Item) error {
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	path := fmt.Sprintf("/emby/Items/%s", item.ID)
	params := url.Values{}
	params.Set("reqformat", "json")

	return c.post(ctx, path, params, "application/json", body)
}

// UploadImage replaces the item's primary image.
func (c *Client) UploadImage(ctx context.Context, itemID string, imageBase64 []byte) error {
	path := fmt.Sprintf("/emby/Items/%s/Images/Primary", itemID)
	return c.post(ctx, path, nil, "image/png", imageBase64)
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, result any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp.StatusCode, path); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// post performs an authenticated POST with the given body.
func (c *Client) post(ctx context.Context, path string, params url.Values, contentType string, body []byte) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.checkStatus(resp.StatusCode, path)
}

func (c *Client) checkStatus(status int, path string) error {
	switch {
	case status == http.StatusOK || status == http.StatusNoContent:
		return nil
	case status == http.StatusNotFound:
		return mediaserver.ErrNotFound
	case status == http.StatusUnauthorized:
		return mediaserver.ErrUnauthorized
	default:
		c.logger.Error().Int("status", status).Str("path", path).Msg("Emby API error")
		return fmt.Errorf("%w: status %d", mediaserver.ErrServerError, status)
	}
}
