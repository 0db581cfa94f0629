// Package douban implements the secondary-catalog client. Douban is the
// community source used to enrich names, roles and portraits; it has no
// stable cross-reference ids, so titles are matched by name and year and
// people by name heuristics further up the stack.
package douban

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/config"
)

// ErrAPIError covers any non-success Douban response.
var ErrAPIError = errors.New("douban API error")

// MediaType selects the subject namespace for lookups.
type MediaType string

const (
	MediaTypeMovie MediaType = "movie"
	MediaTypeTV    MediaType = "tv"
)

// MatchQuery describes the title being resolved to a Douban subject.
type MatchQuery struct {
	Title     string
	IMDBID    string
	MediaType MediaType
	Year      string
	// Season, when set, scopes a series lookup to one season; Douban
	// lists seasons as separate subjects titled "<name> 第N季".
	Season int
}

// Client is a Douban API client.
type Client struct {
	httpClient *http.Client
	config     config.DoubanConfig
	logger     zerolog.Logger
}

// NewClient creates a new Douban client.
func NewClient(cfg config.DoubanConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.TimeoutDuration()},
		config:     cfg,
		logger:     logger.With().Str("component", "douban").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "douban"
}

// MatchTitle resolves a title to a Douban subject id. Resolution is
// best-effort: any failure or ambiguity yields an empty id, never an error.
func (c *Client) MatchTitle(ctx context.Context, q MatchQuery) string {
	title := q.Title
	if q.MediaType == MediaTypeTV && q.Season > 1 {
		title = fmt.Sprintf("%s 第%d季", title, q.Season)
	}

	endpoint := fmt.Sprintf("%s/search/%s", c.config.BaseURL, string(q.MediaType))
	params := url.Values{}
	params.Set("q", title)

	var resp searchResponse
	if err := c.doRequest(ctx, endpoint, params, &resp); err != nil {
		c.logger.Debug().Err(err).Str("title", title).Msg("Title search failed")
		return ""
	}

	for _, s := range resp.Subjects {
		if q.IMDBID != "" && s.IMDBIDs != "" && s.IMDBIDs == q.IMDBID {
			return s.ID
		}
	}
	for _, s := range resp.Subjects {
		if !strings.EqualFold(strings.TrimSpace(s.Title), strings.TrimSpace(title)) {
			continue
		}
		if q.Year != "" && s.Year != "" && s.Year != q.Year {
			continue
		}
		return s.ID
	}

	c.logger.Debug().Str("title", title).Str("year", q.Year).Msg("No subject matched")
	return ""
}

// GetCelebrities fetches the actor and director lists of a subject.
func (c *Client) GetCelebrities(ctx context.Context, mediaType MediaType, subjectID string) ([]Celebrity, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/celebrities", c.config.BaseURL, string(mediaType), url.PathEscape(subjectID))

	var resp celebritiesResponse
	if err := c.doRequest(ctx, endpoint, url.Values{}, &resp); err != nil {
		return nil, err
	}

	out := make([]Celebrity, 0, len(resp.Actors)+len(resp.Directors))
	out = append(out, resp.Actors...)
	out = append(out, resp.Directors...)
	return out, nil
}

// FetchCelebrities resolves a title and returns its combined actor and
// director list. Failure at any step yields an empty list; the caller is
// responsible for pacing requests per the engine's throttle policy.
func (c *Client) FetchCelebrities(ctx context.Context, q MatchQuery) []Celebrity {
	subjectID := c.MatchTitle(ctx, q)
	if subjectID == "" {
		return nil
	}

	celebs, err := c.GetCelebrities(ctx, q.MediaType, subjectID)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("subjectID", subjectID).
			Str("title", q.Title).
			Msg("Celebrity lookup failed")
		return nil
	}

	c.logger.Debug().
		Str("subjectID", subjectID).
		Str("title", q.Title).
		Int("count", len(celebs)).
		Msg("Got celebrities")

	return celebs
}

// doRequest performs an HTTP GET request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	params.Set("count", strconv.Itoa(20))
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", "https://movie.douban.com/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
