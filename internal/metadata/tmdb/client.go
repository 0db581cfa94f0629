// Package tmdb implements the primary-catalog client. TMDB is the
// authoritative source for person names, biographies, profile images and
// cross-reference ids; per-title credit lists supply the person id
// resolution path.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/config"
)

var (
	ErrAPIKeyMissing = errors.New("TMDB API key is not configured")
	ErrNotFound      = errors.New("person not found")
	ErrAPIError      = errors.New("TMDB API error")
	ErrRateLimited   = errors.New("TMDB API rate limited")
)

const detailAttempts = 3

// Client is a TMDB API client.
type Client struct {
	httpClient *http.Client
	config     config.TMDBConfig
	logger     zerolog.Logger

	// backoff is the base retry pause; rate-limited responses wait twice
	// as long. Overridable so tests do not sleep.
	backoff time.Duration
}

// NewClient creates a new TMDB client.
func NewClient(cfg config.TMDBConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.TimeoutDuration()},
		config:     cfg,
		logger:     logger.With().Str("component", "tmdb").Logger(),
		backoff:    time.Second,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "tmdb"
}

// IsConfigured returns true if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// GetPersonDetail fetches a person's global record by TMDB id, retrying
// transient failures. A rate-limited response waits longer before the next
// attempt; once attempts are exhausted the caller treats the person as
// unresolvable for this pass.
func (c *Client) GetPersonDetail(ctx context.Context, personID string) (*PersonDetails, error) {
	if !c.IsConfigured() {
		return nil, ErrAPIKeyMissing
	}
	if personID == "" {
		return nil, ErrNotFound
	}

	endpoint := fmt.Sprintf("%s/person/%s", c.config.BaseURL, url.PathEscape(personID))
	params := url.Values{}
	params.Set("language", c.config.Language)
	params.Set("append_to_response", "external_ids")

	var lastErr error
	for attempt := 1; attempt <= detailAttempts; attempt++ {
		var details PersonDetails
		err := c.doRequest(ctx, endpoint, params, &details)
		if err == nil {
			c.logger.Debug().
				Str("personID", personID).
				Str("name", details.Name).
				Msg("Got person details")
			return &details, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
			return nil, err
		}

		lastErr = err
		if attempt == detailAttempts {
			break
		}

		wait := c.backoff
		if errors.Is(err, ErrRateLimited) {
			wait = 2 * c.backoff
		}
		c.logger.Debug().
			Err(err).
			Str("personID", personID).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Person detail request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

// GetMovieCredits fetches the cast and crew for a movie. Credit lookups are
// best-effort enrichment: failures return an empty set, not an error.
func (c *Client) GetMovieCredits(ctx context.Context, movieID string) *Credits {
	endpoint := fmt.Sprintf("%s/movie/%s/credits", c.config.BaseURL, url.PathEscape(movieID))
	return c.getCredits(ctx, endpoint)
}

// GetSeriesCredits fetches the cast and crew for a whole series.
func (c *Client) GetSeriesCredits(ctx context.Context, seriesID string) *Credits {
	endpoint := fmt.Sprintf("%s/tv/%s/credits", c.config.BaseURL, url.PathEscape(seriesID))
	return c.getCredits(ctx, endpoint)
}

// GetSeasonCredits fetches the cast and crew for one season.
func (c *Client) GetSeasonCredits(ctx context.Context, seriesID string, season int) *Credits {
	endpoint := fmt.Sprintf("%s/tv/%s/season/%d/credits", c.config.BaseURL, url.PathEscape(seriesID), season)
	return c.getCredits(ctx, endpoint)
}

// GetEpisodeCredits fetches the cast and crew for one episode.
func (c *Client) GetEpisodeCredits(ctx context.Context, seriesID string, season, episode int) *Credits {
	endpoint := fmt.Sprintf("%s/tv/%s/season/%d/episode/%d/credits",
		c.config.BaseURL, url.PathEscape(seriesID), season, episode)
	return c.getCredits(ctx, endpoint)
}

func (c *Client) getCredits(ctx context.Context, endpoint string) *Credits {
	if !c.IsConfigured() {
		return &Credits{}
	}

	params := url.Values{}
	params.Set("language", c.config.Language)

	var credits Credits
	if err := c.doRequest(ctx, endpoint, params, &credits); err != nil {
		c.logger.Debug().Err(err).Str("url", endpoint).Msg("Credit lookup failed")
		return &Credits{}
	}
	return &credits
}

// ImageURL returns the full image URL for a profile path.
func (c *Client) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	return c.config.ImageBaseURL + path
}

// doRequest performs an HTTP GET request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	params.Set("api_key", c.config.APIKey)
	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

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

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.StatusMessage != "" {
			c.logger.Debug().
				Int("status", resp.StatusCode).
				Str("message", errResp.StatusMessage).
				Msg("TMDB API error")
		}

		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: invalid API key", ErrAPIError)
		case http.StatusTooManyRequests:
			return ErrRateLimited
		default:
			return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
