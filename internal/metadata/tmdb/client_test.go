package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/config"
)

func newTestClient(server *httptest.Server) *Client {
	cfg := config.TMDBConfig{
		APIKey:       "test-api-key",
		BaseURL:      server.URL,
		ImageBaseURL: "https://image.tmdb.org/t/p/original",
		Language:     "zh-CN",
		Timeout:      5,
	}
	c := NewClient(cfg, zerolog.Nop())
	c.backoff = time.Millisecond
	return c
}

func TestClient_Name(t *testing.T) {
	client := NewClient(config.TMDBConfig{}, zerolog.Nop())
	if client.Name() != "tmdb" {
		t.Errorf("Name() = %q, want %q", client.Name(), "tmdb")
	}
}

func TestClient_GetPersonDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/person/31" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("language"); got != "zh-CN" {
			t.Errorf("unexpected language: %s", got)
		}
		if got := r.URL.Query().Get("append_to_response"); got != "external_ids" {
			t.Errorf("unexpected append_to_response: %s", got)
		}

		json.NewEncoder(w).Encode(PersonDetails{
			ID:          31,
			Name:        "汤姆·汉克斯",
			Biography:   "美国演员。",
			ProfilePath: "/x.jpg",
			ExternalIDs: ExternalIDs{ImdbID: "nm0000158"},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	details, err := client.GetPersonDetail(context.Background(), "31")
	if err != nil {
		t.Fatalf("GetPersonDetail failed: %v", err)
	}

	if details.Name != "汤姆·汉克斯" {
		t.Errorf("unexpected name: %q", details.Name)
	}
	if details.ExternalIDs.ImdbID != "nm0000158" {
		t.Errorf("unexpected imdb id: %q", details.ExternalIDs.ImdbID)
	}
}

func TestClient_GetPersonDetail_NotFound(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{StatusCode: 34, StatusMessage: "not found"})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.GetPersonDetail(context.Background(), "999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Not-found is terminal, no retries.
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_GetPersonDetail_RateLimitedRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.GetPersonDetail(context.Background(), "31")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls.Load() != detailAttempts {
		t.Errorf("expected %d calls, got %d", detailAttempts, calls.Load())
	}
}

func TestClient_GetPersonDetail_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(PersonDetails{ID: 31, Name: "Tom Hanks"})
	}))
	defer server.Close()

	client := newTestClient(server)
	details, err := client.GetPersonDetail(context.Background(), "31")
	if err != nil {
		t.Fatalf("expected recovery on third attempt, got %v", err)
	}
	if details.Name != "Tom Hanks" {
		t.Errorf("unexpected name: %q", details.Name)
	}
}

func TestClient_GetPersonDetail_NoAPIKey(t *testing.T) {
	client := NewClient(config.TMDBConfig{}, zerolog.Nop())
	_, err := client.GetPersonDetail(context.Background(), "31")
	if !errors.Is(err, ErrAPIKeyMissing) {
		t.Fatalf("expected ErrAPIKeyMissing, got %v", err)
	}
}

func TestClient_GetCredits_Scopes(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Credits{
			Cast: []CreditPerson{{ID: 31, Name: "汤姆·汉克斯", OriginalName: "Tom Hanks", Character: "Forrest Gump"}},
			Crew: []CreditPerson{{ID: 24, Name: "Robert Zemeckis", OriginalName: "Robert Zemeckis", Job: "Director"}},
		})
	}))
	defer server.Close()

	client := newTestClient(server)

	credits := client.GetMovieCredits(context.Background(), "13")
	if gotPath != "/movie/13/credits" {
		t.Errorf("unexpected movie path: %s", gotPath)
	}
	if len(credits.Cast) != 1 || len(credits.Crew) != 1 {
		t.Fatalf("unexpected credits: %+v", credits)
	}
	if got := credits.All(); len(got) != 2 {
		t.Errorf("All() = %d entries, want 2", len(got))
	}

	client.GetSeriesCredits(context.Background(), "100")
	if gotPath != "/tv/100/credits" {
		t.Errorf("unexpected series path: %s", gotPath)
	}

	client.GetSeasonCredits(context.Background(), "100", 2)
	if gotPath != "/tv/100/season/2/credits" {
		t.Errorf("unexpected season path: %s", gotPath)
	}

	client.GetEpisodeCredits(context.Background(), "100", 2, 5)
	if gotPath != "/tv/100/season/2/episode/5/credits" {
		t.Errorf("unexpected episode path: %s", gotPath)
	}
}

func TestClient_GetCredits_SoftFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server)
	credits := client.GetMovieCredits(context.Background(), "13")
	if !credits.IsEmpty() {
		t.Errorf("expected empty credit set on failure, got %+v", credits)
	}
}

func TestClient_ImageURL(t *testing.T) {
	client := NewClient(config.TMDBConfig{ImageBaseURL: "https://image.tmdb.org/t/p/original"}, zerolog.Nop())
	if got := client.ImageURL("/x.jpg"); got != "https://image.tmdb.org/t/p/original/x.jpg" {
		t.Errorf("unexpected image url: %s", got)
	}
	if got := client.ImageURL(""); got != "" {
		t.Errorf("expected empty url for empty path, got %s", got)
	}
}
