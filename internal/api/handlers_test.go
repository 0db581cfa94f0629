package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castsync/castsync/internal/config"
	"github.com/castsync/castsync/internal/database"
	"github.com/castsync/castsync/internal/history"
	"github.com/castsync/castsync/internal/mediaserver"
	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
	"github.com/castsync/castsync/internal/people"
	"github.com/castsync/castsync/internal/scheduler"
)

type stubPrimary struct{}

func (stubPrimary) GetPersonDetail(ctx context.Context, personID string) (*tmdb.PersonDetails, error) {
	return nil, tmdb.ErrNotFound
}
func (stubPrimary) GetMovieCredits(ctx context.Context, movieID string) *tmdb.Credits { return nil }
func (stubPrimary) GetSeriesCredits(ctx context.Context, seriesID string) *tmdb.Credits {
	return nil
}
func (stubPrimary) GetSeasonCredits(ctx context.Context, seriesID string, season int) *tmdb.Credits {
	return nil
}
func (stubPrimary) GetEpisodeCredits(ctx context.Context, seriesID string, season, episode int) *tmdb.Credits {
	return nil
}
func (stubPrimary) ImageURL(path string) string { return "" }

type stubSecondary struct{}

func (stubSecondary) FetchCelebrities(ctx context.Context, q douban.MatchQuery) []douban.Celebrity {
	return nil
}

type stubImages struct{}

func (stubImages) DownloadBase64(ctx context.Context, imageURL string) ([]byte, error) {
	return nil, nil
}

type stubGateway struct{}

func (stubGateway) Name() string                   { return "stub" }
func (stubGateway) ServerType() string             { return mediaserver.ServerTypeEmby }
func (stubGateway) Ping(ctx context.Context) error { return nil }
func (stubGateway) GetLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	return nil, nil
}
func (stubGateway) GetItems(ctx context.Context, parentID, includeTypes string) ([]mediaserver.Item, error) {
	return nil, nil
}
func (stubGateway) GetItem(ctx context.Context, itemID string) (*mediaserver.Item, error) {
	return nil, mediaserver.ErrNotFound
}
func (stubGateway) UpdateItem(ctx context.Context, item *mediaserver.Item) error { return nil }
func (stubGateway) UploadImage(ctx context.Context, itemID string, imageBase64 []byte) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	engine := people.NewEngine(stubPrimary{}, stubSecondary{}, stubImages{},
		people.NewCache(), config.ScrapeConfig{Policy: "all", Concurrency: 2}, 0, zerolog.Nop())
	store := history.NewStore(db.Conn())
	svc := people.NewService(engine, []mediaserver.Gateway{stubGateway{}}, store, zerolog.Nop())

	sched, err := scheduler.New(context.Background(), zerolog.Nop())
	require.NoError(t, err)

	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 0}}
	return NewServer(cfg, svc, store, sched, zerolog.Nop())
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestScanStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/scan/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
}

func TestScanHistoryEmpty(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/scan/history")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestScanHistoryListsRuns(t *testing.T) {
	s := newTestServer(t)

	run := history.NewRun("manual")
	require.NoError(t, s.store.RecordStart(context.Background(), run))

	rec := doRequest(s, http.MethodGet, "/api/v1/scan/history")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), run.ID)
}

func TestScanItemUnknownServer(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/scan/item/nope/123")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanItemUnknownItem(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/scan/item/stub/123")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerScan(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/scan")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestListTasksEmpty(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/tasks")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
