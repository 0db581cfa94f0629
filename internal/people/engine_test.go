package people

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castsync/castsync/internal/config"
	"github.com/castsync/castsync/internal/mediaserver"
	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
)

type mockGateway struct {
	mu         sync.Mutex
	name       string
	serverType string
	libraries  []mediaserver.Library
	items      map[string]*mediaserver.Item
	children   map[string][]mediaserver.Item
	updates    []mediaserver.Item
	uploads    []string
	updateErr  error
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		name:       "test-emby",
		serverType: mediaserver.ServerTypeEmby,
		items:      make(map[string]*mediaserver.Item),
		children:   make(map[string][]mediaserver.Item),
	}
}

func (g *mockGateway) Name() string                   { return g.name }
func (g *mockGateway) ServerType() string             { return g.serverType }
func (g *mockGateway) Ping(ctx context.Context) error { return nil }

func (g *mockGateway) GetLibraries(ctx context.Context) ([]mediaserver.Library, error) {
	return g.libraries, nil
}

func (g *mockGateway) GetItems(ctx context.Context, parentID, includeTypes string) ([]mediaserver.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.children[parentID+"/"+includeTypes], nil
}

func (g *mockGateway) GetItem(ctx context.Context, itemID string) (*mediaserver.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[itemID]
	if !ok {
		return nil, mediaserver.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (g *mockGateway) UpdateItem(ctx context.Context, item *mediaserver.Item) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	g.updates = append(g.updates, *item)
	copied := *item
	g.items[item.ID] = &copied
	return nil
}

func (g *mockGateway) UploadImage(ctx context.Context, itemID string, imageBase64 []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploads = append(g.uploads, itemID)
	return nil
}

func (g *mockGateway) updatesFor(itemID string) []mediaserver.Item {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []mediaserver.Item
	for _, u := range g.updates {
		if u.ID == itemID {
			out = append(out, u)
		}
	}
	return out
}

type mockPrimary struct {
	mu             sync.Mutex
	details        map[string]*tmdb.PersonDetails
	detailErr      map[string]error
	credits        *tmdb.Credits
	tvCredits      *tmdb.Credits
	seasonCredits  map[int]*tmdb.Credits
	episodeCredits map[string]*tmdb.Credits
	detailCalls    int
	creditCalls    int
}

func newMockPrimary() *mockPrimary {
	return &mockPrimary{
		details:        make(map[string]*tmdb.PersonDetails),
		detailErr:      make(map[string]error),
		seasonCredits:  make(map[int]*tmdb.Credits),
		episodeCredits: make(map[string]*tmdb.Credits),
	}
}

func (p *mockPrimary) GetPersonDetail(ctx context.Context, personID string) (*tmdb.PersonDetails, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detailCalls++
	if err := p.detailErr[personID]; err != nil {
		return nil, err
	}
	detail, ok := p.details[personID]
	if !ok {
		return nil, tmdb.ErrNotFound
	}
	return detail, nil
}

func (p *mockPrimary) GetMovieCredits(ctx context.Context, movieID string) *tmdb.Credits {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creditCalls++
	if p.credits == nil {
		return &tmdb.Credits{}
	}
	return p.credits
}

func (p *mockPrimary) GetSeriesCredits(ctx context.Context, seriesID string) *tmdb.Credits {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creditCalls++
	if p.tvCredits == nil {
		return &tmdb.Credits{}
	}
	return p.tvCredits
}

func (p *mockPrimary) GetSeasonCredits(ctx context.Context, seriesID string, season int) *tmdb.Credits {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creditCalls++
	if c, ok := p.seasonCredits[season]; ok {
		return c
	}
	return &tmdb.Credits{}
}

func (p *mockPrimary) GetEpisodeCredits(ctx context.Context, seriesID string, season, episode int) *tmdb.Credits {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creditCalls++
	if c, ok := p.episodeCredits[fmt.Sprintf("%d/%d", season, episode)]; ok {
		return c
	}
	return &tmdb.Credits{}
}

func (p *mockPrimary) ImageURL(path string) string {
	if path == "" {
		return ""
	}
	return "https://image.tmdb.org/t/p/original" + path
}

func (p *mockPrimary) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detailCalls, p.creditCalls
}

type mockSecondary struct {
	mu     sync.Mutex
	celebs []douban.Celebrity
	calls  int
}

func (s *mockSecondary) FetchCelebrities(ctx context.Context, q douban.MatchQuery) []douban.Celebrity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.celebs
}

type mockImages struct {
	err error
}

func (m *mockImages) DownloadBase64(ctx context.Context, imageURL string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("aW1hZ2U="), nil
}

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		Policy:             "all",
		Concurrency:        2,
		CacheClearInterval: 500,
	}
}

func newTestEngine(gw *mockGateway, primary *mockPrimary, secondary *mockSecondary, cfg config.ScrapeConfig) *Engine {
	return NewEngine(primary, secondary, &mockImages{}, NewCache(), cfg, 0, zerolog.Nop())
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// movieFixture builds a movie with one cast entry needing enrichment and
// the catalog records that resolve it.
func movieFixture() (*mockGateway, *mockPrimary, *mockSecondary, *mediaserver.Item) {
	gw := newMockGateway()

	movie := &mediaserver.Item{
		ID:             "m1",
		Name:           "Forrest Gump",
		Type:           "Movie",
		ProductionYear: 1994,
		ProviderIDs:    map[string]string{"Tmdb": "13", "Imdb": "tt0109830"},
		People: []mediaserver.Person{
			{ID: "p1", Name: "Tom Hanks", Type: "Actor"},
		},
	}
	gw.items["m1"] = movie
	gw.items["p1"] = &mediaserver.Item{ID: "p1", Name: "Tom Hanks", Type: "Person"}

	primary := newMockPrimary()
	primary.credits = &tmdb.Credits{
		Cast: []tmdb.CreditPerson{
			{ID: 31, Name: "汤姆·汉克斯", OriginalName: "Tom Hanks", Character: "Forrest Gump"},
		},
	}
	primary.details["31"] = &tmdb.PersonDetails{
		ID:          31,
		Name:        "汤姆·汉克斯",
		Biography:   "美国演员。",
		ProfilePath: "/hanks.jpg",
		ExternalIDs: tmdb.ExternalIDs{ImdbID: "nm0000158"},
	}

	secondary := &mockSecondary{
		celebs: []douban.Celebrity{
			{
				ID:        "1054531",
				Name:      "汤姆·汉克斯",
				LatinName: "Tom Hanks",
				Character: "饰 阿甘",
				Avatar:    douban.Avatar{URL: "https://img.doubanio.com/hanks.jpg"},
			},
		},
	}

	return gw, primary, secondary, movie
}

func TestReconcileItemEnrichesPerson(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	engine := newTestEngine(gw, primary, secondary, testScrapeConfig())

	err := engine.ReconcileItem(context.Background(), gw, movie)
	require.NoError(t, err)

	// The canonical person record got the merged fields and the promoted
	// catalog ids.
	recordUpdates := gw.updatesFor("p1")
	require.Len(t, recordUpdates, 1)
	record := recordUpdates[0]
	assert.Equal(t, "汤姆·汉克斯", record.Name)
	require.NotNil(t, record.Overview)
	assert.Equal(t, "美国演员。", *record.Overview)
	assert.Equal(t, "31", record.ProviderIDs["Tmdb"])
	assert.Equal(t, "nm0000158", record.ProviderIDs["Imdb"])

	// The portrait was filled from the secondary catalog.
	assert.Equal(t, []string{"p1"}, gw.uploads)

	// The item's people list was rewritten with the localized name and the
	// cleaned character.
	itemUpdates := gw.updatesFor("m1")
	require.Len(t, itemUpdates, 1)
	people := itemUpdates[0].People
	require.Len(t, people, 1)
	assert.Equal(t, "汤姆·汉克斯", people[0].Name)
	assert.Equal(t, "阿甘", people[0].Role)

	snap := engine.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Items)
	assert.Equal(t, int64(1), snap.PeopleUpdated)
	assert.Equal(t, int64(1), snap.ImagesUploaded)
	assert.Equal(t, int64(0), snap.Errors)
}

func TestReconcileItemSkipsSatisfiedPeople(t *testing.T) {
	gw := newMockGateway()
	movie := &mediaserver.Item{
		ID:          "m1",
		Name:        "已完成",
		Type:        "Movie",
		ProviderIDs: map[string]string{"Tmdb": "13"},
		People: []mediaserver.Person{
			{ID: "p1", Name: "汤姆·汉克斯", Role: "阿甘", Overview: strPtr("演员简介"), PrimaryImageTag: strPtr("tag")},
		},
	}
	gw.items["m1"] = movie

	primary := newMockPrimary()
	secondary := &mockSecondary{}
	engine := newTestEngine(gw, primary, secondary, testScrapeConfig())

	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	details, credits := primary.calls()
	assert.Equal(t, 0, details)
	assert.Equal(t, 0, credits)
	assert.Equal(t, 0, secondary.calls)
	assert.Empty(t, gw.updates)
	assert.Empty(t, gw.uploads)
}

func TestReconcileItemWithoutProviderID(t *testing.T) {
	gw := newMockGateway()
	movie := &mediaserver.Item{ID: "m1", Name: "Unknown", Type: "Movie"}

	engine := newTestEngine(gw, newMockPrimary(), &mockSecondary{}, testScrapeConfig())
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	assert.Equal(t, int64(0), engine.Stats().Snapshot().Items)
}

func TestImageFillIsOneWay(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	movie.People[0].PrimaryImageTag = strPtr("existing")
	gw.items["m1"] = movie

	engine := newTestEngine(gw, primary, secondary, testScrapeConfig())
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	assert.Empty(t, gw.uploads)
}

func TestImageOverwriteWhenEnabled(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	movie.People[0].PrimaryImageTag = strPtr("existing")
	gw.items["m1"] = movie

	cfg := testScrapeConfig()
	cfg.OverwriteImages = true
	engine := newTestEngine(gw, primary, secondary, cfg)
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	assert.Equal(t, []string{"p1"}, gw.uploads)
}

func TestLockedFieldsRespected(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	gw.items["p1"] = &mediaserver.Item{
		ID:           "p1",
		Name:         "手动名字",
		Type:         "Person",
		LockedFields: []string{"Name"},
	}

	cfg := testScrapeConfig()
	cfg.LockFields = true
	engine := newTestEngine(gw, primary, secondary, cfg)
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	recordUpdates := gw.updatesFor("p1")
	require.Len(t, recordUpdates, 1)
	record := recordUpdates[0]
	assert.Equal(t, "手动名字", record.Name)
	require.NotNil(t, record.Overview)
	assert.Equal(t, "美国演员。", *record.Overview)
	assert.Contains(t, record.LockedFields, "Overview")
}

func TestLockFieldsAppliedOnWrite(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()

	cfg := testScrapeConfig()
	cfg.LockFields = true
	engine := newTestEngine(gw, primary, secondary, cfg)
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	recordUpdates := gw.updatesFor("p1")
	require.Len(t, recordUpdates, 1)
	assert.Contains(t, recordUpdates[0].LockedFields, "Name")
	assert.Contains(t, recordUpdates[0].LockedFields, "Overview")
}

func TestReconcileConvergesOnSecondPass(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	engine := newTestEngine(gw, primary, secondary, testScrapeConfig())

	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))
	firstUpdates := len(gw.updates)
	firstUploads := len(gw.uploads)
	require.Positive(t, firstUpdates)

	// The first pass left the item fully localized; a second pass over the
	// same state touches nothing.
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))
	assert.Equal(t, firstUpdates, len(gw.updates))
	assert.Equal(t, firstUploads, len(gw.uploads))
}

func TestUpdatePersonWriteFailureIsSoft(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	gw.updateErr = errors.New("server busy")

	engine := newTestEngine(gw, primary, secondary, testScrapeConfig())
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	snap := engine.Stats().Snapshot()
	assert.Equal(t, int64(0), snap.PeopleUpdated)
	assert.Positive(t, snap.Errors)

	// The original entry stays in place for the next pass.
	assert.Equal(t, "Tom Hanks", movie.People[0].Name)
}

func TestStopPreventsDispatch(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	engine := newTestEngine(gw, primary, secondary, testScrapeConfig())
	engine.Stop()

	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	details, _ := primary.calls()
	assert.Equal(t, 0, details)
	assert.Empty(t, gw.updates)
}

func TestPersonDetailCached(t *testing.T) {
	gw, primary, secondary, movie := movieFixture()
	// Two stubs for the same person id, both unsatisfied. One worker at a
	// time makes the second lookup a guaranteed cache hit.
	movie.People = append(movie.People, mediaserver.Person{ID: "p1", Name: "Tom Hanks", Type: "Actor"})
	gw.items["m1"] = movie

	cfg := testScrapeConfig()
	cfg.Concurrency = 1
	engine := newTestEngine(gw, primary, secondary, cfg)
	require.NoError(t, engine.ReconcileItem(context.Background(), gw, movie))

	details, _ := primary.calls()
	assert.Equal(t, 1, details)
}

func TestCreditCacheScopedByMediaType(t *testing.T) {
	// Movie and TV ids come from independent upstream namespaces, so one
	// numeric id can name both a series and an unrelated movie.
	primary := newMockPrimary()
	primary.credits = &tmdb.Credits{
		Cast: []tmdb.CreditPerson{{ID: 1, Name: "电影演员", OriginalName: "Movie Actor"}},
	}
	primary.tvCredits = &tmdb.Credits{
		Cast: []tmdb.CreditPerson{{ID: 2, Name: "剧集演员", OriginalName: "Series Actor"}},
	}

	engine := newTestEngine(nil, primary, &mockSecondary{}, testScrapeConfig())
	ctx := context.Background()

	series := engine.seriesCredits(ctx, "550")
	movie := engine.movieCredits(ctx, "550")

	require.Len(t, series.Cast, 1)
	assert.Equal(t, 2, series.Cast[0].ID)
	require.Len(t, movie.Cast, 1)
	assert.Equal(t, 1, movie.Cast[0].ID)

	// Both lookups hit the catalog once; neither served the other's entry.
	_, credits := primary.calls()
	assert.Equal(t, 2, credits)
}
