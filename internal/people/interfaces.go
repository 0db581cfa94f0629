package people

import (
	"context"

	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
)

// PrimaryCatalog is the authoritative structured catalog (TMDB shape):
// stable ids, multilingual person records, per-title credit lists.
type PrimaryCatalog interface {
	GetPersonDetail(ctx context.Context, personID string) (*tmdb.PersonDetails, error)
	GetMovieCredits(ctx context.Context, movieID string) *tmdb.Credits
	GetSeriesCredits(ctx context.Context, seriesID string) *tmdb.Credits
	GetSeasonCredits(ctx context.Context, seriesID string, season int) *tmdb.Credits
	GetEpisodeCredits(ctx context.Context, seriesID string, season, episode int) *tmdb.Credits
	ImageURL(path string) string
}

// SecondaryCatalog is the community catalog (Douban shape): matched by
// title and name heuristics, used for enrichment only.
type SecondaryCatalog interface {
	FetchCelebrities(ctx context.Context, q douban.MatchQuery) []douban.Celebrity
}

// ImageDownloader fetches portrait bytes for upload to the media server.
type ImageDownloader interface {
	DownloadBase64(ctx context.Context, imageURL string) ([]byte, error)
}
