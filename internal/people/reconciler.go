package people

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/castsync/castsync/internal/mediaserver"
	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
	"github.com/castsync/castsync/internal/zhtext"
)

// NeedsWork reports whether an item's people list warrants processing at
// all. Coarse: one flag decides whether the item's expensive shared
// context is fetched; finer per-person skips happen at dispatch time.
func (e *Engine) NeedsWork(item *mediaserver.Item) bool {
	for i := range item.People {
		p := &item.People[i]
		if p.Name == "" {
			continue
		}

		switch e.cfg.Policy {
		case "name":
			if !zhtext.ContainsHan(p.Name) {
				return true
			}
		case "role":
			if p.Role != "" && !zhtext.ContainsHan(p.Role) {
				return true
			}
		default: // "all"
			if !p.HasImage() || !p.HasOverview() {
				return true
			}
			if !zhtext.ContainsHan(p.Name) {
				return true
			}
			if p.Role != "" && !zhtext.ContainsHan(p.Role) {
				return true
			}
		}
	}
	return false
}

// satisfied is the per-person fast skip: a person already carrying a
// target-script name, a target-script role, an overview and an image needs
// nothing. Under the narrower policies only the named field is checked.
func (e *Engine) satisfied(p *mediaserver.Person) bool {
	switch e.cfg.Policy {
	case "name":
		return zhtext.ContainsHan(p.Name)
	case "role":
		return p.Role == "" || zhtext.ContainsHan(p.Role)
	default:
		return zhtext.ContainsHan(p.Name) &&
			(p.Role == "" || zhtext.ContainsHan(p.Role)) &&
			p.HasImage() && p.HasOverview()
	}
}

// ReconcileItem processes one movie or series item, then recurses into
// seasons and episodes for series. Every failure below item level is soft.
func (e *Engine) ReconcileItem(ctx context.Context, gw mediaserver.Gateway, item *mediaserver.Item) error {
	if item.Type != mediaserver.ItemTypeMovie && item.Type != mediaserver.ItemTypeSeries {
		return nil
	}

	tmdbID := item.ProviderID(tmdbProvider)
	if tmdbID == "" {
		e.logger.Debug().Str("item", item.Name).Msg("Item has no TMDB id, skipping")
		return nil
	}

	e.stats.Items.Add(1)

	mediaType := douban.MediaTypeMovie
	if item.Type == mediaserver.ItemTypeSeries {
		mediaType = douban.MediaTypeTV
	}

	if e.NeedsWork(item) {
		shared := e.fetchShared(ctx, gw, item, tmdbID, mediaType, 0)
		e.updatePeople(ctx, gw, item, shared)
	}

	if item.Type == mediaserver.ItemTypeSeries {
		e.reconcileSeries(ctx, gw, item, tmdbID)
	}

	return nil
}

// reconcileSeries walks a series' seasons and episodes, giving each its own
// scoped shared context. Jellyfin attaches people to season items as well.
func (e *Engine) reconcileSeries(ctx context.Context, gw mediaserver.Gateway, series *mediaserver.Item, tmdbID string) {
	seasons, err := gw.GetItems(ctx, series.ID, mediaserver.ItemTypeSeason)
	if err != nil {
		e.logger.Warn().Err(err).Str("series", series.Name).Msg("Failed to list seasons")
		return
	}

	for i := range seasons {
		season := &seasons[i]
		if e.Stopped() {
			return
		}
		if season.IndexNumber == nil {
			continue
		}
		seasonNum := *season.IndexNumber

		seasonCredits := e.seasonCredits(ctx, tmdbID, seasonNum)
		seasonCelebs := e.celebrities(ctx, series, tmdbID, douban.MediaTypeTV, seasonNum)
		seasonShared := &sharedContext{credits: seasonCredits, celebs: seasonCelebs}

		if gw.ServerType() == mediaserver.ServerTypeJellyfin {
			if seasonInfo, err := gw.GetItem(ctx, season.ID); err == nil && e.NeedsWork(seasonInfo) {
				e.updatePeople(ctx, gw, seasonInfo, seasonShared)
			}
		}

		episodes, err := gw.GetItems(ctx, season.ID, mediaserver.ItemTypeEpisode)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("series", series.Name).
				Int("season", seasonNum).
				Msg("Failed to list episodes")
			continue
		}

		for j := range episodes {
			if e.Stopped() {
				return
			}

			episodeInfo, err := gw.GetItem(ctx, episodes[j].ID)
			if err != nil || !e.NeedsWork(episodeInfo) {
				continue
			}

			// Episode-level credits override the season set when the
			// episode lookup actually returns people.
			shared := seasonShared
			if episodeInfo.IndexNumber != nil {
				if epCredits := e.episodeCredits(ctx, tmdbID, seasonNum, *episodeInfo.IndexNumber); !epCredits.IsEmpty() {
					shared = &sharedContext{credits: epCredits, celebs: seasonCelebs}
				}
			}

			e.updatePeople(ctx, gw, episodeInfo, shared)
		}
	}
}

// updatePeople fans person updates out under the bounded worker pool and
// reassembles results into the original list order. The item is written
// back only when at least one retained slot differs from the original.
func (e *Engine) updatePeople(ctx context.Context, gw mediaserver.Gateway, item *mediaserver.Item, shared *sharedContext) {
	people := item.People
	if len(people) == 0 {
		return
	}

	results := make([]*mediaserver.Person, len(people))
	dispatched := make([]bool, len(people))

	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range people {
		if e.Stopped() {
			break
		}
		p := people[i]
		if p.Name == "" || e.satisfied(&p) {
			continue
		}

		dispatched[i] = true
		wg.Add(1)
		go func(i int, p mediaserver.Person) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			updated, err := e.updatePerson(ctx, gw, p, shared)
			if err != nil {
				e.stats.Errors.Add(1)
				e.logger.Debug().Err(err).Str("person", p.Name).Msg("Person not updated")
				return
			}
			results[i] = updated
		}(i, p)
	}

	wg.Wait()

	// Reassemble by original index: untouched and satisfied people keep
	// their slot; unresolved people keep theirs unless the drop policy is
	// on; resolved people take the updated stub.
	out := make([]mediaserver.Person, 0, len(people))
	changed := false
	for i := range people {
		switch {
		case !dispatched[i]:
			out = append(out, people[i])
		case results[i] != nil:
			out = append(out, *results[i])
			if !personEqual(&people[i], results[i]) {
				changed = true
			}
		case e.cfg.RemoveUnmatched:
			changed = true
		default:
			out = append(out, people[i])
		}
	}

	if !changed {
		return
	}

	item.People = out
	if err := e.writeItem(ctx, gw, item); err != nil {
		e.stats.Errors.Add(1)
		e.logger.Warn().Err(err).Str("item", item.Name).Msg("Failed to write people list")
		return
	}

	e.logger.Info().
		Str("item", item.Name).
		Int("people", len(out)).
		Msg("Updated people list")
}

// fetchShared fetches the item-scoped context shared by all of an item's
// person updates: the primary credit list and the secondary candidate
// list, both cache-aware.
func (e *Engine) fetchShared(ctx context.Context, gw mediaserver.Gateway, item *mediaserver.Item,
	tmdbID string, mediaType douban.MediaType, season int) *sharedContext {
	var credits *tmdb.Credits
	if mediaType == douban.MediaTypeMovie {
		credits = e.movieCredits(ctx, tmdbID)
	} else {
		credits = e.seriesCredits(ctx, tmdbID)
	}

	return &sharedContext{
		credits: credits,
		celebs:  e.celebrities(ctx, item, tmdbID, mediaType, season),
	}
}

func (e *Engine) movieCredits(ctx context.Context, tmdbID string) *tmdb.Credits {
	key := CreditsKey(string(douban.MediaTypeMovie), tmdbID, -1, -1)
	if credits, ok := e.cache.GetCredits(key); ok {
		return credits
	}
	credits := e.primary.GetMovieCredits(ctx, tmdbID)
	e.cache.Set(key, credits)
	return credits
}

func (e *Engine) seriesCredits(ctx context.Context, tmdbID string) *tmdb.Credits {
	key := CreditsKey(string(douban.MediaTypeTV), tmdbID, -1, -1)
	if credits, ok := e.cache.GetCredits(key); ok {
		return credits
	}
	credits := e.primary.GetSeriesCredits(ctx, tmdbID)
	e.cache.Set(key, credits)
	return credits
}

func (e *Engine) seasonCredits(ctx context.Context, tmdbID string, season int) *tmdb.Credits {
	key := CreditsKey(string(douban.MediaTypeTV), tmdbID, season, -1)
	if credits, ok := e.cache.GetCredits(key); ok {
		return credits
	}
	credits := e.primary.GetSeasonCredits(ctx, tmdbID, season)
	e.cache.Set(key, credits)
	return credits
}

func (e *Engine) episodeCredits(ctx context.Context, tmdbID string, season, episode int) *tmdb.Credits {
	key := CreditsKey(string(douban.MediaTypeTV), tmdbID, season, episode)
	if credits, ok := e.cache.GetCredits(key); ok {
		return credits
	}
	credits := e.primary.GetEpisodeCredits(ctx, tmdbID, season, episode)
	e.cache.Set(key, credits)
	return credits
}

// celebrities fetches the secondary-catalog candidate list for one media
// scope, applying the deliberate pacing delay before the network call.
func (e *Engine) celebrities(ctx context.Context, item *mediaserver.Item,
	tmdbID string, mediaType douban.MediaType, season int) []douban.Celebrity {
	key := CelebritiesKey(string(mediaType), tmdbID, season)
	if celebs, ok := e.cache.GetCelebrities(key); ok {
		return celebs
	}

	if e.doubanPace > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.doubanPace):
		}
	}

	year := ""
	if item.ProductionYear > 0 {
		year = strconv.Itoa(item.ProductionYear)
	}

	celebs := e.secondary.FetchCelebrities(ctx, douban.MatchQuery{
		Title:     item.Name,
		IMDBID:    item.ProviderID("Imdb"),
		MediaType: mediaType,
		Year:      year,
		Season:    season,
	})
	if celebs != nil {
		e.cache.Set(key, celebs)
	}
	return celebs
}

// personEqual compares the fields a person update can change.
func personEqual(a, b *mediaserver.Person) bool {
	if a.Name != b.Name || a.Role != b.Role {
		return false
	}
	if derefOr(a.Overview) != derefOr(b.Overview) {
		return false
	}
	return derefOr(a.PrimaryImageTag) == derefOr(b.PrimaryImageTag)
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
