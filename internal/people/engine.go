// Package people implements the person-metadata reconciliation engine: for
// every cast/crew entry on a media item it merges the primary-catalog and
// secondary-catalog views of that person and writes the result back to the
// media server, preserving list order and pacing writes.
package people

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/castsync/castsync/internal/config"
	"github.com/castsync/castsync/internal/mediaserver"
	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
	"github.com/castsync/castsync/internal/zhtext"
)

// ErrUnresolvable means no external identifier could be resolved for a
// person, so neither catalog can be consulted. Soft: the person keeps (or
// loses, per policy) their original entry.
var ErrUnresolvable = errors.New("person has no resolvable external id")

// Stats are the running counters for one scan pass.
type Stats struct {
	Items          atomic.Int64
	PeopleUpdated  atomic.Int64
	ImagesUploaded atomic.Int64
	Errors         atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Items          int64 `json:"items"`
	PeopleUpdated  int64 `json:"peopleUpdated"`
	ImagesUploaded int64 `json:"imagesUploaded"`
	Errors         int64 `json:"errors"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Items:          s.Items.Load(),
		PeopleUpdated:  s.PeopleUpdated.Load(),
		ImagesUploaded: s.ImagesUploaded.Load(),
		Errors:         s.Errors.Load(),
	}
}

// Reset zeroes the counters at the start of a pass.
func (s *Stats) Reset() {
	s.Items.Store(0)
	s.PeopleUpdated.Store(0)
	s.ImagesUploaded.Store(0)
	s.Errors.Store(0)
}

// Engine reconciles person metadata for media items. One engine serves the
// whole process; per-scan state (the response cache, the stats) is reset by
// the scan service between passes.
type Engine struct {
	primary   PrimaryCatalog
	secondary SecondaryCatalog
	images    ImageDownloader
	cache     *Cache
	cfg       config.ScrapeConfig

	// doubanPace is the deliberate delay before each secondary-catalog
	// lookup; the upstream service rate-limits by policy.
	doubanPace time.Duration

	// writeMu serializes all media-server writes. Different person ids
	// could be written concurrently, but the destination tolerates only
	// moderate write rates, so one paced writer keeps it simple.
	writeMu sync.Mutex

	stopped atomic.Bool
	stats   Stats
	logger  zerolog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(primary PrimaryCatalog, secondary SecondaryCatalog, images ImageDownloader,
	cache *Cache, cfg config.ScrapeConfig, doubanPace time.Duration, logger zerolog.Logger) *Engine {
	return &Engine{
		primary:    primary,
		secondary:  secondary,
		images:     images,
		cache:      cache,
		cfg:        cfg,
		doubanPace: doubanPace,
		logger:     logger.With().Str("component", "people").Logger(),
	}
}

// Stop sets the process-wide cancellation flag. In-flight person updates
// finish; no new work is dispatched.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

// Stopped reports whether cancellation has been requested.
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// Stats exposes the pass counters.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// Cache exposes the response cache so the scan service can clear it at
// scan and item-count boundaries.
func (e *Engine) Cache() *Cache {
	return e.cache
}

// sharedContext is the item-scoped data fetched once and shared by every
// person update of that item: the primary credit list and the secondary
// candidate list.
type sharedContext struct {
	credits *tmdb.Credits
	celebs  []douban.Celebrity
}

// updatePerson reconciles one person. It returns the stub copy to place
// back into the item's people list, or an error when the person could not
// be resolved this pass. All failures here are soft: the caller logs and
// keeps or drops the original entry per policy.
func (e *Engine) updatePerson(ctx context.Context, gw mediaserver.Gateway,
	person mediaserver.Person, shared *sharedContext) (result *mediaserver.Person, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("person update panicked: %v", r)
		}
	}()

	record, err := gw.GetItem(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch person record: %w", err)
	}

	lockedName := record.HasLockedField("Name")
	lockedOverview := record.HasLockedField("Overview")

	changed := false

	// Resolve the primary-catalog id: the canonical record's link first,
	// then the stub's, then a name match against the shared credit list,
	// which promotes the matched id to canonical.
	tmdbID := record.ProviderID(tmdbProvider)
	if tmdbID == "" {
		tmdbID = person.ProviderID(tmdbProvider)
	}
	credit := MatchCredit(&person, tmdbID, shared.credits)
	if tmdbID == "" && credit != nil {
		tmdbID = strconv.Itoa(credit.ID)
		if record.ProviderIDs == nil {
			record.ProviderIDs = make(map[string]string)
		}
		record.ProviderIDs[tmdbProvider] = tmdbID
		changed = true
	}
	if tmdbID == "" {
		return nil, ErrUnresolvable
	}

	detail, err := e.personDetail(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("%w: primary detail lookup failed: %v", ErrUnresolvable, err)
	}

	// The resolved primary name bridges secondary-catalog matching when
	// the stub's display name is stale or in another script.
	var resolvedName string
	if zhtext.ContainsHan(detail.Name) {
		resolvedName = zhtext.ToSimplified(detail.Name)
	}
	match := MatchCelebrity(&person, resolvedName, shared.celebs)

	decision := Merge(detail, e.primary.ImageURL(detail.ProfilePath), match)

	if decision.Name != "" && decision.Name != record.Name && !(e.cfg.LockFields && lockedName) {
		record.Name = decision.Name
		changed = true
	}
	if decision.Overview != "" && !(e.cfg.LockFields && lockedOverview) {
		if record.Overview == nil || *record.Overview != decision.Overview {
			overview := decision.Overview
			record.Overview = &overview
			changed = true
		}
	}
	for k, v := range decision.ProviderIDs {
		if record.ProviderID(k) != v {
			if record.ProviderIDs == nil {
				record.ProviderIDs = make(map[string]string)
			}
			record.ProviderIDs[k] = v
			changed = true
		}
	}

	ret := person.Clone()

	// One-way image fill: an existing primary image is never replaced
	// unless overwrite is explicitly enabled.
	if decision.ImageURL != "" && (e.cfg.OverwriteImages || !person.HasImage()) {
		if uploadErr := e.uploadImage(ctx, gw, person.ID, decision.ImageURL); uploadErr != nil {
			e.logger.Warn().
				Err(uploadErr).
				Str("person", person.Name).
				Str("source", decision.ImageSource).
				Msg("Image upload failed")
		} else {
			tag := "new"
			ret.PrimaryImageTag = &tag
			e.stats.ImagesUploaded.Add(1)
			e.logger.Info().
				Str("person", decision.Name).
				Str("source", decision.ImageSource).
				Msg("Filled missing image")
		}
	}

	if e.cfg.LockFields && changed {
		if record.Name != "" {
			record.LockField("Name")
		}
		if record.HasOverview() {
			record.LockField("Overview")
		}
	}

	if changed {
		if err := e.writeItem(ctx, gw, record); err != nil {
			// The in-memory change is discarded for this pass; the next
			// pass recomputes it from scratch.
			return nil, fmt.Errorf("person write-back failed: %w", err)
		}
		e.stats.PeopleUpdated.Add(1)
		ret.Name = record.Name
	}

	if decision.Role != "" {
		ret.Role = decision.Role
	}
	if decision.Overview != "" {
		overview := decision.Overview
		ret.Overview = &overview
	}
	if !changed && decision.Name != "" {
		ret.Name = decision.Name
	}

	return &ret, nil
}

// personDetail is the cache-aware primary-catalog person lookup. Failed
// lookups are not cached, so the next person (or the next pass) retries.
func (e *Engine) personDetail(ctx context.Context, tmdbID string) (*tmdb.PersonDetails, error) {
	key := PersonKey(tmdbID)
	if detail, ok := e.cache.GetPersonDetails(key); ok {
		return detail, nil
	}

	detail, err := e.primary.GetPersonDetail(ctx, tmdbID)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, detail)
	return detail, nil
}

// uploadImage downloads the portrait and pushes it through the write gate.
func (e *Engine) uploadImage(ctx context.Context, gw mediaserver.Gateway, itemID, imageURL string) error {
	data, err := e.images.DownloadBase64(ctx, imageURL)
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.writePause(ctx)
	return gw.UploadImage(ctx, itemID, data)
}

// writeItem pushes an item update through the write gate.
func (e *Engine) writeItem(ctx context.Context, gw mediaserver.Gateway, item *mediaserver.Item) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.writePause(ctx)
	return gw.UpdateItem(ctx, item)
}

// writePause applies the courtesy delay before each media-server write.
func (e *Engine) writePause(ctx context.Context) {
	pace := e.cfg.WritePace()
	if pace <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(pace):
	}
}
