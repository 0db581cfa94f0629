package mediaserver

import (
	"context"
	"errors"
)

// Item types as both server families spell them on the wire.
const (
	ItemTypeMovie   = "Movie"
	ItemTypeSeries  = "Series"
	ItemTypeSeason  = "Season"
	ItemTypeEpisode = "Episode"
	ItemTypePerson  = "Person"
)

// LibraryItemTypes is the include filter for library-root listings.
const LibraryItemTypes = ItemTypeMovie + "," + ItemTypeSeries

// Server families.
const (
	ServerTypeEmby     = "emby"
	ServerTypeJellyfin = "jellyfin"
)

var (
	// ErrNotFound means the server has no item with the requested id.
	ErrNotFound = errors.New("media server item not found")
	// ErrUnauthorized means the API key was rejected.
	ErrUnauthorized = errors.New("media server rejected the API key")
	// ErrServerError covers any other non-success response.
	ErrServerError = errors.New("media server error")
)

// Gateway is the contract both supported server families satisfy. The
// reconciliation engine only speaks this interface; request shaping for the
// two wire protocols lives in the emby and jellyfin subpackages.
type Gateway interface {
	// Name returns the configured display name of this server.
	Name() string

	// ServerType returns "emby" or "jellyfin".
	ServerType() string

	// Ping verifies the server is reachable and the key is accepted.
	Ping(ctx context.Context) error

	// GetLibraries lists the user's library roots.
	GetLibraries(ctx context.Context) ([]Library, error)

	// GetItems returns items under a parent, optionally filtered by item
	// type ("Movie,Series", "Season", "Episode"...). Pagination is handled
	// internally; the full list is returned.
	GetItems(ctx context.Context, parentID, includeTypes string) ([]Item, error)

	// GetItem fetches a single item (or person entity) with provider ids
	// and overview populated.
	GetItem(ctx context.Context, itemID string) (*Item, error)

	// UpdateItem posts the full item back to the server.
	UpdateItem(ctx context.Context, item *Item) error

	// UploadImage replaces the primary image of an item with the given
	// base64-encoded payload.
	UploadImage(ctx context.Context, itemID string, imageBase64 []byte) error
}
