package mediaserver

import (
	"encoding/json"
	"strings"
)

// Person is one cast/crew entry in an item's People list. The media server
// stores these per item; the canonical person entity behind it is a regular
// item of type "Person" fetched through GetItem.
type Person struct {
	ID              string            `json:"Id"`
	Name            string            `json:"Name"`
	Role            string            `json:"Role,omitempty"`
	Type            string            `json:"Type,omitempty"`
	Overview        *string           `json:"Overview,omitempty"`
	PrimaryImageTag *string           `json:"PrimaryImageTag,omitempty"`
	ProviderIDs     map[string]string `json:"ProviderIds,omitempty"`
}

// HasImage reports whether the server has a primary image for this person.
// Some servers send the tag as an empty string rather than omitting it.
func (p *Person) HasImage() bool {
	return p.PrimaryImageTag != nil && *p.PrimaryImageTag != ""
}

// HasOverview reports whether the entry carries a non-empty biography.
// Absent and empty are distinct on the wire; both count as "no overview".
func (p *Person) HasOverview() bool {
	return p.Overview != nil && *p.Overview != ""
}

// ProviderID returns the external id for the given provider, trying the
// exact key first and then a lowercase variant (Emby and Jellyfin disagree
// on casing).
func (p *Person) ProviderID(provider string) string {
	if p.ProviderIDs == nil {
		return ""
	}
	if v, ok := p.ProviderIDs[provider]; ok {
		return v
	}
	for k, v := range p.ProviderIDs {
		if strings.EqualFold(k, provider) {
			return v
		}
	}
	return ""
}

// Clone returns a deep copy of the person.
func (p *Person) Clone() Person {
	c := *p
	if p.Overview != nil {
		overview := *p.Overview
		c.Overview = &overview
	}
	if p.PrimaryImageTag != nil {
		tag := *p.PrimaryImageTag
		c.PrimaryImageTag = &tag
	}
	if p.ProviderIDs != nil {
		c.ProviderIDs = make(map[string]string, len(p.ProviderIDs))
		for k, v := range p.ProviderIDs {
			c.ProviderIDs[k] = v
		}
	}
	return c
}

// Library is a media library root on the server.
type Library struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Item is a media-server item: a movie, series, season, episode or person
// entity. Writes post the full item back, so fields this client does not
// model are kept verbatim in extra and merged back on marshal.
type Item struct {
	ID             string            `json:"-"`
	Name           string            `json:"-"`
	Type           string            `json:"-"`
	IndexNumber    *int              `json:"-"`
	ProductionYear int               `json:"-"`
	Overview       *string           `json:"-"`
	People         []Person          `json:"-"`
	ProviderIDs    map[string]string `json:"-"`
	LockedFields   []string          `json:"-"`

	extra map[string]json.RawMessage
}

// HasOverview reports whether the item carries a non-empty overview.
// Absent and empty are distinct on the wire; both count as "no overview".
func (it *Item) HasOverview() bool {
	return it.Overview != nil && *it.Overview != ""
}

// ProviderID returns the external id for the given provider, case-tolerant.
func (it *Item) ProviderID(provider string) string {
	if it.ProviderIDs == nil {
		return ""
	}
	if v, ok := it.ProviderIDs[provider]; ok {
		return v
	}
	for k, v := range it.ProviderIDs {
		if strings.EqualFold(k, provider) {
			return v
		}
	}
	return ""
}

// HasLockedField reports whether the named field is in the item's lock list.
func (it *Item) HasLockedField(field string) bool {
	for _, f := range it.LockedFields {
		if f == field {
			return true
		}
	}
	return false
}

// LockField adds the named field to the lock list if not already present.
func (it *Item) LockField(field string) {
	if !it.HasLockedField(field) {
		it.LockedFields = append(it.LockedFields, field)
	}
}

// UnmarshalJSON decodes the known fields and retains everything else so a
// later write-back does not strip server-side data.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	known := struct {
		ID             string            `json:"Id"`
		Name           string            `json:"Name"`
		Type           string            `json:"Type"`
		IndexNumber    *int              `json:"IndexNumber"`
		ProductionYear int               `json:"ProductionYear"`
		Overview       *string           `json:"Overview"`
		People         []Person          `json:"People"`
		ProviderIDs    map[string]string `json:"ProviderIds"`
		LockedFields   []string          `json:"LockedFields"`
	}{}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	it.ID = known.ID
	it.Name = known.Name
	it.Type = known.Type
	it.IndexNumber = known.IndexNumber
	it.ProductionYear = known.ProductionYear
	it.Overview = known.Overview
	it.People = known.People
	it.ProviderIDs = known.ProviderIDs
	it.LockedFields = known.LockedFields

	for _, k := range []string{"Id", "Name", "Type", "IndexNumber", "ProductionYear", "Overview", "People", "ProviderIds", "LockedFields"} {
		delete(raw, k)
	}
	it.extra = raw

	return nil
}

// MarshalJSON re-assembles the full wire shape, typed fields over extra.
func (it Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(it.extra)+8)
	for k, v := range it.extra {
		out[k] = v
	}

	set := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}

	if err := set("Id", it.ID); err != nil {
		return nil, err
	}
	if err := set("Name", it.Name); err != nil {
		return nil, err
	}
	if it.Type != "" {
		if err := set("Type", it.Type); err != nil {
			return nil, err
		}
	}
	if it.IndexNumber != nil {
		if err := set("IndexNumber", it.IndexNumber); err != nil {
			return nil, err
		}
	}
	if it.ProductionYear != 0 {
		if err := set("ProductionYear", it.ProductionYear); err != nil {
			return nil, err
		}
	}
	if it.Overview != nil {
		if err := set("Overview", it.Overview); err != nil {
			return nil, err
		}
	}
	if it.People != nil {
		if err := set("People", it.People); err != nil {
			return nil, err
		}
	}
	if it.ProviderIDs != nil {
		if err := set("ProviderIds", it.ProviderIDs); err != nil {
			return nil, err
		}
	}
	if it.LockedFields != nil {
		if err := set("LockedFields", it.LockedFields); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}

// ItemsPage is the paged list envelope returned by the Items endpoints.
type ItemsPage struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

