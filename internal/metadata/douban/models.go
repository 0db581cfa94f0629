package douban

import "encoding/json"

// Celebrity is one actor or director entry on a Douban subject.
type Celebrity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LatinName string `json:"latin_name"`
	Character string `json:"character"`
	Avatar    Avatar `json:"avatar"`

	// Douban spreads the biography over several aliased fields depending
	// on endpoint and era; first non-empty wins.
	Summary   string `json:"summary"`
	Intro     string `json:"intro"`
	Biography string `json:"biography"`
}

// Bio returns the first non-empty biography alias.
func (c *Celebrity) Bio() string {
	switch {
	case c.Summary != "":
		return c.Summary
	case c.Intro != "":
		return c.Intro
	default:
		return c.Biography
	}
}

// Avatar is a celebrity portrait URL. The API serves it either as a
// structured size map or as a bare URL string.
type Avatar struct {
	URL string
}

// UnmarshalJSON accepts both {"large": "..."} and "..." forms.
func (a *Avatar) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		a.URL = plain
		return nil
	}

	var sized struct {
		Large  string `json:"large"`
		Normal string `json:"normal"`
		Small  string `json:"small"`
	}
	if err := json.Unmarshal(data, &sized); err != nil {
		return err
	}
	switch {
	case sized.Large != "":
		a.URL = sized.Large
	case sized.Normal != "":
		a.URL = sized.Normal
	default:
		a.URL = sized.Small
	}
	return nil
}

// MarshalJSON writes the bare-URL form.
func (a Avatar) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.URL)
}

// subject is one entry in a Douban search response.
type subject struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Year    string `json:"year"`
	Type    string `json:"type"` // "movie" or "tv"
	IMDBIDs string `json:"imdb_id"`
}

type searchResponse struct {
	Subjects []subject `json:"subjects"`
}

type celebritiesResponse struct {
	Actors    []Celebrity `json:"actors"`
	Directors []Celebrity `json:"directors"`
}
