package tmdb

// PersonDetails is the TMDB person endpoint response with the external_ids
// append merged in.
type PersonDetails struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	AlsoKnownAs []string    `json:"also_known_as"`
	Biography   string      `json:"biography"`
	ProfilePath string      `json:"profile_path"`
	ExternalIDs ExternalIDs `json:"external_ids"`
}

// ExternalIDs is the cross-reference id block TMDB attaches to a person.
type ExternalIDs struct {
	ImdbID      string `json:"imdb_id"`
	FacebookID  string `json:"facebook_id"`
	InstagramID string `json:"instagram_id"`
	TwitterID   string `json:"twitter_id"`
}

// CreditPerson is one cast or crew entry in a credits response.
type CreditPerson struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Character    string `json:"character,omitempty"`
	Job          string `json:"job,omitempty"`
}

// Credits holds the cast and crew lists for one media scope (movie, series,
// season or episode).
type Credits struct {
	Cast []CreditPerson `json:"cast"`
	Crew []CreditPerson `json:"crew"`
}

// IsEmpty reports whether the credit set carries no entries at all.
func (c *Credits) IsEmpty() bool {
	return c == nil || (len(c.Cast) == 0 && len(c.Crew) == 0)
}

// All returns cast followed by crew as a single list.
func (c *Credits) All() []CreditPerson {
	if c == nil {
		return nil
	}
	out := make([]CreditPerson, 0, len(c.Cast)+len(c.Crew))
	out = append(out, c.Cast...)
	out = append(out, c.Crew...)
	return out
}

// ErrorResponse is the TMDB API error envelope.
type ErrorResponse struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}
