package people

import (
	"regexp"
	"strings"

	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
	"github.com/castsync/castsync/internal/zhtext"
)

// rolePrefixRe strips actor/voice-credit boilerplate off Douban character
// strings ("饰 阿甘" -> "阿甘").
var rolePrefixRe = regexp.MustCompile(`饰\s*|演员\s*|配音\s*`)

// roleDenylist are placeholder characters that carry no information.
var roleDenylist = map[string]struct{}{
	"配音":      {},
	"配音演员":    {},
	"声优":      {},
	"演员":      {},
	"Voice":   {},
	"Actor":   {},
	"Guest":   {},
	"Self":    {},
	"Himself": {},
	"Herself": {},
}

// providerIDMapping maps the primary catalog's external-id block into the
// media server's provider-id namespace.
var providerIDMapping = []struct {
	from func(tmdb.ExternalIDs) string
	to   string
}{
	{func(e tmdb.ExternalIDs) string { return e.ImdbID }, "Imdb"},
	{func(e tmdb.ExternalIDs) string { return e.FacebookID }, "Facebook"},
	{func(e tmdb.ExternalIDs) string { return e.InstagramID }, "Instagram"},
	{func(e tmdb.ExternalIDs) string { return e.TwitterID }, "Twitter"},
}

// Decision is the merged set of final field values with their provenance.
// It is ephemeral: computed per person, applied, then discarded.
type Decision struct {
	Name       string
	NameSource string

	Overview       string
	OverviewSource string

	ImageURL    string
	ImageSource string

	Role string

	// ProviderIDs carries the target-namespace external ids supplied by
	// the primary catalog. Application never overwrites a present value
	// with an empty one.
	ProviderIDs map[string]string
}

// Merge computes the final field values from the matched candidate records.
// Each field follows its own precedence chain; partial results from the two
// sources are never mixed within a field. detailImageURL is the primary
// catalog's full profile URL (empty when the detail fetch yielded none).
func Merge(detail *tmdb.PersonDetails, detailImageURL string, match *douban.Celebrity) Decision {
	var d Decision

	var tmdbName, tmdbBio string
	if detail != nil {
		tmdbName = detail.Name
		tmdbBio = detail.Biography
	}
	var doubanName string
	if match != nil {
		doubanName = match.Name
	}

	// Name: primary if target-script, secondary if target-script, primary
	// regardless of script.
	switch {
	case zhtext.ContainsHan(tmdbName):
		d.Name = tmdbName
		d.NameSource = "tmdb"
	case zhtext.ContainsHan(doubanName):
		d.Name = doubanName
		d.NameSource = "douban"
	case tmdbName != "":
		d.Name = tmdbName
		d.NameSource = "tmdb"
	}
	d.Name = zhtext.ToSimplified(d.Name)

	// Biography: primary wins whenever non-empty; the secondary summary is
	// a fallback only.
	if tmdbBio != "" {
		d.Overview = tmdbBio
		d.OverviewSource = "tmdb"
	} else if match != nil {
		if bio := match.Bio(); bio != "" {
			d.Overview = bio
			d.OverviewSource = "douban"
		}
	}
	d.Overview = zhtext.ToSimplified(d.Overview)

	// Image: secondary portrait first, primary profile as fallback.
	if match != nil && match.Avatar.URL != "" {
		d.ImageURL = match.Avatar.URL
		d.ImageSource = "douban"
	} else if detailImageURL != "" {
		d.ImageURL = detailImageURL
		d.ImageSource = "tmdb"
	}

	// Role comes from the secondary catalog only.
	if match != nil {
		d.Role = cleanRole(match.Character)
	}

	if detail != nil {
		d.ProviderIDs = make(map[string]string)
		for _, m := range providerIDMapping {
			if v := m.from(detail.ExternalIDs); v != "" {
				d.ProviderIDs[m.to] = v
			}
		}
	}

	return d
}

// cleanRole strips credit boilerplate and drops placeholder values.
func cleanRole(raw string) string {
	if raw == "" {
		return ""
	}
	if _, banned := roleDenylist[raw]; banned {
		return ""
	}

	cleaned := strings.TrimSpace(rolePrefixRe.ReplaceAllString(raw, ""))
	if cleaned == "" {
		return ""
	}
	if _, banned := roleDenylist[cleaned]; banned {
		return ""
	}
	return zhtext.ToSimplified(cleaned)
}
