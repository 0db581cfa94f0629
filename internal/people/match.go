package people

import (
	"strconv"

	"github.com/castsync/castsync/internal/mediaserver"
	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
	"github.com/castsync/castsync/internal/zhtext"
)

// tmdbProvider is the provider-ids key both server families use for TMDB.
const tmdbProvider = "Tmdb"

// MatchCredit finds the credit-list entry for a person. An id link on the
// person record wins; otherwise the display name is compared against the
// credit's translated and original names, which promotes a name-matched
// TMDB id to canonical for the rest of the pass.
func MatchCredit(person *mediaserver.Person, knownID string, credits *tmdb.Credits) *tmdb.CreditPerson {
	if credits.IsEmpty() {
		return nil
	}

	all := credits.All()
	if knownID != "" {
		for i := range all {
			if strconv.Itoa(all[i].ID) == knownID {
				return &all[i]
			}
		}
	}

	for i := range all {
		c := &all[i]
		if zhtext.EqualNames(c.Name, person.Name) || zhtext.EqualNames(c.OriginalName, person.Name) {
			return c
		}
	}

	return nil
}

// MatchCelebrity finds the secondary-catalog candidate for a person.
// Ordered, first hit wins:
//  1. latinized name equals the display name exactly,
//  2. native name equals the display name exactly,
//  3. latinized name equals the display name case-insensitively,
//  4. native name equals the already-resolved primary-catalog Chinese name
//     (bridges a stale or differently-scripted display name).
//
// No match is a soft outcome; the merge simply runs without secondary input.
func MatchCelebrity(person *mediaserver.Person, resolvedPrimaryName string, candidates []douban.Celebrity) *douban.Celebrity {
	for i := range candidates {
		c := &candidates[i]
		if c.LatinName != "" && c.LatinName == person.Name {
			return c
		}
		if c.Name != "" && c.Name == person.Name {
			return c
		}
	}

	for i := range candidates {
		c := &candidates[i]
		if zhtext.EqualNames(c.LatinName, person.Name) {
			return c
		}
	}

	if resolvedPrimaryName != "" {
		for i := range candidates {
			c := &candidates[i]
			if c.Name == resolvedPrimaryName {
				return c
			}
		}
	}

	return nil
}
