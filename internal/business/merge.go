package business

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/drilonhametaj25/client-sniper/internal/normalize"
)

// NewEntity builds the first version of an entity from an observation.
func NewEntity(o Observation, now time.Time) Entity {
	e := Entity{
		ID:           uuid.New().String(),
		BusinessName: strings.TrimSpace(o.BusinessName),
		City:         strings.TrimSpace(o.City),
		WebsiteURL:   strings.TrimSpace(o.WebsiteURL),
		Phone:        strings.TrimSpace(o.Phone),
		Address:      strings.TrimSpace(o.Address),
		Sources:      union(nil, []string{strings.TrimSpace(o.SourceID)}),
		UniqueKey:    normalize.UniqueKey(o.BusinessName, o.City),
		Analysis:     MergeAnalysis(nil, o.Analysis),
		NeededRoles:  union(nil, o.NeededRoles),
		Issues:       union(nil, o.Issues),
		CreatedAt:    now,
		LastSeenAt:   now,
		UpdatedAt:    now,
	}
	if o.Score != nil {
		e.Score = clampScore(*o.Score)
	}
	e.ContentHash = ContentHash(e)
	return e
}

// Merge produces the next version of e after observing o. e is not modified.
// Identity fields (id, city, unique_key, created_at, version) are carried
// over unchanged; the caller persists the result against e.Version.
func Merge(e Entity, o Observation, now time.Time) Entity {
	next := e
	next.Sources = union(e.Sources, []string{strings.TrimSpace(o.SourceID)})
	next.NeededRoles = union(e.NeededRoles, o.NeededRoles)
	next.Issues = union(e.Issues, o.Issues)
	next.Analysis = MergeAnalysis(cloneAnalysis(e.Analysis), o.Analysis)

	if name := strings.TrimSpace(o.BusinessName); name != "" {
		next.BusinessName = name
	}
	next.WebsiteURL = pickWebsite(e.WebsiteURL, o.WebsiteURL)
	next.Phone = pickPhone(e.Phone, o.Phone)
	next.Address = pickAddress(e.Address, o.Address)

	if o.Score != nil {
		next.Score = max(e.Score, clampScore(*o.Score))
	}

	next.LastSeenAt = laterOf(e.LastSeenAt, now)
	next.LastSeenAt = laterOf(next.LastSeenAt, e.CreatedAt)
	next.UpdatedAt = now
	next.ContentHash = ContentHash(next)
	return next
}

// pickWebsite prefers a secure-scheme URL over an insecure one and otherwise
// keeps the existing value.
func pickWebsite(existing, observed string) string {
	existing, observed = strings.TrimSpace(existing), strings.TrimSpace(observed)
	switch {
	case observed == "":
		return existing
	case existing == "":
		return observed
	case isSecure(observed) && !isSecure(existing):
		return observed
	default:
		return existing
	}
}

func isSecure(u string) bool {
	return strings.HasPrefix(strings.ToLower(u), "https://")
}

// pickPhone prefers the number with more digits; ties keep the existing one.
func pickPhone(existing, observed string) string {
	observed = strings.TrimSpace(observed)
	if len(normalize.PhoneDigits(observed)) > len(normalize.PhoneDigits(existing)) {
		return observed
	}
	return existing
}

// pickAddress prefers the longer address; ties keep the existing one.
func pickAddress(existing, observed string) string {
	observed = strings.TrimSpace(observed)
	if utf8.RuneCountInString(observed) > utf8.RuneCountInString(strings.TrimSpace(existing)) {
		return observed
	}
	return existing
}

// union appends the members of add missing from base, preserving first-seen
// order. Empty strings are ignored. The result never aliases base.
func union(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
