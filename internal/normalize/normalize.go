// Package normalize canonicalizes free-text business fields so that
// comparisons are stable across sources with different formatting conventions.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s+`)
	schemeRe     = regexp.MustCompile(`^[a-z][a-z0-9+.\-]*://`)
)

// streetTokens are generic street-type words removed from addresses.
var streetTokens = map[string]bool{
	"via": true, "viale": true, "piazza": true, "piazzale": true, "corso": true,
	"largo": true, "vicolo": true, "strada": true, "contrada": true,
	"localita": true, "borgo": true,
	"street": true, "st": true, "avenue": true, "ave": true, "road": true,
	"rd": true, "square": true, "sq": true, "boulevard": true, "blvd": true,
	"lane": true, "ln": true, "drive": true, "dr": true,
}

// legalForms are trailing legal-entity tokens stripped from names.
var legalForms = map[string]bool{
	"srl": true, "srls": true, "spa": true, "snc": true, "sas": true,
	"sapa": true, "scarl": true, "scrl": true, "sa": true, "sl": true,
	"llc": true, "inc": true, "ltd": true, "corp": true, "co": true,
	"gmbh": true, "plc": true,
}

// ExtractDomain returns the lower-cased host of a URL without the leading
// "www.". Input without a scheme is accepted. Unparsable input falls back to
// a textual strip; the function never fails.
func ExtractDomain(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	candidate := s
	if !schemeRe.MatchString(candidate) {
		candidate = "http://" + candidate
	}
	if u, err := url.Parse(candidate); err == nil && u.Hostname() != "" {
		return strings.TrimPrefix(u.Hostname(), "www.")
	}

	// Best-effort textual strip.
	s = schemeRe.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// PhoneDigits returns every digit of a phone number, in order.
func PhoneDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone keeps the last 9 digits of a phone number so that numbers
// with and without country prefixes compare equal.
func NormalizePhone(raw string) string {
	d := PhoneDigits(raw)
	if len(d) > 9 {
		d = d[len(d)-9:]
	}
	return d
}

// NormalizeAddress lower-cases an address, strips punctuation and drops
// generic street-type tokens. The result is meant for containment matching.
func NormalizeAddress(raw string) string {
	s := fold(raw)
	if s == "" {
		return ""
	}
	s = punctToSpace(s)

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if !streetTokens[f] {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// Name returns the comparison form of a business name: folded, punctuation
// stripped and without trailing legal-form tokens.
func Name(raw string) string {
	s := fold(raw)
	if s == "" {
		return ""
	}
	s = strings.NewReplacer(
		"&", " and ",
		".", "",
		",", " ",
		"'", "",
		"\"", "",
	).Replace(s)
	s = punctToSpace(s)

	fields := strings.Fields(s)
	for len(fields) > 1 && legalForms[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// City returns the case-insensitive comparison form of a locality.
func City(raw string) string {
	return collapse(strings.ToLower(raw))
}

// Key returns the identity form of a string: folded, without punctuation,
// single-spaced. Legal forms are kept.
func Key(raw string) string {
	s := fold(raw)
	s = strings.NewReplacer(".", "", "'", "").Replace(s)
	return collapse(punctToSpace(s))
}

// UniqueKey derives the deterministic identity key of a business.
func UniqueKey(name, city string) string {
	return Key(name) + "|" + Key(city)
}

// fold lower-cases s and removes diacritics.
func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func punctToSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
}
