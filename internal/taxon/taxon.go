// Package taxon parses taxon names out of Wikimedia Commons category titles.
//
// Botanical illustration categories follow several inconsistent naming
// conventions that grew over the years, so extraction is an ordered list of
// pattern fallbacks rather than a single format.
package taxon

import (
	"regexp"
	"strings"
)

const categoryPrefix = "Category:"

// Ordered title patterns, each a fallback for the previous one. The capture
// class excludes the dash so the delimiter never leaks into the name.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^([^-]+) - botanical illustrations`),
	regexp.MustCompile(`^([^-]+) botanical illustrations`),
	regexp.MustCompile(`^([^-]+) \(illustrations\)`),
}

// StripCategory removes the Category: namespace prefix if present.
func StripCategory(title string) string {
	return strings.TrimPrefix(title, categoryPrefix)
}

// Extract parses an illustration category title into the taxon name it
// describes. The boolean reports whether any pattern matched.
func Extract(title string) (string, bool) {
	name := StripCategory(title)
	for _, pattern := range titlePatterns {
		if m := pattern.FindStringSubmatch(name); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// FromCategory derives a candidate taxon name from an arbitrary category a
// file belongs to, by cutting the title at its first dash. This is cruder
// than Extract on purpose: file pages carry categories of many shapes
// ("Iris sibirica - botanical illustrations", "Iris sibirica"), and names
// that turn out not to be taxa simply fail resolution downstream.
func FromCategory(title string) string {
	name := StripCategory(title)
	name, _, _ = strings.Cut(name, "-")
	return strings.TrimSpace(name)
}

// IsUnidentified reports whether the title names an "Unidentified ..."
// grouping category, which can never resolve to a single taxon.
func IsUnidentified(title string) bool {
	return strings.Contains(title, "Unidentified")
}
