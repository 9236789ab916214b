package models

import "regexp"

// Avito embeds the numeric ad id somewhere in every listing URL, but
// the surrounding shape has changed between scraper versions (full URL,
// URL tail, bare id). The first run of six or more consecutive digits
// is the stable part.
var externalIDPattern = regexp.MustCompile(`\d{6,}`)

// ExtractExternalID reduces any identifier-bearing string to its
// canonical digit-run form. It returns false when the string contains
// no run of six or more consecutive decimal digits.
func ExtractExternalID(s string) (string, bool) {
	id := externalIDPattern.FindString(s)
	if id == "" {
		return "", false
	}
	return id, true
}
