package avito

import (
	"net/url"
	"strconv"
)

// fallbackPageCount bounds pagination when the page reports no total count.
const fallbackPageCount = 10

// PageCount computes how many result pages to fetch. perPage is the
// actual item count of the unpaginated first page, which approximates
// the marketplace's page size well enough; downstream deduplication
// absorbs any overlap. When the total is unknown (hasTotal false) a
// fixed bound is used instead of failing.
func PageCount(total int, hasTotal bool, perPage int) int {
	if !hasTotal {
		return fallbackPageCount
	}
	if perPage < 1 {
		perPage = 1
	}
	return (total + perPage - 1) / perPage
}

// SetPage rewrites the page query parameter of a search URL. Page 1 is
// addressed by removing the parameter entirely, the canonical form of
// the first page. Path and unrelated query parameters are preserved.
func SetPage(rawURL string, page int) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	if page <= 1 {
		q.Del("p")
	} else {
		q.Set("p", strconv.Itoa(page))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
