package avito

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"camera-tracker/models"
)

// BaseURL is the marketplace origin all relative listing links resolve against.
const BaseURL = "https://www.avito.ru"

// maxAncestorDepth bounds the upward walk from a listing anchor to the
// card element carrying the structured price attribute.
const maxAncestorDepth = 10

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// totalCountRe matches the "N объявлений" phrase in page text when
	// the structured count marker is missing. Digit groups may be
	// separated by regular or non-breaking spaces.
	totalCountRe = regexp.MustCompile(`(\d[\d\s\x{00A0}]*)\s+объявлен`)
	nonDigitRe   = regexp.MustCompile(`[^\d]`)
)

// cameraWords mark a title as a genuine camera listing.
var cameraWords = []string{
	"фотоаппарат", "камера", "body", "тушка", "kit", "кит", "зеркал", "беззеркал",
}

// accessoryOnlyWords mark a title as an accessory when no camera word matched.
var accessoryOnlyWords = []string{
	"объектив", "lens", "стекло", "линза",
	"чехол", "сумка", "ремень", "батарейный блок",
	"крышка", "бленда", "фильтр", "кабель",
	"адаптер", "переходник",
	"зарядка", "аккумулятор", "батарея",
	"штатив", "монопод", "вспышка",
	"карта памяти", "sd", "cf", "детали",
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// LooksLikeCameraListing classifies a listing title. Titles with a
// camera word are accepted, titles with only accessory words are
// rejected, and titles with no signal either way are accepted: the
// heuristic is biased toward inclusion.
func LooksLikeCameraListing(title string) bool {
	t := strings.ToLower(title)

	for _, w := range cameraWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	for _, w := range accessoryOnlyWords {
		if strings.Contains(t, w) {
			return false
		}
	}
	return true
}

// extractTitle tries the structured name attribute, then an image alt
// attribute, then the anchor's own visible text. First non-empty wins.
func extractTitle(card, anchor *goquery.Selection) string {
	if content, ok := card.Find(`meta[itemprop="name"]`).First().Attr("content"); ok {
		if t := cleanText(content); t != "" {
			return t
		}
	}
	if alt, ok := card.Find("img[alt]").First().Attr("alt"); ok {
		if t := cleanText(alt); t != "" {
			return t
		}
	}
	return cleanText(anchor.Text())
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ParseSearchHTML extracts listing items from one search results page.
// Candidates without a price marker, title, camera classification or
// derivable external id are dropped silently: their absence means "not
// a real listing card", not a failure. Items are deduplicated by
// external id (first seen wins) and capped at limit; limit <= 0 means
// no cap.
func ParseSearchHTML(html, regionFallback string, limit int) ([]models.ScrapedItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(BaseURL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var items []models.ScrapedItem

	doc.Find(`a[itemprop="url"][href]`).EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		card := anchor
		for depth := 0; depth < maxAncestorDepth; depth++ {
			parent := card.Parent()
			if parent.Length() == 0 {
				break
			}
			card = parent
			if card.Find(`meta[itemprop="price"][content]`).Length() > 0 {
				break
			}
		}

		priceAttr, ok := card.Find(`meta[itemprop="price"][content]`).First().Attr("content")
		if !ok {
			return true
		}
		price, err := strconv.Atoi(strings.TrimSpace(priceAttr))
		if err != nil {
			return true
		}

		href, _ := anchor.Attr("href")
		absURL := resolveURL(base, href)

		title := extractTitle(card, anchor)
		if title == "" {
			return true
		}
		if !LooksLikeCameraListing(title) {
			return true
		}

		externalID, ok := models.ExtractExternalID(absURL)
		if !ok {
			return true
		}
		if _, dup := seen[externalID]; dup {
			return true
		}
		seen[externalID] = struct{}{}

		items = append(items, models.ScrapedItem{
			ExternalID: externalID,
			URL:        absURL,
			Price:      price,
			Title:      title,
			Region:     regionFallback,
		})

		return limit <= 0 || len(items) < limit
	})

	return items, nil
}

// ExtractTotalCount reads the reported total result count from a search
// page. It prefers the structured count marker and falls back to the
// "N объявлений" phrase in the page text. The second return value is
// false when neither source yields a number; the caller then degrades
// to a fixed page bound instead of failing.
func ExtractTotalCount(html string) (int, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, false
	}

	if node := doc.Find(`[data-marker="page-title/count"]`).First(); node.Length() > 0 {
		txt := cleanText(node.Text())
		if n, err := strconv.Atoi(txt); err == nil {
			return n, true
		}
	}

	text := strings.ToLower(cleanText(doc.Text()))
	m := totalCountRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	digits := nonDigitRe.ReplaceAllString(m[1], "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
