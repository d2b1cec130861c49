package sites

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phoneRe = regexp.MustCompile(`(\+?\d{1,3}[\s-]?)?\(?\d{2,3}\)?[\s-]?\d{3}[\s-]?\d{2,3}([\s-]?\d{2})?`)
)

// cleanText trims and collapses internal whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

// extractEmail pulls the first email-looking token out of raw text.
// Fallback for entries without a dedicated contact field.
func extractEmail(raw string) string {
	return emailRe.FindString(raw)
}

// extractPhone pulls the first phone-looking token out of raw text.
func extractPhone(raw string) string {
	return strings.TrimSpace(phoneRe.FindString(raw))
}

// ListingPageURL appends pagination query parameters to an event's
// exhibitor-listing URL. Page indexes are 1-based; the sort field defaults
// to the exhibitor title.
func ListingPageURL(listingURL string, pageIndex, pageSize int) (string, error) {
	parsed, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}

	q := parsed.Query()
	q.Set("pageIndex", strconv.Itoa(pageIndex))
	q.Set("pageSize", strconv.Itoa(pageSize))
	if q.Get("sortField") == "" {
		q.Set("sortField", "title")
	}
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
