package domain

import (
	"strings"
	"time"
)

// Domain contains core models shared across the harvester.

const (
	// Column widths in the downstream CRM store.
	MaxEventNameLen   = 50
	MaxCompanyNameLen = 250
)

// Event describes a single trade-show event discovered on a source site's
// calendar. It is identified by its canonical URL.
type Event struct {
	Name string
	Date time.Time
	// CanonicalURL is the event's detail page and the dedup key for events.
	CanonicalURL string
	// ListingURL is the exhibitor-listing page template for this event;
	// the pager appends pageIndex/pageSize query parameters to it.
	ListingURL string
	// SiteID identifies the source site the event was harvested from.
	SiteID string
	// ExhibitorCount is the exhibitor total declared on the calendar
	// listing, or -1 when the calendar does not expose one.
	ExhibitorCount int
}

// Company is one exhibitor record extracted from an event's listing pages.
// The owning event is referenced by its canonical URL, never by pointer.
type Company struct {
	Name        string
	EventURL    string
	Country     string
	Description string
	Address     string
	Phone       string
	Email       string
	Website     string
	// ProfileURL is the per-event company page on the source site.
	ProfileURL string
}

// Key returns the dedup key for a company within its event: the
// lower-cased, whitespace-collapsed name scoped to the event URL.
func (c Company) Key() string {
	return c.EventURL + "|" + NormalizeName(c.Name)
}

// NormalizeName collapses internal whitespace and lower-cases a company
// name so that cosmetic differences do not defeat dedup.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// TruncateName caps s at max runes. Source sites occasionally carry names
// longer than the store's column width.
func TruncateName(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
