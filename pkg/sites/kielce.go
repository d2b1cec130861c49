package sites

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
	"github.com/fairscope-hq/expo-harvester/internal/logger"
	"github.com/fairscope-hq/expo-harvester/pkg/fetchclient"
)

// SiteTypeKielce identifies the Targi Kielce exhibition-centre site family.
const SiteTypeKielce = "kielce_expo"

// settingsAttr is the attribute carrying the client-side initialization
// payload on exhibitor pages. The list itself is rendered by JavaScript;
// the server only ships this JSON blob.
const settingsAttr = "data-exhibitor-settings"

// kielceParser parses the targikielce.pl event calendar and the
// script-embedded exhibitor listings of individual events.
type kielceParser struct {
	fetcher *fetchclient.Fetcher
}

// NewKielceParser builds a parser for Targi Kielce style sites.
func NewKielceParser(fetcher *fetchclient.Fetcher) Parser {
	if fetcher == nil {
		fetcher = fetchclient.NewFetcher(nil, fetchclient.Options{})
	}
	return &kielceParser{fetcher: fetcher}
}

func (p *kielceParser) Type() string {
	return SiteTypeKielce
}

// ListEvents fetches the calendar page and extracts event descriptors.
func (p *kielceParser) ListEvents(ctx context.Context, site Site) ([]domain.Event, error) {
	if !strings.EqualFold(site.Type, SiteTypeKielce) {
		return nil, fmt.Errorf("kielce parser received incompatible site type %q", site.Type)
	}
	if strings.TrimSpace(site.CalendarURL) == "" {
		return nil, fmt.Errorf("site %q calendar_url is empty", site.ID)
	}

	body, err := p.fetcher.Fetch(ctx, site.CalendarURL, Headers(site))
	if err != nil {
		return nil, fmt.Errorf("fetch %s calendar: %w", site.ID, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s calendar html: %w", site.ID, err)
	}

	base, err := url.Parse(site.CalendarURL)
	if err != nil {
		return nil, fmt.Errorf("parse calendar url: %w", err)
	}

	var events []domain.Event
	seen := make(map[string]bool)
	doc.Find("div.event-tile").Each(func(i int, sel *goquery.Selection) {
		ev, err := parseEventTile(sel, base, site.ID)
		if err != nil {
			logger.WarnObj("skipping malformed calendar entry", "calendar_entry_error", map[string]any{
				"site_id": site.ID,
				"index":   i,
				"error":   err.Error(),
			})
			return
		}
		if seen[ev.CanonicalURL] {
			return
		}
		seen[ev.CanonicalURL] = true
		events = append(events, ev)
	})

	if len(events) == 0 {
		return nil, fmt.Errorf("%s calendar returned no events: %s", site.ID, responseSnippet(body))
	}
	return events, nil
}

func parseEventTile(sel *goquery.Selection, base *url.URL, siteID string) (domain.Event, error) {
	name := cleanText(sel.Find(".event-tile__title").First().Text())
	if name == "" {
		return domain.Event{}, fmt.Errorf("event name missing")
	}
	name = domain.TruncateName(name, domain.MaxEventNameLen)

	href, ok := sel.Find("a.event-tile__link").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return domain.Event{}, fmt.Errorf("event link missing")
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return domain.Event{}, fmt.Errorf("parse event link: %w", err)
	}
	canonical := base.ResolveReference(ref).String()

	date, err := parseEventDate(sel.Find(".event-tile__date").First().Text())
	if err != nil {
		return domain.Event{}, err
	}

	return domain.Event{
		Name:           name,
		Date:           date,
		CanonicalURL:   canonical,
		ListingURL:     strings.TrimRight(canonical, "/") + "/wystawcy",
		SiteID:         siteID,
		ExhibitorCount: parseExhibitorCount(sel.Find(".event-tile__exhibitors").First().Text()),
	}, nil
}

var eventDateLayouts = []string{"02.01.2006", "2006-01-02", "2 January 2006"}

// parseEventDate accepts single dates and ranges ("12.03.2026 - 15.03.2026"),
// keeping the range start. The full string is tried first so ISO dates are
// not mistaken for ranges by their hyphens.
func parseEventDate(raw string) (time.Time, error) {
	raw = cleanText(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("event date missing")
	}
	if t, ok := tryEventDateLayouts(raw); ok {
		return t, nil
	}
	for _, sep := range []string{" - ", " – "} {
		if i := strings.Index(raw, sep); i > 0 {
			if t, ok := tryEventDateLayouts(raw[:i]); ok {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized event date %q", raw)
}

func tryEventDateLayouts(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseExhibitorCount reads the leading integer of a "57 wystawców" label.
// Returns -1 when the calendar does not declare a count.
func parseExhibitorCount(raw string) int {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return -1
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// exhibitorSettings mirrors the JSON payload embedded on exhibitor pages.
type exhibitorSettings struct {
	Pager struct {
		TotalRows int `json:"totalRows"`
		PageSize  int `json:"pageSize"`
		PageIndex int `json:"pageIndex"`
	} `json:"pager"`
	Rows []exhibitorRow `json:"rows"`
}

type exhibitorRow struct {
	Title       string `json:"title"`
	Country     string `json:"country"`
	Description string `json:"description"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Website     string `json:"www"`
	URL         string `json:"url"`
	// Contact is an unstructured blob some events carry instead of the
	// dedicated phone/email fields.
	Contact string `json:"contact"`
}

// ListExhibitors fetches one exhibitor-listing page and decodes the
// embedded settings payload.
func (p *kielceParser) ListExhibitors(ctx context.Context, site Site, pageURL string) (ExhibitorPage, error) {
	body, err := p.fetcher.Fetch(ctx, pageURL, Headers(site))
	if err != nil {
		return ExhibitorPage{}, err
	}

	settings, err := decodeExhibitorSettings(body)
	if err != nil {
		return ExhibitorPage{}, fmt.Errorf("%s: %w", pageURL, err)
	}

	eventURL := eventURLFromListing(pageURL)
	companies := make([]domain.Company, 0, len(settings.Rows))
	for i, row := range settings.Rows {
		company, err := companyFromRow(row, eventURL)
		if err != nil {
			logger.WarnObj("skipping malformed exhibitor entry", "exhibitor_entry_error", map[string]any{
				"site_id": site.ID,
				"url":     pageURL,
				"index":   i,
				"error":   err.Error(),
			})
			continue
		}
		companies = append(companies, company)
	}

	return ExhibitorPage{
		Companies:     companies,
		DeclaredTotal: settings.Pager.TotalRows,
	}, nil
}

// decodeExhibitorSettings locates the settings attribute in the page HTML
// and deserializes it. Absence of the payload is a classified page failure.
func decodeExhibitorSettings(body []byte) (exhibitorSettings, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return exhibitorSettings{}, fmt.Errorf("parse exhibitor html: %w", err)
	}

	raw, ok := doc.Find("[" + settingsAttr + "]").First().Attr(settingsAttr)
	if !ok || strings.TrimSpace(raw) == "" {
		return exhibitorSettings{}, ErrPayloadMissing
	}

	var settings exhibitorSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return exhibitorSettings{}, fmt.Errorf("%w: decode settings: %v", ErrPayloadMissing, err)
	}
	if settings.Pager.TotalRows < 0 {
		return exhibitorSettings{}, fmt.Errorf("%w: negative totalRows", ErrPayloadMissing)
	}
	return settings, nil
}

func companyFromRow(row exhibitorRow, eventURL string) (domain.Company, error) {
	name := cleanText(row.Title)
	if name == "" {
		return domain.Company{}, fmt.Errorf("exhibitor name missing")
	}

	email := firstNonEmpty(row.Email, extractEmail(row.Contact))
	phone := firstNonEmpty(row.Phone, extractPhone(row.Contact))

	return domain.Company{
		Name:        domain.TruncateName(name, domain.MaxCompanyNameLen),
		EventURL:    eventURL,
		Country:     cleanText(row.Country),
		Description: cleanText(row.Description),
		Address:     cleanText(row.Address),
		Phone:       phone,
		Email:       email,
		Website:     strings.TrimSpace(row.Website),
		ProfileURL:  strings.TrimSpace(row.URL),
	}, nil
}

// eventURLFromListing strips pagination query params and the exhibitor
// path segment, recovering the owning event's canonical URL.
func eventURLFromListing(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	s := parsed.String()
	s = strings.TrimSuffix(strings.TrimRight(s, "/"), "/wystawcy")
	return strings.TrimRight(s, "/")
}
