package harvest

import (
	"context"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
	"github.com/fairscope-hq/expo-harvester/internal/logger"
	"github.com/fairscope-hq/expo-harvester/pkg/sites"
)

// Walker drives a parser across an event's numbered exhibitor pages.
// Page indexes are 1-based and only ever advance; the total declared on
// page 1 is authoritative for the whole walk.
type Walker struct {
	parsers  sites.ParserRegistry
	pageSize int
}

// NewWalker builds a page walker. pageSize is the fallback when a site
// config declares none.
func NewWalker(parsers sites.ParserRegistry, pageSize int) *Walker {
	if pageSize <= 0 {
		pageSize = 25
	}
	return &Walker{parsers: parsers, pageSize: pageSize}
}

// WalkResult carries whatever a page walk accumulated. When Err is set the
// walk ended early (Failed state); records from prior successful pages are
// preserved, never discarded.
type WalkResult struct {
	NewCompanies  []domain.Company
	DeclaredTotal int
	PagesFetched  int
	Err           error
}

// Walk fetches exhibitor pages for ev until the declared total is
// satisfied, the new-record budget (if positive) is met, or a page fails.
// known reports whether a normalized company name is already persisted for
// this event; such records are dropped instead of counted against budget.
func (w *Walker) Walk(ctx context.Context, site sites.Site, ev domain.Event, budget int, known func(string) bool) WalkResult {
	result := WalkResult{DeclaredTotal: -1}

	parser, err := w.parsers.ParserFor(site)
	if err != nil {
		result.Err = err
		return result
	}

	pageSize := site.PageSize
	if pageSize <= 0 {
		pageSize = w.pageSize
	}

	seen := make(map[string]bool)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		pageURL, err := sites.ListingPageURL(ev.ListingURL, page, pageSize)
		if err != nil {
			result.Err = err
			return result
		}

		parsed, err := parser.ListExhibitors(ctx, site, pageURL)
		if err != nil {
			result.Err = err
			return result
		}
		result.PagesFetched = page

		if page == 1 {
			result.DeclaredTotal = parsed.DeclaredTotal
		} else if parsed.DeclaredTotal != result.DeclaredTotal {
			// Pages already committed are never re-fetched; keep the
			// original figure and proceed.
			logger.WarnObj("declared total changed mid-walk", "pager_total_drift", map[string]any{
				"event_url": ev.CanonicalURL,
				"page":      page,
				"original":  result.DeclaredTotal,
				"reported":  parsed.DeclaredTotal,
			})
		}

		for _, company := range parsed.Companies {
			key := domain.NormalizeName(company.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			if known != nil && known(key) {
				continue
			}
			result.NewCompanies = append(result.NewCompanies, company)
		}

		if budget > 0 && len(result.NewCompanies) >= budget {
			return result
		}
		if page >= expectedPages(result.DeclaredTotal, pageSize) {
			return result
		}
	}
}

// expectedPages is ceil(total/pageSize), with at least the one page already
// fetched.
func expectedPages(total, pageSize int) int {
	if total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
