package sites

import (
	"context"
	"errors"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
)

// ErrPayloadMissing marks an exhibitor page whose embedded settings payload
// is absent or undecodable. The whole page is unavailable; records from
// prior pages are unaffected.
var ErrPayloadMissing = errors.New("embedded exhibitor payload missing")

// ExhibitorPage is the result of parsing one exhibitor-listing page.
type ExhibitorPage struct {
	Companies []domain.Company
	// DeclaredTotal is the exhibitor count the page reports for the whole
	// event, used to derive the expected page count.
	DeclaredTotal int
}

// Parser extracts structured records from one source site. Implementations
// hold no mutable state across calls; each call is self-contained given
// its input URL.
type Parser interface {
	Type() string
	// ListEvents fetches and parses the site's event calendar. A single
	// malformed entry is skipped and logged, not fatal.
	ListEvents(ctx context.Context, site Site) ([]domain.Event, error)
	// ListExhibitors fetches and parses one exhibitor-listing page.
	ListExhibitors(ctx context.Context, site Site, pageURL string) (ExhibitorPage, error)
}

// ParserRegistry resolves the parser implementation for a given site config.
type ParserRegistry interface {
	ParserFor(site Site) (Parser, error)
}
