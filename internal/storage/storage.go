package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
)

// Package storage provides the persistence gateway backends.

// Gateway persists harvested events and companies and answers the narrow
// read queries the sync planner needs.
type Gateway interface {
	Close() error
	CountCompanies(ctx context.Context, eventURL string) (int, error)
	EventExists(ctx context.Context, canonicalURL string) (bool, error)
	ExistingCompanyNames(ctx context.Context, eventURL string) (map[string]bool, error)
	UpsertEvent(ctx context.Context, ev domain.Event) (int64, error)
	InsertCompanies(ctx context.Context, eventID int64, companies []domain.Company) error
}

// Options controls field-mapping defaults for concrete gateway implementations.
type Options struct {
	// DefaultCountryID is stamped when a company's country name has no
	// mapping in the store.
	DefaultCountryID int
	// DefaultIndustryID is stamped on every inserted company; the source
	// sites carry no industry classification.
	DefaultIndustryID int
}

const (
	defaultCountryID  = 1
	defaultIndustryID = 1
)

// NewGateway creates the configured persistence backend.
func NewGateway(typ, dsn string, opts Options) (Gateway, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopGateway{}, nil
	case "postgres":
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("postgres storage requires a connection url")
		}
		return openPostgres(dsn, opts)
	case "bbolt":
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.DefaultCountryID <= 0 {
		opts.DefaultCountryID = defaultCountryID
	}
	if opts.DefaultIndustryID <= 0 {
		opts.DefaultIndustryID = defaultIndustryID
	}
	return opts
}

// noopGateway discards writes and reports nothing stored. Useful for dry runs.
type noopGateway struct{}

func (noopGateway) Close() error                                        { return nil }
func (noopGateway) CountCompanies(context.Context, string) (int, error) { return 0, nil }
func (noopGateway) EventExists(context.Context, string) (bool, error)   { return false, nil }
func (noopGateway) ExistingCompanyNames(context.Context, string) (map[string]bool, error) {
	return nil, nil
}
func (noopGateway) UpsertEvent(context.Context, domain.Event) (int64, error) { return 0, nil }
func (noopGateway) InsertCompanies(context.Context, int64, []domain.Company) error {
	return nil
}
